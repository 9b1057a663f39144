// Package compiler implements a single-pass recursive-descent compiler:
// it walks the token stream from pkg/lexer and emits bytecode directly
// through pkg/bytecode.Assembler, with no intermediate syntax tree.
package compiler

import (
	"github.com/pkg/errors"

	"github.com/kristofer/nutshell/pkg/bytecode"
	"github.com/kristofer/nutshell/pkg/lexer"
)

// Compiler holds the two-token lookahead window over a lexer and the
// assembler being built up one statement at a time.
type Compiler struct {
	l    *lexer.Lexer
	cur  lexer.Token
	peek lexer.Token
	asm  *bytecode.Assembler
}

// New creates a Compiler over source, primed with the first two tokens.
func New(source string) *Compiler {
	c := &Compiler{l: lexer.New(source), asm: bytecode.NewAssembler()}
	c.next()
	c.next()
	return c
}

// Compile compiles source into an Assembler in one call.
func Compile(source string) (*bytecode.Assembler, error) {
	return New(source).Compile()
}

func (c *Compiler) next() {
	c.cur = c.peek
	c.peek = c.l.NextToken()
}

func (c *Compiler) errorf(format string, args ...interface{}) error {
	args = append([]interface{}{c.cur.Line}, args...)
	return errors.Errorf("line %d: "+format, args...)
}

// expect consumes cur if it matches tt, otherwise reports an error.
func (c *Compiler) expect(tt lexer.TokenType) error {
	if c.cur.Type != tt {
		return c.errorf("expected %s, got %s %q", tt, c.cur.Type, c.cur.Literal)
	}
	c.next()
	return nil
}

// semi consumes an optional trailing semicolon.
func (c *Compiler) semi() error {
	if c.cur.Type == lexer.TokenSemicolon {
		c.next()
	}
	return nil
}

// Compile runs the compiler to completion, appending an implicit
// `return undefined` so a program that never explicitly returns still
// terminates its top-level host-entry frame cleanly.
func (c *Compiler) Compile() (*bytecode.Assembler, error) {
	for c.cur.Type != lexer.TokenEOF {
		if err := c.statement(); err != nil {
			return nil, err
		}
	}
	c.asm.EmitPushUndefined()
	c.asm.EmitReturn()
	return c.asm, nil
}

func (c *Compiler) statement() error {
	c.asm.MarkLine(c.cur.Line)
	switch c.cur.Type {
	case lexer.TokenSemicolon:
		c.next()
		return nil
	case lexer.TokenLBrace:
		return c.blockStatement()
	case lexer.TokenLet:
		return c.letStatement()
	case lexer.TokenIf:
		return c.ifStatement()
	case lexer.TokenWhile:
		return c.whileStatement()
	case lexer.TokenDo:
		return c.doWhileStatement()
	case lexer.TokenFor:
		return c.forStatement()
	case lexer.TokenBreak:
		c.next()
		c.asm.EmitBreak()
		return c.semi()
	case lexer.TokenContinue:
		c.next()
		c.asm.EmitContinue()
		return c.semi()
	case lexer.TokenFunction:
		return c.functionDeclaration()
	case lexer.TokenReturn:
		return c.returnStatement()
	case lexer.TokenTry:
		return c.tryStatement()
	case lexer.TokenThrow:
		return c.throwStatement()
	default:
		return c.expressionStatement()
	}
}

func (c *Compiler) blockStatement() error {
	if err := c.expect(lexer.TokenLBrace); err != nil {
		return err
	}
	c.asm.EmitPushBlock()
	for c.cur.Type != lexer.TokenRBrace && c.cur.Type != lexer.TokenEOF {
		if err := c.statement(); err != nil {
			return err
		}
	}
	if err := c.expect(lexer.TokenRBrace); err != nil {
		return err
	}
	c.asm.EmitPop(1)
	return nil
}

func (c *Compiler) letStatement() error {
	c.next() // 'let'
	if c.cur.Type != lexer.TokenIdentifier {
		return c.errorf("expected identifier after let, got %q", c.cur.Literal)
	}
	name := c.cur.Literal
	c.next()
	if c.cur.Type == lexer.TokenAssign {
		c.next()
		if err := c.parseExpression(); err != nil {
			return err
		}
	} else {
		c.asm.EmitPushUndefined()
	}
	c.asm.EmitVariableDeclare(name)
	return c.semi()
}

func (c *Compiler) expressionStatement() error {
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.asm.EmitPop(1)
	return c.semi()
}

func (c *Compiler) ifStatement() error {
	c.next() // 'if'
	if err := c.expect(lexer.TokenLParen); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	if err := c.expect(lexer.TokenRParen); err != nil {
		return err
	}
	falseJump := c.asm.EmitJumpIfFalse()
	if err := c.statement(); err != nil {
		return err
	}
	if c.cur.Type == lexer.TokenElse {
		c.next()
		endJump := c.asm.EmitJump()
		c.asm.PatchUint32(falseJump, c.asm.Offset())
		if err := c.statement(); err != nil {
			return err
		}
		c.asm.PatchUint32(endJump, c.asm.Offset())
	} else {
		c.asm.PatchUint32(falseJump, c.asm.Offset())
	}
	return nil
}

// whileStatement and doWhileStatement both converge normal exhaustion
// and `break` on the same post-loop state: break truncates the stack
// down through (and including) the loop frame itself, so the natural
// path must reach that exact state before falling into the shared
// egress - hence the "cleanup label pops the loop frame, then the true
// egress" split below.
func (c *Compiler) whileStatement() error {
	c.next() // 'while'
	ingressPatch, egressPatch := c.asm.EmitPushLoop(0)
	ingress := c.asm.Offset()
	c.asm.PatchUint32(ingressPatch, ingress)
	if err := c.expect(lexer.TokenLParen); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	if err := c.expect(lexer.TokenRParen); err != nil {
		return err
	}
	falseJump := c.asm.EmitJumpIfFalse()
	if err := c.statement(); err != nil {
		return err
	}
	c.asm.EmitJumpTo(ingress)
	cleanup := c.asm.Offset()
	c.asm.PatchUint32(falseJump, cleanup)
	c.asm.EmitPop(1)
	c.asm.PatchUint32(egressPatch, c.asm.Offset())
	return nil
}

func (c *Compiler) doWhileStatement() error {
	c.next() // 'do'
	ingressPatch, egressPatch := c.asm.EmitPushLoop(0)
	bodyStart := c.asm.Offset()
	if err := c.statement(); err != nil {
		return err
	}
	ingress := c.asm.Offset()
	c.asm.PatchUint32(ingressPatch, ingress)
	if err := c.expect(lexer.TokenWhile); err != nil {
		return err
	}
	if err := c.expect(lexer.TokenLParen); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	if err := c.expect(lexer.TokenRParen); err != nil {
		return err
	}
	if err := c.semi(); err != nil {
		return err
	}
	trueJump := c.asm.EmitJumpIfTrue()
	c.asm.PatchUint32(trueJump, bodyStart)
	c.asm.EmitPop(1)
	c.asm.PatchUint32(egressPatch, c.asm.Offset())
	return nil
}

// forStatement dispatches between for-in/for-of and the classic
// three-clause form. Both start with `let IDENTIFIER`, and only the
// token after the identifier (`in`/`of` vs `=`/`;`) tells them apart -
// one token further than the compiler's cur/peek lookahead reaches -
// so the shared prefix is consumed here before branching.
func (c *Compiler) forStatement() error {
	c.next() // 'for'
	if err := c.expect(lexer.TokenLParen); err != nil {
		return err
	}
	if c.cur.Type == lexer.TokenLet && c.peek.Type == lexer.TokenIdentifier {
		name := c.peek.Literal
		c.next() // 'let'
		c.next() // identifier
		if c.cur.Type == lexer.TokenIn || c.cur.Type == lexer.TokenOf {
			return c.forInOfStatement(name)
		}
		return c.classicForStatement(name)
	}
	return c.classicForStatement("")
}

func (c *Compiler) forInOfStatement(name string) error {
	isOf := c.cur.Type == lexer.TokenOf
	c.next() // 'in' or 'of'

	ingressPatch, egressPatch := c.asm.EmitPushLoop(2)
	if err := c.parseExpression(); err != nil { // container
		return err
	}
	if err := c.expect(lexer.TokenRParen); err != nil {
		return err
	}
	c.asm.EmitPushNumber(0) // cursor
	ingress := c.asm.Offset()
	c.asm.PatchUint32(ingressPatch, ingress)

	var cleanupJump uint32
	if isOf {
		cleanupJump = c.asm.EmitForOfNext()
	} else {
		cleanupJump = c.asm.EmitForInNext()
	}
	c.asm.EmitPushBlock()
	c.asm.EmitDupe(1) // the value for_X_next just yielded
	c.asm.EmitVariableDeclare(name)
	if err := c.statement(); err != nil {
		return err
	}
	c.asm.EmitPop(2) // block scope + the stranded yielded value beneath it
	c.asm.EmitJumpTo(ingress)

	cleanup := c.asm.Offset()
	c.asm.PatchUint32(cleanupJump, cleanup)
	c.asm.EmitPop(2) // container + the loop frame itself
	c.asm.PatchUint32(egressPatch, c.asm.Offset())
	return nil
}

// classicForStatement compiles the three-clause `for`. initName is the
// identifier after `let` if the caller already consumed a `let NAME`
// prefix while disambiguating against for-in/for-of; empty otherwise
// (no init clause, or a plain expression init with no `let`).
func (c *Compiler) classicForStatement(initName string) error {
	c.asm.EmitPushBlock() // scope for a `let` binding in the init clause
	switch {
	case initName != "":
		if c.cur.Type == lexer.TokenAssign {
			c.next()
			if err := c.parseExpression(); err != nil {
				return err
			}
		} else {
			c.asm.EmitPushUndefined()
		}
		c.asm.EmitVariableDeclare(initName)
	case c.cur.Type != lexer.TokenSemicolon:
		if err := c.parseExpression(); err != nil {
			return err
		}
		c.asm.EmitPop(1)
	}
	if err := c.expect(lexer.TokenSemicolon); err != nil {
		return err
	}

	ingressPatch, egressPatch := c.asm.EmitPushLoop(0)
	condCheck := c.asm.Offset()
	hasCond := c.cur.Type != lexer.TokenSemicolon
	var falseJump uint32
	if hasCond {
		if err := c.parseExpression(); err != nil {
			return err
		}
		falseJump = c.asm.EmitJumpIfFalse()
	}
	if err := c.expect(lexer.TokenSemicolon); err != nil {
		return err
	}

	skipUpdate := c.asm.EmitJump()
	updateStart := c.asm.Offset()
	if c.cur.Type != lexer.TokenRParen {
		if err := c.parseExpression(); err != nil {
			return err
		}
		c.asm.EmitPop(1)
	}
	c.asm.EmitJumpTo(condCheck)
	bodyStart := c.asm.Offset()
	c.asm.PatchUint32(skipUpdate, bodyStart)
	if err := c.expect(lexer.TokenRParen); err != nil {
		return err
	}

	c.asm.PatchUint32(ingressPatch, updateStart)
	if err := c.statement(); err != nil {
		return err
	}
	c.asm.EmitJumpTo(updateStart)

	cleanup := c.asm.Offset()
	if hasCond {
		c.asm.PatchUint32(falseJump, cleanup)
	}
	c.asm.EmitPop(1) // the loop frame
	// break has already dropped the loop frame, so it lands here.
	c.asm.PatchUint32(egressPatch, c.asm.Offset())
	c.asm.EmitPop(1) // the init-binding block
	return nil
}

func (c *Compiler) returnStatement() error {
	c.next() // 'return'
	if c.cur.Type == lexer.TokenSemicolon || c.cur.Type == lexer.TokenRBrace {
		c.asm.EmitPushUndefined()
	} else if err := c.parseExpression(); err != nil {
		return err
	}
	c.asm.EmitReturn()
	return c.semi()
}

func (c *Compiler) throwStatement() error {
	c.next() // 'throw'
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.asm.EmitThrow()
	return c.semi()
}

// tryStatement: the normal-completion path (pop the try frame, push an
// undefined sentinel) and the exception path (unwind jumps straight to
// the catch header with the thrown value already pushed) both fall
// through to the same point right after the catch body, so `finally`
// is emitted exactly once there and covers both.
func (c *Compiler) tryStatement() error {
	c.next() // 'try'
	tryEgressPatch := c.asm.EmitPushTry()
	if err := c.blockStatement(); err != nil {
		return err
	}
	c.asm.EmitPop(1) // the try frame, normal path only
	c.asm.EmitPushUndefined()
	c.asm.PatchUint32(tryEgressPatch, c.asm.Offset())

	if err := c.expect(lexer.TokenCatch); err != nil {
		return err
	}
	if err := c.expect(lexer.TokenLParen); err != nil {
		return err
	}
	if c.cur.Type != lexer.TokenIdentifier {
		return c.errorf("expected identifier in catch binding, got %q", c.cur.Literal)
	}
	name := c.cur.Literal
	c.next()
	if err := c.expect(lexer.TokenRParen); err != nil {
		return err
	}
	postCatchPatch := c.asm.EmitCatch(name)
	if err := c.expect(lexer.TokenLBrace); err != nil {
		return err
	}
	for c.cur.Type != lexer.TokenRBrace && c.cur.Type != lexer.TokenEOF {
		if err := c.statement(); err != nil {
			return err
		}
	}
	if err := c.expect(lexer.TokenRBrace); err != nil {
		return err
	}
	c.asm.EmitPop(1) // the catch-bound block scope, exception path only
	c.asm.PatchUint32(postCatchPatch, c.asm.Offset())

	if c.cur.Type == lexer.TokenFinally {
		c.next()
		if err := c.blockStatement(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Compiler) functionDeclaration() error {
	c.next() // 'function'
	if c.cur.Type != lexer.TokenIdentifier {
		return c.errorf("expected function name, got %q", c.cur.Literal)
	}
	name := c.cur.Literal
	c.next()
	if err := c.functionLiteralAfterName(); err != nil {
		return err
	}
	c.asm.EmitVariableDeclare(name)
	return nil
}
