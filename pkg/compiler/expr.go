package compiler

import "github.com/kristofer/nutshell/pkg/lexer"

// parseExpression is the top of the precedence table: ternary, which
// in turn threads down through logical-or, logical-and, equality,
// relational, additive, multiplicative, exponent, prefix and finally
// the postfix/assignment chain. Assignment itself is handled at the
// bottom of this chain (see parseAssignable) rather than at the top -
// a deliberate deviation from the textbook grammar (where assignment
// binds loosest) made so a single-pass emitter never has to backtrack
// to discover whether a chain it already started emitting turns out to
// be an assignment target.
func (c *Compiler) parseExpression() error { return c.parseTernary() }

func (c *Compiler) parseTernary() error {
	if err := c.parseLogicalOr(); err != nil {
		return err
	}
	if c.cur.Type != lexer.TokenQuestion {
		return nil
	}
	c.next()
	falseJump := c.asm.EmitJumpIfFalse()
	if err := c.parseExpression(); err != nil {
		return err
	}
	endJump := c.asm.EmitJump()
	c.asm.PatchUint32(falseJump, c.asm.Offset())
	if err := c.expect(lexer.TokenColon); err != nil {
		return err
	}
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.asm.PatchUint32(endJump, c.asm.Offset())
	return nil
}

// parseLogicalOr and parseLogicalAnd implement real short circuiting:
// the rhs is only compiled (and only runs) when the lhs didn't already
// decide the result, via dupe-top/conditional-jump/pop-and-evaluate-rhs.
func (c *Compiler) parseLogicalOr() error {
	if err := c.parseLogicalAnd(); err != nil {
		return err
	}
	for c.cur.Type == lexer.TokenOrOr {
		c.next()
		c.asm.EmitDupe(0)
		shortCircuit := c.asm.EmitJumpIfTrue()
		c.asm.EmitPop(1)
		if err := c.parseLogicalAnd(); err != nil {
			return err
		}
		c.asm.PatchUint32(shortCircuit, c.asm.Offset())
	}
	return nil
}

func (c *Compiler) parseLogicalAnd() error {
	if err := c.parseEquality(); err != nil {
		return err
	}
	for c.cur.Type == lexer.TokenAndAnd {
		c.next()
		c.asm.EmitDupe(0)
		shortCircuit := c.asm.EmitJumpIfFalse()
		c.asm.EmitPop(1)
		if err := c.parseEquality(); err != nil {
			return err
		}
		c.asm.PatchUint32(shortCircuit, c.asm.Offset())
	}
	return nil
}

func (c *Compiler) parseEquality() error {
	if err := c.parseRelational(); err != nil {
		return err
	}
	for c.cur.Type == lexer.TokenEq || c.cur.Type == lexer.TokenNotEq {
		op := c.cur.Type
		c.next()
		if err := c.parseRelational(); err != nil {
			return err
		}
		if op == lexer.TokenEq {
			c.asm.EmitEq()
		} else {
			c.asm.EmitNe()
		}
	}
	return nil
}

func (c *Compiler) parseRelational() error {
	if err := c.parseAdditive(); err != nil {
		return err
	}
	for {
		switch c.cur.Type {
		case lexer.TokenLess:
			c.next()
			if err := c.parseAdditive(); err != nil {
				return err
			}
			c.asm.EmitLt()
		case lexer.TokenLessEq:
			c.next()
			if err := c.parseAdditive(); err != nil {
				return err
			}
			c.asm.EmitLe()
		case lexer.TokenGreater:
			c.next()
			if err := c.parseAdditive(); err != nil {
				return err
			}
			c.asm.EmitGt()
		case lexer.TokenGreaterEq:
			c.next()
			if err := c.parseAdditive(); err != nil {
				return err
			}
			c.asm.EmitGe()
		default:
			return nil
		}
	}
}

func (c *Compiler) parseAdditive() error {
	if err := c.parseMultiplicative(); err != nil {
		return err
	}
	for c.cur.Type == lexer.TokenPlus || c.cur.Type == lexer.TokenMinus {
		op := c.cur.Type
		c.next()
		if err := c.parseMultiplicative(); err != nil {
			return err
		}
		if op == lexer.TokenPlus {
			c.asm.EmitAdd()
		} else {
			c.asm.EmitSub()
		}
	}
	return nil
}

func (c *Compiler) parseMultiplicative() error {
	if err := c.parseExponent(); err != nil {
		return err
	}
	for {
		switch c.cur.Type {
		case lexer.TokenStar:
			c.next()
			if err := c.parseExponent(); err != nil {
				return err
			}
			c.asm.EmitMul()
		case lexer.TokenSlash:
			c.next()
			if err := c.parseExponent(); err != nil {
				return err
			}
			c.asm.EmitDiv()
		case lexer.TokenPercent:
			c.next()
			if err := c.parseExponent(); err != nil {
				return err
			}
			c.asm.EmitMod()
		default:
			return nil
		}
	}
}

// parseExponent is right-associative: `2 ** 3 ** 2` is `2 ** (3 ** 2)`.
func (c *Compiler) parseExponent() error {
	if err := c.parsePrefix(); err != nil {
		return err
	}
	if c.cur.Type == lexer.TokenStarStar {
		c.next()
		if err := c.parseExponent(); err != nil {
			return err
		}
		c.asm.EmitPow()
	}
	return nil
}

func (c *Compiler) parsePrefix() error {
	switch c.cur.Type {
	case lexer.TokenTypeof:
		c.next()
		if err := c.parsePrefix(); err != nil {
			return err
		}
		c.asm.EmitTypeof()
		return nil
	case lexer.TokenBang:
		c.next()
		if err := c.parsePrefix(); err != nil {
			return err
		}
		c.asm.EmitNot()
		return nil
	case lexer.TokenMinus:
		c.next()
		c.asm.EmitPushNumber(0)
		if err := c.parsePrefix(); err != nil {
			return err
		}
		c.asm.EmitSub()
		return nil
	case lexer.TokenPlus:
		c.next()
		return c.parsePrefix()
	case lexer.TokenDelete:
		c.next()
		if c.cur.Type != lexer.TokenIdentifier {
			return c.errorf("delete requires a variable name, got %q", c.cur.Literal)
		}
		name := c.cur.Literal
		c.next()
		c.asm.EmitVariableDelete(name)
		c.asm.EmitPushUndefined()
		return nil
	case lexer.TokenPlusPlus:
		c.next()
		return c.compileIncDec(true)
	case lexer.TokenMinusMinus:
		c.next()
		return c.compileIncDec(false)
	default:
		return c.parseAssignable()
	}
}

// compileIncDec implements prefix ++/--. Only bare variable targets are
// supported; `obj.x += 1` covers the member-target case.
func (c *Compiler) compileIncDec(isInc bool) error {
	if c.cur.Type != lexer.TokenIdentifier {
		return c.errorf("++/-- require a variable name, got %q", c.cur.Literal)
	}
	name := c.cur.Literal
	c.next()
	c.asm.EmitVariableGet(name)
	c.asm.EmitPushNumber(1)
	if isInc {
		c.asm.EmitAdd()
	} else {
		c.asm.EmitSub()
	}
	c.asm.EmitDupe(0)
	c.asm.EmitVariablePut(name)
	return nil
}

// assignTarget describes what parsePostfixChain left pending.
//   - kind "none": a value is already fully computed and sitting on
//     top of the stack.
//   - kind "var": name has not been read yet - the caller decides
//     whether to variable_get it or compile an assignment.
//   - kind "member": container and key are already pushed (in that
//     order) and not yet consumed - the caller decides whether to
//     member_get or compile an assignment.
type assignTarget struct {
	kind string
	name string
}

func (c *Compiler) isAccessorStart() bool {
	switch c.cur.Type {
	case lexer.TokenDot, lexer.TokenDblColon, lexer.TokenOptChain, lexer.TokenLBracket, lexer.TokenLParen:
		return true
	default:
		return false
	}
}

func (c *Compiler) isAssignOp() bool {
	switch c.cur.Type {
	case lexer.TokenAssign, lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq,
		lexer.TokenStarStarEq, lexer.TokenSlashEq, lexer.TokenPercentEq:
		return true
	default:
		return false
	}
}

// parsePostfixChain parses a primary expression followed by any run of
// member/index/call/optional-chain accessors. Only the very last
// accessor in the chain can be left pending for assignment - every
// earlier one is read immediately, which is what lets `a.b.c = x`
// target the right link.
func (c *Compiler) parsePostfixChain() (assignTarget, error) {
	var tgt assignTarget
	if c.cur.Type == lexer.TokenIdentifier {
		name := c.cur.Literal
		c.next()
		if !c.isAccessorStart() {
			return assignTarget{kind: "var", name: name}, nil
		}
		c.asm.EmitVariableGet(name)
	} else {
		if err := c.parsePrimaryValue(); err != nil {
			return tgt, err
		}
	}
	tgt.kind = "none"
	for {
		switch c.cur.Type {
		case lexer.TokenDot, lexer.TokenDblColon:
			c.next()
			if c.cur.Type != lexer.TokenIdentifier {
				return tgt, c.errorf("expected property name, got %q", c.cur.Literal)
			}
			key := c.cur.Literal
			c.next()
			c.asm.EmitPushString(key)
			if c.isAssignOp() {
				return assignTarget{kind: "member"}, nil
			}
			c.asm.EmitMemberGet()
		case lexer.TokenOptChain:
			c.next()
			if c.cur.Type != lexer.TokenIdentifier {
				return tgt, c.errorf("expected property name, got %q", c.cur.Literal)
			}
			key := c.cur.Literal
			c.next()
			c.asm.EmitPushString(key)
			c.asm.EmitObjectOptional()
		case lexer.TokenLBracket:
			c.next()
			if err := c.parseExpression(); err != nil {
				return tgt, err
			}
			if err := c.expect(lexer.TokenRBracket); err != nil {
				return tgt, err
			}
			if c.isAssignOp() {
				return assignTarget{kind: "member"}, nil
			}
			c.asm.EmitMemberGet()
		case lexer.TokenLParen:
			if err := c.parseCallArgs(); err != nil {
				return tgt, err
			}
			// call expects [argv, callee] with callee on top; the
			// callee we already evaluated sits below the argv array
			// we just built, so swap them into place.
			c.asm.EmitSwap(0, 1)
			c.asm.EmitCall()
		default:
			return tgt, nil
		}
	}
}

func (c *Compiler) parseCallArgs() error {
	if err := c.expect(lexer.TokenLParen); err != nil {
		return err
	}
	c.asm.EmitArgumentFirst()
	for c.cur.Type != lexer.TokenRParen {
		if c.cur.Type == lexer.TokenEllipsis {
			c.next()
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.asm.EmitArgumentSpread()
		} else {
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.asm.EmitArgumentAppend()
		}
		if c.cur.Type == lexer.TokenComma {
			c.next()
		} else {
			break
		}
	}
	return c.expect(lexer.TokenRParen)
}

func (c *Compiler) parseAssignable() error {
	tgt, err := c.parsePostfixChain()
	if err != nil {
		return err
	}
	switch tgt.kind {
	case "var":
		if !c.isAssignOp() {
			c.asm.EmitVariableGet(tgt.name)
			return nil
		}
		return c.compileVarAssignment(tgt.name)
	case "member":
		return c.compileMemberAssignment()
	default:
		return nil
	}
}

func (c *Compiler) emitCompoundOp(op lexer.TokenType) {
	switch op {
	case lexer.TokenPlusEq:
		c.asm.EmitAdd()
	case lexer.TokenMinusEq:
		c.asm.EmitSub()
	case lexer.TokenStarEq:
		c.asm.EmitMul()
	case lexer.TokenStarStarEq:
		c.asm.EmitPow()
	case lexer.TokenSlashEq:
		c.asm.EmitDiv()
	case lexer.TokenPercentEq:
		c.asm.EmitMod()
	}
}

// compileVarAssignment emits `name = rhs` or `name op= rhs`, leaving
// the newly stored value as the expression's result (matching plain
// JS assignment-expression semantics, since a variable_get/variable_put
// round trip is cheap here).
func (c *Compiler) compileVarAssignment(name string) error {
	op := c.cur.Type
	c.next()
	if op == lexer.TokenAssign {
		if err := c.parseExpression(); err != nil {
			return err
		}
		c.asm.EmitDupe(0)
		c.asm.EmitVariablePut(name)
		return nil
	}
	c.asm.EmitVariableGet(name)
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.emitCompoundOp(op)
	c.asm.EmitDupe(0)
	c.asm.EmitVariablePut(name)
	return nil
}

// compileMemberAssignment emits `container[key] = rhs` or a compound
// form. Unlike variable assignment, the expression's result is always
// undefined rather than the stored value: recovering the stored value
// here would need a second container+key pair preserved under the rhs,
// which costs a four-deep stack shuffle for a pattern (assignment used
// as a sub-expression on a member target) that practice doesn't use -
// the overwhelmingly common case is the assignment as its own
// statement, where the result is discarded anyway.
func (c *Compiler) compileMemberAssignment() error {
	op := c.cur.Type
	c.next()
	if op == lexer.TokenAssign {
		if err := c.parseExpression(); err != nil {
			return err
		}
		c.asm.EmitMemberPut()
		c.asm.EmitPushUndefined()
		return nil
	}
	c.asm.EmitDupe(1) // container
	c.asm.EmitDupe(1) // key
	c.asm.EmitMemberGet()
	if err := c.parseExpression(); err != nil {
		return err
	}
	c.emitCompoundOp(op)
	c.asm.EmitMemberPut()
	c.asm.EmitPushUndefined()
	return nil
}

// decodeStringEscapes resolves the `\` escapes the lexer deliberately
// left raw. Recognized escapes are the common control characters and
// a literal backslash/quote; anything else just drops the backslash,
// keeping the following byte as-is.
func decodeStringEscapes(raw string) string {
	if !containsBackslash(raw) {
		return raw
	}
	var out []byte
	for i := 0; i < len(raw); i++ {
		if raw[i] != '\\' || i == len(raw)-1 {
			out = append(out, raw[i])
			continue
		}
		i++
		switch raw[i] {
		case 'n':
			out = append(out, '\n')
		case 't':
			out = append(out, '\t')
		case 'r':
			out = append(out, '\r')
		case '"':
			out = append(out, '"')
		case '\\':
			out = append(out, '\\')
		default:
			out = append(out, raw[i])
		}
	}
	return string(out)
}

func containsBackslash(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' {
			return true
		}
	}
	return false
}

func (c *Compiler) parsePrimaryValue() error {
	switch c.cur.Type {
	case lexer.TokenNumber:
		c.asm.EmitPushNumber(c.cur.Number)
		c.next()
		return nil
	case lexer.TokenString:
		c.asm.EmitPushString(decodeStringEscapes(c.cur.Literal))
		c.next()
		return nil
	case lexer.TokenTrue:
		c.asm.EmitPushBoolean(true)
		c.next()
		return nil
	case lexer.TokenFalse:
		c.asm.EmitPushBoolean(false)
		c.next()
		return nil
	case lexer.TokenNull:
		c.asm.EmitPushNull()
		c.next()
		return nil
	case lexer.TokenLParen:
		c.next()
		if err := c.parseExpression(); err != nil {
			return err
		}
		return c.expect(lexer.TokenRParen)
	case lexer.TokenLBracket:
		return c.parseArrayLiteral()
	case lexer.TokenLBrace:
		return c.parseObjectLiteral()
	case lexer.TokenFunction:
		c.next()
		return c.functionLiteralAfterName()
	default:
		return c.errorf("unexpected token %s %q in expression", c.cur.Type, c.cur.Literal)
	}
}

func (c *Compiler) parseArrayLiteral() error {
	c.next() // '['
	c.asm.EmitPushEmptyArray()
	for c.cur.Type != lexer.TokenRBracket {
		if c.cur.Type == lexer.TokenEllipsis {
			c.next()
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.asm.EmitArraySpread()
		} else {
			if err := c.parseExpression(); err != nil {
				return err
			}
			c.asm.EmitArrayAppend()
		}
		if c.cur.Type == lexer.TokenComma {
			c.next()
		} else {
			break
		}
	}
	return c.expect(lexer.TokenRBracket)
}

func (c *Compiler) parseObjectLiteral() error {
	c.next() // '{'
	c.asm.EmitPushEmptyObject()
	for c.cur.Type != lexer.TokenRBrace {
		var key string
		switch c.cur.Type {
		case lexer.TokenIdentifier:
			key = c.cur.Literal
			c.next()
		case lexer.TokenString:
			key = decodeStringEscapes(c.cur.Literal)
			c.next()
		default:
			return c.errorf("expected object key, got %q", c.cur.Literal)
		}
		if err := c.expect(lexer.TokenColon); err != nil {
			return err
		}
		c.asm.EmitDupe(0)
		c.asm.EmitPushString(key)
		if err := c.parseExpression(); err != nil {
			return err
		}
		c.asm.EmitMemberPut()
		if c.cur.Type == lexer.TokenComma {
			c.next()
		} else {
			break
		}
	}
	return c.expect(lexer.TokenRBrace)
}

// functionLiteralAfterName compiles a function literal's parameter
// list and body, leaving the closure value it constructs on the stack.
// A name, if any (function declarations only), is bound by the caller.
func (c *Compiler) functionLiteralAfterName() error {
	if err := c.expect(lexer.TokenLParen); err != nil {
		return err
	}
	var params []string
	restParam := ""
	for c.cur.Type != lexer.TokenRParen {
		if c.cur.Type == lexer.TokenEllipsis {
			c.next()
			if c.cur.Type != lexer.TokenIdentifier {
				return c.errorf("expected identifier after ..., got %q", c.cur.Literal)
			}
			restParam = c.cur.Literal
			c.next()
			break
		}
		if c.cur.Type != lexer.TokenIdentifier {
			return c.errorf("expected parameter name, got %q", c.cur.Literal)
		}
		params = append(params, c.cur.Literal)
		c.next()
		if c.cur.Type == lexer.TokenComma {
			c.next()
		} else {
			break
		}
	}
	if err := c.expect(lexer.TokenRParen); err != nil {
		return err
	}

	closurePatch := c.asm.EmitMakeClosure()
	skipBody := c.asm.EmitJump()
	bodyEntry := c.asm.Offset()
	c.asm.PatchUint32(closurePatch, bodyEntry)

	for _, p := range params {
		c.asm.EmitArgumentGetNext(p)
	}
	if restParam != "" {
		c.asm.EmitArgumentGetRest(restParam)
	}

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
	c.asm.EmitPushUndefined()
	c.asm.EmitReturn()

	c.asm.PatchUint32(skipBody, c.asm.Offset())
	return nil
}
