package lexer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, input string) []Token {
	t.Helper()
	l := New(input)
	var toks []Token
	for {
		tok := l.NextToken()
		toks = append(toks, tok)
		if tok.Type == TokenEOF || tok.Type == TokenIllegal {
			break
		}
	}
	return toks
}

func TestPunctuationAndOperators(t *testing.T) {
	toks := collect(t, `( ) [ ] { } , ; : :: . ... ? ?.`)
	want := []TokenType{
		TokenLParen, TokenRParen, TokenLBracket, TokenRBracket,
		TokenLBrace, TokenRBrace, TokenComma, TokenSemicolon,
		TokenColon, TokenDblColon, TokenDot, TokenEllipsis,
		TokenQuestion, TokenOptChain, TokenEOF,
	}
	require.Len(t, toks, len(want))
	for i, w := range want {
		require.Equal(t, w, toks[i].Type, "token %d", i)
	}
}

func TestCompoundOperators(t *testing.T) {
	toks := collect(t, `== != <= >= && || += -= *= **= /= %= ++ -- **`)
	want := []TokenType{
		TokenEq, TokenNotEq, TokenLessEq, TokenGreaterEq, TokenAndAnd, TokenOrOr,
		TokenPlusEq, TokenMinusEq, TokenStarEq, TokenStarStarEq, TokenSlashEq,
		TokenPercentEq, TokenPlusPlus, TokenMinusMinus, TokenStarStar, TokenEOF,
	}
	require.Len(t, toks, len(want))
	for i, w := range want {
		require.Equal(t, w, toks[i].Type, "token %d", i)
	}
}

func TestKeywords(t *testing.T) {
	toks := collect(t, `null true false let if else while do for break continue function return in of typeof delete try catch finally throw`)
	want := []TokenType{
		TokenNull, TokenTrue, TokenFalse, TokenLet, TokenIf, TokenElse,
		TokenWhile, TokenDo, TokenFor, TokenBreak, TokenContinue,
		TokenFunction, TokenReturn, TokenIn, TokenOf, TokenTypeof,
		TokenDelete, TokenTry, TokenCatch, TokenFinally, TokenThrow, TokenEOF,
	}
	require.Len(t, toks, len(want))
	for i, w := range want {
		require.Equal(t, w, toks[i].Type, "token %d", i)
	}
}

func TestIdentifiersDistinctFromKeywords(t *testing.T) {
	toks := collect(t, `x count letter forEach nullable`)
	for _, tok := range toks[:len(toks)-1] {
		require.Equal(t, TokenIdentifier, tok.Type)
	}
}

func TestNumberLiterals(t *testing.T) {
	cases := []struct {
		src  string
		want float64
	}{
		{"42", 42},
		{"3.14", 3.14},
		{"0", 0},
		{"0.5", 0.5},
		{"1e3", 1000},
		{"2.5e-2", 0.025},
		{"1E+2", 100},
	}
	for _, c := range cases {
		l := New(c.src)
		tok := l.NextToken()
		require.Equal(t, TokenNumber, tok.Type, c.src)
		require.InDelta(t, c.want, tok.Number, 1e-9, c.src)
	}
}

func TestLeadingZeroIntegerStopsAtBareZero(t *testing.T) {
	toks := collect(t, `01`)
	require.Equal(t, TokenNumber, toks[0].Type)
	require.Equal(t, "0", toks[0].Literal)
}

func TestStringLiteral(t *testing.T) {
	toks := collect(t, `"hello, world" "" "with \" escape"`)
	require.Equal(t, TokenString, toks[0].Type)
	require.Equal(t, "hello, world", toks[0].Literal)
	require.Equal(t, TokenString, toks[1].Type)
	require.Equal(t, "", toks[1].Literal)
	require.Equal(t, TokenString, toks[2].Type)
}

func TestLineComment(t *testing.T) {
	toks := collect(t, "x // trailing comment\ny")
	require.Equal(t, []TokenType{TokenIdentifier, TokenIdentifier, TokenEOF},
		[]TokenType{toks[0].Type, toks[1].Type, toks[2].Type})
	require.Equal(t, 1, toks[0].Line)
	require.Equal(t, 2, toks[1].Line)
}

func TestBlockComment(t *testing.T) {
	toks := collect(t, "x /* spans\nlines */ y")
	require.Equal(t, TokenIdentifier, toks[0].Type)
	require.Equal(t, TokenIdentifier, toks[1].Type)
	require.Equal(t, "y", toks[1].Literal)
}

func TestIllegalByteReportsPositionAndStopsTokenize(t *testing.T) {
	l := New("x @ y")
	tokens, err := l.Tokenize()
	require.Error(t, err)
	require.Equal(t, TokenIdentifier, tokens[0].Type)
	require.Equal(t, TokenIllegal, tokens[1].Type)
	require.Equal(t, "@", tokens[1].Literal)
}

func TestIdentifierImmediatelyAfterNumberIsIllegal(t *testing.T) {
	l := New("123abc")
	tok := l.NextToken()
	require.Equal(t, TokenIllegal, tok.Type)
	require.Equal(t, "Identifier starts immediately after numeric literal", tok.Literal)
}

func TestFunctionLiteralSource(t *testing.T) {
	toks := collect(t, `let add = function(a, b) { return a + b; };`)
	want := []TokenType{
		TokenLet, TokenIdentifier, TokenAssign, TokenFunction, TokenLParen,
		TokenIdentifier, TokenComma, TokenIdentifier, TokenRParen, TokenLBrace,
		TokenReturn, TokenIdentifier, TokenPlus, TokenIdentifier, TokenSemicolon,
		TokenRBrace, TokenSemicolon, TokenEOF,
	}
	require.Len(t, toks, len(want))
	for i, w := range want {
		require.Equal(t, w, toks[i].Type, "token %d", i)
	}
}

func TestTokenizeFullProgram(t *testing.T) {
	l := New(`for (let i = 0; i < 10; i += 1) { continue; }`)
	tokens, err := l.Tokenize()
	require.NoError(t, err)
	require.Equal(t, TokenEOF, tokens[len(tokens)-1].Type)
}
