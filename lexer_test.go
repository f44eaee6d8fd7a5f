package hemlock

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lexAll(t *testing.T, src string) []Token {
	t.Helper()
	lx := NewLexer([]byte(src), "test.hml")
	var toks []Token
	for {
		tok := lx.Next()
		toks = append(toks, tok)
		if tok.Kind == TokEOF || tok.Kind == TokError {
			break
		}
	}
	return toks
}

func TestLexerKeywordsAndIdents(t *testing.T) {
	toks := lexAll(t, "let x = foo")
	require.Len(t, toks, 5)
	assert.Equal(t, TokLet, toks[0].Kind)
	assert.Equal(t, TokIdent, toks[1].Kind)
	assert.Equal(t, "x", toks[1].Text)
	assert.Equal(t, TokAssign, toks[2].Kind)
	assert.Equal(t, TokIdent, toks[3].Kind)
	assert.Equal(t, "foo", toks[3].Text)
	assert.Equal(t, TokEOF, toks[4].Kind)
}

func TestLexerNumericLiterals(t *testing.T) {
	for _, test := range []struct {
		name string
		src  string
		kind TokenKind
		want int64
	}{
		{"decimal", "42", TokInt, 42},
		{"hex", "0xFF", TokInt, 255},
		{"octal", "0o17", TokInt, 15},
		{"binary", "0b101", TokInt, 5},
		{"underscored", "1_000_000", TokInt, 1000000},
	} {
		t.Run(test.name, func(t *testing.T) {
			toks := lexAll(t, test.src)
			require.GreaterOrEqual(t, len(toks), 1)
			assert.Equal(t, test.kind, toks[0].Kind)
			assert.Equal(t, test.want, toks[0].IntVal)
		})
	}
}

func TestLexerFloatLiteral(t *testing.T) {
	toks := lexAll(t, "3.14")
	require.GreaterOrEqual(t, len(toks), 1)
	assert.Equal(t, TokFloat, toks[0].Kind)
	assert.InDelta(t, 3.14, toks[0].FltVal, 1e-9)
}

func TestLexerStringEscapes(t *testing.T) {
	toks := lexAll(t, `"a\nb\t\u{48}"`)
	require.GreaterOrEqual(t, len(toks), 1)
	assert.Equal(t, TokString, toks[0].Kind)
	assert.Equal(t, "a\nb\tH", toks[0].Text)
}

func TestLexerUnterminatedStringIsError(t *testing.T) {
	toks := lexAll(t, `"no closing quote`)
	last := toks[len(toks)-1]
	assert.Equal(t, TokError, last.Kind)
	assert.NotEmpty(t, last.Message)
}

func TestLexerRuneLiteral(t *testing.T) {
	toks := lexAll(t, `'x'`)
	require.GreaterOrEqual(t, len(toks), 1)
	assert.Equal(t, TokRune, toks[0].Kind)
	assert.Equal(t, 'x', toks[0].RuneVal)
}

func TestLexerOperatorsAndPunctuation(t *testing.T) {
	toks := lexAll(t, "?. ?? += << >>")
	var kinds []TokenKind
	for _, tok := range toks {
		if tok.Kind == TokEOF {
			break
		}
		kinds = append(kinds, tok.Kind)
	}
	assert.Equal(t, []TokenKind{TokQuestionDot, TokQuestionQuestion, TokPlusAssign, TokShl, TokShr}, kinds)
}

func TestLexerSkipsCommentsAndWhitespace(t *testing.T) {
	toks := lexAll(t, "// a comment\n  let x = 1")
	assert.Equal(t, TokLet, toks[0].Kind)
}
