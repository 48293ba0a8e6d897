package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kinds(tokens []Token) []Kind {
	ks := make([]Kind, len(tokens))
	for i, t := range tokens {
		ks[i] = t.Kind
	}
	return ks
}

func TestArithmeticAndCall(t *testing.T) {
	toks, err := New("t.gts", "console.log(10 + 5);").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []Kind{
		Identifier, Dot, Identifier, LParen, Number, Plus, Number, RParen, Semicolon, EOF,
	}, kinds(toks))
}

func TestRegexVsDivision(t *testing.T) {
	toks, err := New("t.gts", "let x = 6 / 2 / 3;\nlet r = /abc/i;").Tokenize()
	require.NoError(t, err)

	var regexCount, divideCount int
	for _, tok := range toks {
		switch tok.Kind {
		case Regex:
			regexCount++
			assert.Equal(t, "/abc/i", tok.Lexeme)
		case Divide:
			divideCount++
		}
	}
	assert.Equal(t, 1, regexCount)
	assert.Equal(t, 2, divideCount)
}

func TestUnterminatedRegexEmbeddedNewlineFails(t *testing.T) {
	_, err := New("t.gts", "let r = /abc\ndef/;").Tokenize()
	require.Error(t, err)
}

func TestStringEscapes(t *testing.T) {
	toks, err := New("t.gts", `"a\nb\tc\\d"`).Tokenize()
	require.NoError(t, err)
	require.Len(t, toks, 2)
	assert.Equal(t, "a\nb\tc\\d", toks[0].Lexeme)
}

func TestKeywordsAndCompoundOperators(t *testing.T) {
	toks, err := New("t.gts", "for each (|k, v| in xs) { x += 1; y = y ** 2; }").Tokenize()
	require.NoError(t, err)
	assert.Contains(t, kinds(toks), For)
	assert.Contains(t, kinds(toks), Each)
	assert.Contains(t, kinds(toks), In)
	assert.Contains(t, kinds(toks), PlusAssign)
}

func TestSliceToken(t *testing.T) {
	toks, err := New("t.gts", "a[:]").Tokenize()
	require.NoError(t, err)
	assert.Equal(t, []Kind{Identifier, SliceColon, EOF}, kinds(toks))
}

func TestLineColumnTracking(t *testing.T) {
	toks, err := New("t.gts", "let a = 1;\nlet b = 2;").Tokenize()
	require.NoError(t, err)
	var secondLet Token
	count := 0
	for _, tk := range toks {
		if tk.Kind == Let {
			count++
			if count == 2 {
				secondLet = tk
			}
		}
	}
	assert.Equal(t, 2, secondLet.Line)
}
