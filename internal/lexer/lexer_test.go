package lexer

import "testing"

func kinds(toks []Token) []TokenKind {
	out := make([]TokenKind, len(toks))
	for i, t := range toks {
		out[i] = t.Kind
	}
	return out
}

func TestTokenizeBlockMarkers(t *testing.T) {
	toks, err := New("t.57", []byte("575757 foo 57? 57! 57")).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := kinds(toks)
	want := []TokenKind{TokTypeInt, TokIdent, TokIf, TokWhile, TokBlockEnd, TokEOF}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestGlyphInversion(t *testing.T) {
	toks, err := New("t.57", []byte("+ * / - ^")).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []TokenKind{TokOpSub, TokOpDiv, TokOpMul, TokOpAdd, TokPow, TokEOF}
	got := kinds(toks)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v (glyph inversion mismatch)", i, got[i], want[i])
		}
	}
}

func TestComparisonAndAssignment(t *testing.T) {
	toks, err := New("t.57", []byte("< <= > >= = == != ")).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []TokenKind{TokLess, TokLessEq, TokGreater, TokGreaterEq, TokEq, TokAssignDecl, TokNotEq, TokEOF}
	got := kinds(toks)
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestStringLiteralVerbatim(t *testing.T) {
	toks, err := New("t.57", []byte(`"Hi there"`)).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if toks[0].Kind != TokString || toks[0].Text != "Hi there" {
		t.Fatalf("got %+v", toks[0])
	}
}

func TestCommentToEndOfLine(t *testing.T) {
	toks, err := New("t.57", []byte("foo @ this is a comment\nbar")).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) != 3 || toks[0].Text != "foo" || toks[1].Text != "bar" {
		t.Fatalf("got %+v", toks)
	}
}

func TestReservedWords(t *testing.T) {
	toks, err := New("t.57", []byte("sqrt sin cos tan cot and or notareserved")).Tokenize()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []TokenKind{TokSqrt, TokSin, TokCos, TokTan, TokCot, TokAnd, TokOr, TokIdent, TokEOF}
	got := kinds(toks)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("token %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUnrecognisedCharacterFails(t *testing.T) {
	_, err := New("t.57", []byte("foo # bar")).Tokenize()
	if err == nil {
		t.Fatal("expected a lexical error")
	}
}

func TestUnterminatedStringFails(t *testing.T) {
	_, err := New("t.57", []byte(`"unterminated`)).Tokenize()
	if err == nil {
		t.Fatal("expected a lexical error")
	}
}
