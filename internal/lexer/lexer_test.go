package lexer

import (
	"testing"

	"github.com/strata-lang/strata/internal/token"
)

func collect(t *testing.T, src string) []token.Token {
	t.Helper()
	l := New(src)
	var out []token.Token
	for {
		tok := l.Next()
		out = append(out, tok)
		if tok.Kind == token.EOF || tok.Kind == token.Error {
			return out
		}
	}
}

func TestNextToken(t *testing.T) {
	input := `let mut x = 5;
x = x + 10;
`
	tests := []token.Kind{
		token.KwLet, token.KwMut, token.Ident, token.Assign, token.Int, token.Semicolon,
		token.Ident, token.Assign, token.Ident, token.Plus, token.Int, token.Semicolon,
		token.EOF,
	}
	toks := collect(t, input)
	if len(toks) != len(tests) {
		t.Fatalf("token count: expected %d, got %d", len(tests), len(toks))
	}
	for i, want := range tests {
		if toks[i].Kind != want {
			t.Fatalf("tests[%d] - kind wrong. expected=%s, got=%s", i, want, toks[i].Kind)
		}
	}
}

func TestGreedyOperators(t *testing.T) {
	input := `== != <= >= && || -> => ::`
	wants := []token.Kind{
		token.EqEq, token.BangEq, token.Le, token.Ge, token.AndAnd, token.OrOr,
		token.Arrow, token.FatArrow, token.ColonColon, token.EOF,
	}
	toks := collect(t, input)
	for i, want := range wants {
		if toks[i].Kind != want {
			t.Fatalf("tests[%d] - kind wrong. expected=%s, got=%s", i, want, toks[i].Kind)
		}
	}
}

func TestSingleCharPrefixesOfOperators(t *testing.T) {
	input := `= ! < > & - :`
	wants := []token.Kind{
		token.Assign, token.Bang, token.Lt, token.Gt, token.Amp, token.Minus, token.Colon,
		token.EOF,
	}
	toks := collect(t, input)
	for i, want := range wants {
		if toks[i].Kind != want {
			t.Fatalf("tests[%d] - kind wrong. expected=%s, got=%s", i, want, toks[i].Kind)
		}
	}
}

func TestCommentsAreSkipped(t *testing.T) {
	input := "// leading comment\nlet x = 1; // trailing\n// last line"
	toks := collect(t, input)
	wants := []token.Kind{token.KwLet, token.Ident, token.Assign, token.Int, token.Semicolon, token.EOF}
	for i, want := range wants {
		if toks[i].Kind != want {
			t.Fatalf("tests[%d] - kind wrong. expected=%s, got=%s", i, want, toks[i].Kind)
		}
	}
}

func TestStringEscapes(t *testing.T) {
	tests := []struct {
		src  string
		want string
	}{
		{`"hello"`, "hello"},
		{`"a\nb"`, "a\nb"},
		{`"a\tb"`, "a\tb"},
		{`"say \"hi\""`, `say "hi"`},
		{`"back\\slash"`, `back\slash`},
		{`"unknown \x escape"`, "unknown x escape"},
	}
	for _, tt := range tests {
		toks := collect(t, tt.src)
		if toks[0].Kind != token.String {
			t.Fatalf("%s: expected string token, got %s", tt.src, toks[0].Kind)
		}
		if toks[0].StrVal != tt.want {
			t.Errorf("%s: expected %q, got %q", tt.src, tt.want, toks[0].StrVal)
		}
	}
}

func TestUnterminatedString(t *testing.T) {
	toks := collect(t, `"oops`)
	if toks[0].Kind != token.Error {
		t.Fatalf("expected error token, got %s", toks[0].Kind)
	}
}

func TestNumbers(t *testing.T) {
	toks := collect(t, "42 3.25 7")
	if toks[0].Kind != token.Int || toks[0].IntVal != 42 {
		t.Fatalf("expected Int 42, got %s %d", toks[0].Kind, toks[0].IntVal)
	}
	if toks[1].Kind != token.Float || toks[1].FltVal != 3.25 {
		t.Fatalf("expected Float 3.25, got %s %v", toks[1].Kind, toks[1].FltVal)
	}
	if toks[2].Kind != token.Int || toks[2].IntVal != 7 {
		t.Fatalf("expected Int 7, got %s", toks[2].Kind)
	}
}

func TestFloatRequiresDigitsBothSides(t *testing.T) {
	// `1.` is an Int followed by an unknown character error, not a float.
	l := New("1.")
	tok := l.Next()
	if tok.Kind != token.Int || tok.IntVal != 1 {
		t.Fatalf("expected Int 1, got %s", tok.Kind)
	}
	tok = l.Next()
	if tok.Kind != token.Error {
		t.Fatalf("expected error token for bare '.', got %s", tok.Kind)
	}
}

func TestIntegerOverflow(t *testing.T) {
	toks := collect(t, "99999999999999999999")
	if toks[0].Kind != token.Error {
		t.Fatalf("expected error token for overflowing literal, got %s", toks[0].Kind)
	}
}

func TestIdentifiersAndKeywords(t *testing.T) {
	toks := collect(t, "foo _bar match matches enum")
	wants := []struct {
		kind token.Kind
		text string
	}{
		{token.Ident, "foo"},
		{token.Ident, "_bar"},
		{token.KwMatch, "match"},
		{token.Ident, "matches"},
		{token.KwEnum, "enum"},
	}
	for i, want := range wants {
		if toks[i].Kind != want.kind || toks[i].Text != want.text {
			t.Fatalf("tests[%d]: expected %s %q, got %s %q", i, want.kind, want.text, toks[i].Kind, toks[i].Text)
		}
	}
}

func TestSpans(t *testing.T) {
	l := New("let x")
	tok := l.Next()
	if tok.Span.Start != 0 || tok.Span.End != 3 {
		t.Fatalf("let span: got [%d,%d)", tok.Span.Start, tok.Span.End)
	}
	tok = l.Next()
	if tok.Span.Start != 4 || tok.Span.End != 5 {
		t.Fatalf("x span: got [%d,%d)", tok.Span.Start, tok.Span.End)
	}
}

func TestUnknownCharacter(t *testing.T) {
	toks := collect(t, "let $")
	if toks[1].Kind != token.Error {
		t.Fatalf("expected error token for '$', got %s", toks[1].Kind)
	}
}
