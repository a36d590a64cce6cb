package lexer

import (
	"testing"

	"loxvm/internal/token"
)

func TestNextToken(t *testing.T) {
	input := `var a = 1;
a = a + 2;
if (a < 3) { print a; } else { print "no"; }
while (a < 10) { a = a + 1; }
class Box {}
var b = Box();
b.value = 42;
// a trailing comment
print 1 == 1;
print 1 != 2;
`

	tests := []struct {
		expectedType    token.TokenType
		expectedLiteral string
	}{
		{token.VAR, "var"},
		{token.IDENTIFIER, "a"},
		{token.ASSIGN, "="},
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},

		{token.IDENTIFIER, "a"},
		{token.ASSIGN, "="},
		{token.IDENTIFIER, "a"},
		{token.PLUS, "+"},
		{token.NUMBER, "2"},
		{token.SEMICOLON, ";"},

		{token.IF, "if"},
		{token.LPAREN, "("},
		{token.IDENTIFIER, "a"},
		{token.LESS, "<"},
		{token.NUMBER, "3"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.PRINT, "print"},
		{token.IDENTIFIER, "a"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},
		{token.ELSE, "else"},
		{token.LBRACE, "{"},
		{token.PRINT, "print"},
		{token.STRING, "no"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},

		{token.WHILE, "while"},
		{token.LPAREN, "("},
		{token.IDENTIFIER, "a"},
		{token.LESS, "<"},
		{token.NUMBER, "10"},
		{token.RPAREN, ")"},
		{token.LBRACE, "{"},
		{token.IDENTIFIER, "a"},
		{token.ASSIGN, "="},
		{token.IDENTIFIER, "a"},
		{token.PLUS, "+"},
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},
		{token.RBRACE, "}"},

		{token.CLASS, "class"},
		{token.IDENTIFIER, "Box"},
		{token.LBRACE, "{"},
		{token.RBRACE, "}"},

		{token.VAR, "var"},
		{token.IDENTIFIER, "b"},
		{token.ASSIGN, "="},
		{token.IDENTIFIER, "Box"},
		{token.LPAREN, "("},
		{token.RPAREN, ")"},
		{token.SEMICOLON, ";"},

		{token.IDENTIFIER, "b"},
		{token.DOT, "."},
		{token.IDENTIFIER, "value"},
		{token.ASSIGN, "="},
		{token.NUMBER, "42"},
		{token.SEMICOLON, ";"},

		{token.PRINT, "print"},
		{token.NUMBER, "1"},
		{token.EQUAL_EQUAL, "=="},
		{token.NUMBER, "1"},
		{token.SEMICOLON, ";"},

		{token.PRINT, "print"},
		{token.NUMBER, "1"},
		{token.BANG_EQUAL, "!="},
		{token.NUMBER, "2"},
		{token.SEMICOLON, ";"},

		{token.EOF, ""},
	}

	l := New(input)
	for i, tt := range tests {
		tok := l.NextToken()
		if tok.Type != tt.expectedType {
			t.Fatalf("tests[%d] - tokentype wrong. expected=%q, got=%q (literal %q)",
				i, tt.expectedType, tok.Type, tok.Literal)
		}
		if tok.Literal != tt.expectedLiteral {
			t.Fatalf("tests[%d] - literal wrong. expected=%q, got=%q",
				i, tt.expectedLiteral, tok.Literal)
		}
	}
}

func TestNumberLiterals(t *testing.T) {
	l := New("1 2.5 10")
	expected := []string{"1", "2.5", "10"}
	for _, want := range expected {
		tok := l.NextToken()
		if tok.Type != token.NUMBER || tok.Literal != want {
			t.Fatalf("expected NUMBER %q, got %s %q", want, tok.Type, tok.Literal)
		}
	}
}

func TestUnterminatedString(t *testing.T) {
	l := New(`"unterminated`)
	tok := l.NextToken()
	if tok.Type != token.ILLEGAL {
		t.Fatalf("expected ILLEGAL, got %s", tok.Type)
	}
}
