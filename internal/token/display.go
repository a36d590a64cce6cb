package token

var tokenDisplay = map[TokenType]string{
	NUMBER:     "number",
	STRING:     "string",
	IDENTIFIER: "identifier",

	AND: "'and'", CLASS: "'class'", ELSE: "'else'", FALSE: "'false'",
	FOR: "'for'", FUN: "'fun'", IF: "'if'", NIL: "'nil'", OR: "'or'",
	PRINT: "'print'", RETURN: "'return'", TRUE: "'true'", VAR: "'var'",
	WHILE: "'while'",

	LPAREN: "'('", RPAREN: "')'", LBRACE: "'{'", RBRACE: "'}'",
	COMMA: "','", DOT: "'.'", MINUS: "'-'", PLUS: "'+'",
	SEMICOLON: "';'", SLASH: "'/'", STAR: "'*'",

	BANG: "'!'", BANG_EQUAL: "'!='", ASSIGN: "'='", EQUAL_EQUAL: "'=='",
	GREATER: "'>'", GREATER_EQUAL: "'>='", LESS: "'<'", LESS_EQUAL: "'<='",

	EOF:     "end of file",
	ILLEGAL: "illegal token",
}

func (t TokenType) Display() string {
	if s, ok := tokenDisplay[t]; ok {
		return s
	}
	return string(t)
}
