package lexer

import "fmt"

type TokenType string

const (
	// Primary tokens, one per statement
	TokenSection TokenType = "SECTION"
	TokenCommand TokenType = "COMMAND"
	TokenAPI     TokenType = "API"
	TokenKeyword TokenType = "KEYWORD"
	TokenComment TokenType = "COMMENT"
	TokenInclude TokenType = "INCLUDE"

	// Argument tokens following a primary token on the same line
	TokenVariable   TokenType = "VARIABLE"
	TokenOperator   TokenType = "OPERATOR"
	TokenIdentifier TokenType = "IDENT"
	TokenNumber     TokenType = "NUMBER"
	TokenString     TokenType = "STRING"
)

type Token struct {
	Type TokenType
	Text string
	Line int
}

func (t Token) String() string {
	return fmt.Sprintf("%d [%s] '%s'", t.Line, t.Type, t.Text)
}

// IsPrimary reports whether the token starts a statement.
func (t Token) IsPrimary() bool {
	switch t.Type {
	case TokenSection, TokenCommand, TokenAPI, TokenKeyword, TokenComment, TokenInclude:
		return true
	}
	return false
}

// operators recognised inside argument text
var operators = map[string]bool{
	"==": true, "!=": true, "<=": true, ">=": true, "<": true, ">": true,
	"eq": true, "ne": true, "lt": true, "gt": true, "le": true, "ge": true,
	"contains": true, "!contains": true, "match": true,
	"and": true, "or": true,
}

// IsOperator reports whether text lexes as an operator.
func IsOperator(text string) bool {
	return operators[text]
}
