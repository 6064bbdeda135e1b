package lexer

import (
	"regexp"
	"strconv"
	"strings"
)

// Vocabulary supplies the names the composed line pattern is built from.
type Vocabulary interface {
	OperationNames() []string // longest first
	KeywordNames() []string   // longest first
}

// Lexer turns script lines into tokens. It never fails: anything no other
// alternative claims becomes a command token.
type Lexer struct {
	line *regexp.Regexp
	idx  map[string]int
}

var (
	wordPattern     = regexp.MustCompile(`"(?:[^"\\]|\\.)*"?|'(?:[^'\\]|\\.)*'?|\S+`)
	variablePattern = regexp.MustCompile(`^(?:\{\$[A-Za-z_][A-Za-z0-9_]*\}|\$[A-Za-z_][A-Za-z0-9_]*)$`)
	numberPattern   = regexp.MustCompile(`^-?[0-9]+(?:\.[0-9]+)?$`)
)

var groups = []string{"section", "comment", "inc", "include", "keyword", "kwrest", "anykw", "anyrest", "api", "apirest", "command"}

func New(v Vocabulary) *Lexer {
	alt := func(names []string) string {
		quoted := make([]string, len(names))
		for i, n := range names {
			quoted[i] = regexp.QuoteMeta(n)
		}
		return strings.Join(quoted, "|")
	}

	parts := []string{
		`\s*\[\s*(?P<section>[^\]]*?)\s*\]\s*`,
		`\s*#(?P<comment>.*)`,
		`\s*(?P<inc>include)(?:\s+(?P<include>.*?))?\s*`,
	}
	if kws := v.KeywordNames(); len(kws) > 0 {
		parts = append(parts, `\s*<\s*(?P<keyword>`+alt(kws)+`)(?:\s+(?P<kwrest>.*?))?\s*>\s*`)
	}
	parts = append(parts, `\s*<\s*(?P<anykw>[A-Za-z_][A-Za-z0-9_]*)(?:\s+(?P<anyrest>.*?))?\s*>\s*`)
	if ops := v.OperationNames(); len(ops) > 0 {
		parts = append(parts, `\s*(?P<api>`+alt(ops)+`)(?:\s+(?P<apirest>.*?))?\s*`)
	}
	parts = append(parts, `(?P<command>.*?)`)

	re := regexp.MustCompile(`^(?:` + strings.Join(parts, "|") + `)$`)
	idx := make(map[string]int)
	for _, g := range groups {
		if i := re.SubexpIndex(g); i >= 0 {
			idx[g] = i
		}
	}
	return &Lexer{line: re, idx: idx}
}

// Tokenize lexes one physical line; n is its 1-based line number.
func (l *Lexer) Tokenize(line string, n int) []Token {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return nil
	}

	m := l.line.FindStringSubmatchIndex(line)
	group := func(name string) (string, bool) {
		i, ok := l.idx[name]
		if !ok || m[2*i] < 0 {
			return "", false
		}
		return line[m[2*i]:m[2*i+1]], true
	}

	if s, ok := group("section"); ok {
		return []Token{{Type: TokenSection, Text: s, Line: n}}
	}
	if s, ok := group("comment"); ok {
		return []Token{{Type: TokenComment, Text: s, Line: n}}
	}
	if _, ok := group("inc"); ok {
		s, _ := group("include")
		return []Token{{Type: TokenInclude, Text: s, Line: n}}
	}
	if s, ok := group("keyword"); ok {
		rest, _ := group("kwrest")
		return append([]Token{{Type: TokenKeyword, Text: s, Line: n}}, words(rest, n)...)
	}
	if s, ok := group("anykw"); ok {
		rest, _ := group("anyrest")
		return append([]Token{{Type: TokenKeyword, Text: s, Line: n}}, words(rest, n)...)
	}
	if s, ok := group("api"); ok {
		rest, _ := group("apirest")
		return append([]Token{{Type: TokenAPI, Text: s, Line: n}}, words(rest, n)...)
	}
	s, _ := group("command")
	return []Token{{Type: TokenCommand, Text: strings.TrimSpace(s), Line: n}}
}

// TokenizeSource lexes a whole script.
func (l *Lexer) TokenizeSource(src string) []Token {
	var tokens []Token
	for i, line := range strings.Split(src, "\n") {
		tokens = append(tokens, l.Tokenize(line, i+1)...)
	}
	return tokens
}

func words(text string, n int) []Token {
	var tokens []Token
	for _, w := range wordPattern.FindAllString(text, -1) {
		tokens = append(tokens, classify(w, n))
	}
	return tokens
}

func classify(w string, n int) Token {
	switch {
	case len(w) >= 2 && w[0] == '"' && strings.HasSuffix(w, `"`) && !escapedQuote(w):
		if s, err := strconv.Unquote(w); err == nil {
			return Token{Type: TokenString, Text: s, Line: n}
		}
	case len(w) >= 2 && w[0] == '\'' && strings.HasSuffix(w, `'`) && !escapedQuote(w):
		s := w[1 : len(w)-1]
		s = strings.ReplaceAll(s, `\'`, `'`)
		s = strings.ReplaceAll(s, `\\`, `\`)
		return Token{Type: TokenString, Text: s, Line: n}
	case variablePattern.MatchString(w):
		return Token{Type: TokenVariable, Text: w, Line: n}
	case numberPattern.MatchString(w):
		return Token{Type: TokenNumber, Text: w, Line: n}
	case IsOperator(w):
		return Token{Type: TokenOperator, Text: w, Line: n}
	}
	return Token{Type: TokenIdentifier, Text: w, Line: n}
}

// escapedQuote reports whether the closing quote of w is escaped.
func escapedQuote(w string) bool {
	backslashes := 0
	for i := len(w) - 2; i > 0 && w[i] == '\\'; i-- {
		backslashes++
	}
	return backslashes%2 == 1
}

// Render reconstructs source text from tokens, one line per statement.
func Render(tokens []Token) string {
	var lines []string
	var cur []string
	flush := func() {
		if cur != nil {
			lines = append(lines, strings.Join(cur, " "))
			cur = nil
		}
	}
	closeKeyword := false
	for _, t := range tokens {
		if t.IsPrimary() {
			if closeKeyword {
				cur[len(cur)-1] += ">"
				closeKeyword = false
			}
			flush()
		}
		switch t.Type {
		case TokenSection:
			cur = []string{"[" + t.Text + "]"}
		case TokenComment:
			cur = []string{"#" + t.Text}
		case TokenInclude:
			cur = []string{strings.TrimSpace("include " + t.Text)}
		case TokenKeyword:
			cur = []string{"<" + t.Text}
			closeKeyword = true
		case TokenAPI, TokenCommand:
			cur = []string{t.Text}
		case TokenString:
			cur = append(cur, strconv.Quote(t.Text))
		default:
			cur = append(cur, t.Text)
		}
	}
	if closeKeyword {
		cur[len(cur)-1] += ">"
	}
	flush()
	return strings.Join(lines, "\n")
}
