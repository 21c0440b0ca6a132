package session

import (
	"strings"
	"unicode"
)

// SplitStatements splits a cell into its statements on semicolons that are
// outside quotes, comments and trigger bodies. Statements holding only
// comments are dropped.
func SplitStatements(cell string) []string {
	var sp splitter

	runes := []rune(cell)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}

		switch {
		case sp.lineComment:
			if r == '\n' {
				sp.lineComment = false
			}
		case sp.blockComment:
			if r == '*' && next == '/' {
				sp.current.WriteString("*/")
				sp.blockComment = false
				i++
				continue
			}
		case sp.quote != 0:
			if r == sp.quote {
				sp.quote = 0
			}
		case r == '-' && next == '-':
			sp.endWord()
			sp.lineComment = true
		case r == '/' && next == '*':
			sp.endWord()
			sp.current.WriteString("/*")
			sp.blockComment = true
			i++
			continue
		case r == ';':
			sp.endWord()
			if sp.depth == 0 {
				sp.flush()
				continue
			}
		case r == '\'' || r == '"' || r == '`':
			sp.endWord()
			sp.quote = r
			sp.hasCode = true
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			sp.word.WriteRune(r)
			sp.hasCode = true
		default:
			sp.endWord()
			if !unicode.IsSpace(r) {
				sp.hasCode = true
			}
		}
		sp.current.WriteRune(r)
	}
	sp.endWord()
	sp.flush()

	return sp.statements
}

// splitter holds the scanning state of SplitStatements.
type splitter struct {
	statements []string
	current    strings.Builder
	word       strings.Builder

	quote        rune
	lineComment  bool
	blockComment bool
	hasCode      bool

	// words counts the keywords seen in the current statement; trigger is set
	// once it reads CREATE [TEMP] TRIGGER, after which BEGIN/CASE ... END nest.
	words     int
	firstWord string
	trigger   bool
	depth     int
}

func (sp *splitter) endWord() {
	if sp.word.Len() == 0 {
		return
	}
	w := strings.ToUpper(sp.word.String())
	sp.word.Reset()

	sp.words++
	switch {
	case sp.words == 1:
		sp.firstWord = w
	case w == "TRIGGER" && sp.firstWord == "CREATE" && sp.words <= 3:
		sp.trigger = true
	case !sp.trigger:
	case w == "BEGIN" || w == "CASE":
		sp.depth++
	case w == "END" && sp.depth > 0:
		sp.depth--
	}
}

func (sp *splitter) flush() {
	if sp.hasCode {
		sp.statements = append(sp.statements, strings.TrimSpace(sp.current.String()))
	}
	sp.current.Reset()
	sp.hasCode = false
	sp.words = 0
	sp.firstWord = ""
	sp.trigger = false
	sp.depth = 0
}

// leadingKeyword returns the first keyword of stmt in upper case, skipping
// comments and opening parentheses.
func leadingKeyword(stmt string) string {
	for {
		stmt = strings.TrimLeftFunc(stmt, func(r rune) bool {
			return unicode.IsSpace(r) || r == '('
		})
		switch {
		case strings.HasPrefix(stmt, "--"):
			end := strings.IndexByte(stmt, '\n')
			if end < 0 {
				return ""
			}
			stmt = stmt[end+1:]
		case strings.HasPrefix(stmt, "/*"):
			end := strings.Index(stmt[2:], "*/")
			if end < 0 {
				return ""
			}
			stmt = stmt[end+4:]
		default:
			end := strings.IndexFunc(stmt, func(r rune) bool {
				return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_')
			})
			if end < 0 {
				end = len(stmt)
			}
			return strings.ToUpper(stmt[:end])
		}
	}
}
