package shell

import (
	"strconv"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/kart-io/ark/pkg/errors"
)

// step is one property access in a chain, optionally invoked.
type step struct {
	name    string
	args    []string
	invoked bool
}

// chain is a parsed expression such as db.users.find({}).limit(3).
type chain struct {
	root  string
	steps []step
}

func unsupported(format string, args ...interface{}) error {
	return errors.ErrUnsupportedScript.WithMessagef(format, args...)
}

// statements splits code on top-level semicolons, and on top-level line
// breaks that end a complete expression, and drops empty ones. A line that
// starts with '.' continues the previous chain.
func statements(code string) []string {
	src := stripComments(code)

	var (
		out   []string
		depth int
		start int
	)
	emit := func(end int) {
		if s := strings.TrimSpace(src[start:end]); s != "" {
			out = append(out, s)
		}
		start = end + 1
	}
	for i := 0; i < len(src); i++ {
		switch c := src[i]; c {
		case '"', '\'', '`':
			i = skipString(src, i) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case ';':
			if depth == 0 {
				emit(i)
			}
		case '\n':
			if depth == 0 && endsExpression(src[start:i]) && !continuesChain(src[i+1:]) {
				emit(i)
			}
		}
	}
	emit(len(src))
	return out
}

func endsExpression(s string) bool {
	s = strings.TrimRight(s, " \t\r\n")
	if s == "" {
		return false
	}
	c := s[len(s)-1]
	return isIdentPart(c) || strings.IndexByte(")]}\"'`", c) >= 0
}

func continuesChain(s string) bool {
	s = strings.TrimLeft(s, " \t\r\n")
	return strings.HasPrefix(s, ".") || strings.HasPrefix(s, "?.")
}

// stripComments removes // and /* */ comments outside string literals.
func stripComments(src string) string {
	var b strings.Builder
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end - 1
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			end := strings.Index(src[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// skipString returns the index just past the string literal starting at i.
// An unterminated literal runs to the end of src.
func skipString(src string, i int) int {
	quote := src[i]
	for j := i + 1; j < len(src); j++ {
		switch src[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		}
	}
	return len(src)
}

// splitTopLevel splits s on sep where sep is not nested in brackets or strings.
func splitTopLevel(s string, sep byte) []string {
	var (
		out   []string
		depth int
		start int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\'', '`':
			i = skipString(s, i) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func skipSpace(s string, i int) int {
	for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
		i++
	}
	return i
}

func readIdent(s string, i int) (string, int) {
	start := i
	for i < len(s) && isIdentPart(s[i]) {
		i++
	}
	return s[start:i], i
}

// matchClose returns the index of the bracket closing the one at i.
func matchClose(s string, i int) (int, bool) {
	depth := 0
	for j := i; j < len(s); j++ {
		switch s[j] {
		case '"', '\'', '`':
			j = skipString(s, j) - 1
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return j, true
			}
		}
	}
	return 0, false
}

// parseChain parses a member/call chain rooted at an identifier.
func parseChain(src string) (*chain, error) {
	src = strings.TrimSpace(src)
	if src == "" || !isIdentStart(src[0]) {
		return nil, unsupported("unsupported expression %q", src)
	}
	root, i := readIdent(src, 0)
	c := &chain{root: root}
	for {
		i = skipSpace(src, i)
		if i >= len(src) {
			return c, nil
		}
		var name string
		switch src[i] {
		case '.':
			i = skipSpace(src, i+1)
			if i >= len(src) || !isIdentStart(src[i]) {
				return nil, unsupported("expected property name at offset %d", i)
			}
			name, i = readIdent(src, i)
		case '[':
			end, ok := matchClose(src, i)
			if !ok {
				return nil, unsupported("unbalanced brackets")
			}
			lit := strings.TrimSpace(src[i+1 : end])
			s, err := unquote(lit)
			if err != nil {
				return nil, unsupported("computed property %s is not a string", lit)
			}
			name, i = s, end+1
		default:
			return nil, unsupported("unexpected %q at offset %d", src[i], i)
		}

		st := step{name: name}
		i = skipSpace(src, i)
		if i < len(src) && src[i] == '(' {
			end, ok := matchClose(src, i)
			if !ok {
				return nil, unsupported("unbalanced parentheses")
			}
			st.invoked = true
			if inner := strings.TrimSpace(src[i+1 : end]); inner != "" {
				for _, a := range splitTopLevel(inner, ',') {
					if a = strings.TrimSpace(a); a != "" {
						st.args = append(st.args, a)
					}
				}
			}
			i = end + 1
		}
		c.steps = append(c.steps, st)
	}
}

// unquote decodes a single or double quoted JavaScript string literal.
func unquote(lit string) (string, error) {
	if len(lit) >= 2 && lit[0] == '\'' && lit[len(lit)-1] == '\'' {
		lit = `"` + strings.ReplaceAll(strings.ReplaceAll(lit[1:len(lit)-1], `\'`, `'`), `"`, `\"`) + `"`
	}
	return strconv.Unquote(lit)
}

// parseValue converts one JavaScript literal argument into a BSON value.
func parseValue(arg string) (interface{}, error) {
	js, err := toExtJSON(arg)
	if err != nil {
		return nil, err
	}
	var holder bson.D
	if err := bson.UnmarshalExtJSON([]byte(`{"v":`+js+`}`), false, &holder); err != nil {
		return nil, unsupported("invalid argument %s: %v", arg, err)
	}
	return holder[0].Value, nil
}

// toExtJSON rewrites a JavaScript literal as Extended JSON. Bare keys are
// quoted, single quoted strings are converted and shell helpers such as
// ObjectId or ISODate become their $-wrapped forms.
func toExtJSON(src string) (string, error) {
	var b strings.Builder
	for i := 0; i < len(src); {
		c := src[i]
		switch {
		case c == '"':
			end := skipString(src, i)
			b.WriteString(src[i:end])
			i = end
		case c == '\'' || c == '`':
			end := skipString(src, i)
			s, err := unquote("'" + src[i+1:end-1] + "'")
			if err != nil {
				return "", unsupported("invalid string literal %s", src[i:end])
			}
			b.WriteString(strconv.Quote(s))
			i = end
		case c == '/':
			end, lit, err := regexLiteral(src, i)
			if err != nil {
				return "", err
			}
			b.WriteString(lit)
			i = end
		case c == ',':
			if j := skipSpace(src, i+1); j < len(src) && (src[j] == '}' || src[j] == ']') {
				i = j
				continue
			}
			b.WriteByte(c)
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(src) && (isIdentPart(src[j]) || src[j] == '.' ||
				((src[j] == '+' || src[j] == '-') && (src[j-1] == 'e' || src[j-1] == 'E'))) {
				j++
			}
			b.WriteString(src[i:j])
			i = j
		case isIdentStart(c):
			ident, end := readIdent(src, i)
			next := skipSpace(src, end)
			if next < len(src) && src[next] == ':' {
				b.WriteString(strconv.Quote(ident))
				i = end
				continue
			}
			out, consumed, err := identValue(src, ident, end)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
			i = consumed
		default:
			b.WriteByte(c)
			i++
		}
	}
	return b.String(), nil
}

func regexLiteral(src string, i int) (int, string, error) {
	j := i + 1
	for ; j < len(src) && src[j] != '/'; j++ {
		if src[j] == '\\' {
			j++
		}
	}
	if j >= len(src) {
		return 0, "", unsupported("unterminated regular expression")
	}
	pattern := src[i+1 : j]
	flags, end := readIdent(src, j+1)
	return end, `{"$regularExpression":{"pattern":` + strconv.Quote(pattern) + `,"options":` + strconv.Quote(flags) + `}}`, nil
}

// identValue handles a bare identifier in value position.
func identValue(src, ident string, end int) (string, int, error) {
	switch ident {
	case "true", "false", "null":
		return ident, end, nil
	case "undefined":
		return "null", end, nil
	case "new":
		i := skipSpace(src, end)
		name, next := readIdent(src, i)
		if name == "" {
			return "", 0, unsupported("expected constructor after new")
		}
		return identValue(src, name, next)
	}

	i := skipSpace(src, end)
	if i >= len(src) || src[i] != '(' {
		return "", 0, unsupported("unsupported identifier %q", ident)
	}
	closing, ok := matchClose(src, i)
	if !ok {
		return "", 0, unsupported("unbalanced parentheses")
	}
	inner := strings.TrimSpace(src[i+1 : closing])
	arg := ""
	if inner != "" {
		var err error
		if arg, err = toExtJSON(inner); err != nil {
			return "", 0, err
		}
	}

	var out string
	switch ident {
	case "ObjectId":
		if arg == "" {
			return "", 0, unsupported("ObjectId requires a hex string")
		}
		out = `{"$oid":` + arg + `}`
	case "ISODate", "Date":
		switch {
		case arg == "":
			out = `{"$date":` + strconv.Quote(time.Now().UTC().Format(time.RFC3339Nano)) + `}`
		case strings.HasPrefix(arg, `"`):
			d, err := isoDate(arg)
			if err != nil {
				return "", 0, err
			}
			out = `{"$date":` + strconv.Quote(d) + `}`
		default:
			out = `{"$date":{"$numberLong":` + quoteNumber(arg) + `}}`
		}
	case "NumberLong":
		out = `{"$numberLong":` + quoteNumber(arg) + `}`
	case "NumberInt":
		out = `{"$numberInt":` + quoteNumber(arg) + `}`
	case "NumberDecimal":
		out = `{"$numberDecimal":` + quoteNumber(arg) + `}`
	default:
		return "", 0, unsupported("unsupported function %s()", ident)
	}
	return out, closing + 1, nil
}

// extJSONDate is the millisecond form the extended JSON reader accepts.
const extJSONDate = "2006-01-02T15:04:05.999Z07:00"

// isoDateLayouts are the forms ISODate accepts. Values without a zone are UTC.
var isoDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// isoDate converts a quoted ISODate argument to RFC 3339 in UTC.
func isoDate(quoted string) (string, error) {
	v, err := strconv.Unquote(quoted)
	if err != nil {
		return "", unsupported("invalid date string %s", quoted)
	}
	for _, layout := range isoDateLayouts {
		if t, err := time.ParseInLocation(layout, v, time.UTC); err == nil {
			return t.UTC().Format(extJSONDate), nil
		}
	}
	return "", unsupported("invalid date %q", v)
}

func quoteNumber(v string) string {
	if v == "" {
		return `"0"`
	}
	if strings.HasPrefix(v, `"`) {
		return v
	}
	return strconv.Quote(v)
}
