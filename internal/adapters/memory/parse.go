package memory

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	useRe      = regexp.MustCompile(`(?is)^USE\s+(\w+)$`)
	showRe     = regexp.MustCompile(`(?is)^SHOW\s+TABLES(?:\s+IN\s+(\w+))?(?:\s+LIKE\s+'((?:[^']|'')*)')?$`)
	describeRe = regexp.MustCompile(`(?is)^(?:DESCRIBE|DESC)\s+([\w.]+)$`)
	createRe   = regexp.MustCompile(`(?is)^CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?([\w.]+)\s*(\(.*)$`)
	storedRe   = regexp.MustCompile(`(?is)^STORED\s+AS\s+(\w+)$`)
	dropRe     = regexp.MustCompile(`(?is)^DROP\s+TABLE\s+(IF\s+EXISTS\s+)?([\w.]+)$`)
	insertRe   = regexp.MustCompile(`(?is)^INSERT\s+INTO\s+(?:TABLE\s+)?([\w.]+)\s*\(([^)]*)\)\s*VALUES\s*(.*)$`)
	loadRe     = regexp.MustCompile(`(?is)^LOAD\s+DATA\s+LOCAL\s+INPATH\s+'((?:[^']|'')*)'\s+(OVERWRITE\s+)?INTO\s+TABLE\s+([\w.]+)$`)
	selectRe   = regexp.MustCompile(`(?is)^SELECT\s+(\*|COUNT\(\*\))\s+FROM\s+([\w.]+)(?:\s+LIMIT\s+(\d+))?$`)
	literalRe  = regexp.MustCompile(`(?is)^SELECT\s+(-?\d+)$`)
)

func unquote(s string) string {
	return strings.ReplaceAll(s, "''", "'")
}

// group returns the contents of the parenthesised group that starts at
// s[0] and the remainder after it.
func group(s string) (inner, rest string, err error) {
	if s == "" || s[0] != '(' {
		return "", "", fmt.Errorf("expected '(' near %q", truncate(s))
	}
	depth := 0
	inQuote := false
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return s[1:i], strings.TrimSpace(s[i+1:]), nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced parentheses near %q", truncate(s))
}

// splitTop splits s on commas that are not nested in parentheses.
func splitTop(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '<':
			depth++
		case ')', '>':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, strings.TrimSpace(s[start:i]))
				start = i + 1
			}
		}
	}
	if tail := strings.TrimSpace(s[start:]); tail != "" {
		parts = append(parts, tail)
	}
	return parts
}

func parseColumns(s string) ([]Column, error) {
	var cols []Column
	for _, def := range splitTop(s) {
		fields := strings.Fields(def)
		if len(fields) < 2 {
			return nil, fmt.Errorf("malformed column definition %q", def)
		}
		cols = append(cols, Column{
			Name: strings.ToLower(fields[0]),
			Type: strings.ToUpper(strings.Join(fields[1:], " ")),
		})
	}
	return cols, nil
}

type createStmt struct {
	name        string
	ifNotExists bool
	columns     []Column
	partitions  []Column
	format      string
}

func parseCreate(m []string) (*createStmt, error) {
	st := &createStmt{ifNotExists: m[1] != "", name: m[2]}

	inner, rest, err := group(m[3])
	if err != nil {
		return nil, err
	}
	if st.columns, err = parseColumns(inner); err != nil {
		return nil, err
	}

	upper := strings.ToUpper(rest)
	if strings.HasPrefix(upper, "PARTITIONED") {
		rest = strings.TrimSpace(rest[len("PARTITIONED"):])
		if !strings.HasPrefix(strings.ToUpper(rest), "BY") {
			return nil, fmt.Errorf("expected BY after PARTITIONED")
		}
		rest = strings.TrimSpace(rest[2:])
		inner, rest, err = group(rest)
		if err != nil {
			return nil, err
		}
		if st.partitions, err = parseColumns(inner); err != nil {
			return nil, err
		}
	}

	if rest == "" {
		st.format = "TEXTFILE"
		return st, nil
	}
	sm := storedRe.FindStringSubmatch(rest)
	if sm == nil {
		return nil, fmt.Errorf("cannot recognize input near %q", truncate(rest))
	}
	st.format = strings.ToUpper(sm[1])
	return st, nil
}

// parseTuples parses "(v, v), (v, v)". Quoted literals become strings,
// NULL becomes nil and bare tokens are kept as their text.
func parseTuples(s string) ([][]any, error) {
	var tuples [][]any
	i := 0
	skip := func() {
		for i < len(s) && (s[i] == ' ' || s[i] == '\t' || s[i] == '\n' || s[i] == '\r') {
			i++
		}
	}

	for {
		skip()
		if i >= len(s) {
			break
		}
		if s[i] != '(' {
			return nil, fmt.Errorf("expected '(' at offset %d", i)
		}
		i++

		var tuple []any
		for {
			skip()
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated tuple")
			}
			if s[i] == '\'' {
				var b strings.Builder
				i++
				for {
					if i >= len(s) {
						return nil, fmt.Errorf("unterminated string literal")
					}
					if s[i] == '\'' {
						if i+1 < len(s) && s[i+1] == '\'' {
							b.WriteByte('\'')
							i += 2
							continue
						}
						i++
						break
					}
					b.WriteByte(s[i])
					i++
				}
				tuple = append(tuple, b.String())
			} else {
				start := i
				for i < len(s) && s[i] != ',' && s[i] != ')' {
					i++
				}
				tok := strings.TrimSpace(s[start:i])
				if tok == "" {
					return nil, fmt.Errorf("empty value at offset %d", start)
				}
				if strings.EqualFold(tok, "NULL") {
					tuple = append(tuple, nil)
				} else {
					tuple = append(tuple, tok)
				}
			}

			skip()
			if i >= len(s) {
				return nil, fmt.Errorf("unterminated tuple")
			}
			if s[i] == ',' {
				i++
				continue
			}
			if s[i] == ')' {
				i++
				break
			}
			return nil, fmt.Errorf("unexpected %q at offset %d", s[i], i)
		}
		tuples = append(tuples, tuple)

		skip()
		if i < len(s) && s[i] == ',' {
			i++
		}
	}

	if len(tuples) == 0 {
		return nil, fmt.Errorf("VALUES clause is empty")
	}
	return tuples, nil
}

// likePattern turns a SHOW TABLES pattern into a matcher. '*' and '%'
// match any run of characters, '|' separates alternatives.
func likePattern(p string) *regexp.Regexp {
	var alts []string
	for _, alt := range strings.Split(p, "|") {
		quoted := regexp.QuoteMeta(strings.TrimSpace(alt))
		quoted = strings.ReplaceAll(quoted, `\*`, ".*")
		quoted = strings.ReplaceAll(quoted, "%", ".*")
		alts = append(alts, quoted)
	}
	return regexp.MustCompile("(?i)^(?:" + strings.Join(alts, "|") + ")$")
}

func truncate(s string) string {
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
