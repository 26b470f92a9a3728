package dbconn

import (
	"fmt"
	"strings"
	"time"

	"github.com/clusterkit/clusterkit/internal/dberrors"
)

// escapeLiteral renders a single Go value as a MySQL literal the way the
// driver's text protocol expects it: strings are quoted, bytes become a
// hex byte-string literal, timestamps and durations render in SQL literal
// form, and booleans collapse to 0/1.
func escapeLiteral(v interface{}) (string, error) {
	switch val := v.(type) {
	case nil:
		return "NULL", nil
	case bool:
		if val {
			return "1", nil
		}
		return "0", nil
	case string:
		return quoteString(val), nil
	case []byte:
		return "x'" + fmt.Sprintf("%x", val) + "'", nil
	case time.Time:
		return quoteString(val.UTC().Format("2006-01-02 15:04:05")), nil
	case time.Duration:
		return fmt.Sprintf("%d", int64(val.Seconds())), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val), nil
	case float32, float64:
		return fmt.Sprintf("%v", val), nil
	case []interface{}:
		parts := make([]string, len(val))
		for i, item := range val {
			s, err := escapeLiteral(item)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return strings.Join(parts, ", "), nil
	default:
		return quoteString(fmt.Sprintf("%v", val)), nil
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range s {
		switch r {
		case '\'':
			b.WriteString(`\'`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case 0:
			b.WriteString(`\0`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// Escape substitutes positional "%s" placeholders (left to right, with
// a []interface{} value expanding to a comma-joined literal sequence;
// other slice types are not expanded) or
// "%(name)s" named placeholders into query, but never both in the same
// call — mixing styles is a FormatException, matching the ambiguity the
// original driver forbids.
func Escape(query string, positional []interface{}, named map[string]interface{}) (string, error) {
	hasPositional := len(positional) > 0
	hasNamed := len(named) > 0
	if hasPositional && hasNamed {
		return "", &dberrors.FormatException{Reason: "query supplies both positional and named parameters"}
	}

	if hasNamed {
		return escapeNamed(query, named)
	}
	return escapePositional(query, positional)
}

func escapePositional(query string, args []interface{}) (string, error) {
	var b strings.Builder
	argIdx := 0
	runes := []rune(query)
	for i := 0; i < len(runes); i++ {
		if runes[i] == '%' && i+1 < len(runes) && runes[i+1] == 's' {
			if argIdx >= len(args) {
				return "", &dberrors.FormatException{Reason: "not enough positional arguments for query"}
			}
			lit, err := escapeLiteral(args[argIdx])
			if err != nil {
				return "", err
			}
			b.WriteString(lit)
			argIdx++
			i++
			continue
		}
		b.WriteRune(runes[i])
	}
	if argIdx != len(args) {
		return "", &dberrors.FormatException{Reason: "too many positional arguments for query"}
	}
	return b.String(), nil
}

func escapeNamed(query string, args map[string]interface{}) (string, error) {
	var b strings.Builder
	runes := []rune(query)
	used := make(map[string]bool, len(args))
	for i := 0; i < len(runes); i++ {
		if runes[i] == '%' && i+1 < len(runes) && runes[i+1] == '(' {
			end := -1
			for j := i + 2; j+1 < len(runes); j++ {
				if runes[j] == ')' && runes[j+1] == 's' {
					end = j
					break
				}
			}
			if end == -1 {
				return "", &dberrors.FormatException{Reason: "unterminated named placeholder"}
			}
			name := string(runes[i+2 : end])
			val, ok := args[name]
			if !ok {
				return "", &dberrors.FormatException{Reason: fmt.Sprintf("missing named argument %q", name)}
			}
			lit, err := escapeLiteral(val)
			if err != nil {
				return "", err
			}
			b.WriteString(lit)
			used[name] = true
			i = end + 1
			continue
		}
		b.WriteRune(runes[i])
	}
	if len(used) != len(args) {
		return "", &dberrors.FormatException{Reason: "unused named arguments supplied"}
	}
	return b.String(), nil
}
