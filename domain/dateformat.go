package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ISODatePattern is used whenever a configured pattern cannot be rendered.
const ISODatePattern = "yyyy-MM-dd"

// FormatDate renders the calendar date of t using a letter pattern in the
// yyyy-MM-dd family. Supported letters are y/u (year), M/L (month), d (day of
// month), D (day of year) and E (weekday). Text between single quotes is
// copied verbatim and two single quotes produce one. Non-letter characters
// are literals. Time-of-day letters are rejected because only dates are
// rendered.
func FormatDate(pattern string, t time.Time) (string, error) {
	if strings.TrimSpace(pattern) == "" {
		return "", fmt.Errorf("%w: empty pattern", ErrInvalidDatePattern)
	}
	var b strings.Builder
	runes := []rune(pattern)
	for i := 0; i < len(runes); {
		c := runes[i]
		switch {
		case c == '\'':
			end := i + 1
			if end < len(runes) && runes[end] == '\'' {
				b.WriteRune('\'')
				i = end + 1
				continue
			}
			for {
				if end >= len(runes) {
					return "", fmt.Errorf("%w: unterminated quote in %q", ErrInvalidDatePattern, pattern)
				}
				if runes[end] == '\'' {
					if end+1 < len(runes) && runes[end+1] == '\'' {
						b.WriteRune('\'')
						end += 2
						continue
					}
					break
				}
				b.WriteRune(runes[end])
				end++
			}
			i = end + 1
		case isPatternLetter(c):
			n := 1
			for i+n < len(runes) && runes[i+n] == c {
				n++
			}
			s, err := formatField(c, n, t)
			if err != nil {
				return "", fmt.Errorf("%w: %v", ErrInvalidDatePattern, err)
			}
			b.WriteString(s)
			i += n
		case c == '#' || c == '{' || c == '}' || c == '[' || c == ']':
			return "", fmt.Errorf("%w: reserved character %q", ErrInvalidDatePattern, c)
		default:
			b.WriteRune(c)
			i++
		}
	}
	return b.String(), nil
}

// FormatDateOrISO is FormatDate with the ISO calendar date as fallback. The
// returned error, if any, describes why the fallback was used.
func FormatDateOrISO(pattern string, t time.Time) (string, error) {
	s, err := FormatDate(pattern, t)
	if err != nil {
		return t.Format(time.DateOnly), err
	}
	return s, nil
}

func isPatternLetter(c rune) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func formatField(letter rune, n int, t time.Time) (string, error) {
	switch letter {
	case 'y', 'u':
		year := t.Year()
		if n == 2 {
			return pad(year%100, 2), nil
		}
		return pad(year, n), nil
	case 'M', 'L':
		switch {
		case n <= 2:
			return pad(int(t.Month()), n), nil
		case n == 3:
			return t.Month().String()[:3], nil
		case n == 4:
			return t.Month().String(), nil
		}
	case 'd':
		if n <= 2 {
			return pad(t.Day(), n), nil
		}
	case 'D':
		if n <= 3 {
			return pad(t.YearDay(), n), nil
		}
	case 'E':
		switch {
		case n <= 3:
			return t.Weekday().String()[:3], nil
		case n == 4:
			return t.Weekday().String(), nil
		}
	default:
		return "", fmt.Errorf("unsupported pattern letter %q", letter)
	}
	return "", fmt.Errorf("too many pattern letters %q", letter)
}

func pad(v, width int) string {
	s := strconv.Itoa(v)
	if len(s) >= width {
		return s
	}
	return strings.Repeat("0", width-len(s)) + s
}
