package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"retail-medallion/internal/domain"
)

// DateLayout translates a date format such as "MM-DD-YYYY" or "M/D/YYYY" into
// a Go time layout. Recognised tokens are YYYY, YY, MM, M, DD and D; every
// other non-letter character is kept literally.
func DateLayout(format string) (string, error) {
	if strings.TrimSpace(format) == "" {
		return "", domain.ErrValidation("date format must not be empty")
	}
	var b strings.Builder
	for i := 0; i < len(format); {
		c := format[i]
		if !isLetter(c) {
			b.WriteByte(c)
			i++
			continue
		}
		j := i
		for j < len(format) && format[j] == c {
			j++
		}
		token := format[i:j]
		switch token {
		case "YYYY":
			b.WriteString("2006")
		case "YY":
			b.WriteString("06")
		case "MM":
			b.WriteString("01")
		case "M":
			b.WriteString("1")
		case "DD":
			b.WriteString("02")
		case "D":
			b.WriteString("2")
		default:
			return "", domain.ErrValidation("date format %q: unknown token %q", format, token)
		}
		i = j
	}
	return b.String(), nil
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

// parseDate tries each layout in order and returns the first match as a UTC
// calendar date.
func parseDate(raw string, layouts []string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty value")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("does not match any configured date format")
}

// parseNumber parses a decimal, accepting a leading currency sign and ','
// thousands separators ("$1,234.50", "-$3").
func parseNumber(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, fmt.Errorf("empty value")
	}
	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s[0] == '-' {
		return 0, fmt.Errorf("not a number")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a number")
	}
	if neg {
		v = -v
	}
	return v, nil
}
