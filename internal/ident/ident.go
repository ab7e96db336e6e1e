package ident

import (
	"math"
	"strconv"
	"strings"
)

// Normalize canonicalizes a raw spreadsheet cell into a stable identifier.
// Spreadsheets store numeric product codes as floats, so "1234567890123.0"
// comes back as "1234567890123". The boolean is false for blank cells.
func Normalize(cell string) (string, bool) {
	trimmed := strings.TrimSpace(cell)
	if trimmed == "" {
		return "", false
	}

	if parsed, err := strconv.ParseFloat(trimmed, 64); err == nil && !math.IsInf(parsed, 0) && !math.IsNaN(parsed) {
		trimmed = strconv.FormatFloat(math.Trunc(parsed), 'f', -1, 64)
	}

	return strings.ReplaceAll(strings.TrimSpace(trimmed), " ", ""), true
}

// ParseList reads newline-separated identifiers into a normalized set.
func ParseList(text string) map[string]struct{} {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	set := make(map[string]struct{})
	for _, line := range strings.Split(text, "\n") {
		if id, ok := Normalize(line); ok {
			set[id] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
