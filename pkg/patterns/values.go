// Package patterns detects per-column data-quality patterns in dataset samples.
package patterns

import (
	"strconv"
	"strings"
	"time"
)

var missingTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"null": true,
	"none": true,
	"nil":  true,
	"-":    true,
	"?":    true,
}

// IsMissing reports whether the raw value represents an absent observation.
func IsMissing(value string) bool {
	return missingTokens[strings.ToLower(strings.TrimSpace(value))]
}

// ParseNumeric parses a value allowing common numeric survey formats:
// thousands separators and comma decimal marks.
func ParseNumeric(value string) (float64, bool) {
	cleaned := strings.TrimSpace(value)
	if cleaned == "" {
		return 0, false
	}

	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.TrimSuffix(cleaned, "%")

	switch {
	case strings.Contains(cleaned, ",") && strings.Contains(cleaned, "."):
		// 1,234.56 style: commas are thousands separators.
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	case strings.Count(cleaned, ",") == 1 && !strings.Contains(cleaned, "."):
		// 1234,56 style: comma is the decimal mark.
		cleaned = strings.ReplaceAll(cleaned, ",", ".")
	default:
		cleaned = strings.ReplaceAll(cleaned, ",", "")
	}

	parsed, err := strconv.ParseFloat(cleaned, 64)

	return parsed, err == nil
}

// IsPlainNumeric reports whether the value is already in canonical numeric
// form, with no separators to normalize.
func IsPlainNumeric(value string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(value), 64)

	return err == nil
}

// dateLayouts are the formats the date detector recognizes, most specific first.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
	"01/02/2006",
	"2006/01/02",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// DateLayout returns the first layout the value parses under, if any.
func DateLayout(value string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", false
	}

	for _, layout := range dateLayouts {
		if _, err := time.Parse(layout, trimmed); err == nil {
			return layout, true
		}
	}

	return "", false
}

// HasWhitespaceIssue reports leading/trailing whitespace or collapsed runs.
func HasWhitespaceIssue(value string) bool {
	if value == "" {
		return false
	}

	if value != strings.TrimSpace(value) {
		return true
	}

	return strings.Contains(value, "  ") || strings.Contains(value, "\t")
}

// HasEncodingIssue reports replacement characters or common mojibake markers.
func HasEncodingIssue(value string) bool {
	if strings.ContainsRune(value, '�') {
		return true
	}

	for _, marker := range []string{"Ã©", "Ã¨", "Ã¼", "Ã¶", "â€™", "â€œ", "â€�", "Â "} {
		if strings.Contains(value, marker) {
			return true
		}
	}

	return false
}
