// Package strings holds small string-list helpers shared by request parsers.
package strings

import (
	"strings"
)

// SplitList splits every value on sep, trims and lowercases the parts, and
// drops empties and repeats. Order of first appearance is preserved.
//
// Example:
//
//	SplitList([]string{"Email, phone", "email"}, ",")
//	// Returns: []string{"email", "phone"}
func SplitList(values []string, sep string) []string {
	var parts []string
	for _, v := range values {
		parts = append(parts, strings.Split(v, sep)...)
	}
	return DedupeAndTrimLower(parts)
}

// DedupeAndTrimLower removes empty strings and case-insensitive duplicates,
// returning lowercased, trimmed elements in their original order.
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))

	for _, v := range values {
		trimmed := strings.ToLower(strings.TrimSpace(v))
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}

	return result
}
