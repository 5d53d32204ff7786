package jsonval

import (
	"strconv"
	"strings"
)

// splitPath splits a dotted path like "data.habits.0" into its segments.
func splitPath(path string) []string {
	return strings.Split(path, ".")
}

// parseIndex parses a list index segment.
func parseIndex(seg string) (int, error) {
	return strconv.Atoi(seg)
}

// stringsReader adapts a string into an io.Reader for the JSON decoder
// without pulling in strings.NewReader at the call site.
func stringsReader(s string) *strings.Reader {
	return strings.NewReader(s)
}
