// Package utils holds query-string helpers shared by the HTTP handlers.
package utils

import (
	"strconv"
	"strings"
)

// Page bounds for list endpoints.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// AtoiDefault parses s as a base-10 int, returning def when s is empty or
// malformed. Surrounding spaces are not trimmed.
func AtoiDefault(s string, def int) int {
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// PageParams turns raw page and page_size values into a 1-based page and a
// size within [1, MaxPageSize]. Missing or malformed values take defaults.
func PageParams(page, size string) (int, int) {
	p := max(AtoiDefault(page, 1), 1)
	s := min(max(AtoiDefault(size, DefaultPageSize), 1), MaxPageSize)
	return p, s
}

// SplitList splits a comma-separated value into trimmed, non-empty items,
// keeping the first occurrence of each.
func SplitList(s string) []string {
	var out []string
	seen := map[string]bool{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
