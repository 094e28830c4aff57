package services

import (
	"context"
	"strings"
)

// ensureContext lets exported methods tolerate a nil context from callers
// such as the operator CLI.
func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}

// cleanList trims entries and drops blanks and repeats, keeping first-seen
// order. It returns nil when nothing is left.
func cleanList(values []string) []string {
	var out []string
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
