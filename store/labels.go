package store

import (
	"regexp"
	"strings"
)

// labelPattern matches spec.md §3: "[a-z0-9][a-z0-9_-]{0,63}" after
// lower-casing.
var labelPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func normalizeLabels(labels []string) []string {
	seen := make(map[string]bool, len(labels))
	var out []string
	for _, l := range labels {
		n := normalizeLabel(l)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}

// ValidLabel reports whether label (already normalized) matches spec.md
// §3's label shape.
func ValidLabel(label string) bool {
	return labelPattern.MatchString(label)
}
