package judge

import "strings"

const quoteChars = "\"'“”"

// CleanGenerated strips wrapping quotes, code fences and leading labels that
// models add around a one-line answer.
func CleanGenerated(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	s = strings.Trim(s, quoteChars)
	for _, label := range []string{"Summary:", "Entry:", "Description:"} {
		s = strings.TrimSpace(strings.TrimPrefix(s, label))
	}
	return strings.Trim(s, quoteChars)
}
