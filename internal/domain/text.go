package domain

import (
	"strings"
	"unicode"
)

// NormalizeText cleans a raw provider result before it is persisted on a
// task. Control characters (except newlines and tabs) are stripped, CRLF
// line endings are folded to LF, trailing whitespace is removed from each
// line, and runs of three or more blank lines collapse to one blank line.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == '\n' || r == '\t' {
			b.WriteRune(r)
			continue
		}
		if unicode.IsControl(r) {
			continue
		}
		b.WriteRune(r)
	}

	lines := strings.Split(b.String(), "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}

	out := make([]string, 0, len(lines))
	blanks := 0
	for _, line := range lines {
		if line == "" {
			blanks++
			if blanks > 1 {
				continue
			}
		} else {
			blanks = 0
		}
		out = append(out, line)
	}

	return strings.TrimSpace(strings.Join(out, "\n"))
}
