// SPDX-License-Identifier: MPL-2.0

package toolrepo

import "strings"

var docstringQuotes = []string{`"""`, `'''`}

// ExtractDescription returns the text between the first line containing a
// triple-quote and the next line containing one, exclusive of both lines,
// with each line trimmed. It returns "" when the code has no such block.
func ExtractDescription(code string) string {
	lines := strings.Split(code, "\n")
	for i, line := range lines {
		if !hasDocstringQuote(line) {
			continue
		}
		for j := i + 1; j < len(lines); j++ {
			if hasDocstringQuote(lines[j]) {
				body := make([]string, 0, j-i-1)
				for _, l := range lines[i+1 : j] {
					body = append(body, strings.TrimSpace(l))
				}
				return strings.TrimSpace(strings.Join(body, "\n"))
			}
		}
		return ""
	}
	return ""
}

func hasDocstringQuote(line string) bool {
	for _, q := range docstringQuotes {
		if strings.Contains(line, q) {
			return true
		}
	}
	return false
}
