// SPDX-License-Identifier: MPL-2.0

package environment

import "regexp"

// colorEscape matches SGR sequences such as "\x1b[31m" and "\x1b[1;32m".
var colorEscape = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// CleanLine removes terminal colour escape sequences from line.
// Removal repeats until nothing matches, so CleanLine(CleanLine(x)) == CleanLine(x)
// even for inputs like "\x1b\x1b[0m[1m" where one removal exposes another.
func CleanLine(line string) string {
	for {
		cleaned := colorEscape.ReplaceAllString(line, "")
		if cleaned == line {
			return cleaned
		}
		line = cleaned
	}
}
