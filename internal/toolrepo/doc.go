// SPDX-License-Identifier: MPL-2.0

// Package toolrepo stores reusable tools: named snippets of code with a plain
// text description, kept as two files under a repository directory:
//
//	<root>/tool_code/<name>.<ext>
//	<root>/tool_description/<name>.txt
//
// A tool is only listed when both files exist.
package toolrepo
