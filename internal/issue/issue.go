// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

const (
	ConfigLoadFailedId Id = iota + 1
	EnvironmentUnknownId
	InterpreterNotFoundId
	InterpreterExitedId
	InvalidMarkersId
	ToolNotFoundId
	ToolExistsId
	ToolInvalidId
	ServerStartFailedId
	PermissionDeniedId
)

type (
	// Id identifies a catalog entry.
	Id int

	// MarkdownMsg is Markdown text rendered for the user.
	MarkdownMsg string

	// HttpLink is an external reference shown under "See also".
	HttpLink string

	// Issue is one catalog entry.
	Issue struct {
		id       Id
		mdMsg    MarkdownMsg
		extLinks []HttpLink
	}
)

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load configuration!

interpd reads ` + "`config.cue`" + ` from its configuration directory, or from the
current directory when none exists there.

## Things you can try:
- Print the effective configuration:
~~~
$ interpd config show
~~~
- Write a fresh default file and edit it:
~~~
$ interpd config init
~~~
- Fix the CUE syntax or field named in the error above.`,
	}

	environmentUnknownIssue = &Issue{
		id: EnvironmentUnknownId,
		mdMsg: `
# Unknown environment!

The environment name does not match any registered interpreter or alias.

## Things you can try:
- List the environments and their aliases:
~~~
$ interpd envs
~~~
- Check ` + "`default_environment`" + ` in your configuration.`,
	}

	interpreterNotFoundIssue = &Issue{
		id: InterpreterNotFoundId,
		mdMsg: `
# Interpreter not found!

The interpreter process could not be started.

## Things you can try:
- Install the interpreter and make sure it is on your PATH
- Point interpd at it explicitly:
~~~cue
environments: python: executable: "/usr/local/bin/python3"
~~~
- Use the embedded shell, which needs nothing installed:
~~~
$ interpd run -e virtual -c 'echo hello'
~~~`,
		extLinks: []HttpLink{"https://pkg.go.dev/os/exec#LookPath"},
	}

	interpreterExitedIssue = &Issue{
		id: InterpreterExitedId,
		mdMsg: `
# The interpreter exited before finishing!

The code ended the interpreter (for example with ` + "`exit`" + `) or the
interpreter crashed before reporting completion. The session is gone; the
next submission starts a new one.

## Things you can try:
- Remove explicit ` + "`exit`" + ` calls from the submitted code
- Check for unterminated blocks or quotes, which make the interpreter wait
  for input that never comes`,
	}

	invalidMarkersIssue = &Issue{
		id: InvalidMarkersId,
		mdMsg: `
# Invalid marker delimiters!

Markers are printed by the interpreter inside quoted strings, so they must be
non-empty and free of quotes, ` + "`$`" + `, backslashes and line breaks.

## Example:
~~~cue
markers: {
	active_line_prefix: "##active_line"
	suffix:             "##"
	end_of_execution:   "##end_of_execution##"
}
~~~`,
	}

	toolNotFoundIssue = &Issue{
		id: ToolNotFoundId,
		mdMsg: `
# Tool not found!

## Things you can try:
- List the stored tools:
~~~
$ interpd tool list
~~~
- Search by keyword:
~~~
$ interpd tool search <query>
~~~`,
	}

	toolExistsIssue = &Issue{
		id: ToolExistsId,
		mdMsg: `
# Tool already exists!

Tool names are unique within a repository.

## Things you can try:
- Delete the old tool first:
~~~
$ interpd tool delete <name>
~~~
- Or add the new one under a different name.`,
	}

	toolInvalidIssue = &Issue{
		id: ToolInvalidId,
		mdMsg: `
# Invalid tool!

A tool needs a name made of letters, digits, ` + "`_`" + ` or ` + "`-`" + `, a
description and code.`,
	}

	serverStartFailedIssue = &Issue{
		id: ServerStartFailedId,
		mdMsg: `
# Failed to start the server!

## Things you can try:
- Pick another address:
~~~
$ interpd serve --addr 127.0.0.1:9000
~~~
- Check whether another process already listens on the port.`,
	}

	permissionDeniedIssue = &Issue{
		id: PermissionDeniedId,
		mdMsg: `
# Permission denied!

interpd could not read or write a file it needs.

## Things you can try:
- Check the permissions of the tool repository and the temporary directory
- Set ` + "`oneshot.temp_dir`" + ` to a writable directory`,
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		environmentUnknownIssue.Id():  environmentUnknownIssue,
		interpreterNotFoundIssue.Id(): interpreterNotFoundIssue,
		interpreterExitedIssue.Id():   interpreterExitedIssue,
		invalidMarkersIssue.Id():      invalidMarkersIssue,
		toolNotFoundIssue.Id():        toolNotFoundIssue,
		toolExistsIssue.Id():          toolExistsIssue,
		toolInvalidIssue.Id():         toolInvalidIssue,
		serverStartFailedIssue.Id():   serverStartFailedIssue,
		permissionDeniedIssue.Id():    permissionDeniedIssue,
	}
)

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

// Render renders the entry as styled terminal output. stylePath is a glamour
// style name such as "dark", "light", "notty" or a path to a style file.
func (i *Issue) Render(stylePath string) (string, error) {
	md := string(i.mdMsg)
	if len(i.extLinks) > 0 {
		var extra strings.Builder
		extra.WriteString("\n\n## See also:\n")
		for _, link := range i.extLinks {
			extra.WriteString("- <" + string(link) + ">\n")
		}
		md += extra.String()
	}
	return render(md, stylePath)
}

// Values returns every catalog entry ordered by Id.
func Values() []*Issue {
	ids := slices.Sorted(maps.Keys(issues))
	out := make([]*Issue, 0, len(ids))
	for _, id := range ids {
		out = append(out, issues[id])
	}
	return out
}

func Get(id Id) *Issue {
	return issues[id]
}
