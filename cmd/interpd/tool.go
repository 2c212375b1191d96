// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"interpd/internal/issue"
	"interpd/internal/toolrepo"
)

func newToolCommand(app *App) *cobra.Command {
	toolCmd := &cobra.Command{
		Use:   "tool",
		Short: "Manage the tool repository",
		Long: `Manage the tool repository.

A tool is a named piece of code with a description. Tools live in the
directory set by tool_repository (default <config dir>/interpd/tools), as
tool_code/<name>.<ext> and tool_description/<name>.txt.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	toolCmd.AddCommand(
		newToolListCommand(app),
		newToolShowCommand(app),
		newToolAddCommand(app),
		newToolDeleteCommand(app),
		newToolRunCommand(app),
		newToolSearchCommand(app),
	)
	return toolCmd
}

func (a *App) openToolRepository() (*toolrepo.Repository, error) {
	dir, err := a.cfg.ToolRepositoryDir()
	if err != nil {
		return nil, issue.WrapWithContext(err, "locate tool repository", "")
	}
	repo, err := toolrepo.Open(dir, toolrepo.Options{Logger: a.logger})
	if err != nil {
		return nil, toolError("open tool repository", dir, err)
	}
	return repo, nil
}

func newToolListCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			repo, err := app.openToolRepository()
			if err != nil {
				return err
			}
			names, err := repo.Names()
			if err != nil {
				return toolError("list tools", repo.Root(), err)
			}
			if len(names) == 0 {
				fmt.Fprintln(app.Stdout, SubtitleStyle.Render("No tools in "+repo.Root()))
				return nil
			}
			return app.printToolSummaries(repo, names)
		},
	}
}

func (a *App) printToolSummaries(repo *toolrepo.Repository, names []string) error {
	for _, name := range names {
		tool, err := repo.Get(name)
		if err != nil {
			return toolError("read tool", name, err)
		}
		summary, _, _ := strings.Cut(strings.TrimSpace(tool.Description), "\n")
		fmt.Fprintf(a.Stdout, "%s  %s\n", NameStyle.Render(name), summary)
	}
	return nil
}

func newToolShowCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a tool's description and code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.openToolRepository()
			if err != nil {
				return err
			}
			tool, err := repo.Get(args[0])
			if err != nil {
				return toolError("show tool", args[0], err)
			}

			lang := strings.TrimPrefix(tool.Extension, ".")
			md := fmt.Sprintf("# %s\n\n%s\n\n```%s\n%s\n```\n",
				tool.Name, strings.TrimSpace(tool.Description), lang, strings.TrimRight(tool.Code, "\n"))
			fmt.Fprint(app.Stdout, renderMarkdown(app.Stdout, md))
			return nil
		},
	}
}

func newToolAddCommand(app *App) *cobra.Command {
	var description string

	addCmd := &cobra.Command{
		Use:   "add <name> <file>",
		Short: "Add a tool from a file",
		Long: `Add a tool from a file.

The description defaults to the first triple-quoted block in the file.
The file extension selects the environment that 'tool run' uses.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, path := args[0], args[1]
			code, err := os.ReadFile(path)
			if err != nil {
				return toolError("add tool", name, err)
			}
			if description == "" {
				description = toolrepo.ExtractDescription(string(code))
			}
			if description == "" {
				return toolError("add tool", name, &toolrepo.InvalidToolError{
					Name:   name,
					Reason: "no description given and none found in " + path,
				})
			}

			repo, err := app.openToolRepository()
			if err != nil {
				return err
			}
			tool := toolrepo.Tool{
				Name:        name,
				Description: description,
				Code:        string(code),
				Extension:   filepath.Ext(path),
			}
			if err := repo.Add(tool); err != nil {
				return toolError("add tool", name, err)
			}
			fmt.Fprintf(app.Stdout, "%s %s\n", SuccessStyle.Render("Added tool"), NameStyle.Render(name))
			return nil
		},
	}
	addCmd.Flags().StringVarP(&description, "description", "d", "", "tool description")
	return addCmd
}

func newToolDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.openToolRepository()
			if err != nil {
				return err
			}
			if err := repo.Delete(args[0]); err != nil {
				return toolError("delete tool", args[0], err)
			}
			fmt.Fprintf(app.Stdout, "%s %s\n", SuccessStyle.Render("Deleted tool"), NameStyle.Render(args[0]))
			return nil
		},
	}
}

func newToolRunCommand(app *App) *cobra.Command {
	var opts runOptions

	runCmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a stored tool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.openToolRepository()
			if err != nil {
				return err
			}
			tool, err := repo.Get(args[0])
			if err != nil {
				return toolError("run tool", args[0], err)
			}

			envName := opts.env
			if envName == "" {
				envName = tool.Environment()
			}
			return app.runCode(cmd.Context(), envName, tool.Code, opts.jsonOutput)
		},
	}
	runCmd.Flags().StringVarP(&opts.env, "env", "e", "", "environment (default from the tool's extension)")
	runCmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "write events as JSON lines")
	return runCmd
}

func newToolSearchCommand(app *App) *cobra.Command {
	var limit int

	searchCmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find tools by name or description",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repo, err := app.openToolRepository()
			if err != nil {
				return err
			}
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			names, err := repo.Search(query, limit)
			if err != nil {
				return toolError("search tools", query, err)
			}
			if len(names) == 0 {
				fmt.Fprintln(app.Stdout, SubtitleStyle.Render("No matching tools"))
				return nil
			}
			return app.printToolSummaries(repo, names)
		},
	}
	searchCmd.Flags().IntVarP(&limit, "limit", "k", toolrepo.DefaultSearchLimit, "maximum number of results")
	return searchCmd
}
