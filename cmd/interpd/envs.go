// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

func newEnvsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List the available environments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				BorderStyle(SubtitleStyle).
				StyleFunc(func(row, col int) lipgloss.Style {
					switch {
					case row == table.HeaderRow:
						return TitleStyle.Padding(0, 1)
					case col == 0:
						return NameStyle.Padding(0, 1)
					default:
						return lipgloss.NewStyle().Padding(0, 1)
					}
				}).
				Headers("NAME", "ALIASES", "MODE", "DESCRIPTION")

			for _, e := range app.Registry.Entries() {
				name := e.Name
				if name == app.cfg.DefaultEnvironment {
					name += " *"
				}
				mode := "one-shot"
				if e.Interactive {
					mode = "interactive"
				}
				t.Row(name, strings.Join(e.Aliases, ", "), mode, e.Description)
			}

			fmt.Fprintln(app.Stdout, t.Render())
			fmt.Fprintln(app.Stdout, SubtitleStyle.Render("* default environment"))
			return nil
		},
	}
}
