package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var (
	helpHeaderStyle = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	helpCmdStyle    = lipgloss.NewStyle().Foreground(colorPrimaryLight)
)

// commandGroups orders the root help by workflow.
var commandGroups = []struct {
	id, title string
	commands  []string
}{
	{"learn", "Learn:", []string{"ingest", "snapshot", "extract"}},
	{"use", "Use:", []string{"list", "enrich", "stats"}},
	{"curate", "Curate:", []string{"approve", "reject", "maintain"}},
	{"feedback", "Feedback:", []string{"feedback", "export"}},
	{"run", "Run:", []string{"serve", "mcp", "version"}},
}

// styleIf renders s with style on a terminal only.
func styleIf(style lipgloss.Style) func(string) string {
	return func(s string) string {
		if isTTY() {
			return style.Render(s)
		}
		return s
	}
}

const helpTemplate = `{{with .Long}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{header "Usage:"}}
  {{if .Runnable}}{{cmd .UseLine}}{{else}}{{cmd .CommandPath}} {{muted "[command]"}}{{end}}
{{if .HasAvailableSubCommands}}{{$cmds := .Commands}}{{range $group := .Groups}}
{{header $group.Title}}
{{range $cmds}}{{if and (eq .GroupID $group.ID) .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}{{end}}{{if not .AllChildCommandsHaveGroup}}
{{header "Other:"}}
{{range $cmds}}{{if and (eq .GroupID "") .IsAvailableCommand}}  {{cmd (rpad .Name .NamePadding)}} {{.Short}}
{{end}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}
{{header "Flags:"}}
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableInheritedFlags}}
{{header "Global Flags:"}}
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}
{{end}}{{if .HasAvailableSubCommands}}
{{muted (printf "Run '%s <command> --help' for details." .CommandPath)}}
{{end}}`

// initHelp groups the root commands and installs the styled template on
// every command.
func initHelp(root *cobra.Command) {
	cobra.AddTemplateFunc("header", styleIf(helpHeaderStyle))
	cobra.AddTemplateFunc("cmd", styleIf(helpCmdStyle))
	cobra.AddTemplateFunc("muted", styleIf(mutedStyle))

	groupOf := map[string]string{}
	for _, g := range commandGroups {
		root.AddGroup(&cobra.Group{ID: g.id, Title: g.title})
		for _, name := range g.commands {
			groupOf[name] = g.id
		}
	}
	for _, sub := range root.Commands() {
		sub.GroupID = groupOf[strings.Fields(sub.Use)[0]]
	}

	var apply func(*cobra.Command)
	apply = func(c *cobra.Command) {
		c.SetHelpTemplate(helpTemplate)
		for _, sub := range c.Commands() {
			apply(sub)
		}
	}
	apply(root)
}
