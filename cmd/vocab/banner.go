package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	bannerDimStyle     = lipgloss.NewStyle().Foreground(colorMuted)
	bannerMarkStyle    = lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	bannerTitleStyle   = lipgloss.NewStyle().Foreground(colorText).Bold(true)
	bannerTaglineStyle = lipgloss.NewStyle().Foreground(colorPrimaryLight).Italic(true)
)

// renderBanner draws the version banner shown on a terminal.
func renderBanner(ver string) string {
	rule := bannerDimStyle.Render(strings.Repeat("─", 28))
	lines := []string{
		rule,
		"  " + bannerMarkStyle.Render("◆") + " " + bannerTitleStyle.Render("VOCAB") + " " + bannerDimStyle.Render(ver),
		"  " + bannerTaglineStyle.Render("words the domain taught us"),
		rule,
	}
	return strings.Join(lines, "\n")
}
