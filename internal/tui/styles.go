package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Accent color for the banner.
const accentTeal = "#2AA198"

// SPATIALITY ASCII art (filled block style)
var bannerArt = []string{
	" ███████╗██████╗  █████╗ ████████╗██╗ █████╗ ██╗     ██╗████████╗██╗   ██╗",
	" ██╔════╝██╔══██╗██╔══██╗╚══██╔══╝██║██╔══██╗██║     ██║╚══██╔══╝╚██╗ ██╔╝",
	" ███████╗██████╔╝███████║   ██║   ██║███████║██║     ██║   ██║    ╚████╔╝ ",
	" ╚════██║██╔═══╝ ██╔══██║   ██║   ██║██╔══██║██║     ██║   ██║     ╚██╔╝  ",
	" ███████║██║     ██║  ██║   ██║   ██║██║  ██║███████╗██║   ██║      ██║   ",
	" ╚══════╝╚═╝     ╚═╝  ╚═╝   ╚═╝   ╚═╝╚═╝  ╚═╝╚══════╝╚═╝   ╚═╝      ╚═╝   ",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Tips      lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
	StatusBar lipgloss.Style
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(accentTeal)),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:      lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
	}
}

// RenderBanner returns the ASCII art banner as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range bannerArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// RenderWelcomeTips returns styled getting-started tips, headed by the
// active project name.
func (s Styles) RenderWelcomeTips(projectName string) string {
	tips := []string{
		"Project: " + projectName,
		"Tips for getting started:",
		"  • Describe what you want in the scene - the assistant drives the simulation",
		"  • Use /help to see available commands",
		"  • Press Ctrl+C to cancel, Ctrl+D to exit",
		"  • Up/Down arrows navigate prompt history",
	}
	var b strings.Builder
	for _, tip := range tips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}
