package commands

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// simTheme/simStyles mirror the teacher CLI's Theme/Styles (pkg/cli/tui.go),
// trimmed to the one static status frame gearsim prints at startup instead
// of driving a full interactive TUI loop.
var simTheme = struct{ Primary, Dim lipgloss.Color }{
	Primary: lipgloss.Color("#00ff9f"),
	Dim:     lipgloss.Color("#6e7681"),
}

var simStyles = struct {
	Title  lipgloss.Style
	Label  lipgloss.Style
	Border lipgloss.Style
	Help   lipgloss.Style
}{
	Title:  lipgloss.NewStyle().Bold(true).Foreground(simTheme.Primary).Padding(0, 1),
	Label:  lipgloss.NewStyle().Bold(true).Foreground(simTheme.Primary),
	Border: lipgloss.NewStyle().Foreground(simTheme.Primary),
	Help:   lipgloss.NewStyle().Foreground(simTheme.Dim),
}

const frameWidth = 72

// renderStatusFrame renders one boxed status snapshot: device name/state in
// the title line, the caller's labeled sections in the given order, and a
// help footer — the same
// title+sections+help layout as Frame.Render, minus the scrolling viewport
// machinery a one-shot print doesn't need.
func renderStatusFrame(title, status string, sections map[string][]string, order []string, help string) string {
	bc := simStyles.Border
	var lines []string

	lines = append(lines, bc.Render("╭"+strings.Repeat("─", frameWidth-2)+"╮"))

	titleText := simStyles.Title.Render(title)
	statusText := simStyles.Help.Render("[" + status + "]")
	pad := max(0, frameWidth-5-lipgloss.Width(titleText)-lipgloss.Width(statusText))
	lines = append(lines, bc.Render("│")+" "+titleText+" "+statusText+strings.Repeat(" ", pad)+" "+bc.Render("│"))
	lines = append(lines, bc.Render("│")+strings.Repeat(" ", frameWidth-2)+bc.Render("│"))

	for _, label := range order {
		content := sections[label]
		labelText := simStyles.Label.Render(label)
		labelPad := max(0, frameWidth-3-lipgloss.Width(labelText))
		lines = append(lines, bc.Render("├")+bc.Render("─")+labelText+bc.Render(strings.Repeat("─", labelPad))+bc.Render("┤"))
		for _, c := range content {
			maxContent := frameWidth - 4
			if lipgloss.Width(c) > maxContent {
				c = c[:maxContent]
			}
			linePad := max(0, maxContent-lipgloss.Width(c))
			lines = append(lines, bc.Render("│")+" "+c+strings.Repeat(" ", linePad)+" "+bc.Render("│"))
		}
	}

	lines = append(lines, bc.Render("╰"+strings.Repeat("─", frameWidth-2)+"╯"))
	lines = append(lines, simStyles.Help.Render(help))
	return strings.Join(lines, "\n")
}
