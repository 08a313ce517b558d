package tui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/tracekit/blockscope/internal/model"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	sectionStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	chartTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("252"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("244"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// reasonColors maps each blocking reason to a terminal color.
var reasonColors = map[model.Reason]string{
	model.ReasonScheduling:              "39",
	model.ReasonPacing:                  "208",
	model.ReasonAmplificationProtection: "201",
	model.ReasonCongestionControl:       "196",
	model.ReasonConnectionFlowControl:   "226",
	model.ReasonStreamFlowControl:       "220",
	model.ReasonApp:                     "244",
	model.ReasonStreamIDFlowControl:     "135",
}

func reasonColor(r model.Reason) string {
	if c, ok := reasonColors[r]; ok {
		return c
	}
	return "250"
}

// reasonBarStyle fills the bar with the reason color so the chart reads as
// solid blocks rather than outlined glyphs.
func reasonBarStyle(r model.Reason) lipgloss.Style {
	c := lipgloss.Color(reasonColor(r))
	return lipgloss.NewStyle().Foreground(c).Background(c)
}
