// Package tui renders a terminal dashboard over the stored analysis rows.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/NimbleMarkets/ntcharts/barchart"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/tracekit/blockscope/internal/model"
)

const (
	defaultChartHeight = 8
	connTableRows      = 10
	legendWidth        = 34
)

type tickMsg time.Time

// refreshMsg carries one consistent snapshot of the store aggregates.
type refreshMsg struct {
	reasons  []model.ReasonStat
	conns    []model.ConnectionStat
	rowCount int64
	blocked  int64
	err      error
}

// Dashboard is the root bubbletea model. It polls the store on a fixed
// interval and renders a reason breakdown chart plus the most blocked
// connections.
type Dashboard struct {
	store    model.RowQuerier
	interval time.Duration
	keys     KeyMap

	connTable table.Model

	reasons     []model.ReasonStat
	rowCount    int64
	blocked     int64
	lastRefresh time.Time
	err         error

	width  int
	height int
}

// NewDashboard creates a dashboard bound to the given store. A non-positive
// interval disables automatic refresh; manual refresh stays available.
func NewDashboard(store model.RowQuerier, interval time.Duration) *Dashboard {
	columns := []table.Column{
		{Title: "Connection", Width: 12},
		{Title: "PID", Width: 8},
		{Title: "Blocked", Width: 14},
		{Title: "Lifetime %", Width: 10},
		{Title: "Events", Width: 7},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(connTableRows),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return &Dashboard{
		store:     store,
		interval:  interval,
		keys:      DefaultKeyMap(),
		connTable: t,
	}
}

func (d *Dashboard) Init() tea.Cmd {
	cmds := []tea.Cmd{d.refreshCmd()}
	if d.interval > 0 {
		cmds = append(cmds, d.tickCmd())
	}
	return tea.Batch(cmds...)
}

func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, d.keys.Quit), key.Matches(msg, d.keys.ForceQuit):
			return d, tea.Quit
		case key.Matches(msg, d.keys.Refresh):
			return d, d.refreshCmd()
		}
		var cmd tea.Cmd
		d.connTable, cmd = d.connTable.Update(msg)
		return d, cmd

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		return d, nil

	case tickMsg:
		return d, tea.Batch(d.refreshCmd(), d.tickCmd())

	case refreshMsg:
		d.err = msg.err
		if msg.err != nil {
			return d, nil
		}
		d.reasons = msg.reasons
		d.rowCount = msg.rowCount
		d.blocked = msg.blocked
		d.lastRefresh = time.Now()
		d.connTable.SetRows(connectionRows(msg.conns))
		return d, nil
	}

	return d, nil
}

func (d *Dashboard) tickCmd() tea.Cmd {
	return tea.Tick(d.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (d *Dashboard) refreshCmd() tea.Cmd {
	store := d.store
	return func() tea.Msg {
		var msg refreshMsg
		var err error

		opts := model.QueryOpts{}
		if msg.reasons, err = store.ReasonBreakdown(opts); err != nil {
			return refreshMsg{err: err}
		}
		if msg.conns, err = store.TopConnections(connTableRows, opts); err != nil {
			return refreshMsg{err: err}
		}
		if msg.rowCount, err = store.TotalRowCount(opts); err != nil {
			return refreshMsg{err: err}
		}
		if msg.blocked, err = store.TotalBlockedTime(opts); err != nil {
			return refreshMsg{err: err}
		}
		return msg
	}
}

// connectionRows converts connection aggregates into display rows.
func connectionRows(conns []model.ConnectionStat) []table.Row {
	rows := make([]table.Row, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, table.Row{
			fmt.Sprintf("%d", c.ConnectionID),
			fmt.Sprintf("%d", c.ProcessID),
			formatDuration(c.TotalDuration),
			fmt.Sprintf("%.1f%%", c.TotalPercent),
			fmt.Sprintf("%d", c.Count),
		})
	}
	return rows
}

func formatDuration(ns int64) string {
	dur := time.Duration(ns)
	switch {
	case dur >= time.Second:
		return dur.Truncate(time.Millisecond).String()
	case dur >= time.Millisecond:
		return dur.Truncate(time.Microsecond).String()
	default:
		return dur.String()
	}
}

func (d *Dashboard) View() string {
	var b strings.Builder

	title := fmt.Sprintf(" blockscope — %d rows, %s blocked ", d.rowCount, formatDuration(d.blocked))
	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n\n")

	if d.err != nil {
		b.WriteString(errorStyle.Render(fmt.Sprintf("store error: %v", d.err)))
		b.WriteString("\n\n")
	}

	chart := sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		chartTitleStyle.Render("Blocked time by reason"),
		d.renderReasonChart(),
	))
	conns := sectionStyle.Render(lipgloss.JoinVertical(lipgloss.Left,
		chartTitleStyle.Render("Most blocked connections"),
		d.connTable.View(),
	))

	b.WriteString(chart)
	b.WriteString("\n")
	b.WriteString(conns)
	b.WriteString("\n")

	status := "q quit · r refresh · ↑/↓ select"
	if !d.lastRefresh.IsZero() {
		status += " · updated " + d.lastRefresh.Format("15:04:05")
	}
	b.WriteString(helpStyle.Render(status))

	return b.String()
}

// renderReasonChart draws one bar per reason next to a value legend, widest
// reason first. Bar height scales against the largest aggregate.
func (d *Dashboard) renderReasonChart() string {
	if len(d.reasons) == 0 {
		return helpStyle.Render("No send-blocking intervals recorded")
	}

	chartWidth := d.width - legendWidth - 8
	if chartWidth < 20 {
		chartWidth = 20
	}

	bc := barchart.New(chartWidth, defaultChartHeight,
		barchart.WithBarGap(1),
		barchart.WithBarWidth(3),
		barchart.WithNoAxis(),
	)

	for _, stat := range d.reasons {
		bc.Push(barchart.BarData{
			Label: "",
			Values: []barchart.BarValue{{
				Name:  string(stat.Reason),
				Value: float64(stat.TotalDuration),
				Style: reasonBarStyle(stat.Reason),
			}},
		})
	}

	bc.Draw()
	chartOutput := bc.View()

	legendLines := make([]string, 0, len(d.reasons))
	for _, stat := range d.reasons {
		style := lipgloss.NewStyle().Foreground(lipgloss.Color(reasonColor(stat.Reason)))
		line := fmt.Sprintf("%-24s %s", stat.Reason, formatDuration(stat.TotalDuration))
		legendLines = append(legendLines, style.Render(line))
	}
	for len(legendLines) < defaultChartHeight {
		legendLines = append(legendLines, "")
	}
	legend := strings.Join(legendLines, "\n")

	chartLines := strings.Split(chartOutput, "\n")
	for len(chartLines) < defaultChartHeight {
		chartLines = append(chartLines, "")
	}

	combined := make([]string, 0, defaultChartHeight)
	legendSplit := strings.Split(legend, "\n")
	for i := 0; i < defaultChartHeight; i++ {
		chartLine := ""
		legendLine := ""
		if i < len(chartLines) {
			chartLine = chartLines[i]
		}
		if i < len(legendSplit) {
			legendLine = legendSplit[i]
		}
		if n := lipgloss.Width(chartLine); n < chartWidth {
			chartLine += strings.Repeat(" ", chartWidth-n)
		}
		combined = append(combined, chartLine+"  "+legendLine)
	}

	return strings.Join(combined, "\n")
}
