package dashboard

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/beamtop/beamtop/internal/ui"
)

func (m Model) render() string {
	var b strings.Builder

	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")

	if !m.Connected() {
		if m.closed {
			b.WriteString(errorStyle.Render(ui.SymbolFail + " connection lost before first sample"))
		} else {
			b.WriteString(m.spinner.View())
			b.WriteString(subtitleStyle.Render(" waiting for first sample..."))
		}
		return b.String()
	}

	b.WriteString(m.renderMetrics())

	if m.last.Memory != nil {
		b.WriteString("\n")
		b.WriteString(m.renderMemory())
	}
	if len(m.sched) > 0 {
		b.WriteString("\n")
		b.WriteString(m.renderSchedulers())
	}
	if m.last.Partial {
		b.WriteString("\n")
		b.WriteString(partialStyle.Render(ui.SymbolPartial + " partial sample: " + strings.Join(m.last.Errors, "; ")))
	}

	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	status := ui.SymbolProgress
	statusStyle := subtitleStyle
	switch {
	case m.closed:
		status = ui.SymbolFail
		statusStyle = errorStyle
	case m.Connected():
		status = ui.SymbolSuccess
		statusStyle = lipgloss.NewStyle().Foreground(ui.ColorSuccess)
	}

	title := titleStyle.Render("beamtop")
	node := valueStyle.Render(m.node)
	parts := statusStyle.Render(status) + " " + title + " " + node
	if m.sysVersion != "" && m.width >= breakpointCompact {
		parts += subtitleStyle.Render(" | " + m.sysVersion)
	}
	if m.Connected() {
		age := m.SecondsSinceUpdate()
		var updateText string
		switch age {
		case 0:
			updateText = "just now"
		case 1:
			updateText = "1s ago"
		default:
			updateText = fmt.Sprintf("%ds ago", age)
		}
		parts += subtitleStyle.Render(" | " + updateText)
	}
	return headerStyle.Render(parts)
}

// graphWidth returns how many history points fit beside the labels.
func (m Model) graphWidth() int {
	width := m.width - 34
	if width < 10 {
		width = 10
	}
	if c := m.store.Capacity(); width > c {
		width = c
	}
	return width
}

func (m Model) renderMetrics() string {
	graphWidth := m.graphWidth()
	var lines []string
	for _, r := range metricRows {
		values := m.store.Values(r.series)
		latest := "-"
		if len(values) > 0 {
			latest = r.format(values[len(values)-1])
		}
		line := fmt.Sprintf("%s %s %s",
			labelStyle.Render(fmt.Sprintf("%-15s", r.label)),
			valueStyle.Render(fmt.Sprintf("%10s", latest)),
			ui.TrendSparkline(values, graphWidth),
		)
		lines = append(lines, line)
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func (m Model) renderMemory() string {
	mem := m.last.Memory
	var lines []string
	for _, cat := range mem.Categories() {
		if cat.Name == "total" || cat.Bytes == 0 {
			continue
		}
		share := 0.0
		if mem.Total > 0 {
			share = float64(cat.Bytes) / float64(mem.Total) * 100
		}
		lines = append(lines, fmt.Sprintf("%s %s %s",
			labelStyle.Render(fmt.Sprintf("%-15s", cat.Name)),
			valueStyle.Render(fmt.Sprintf("%10s", ui.FormatBytes(float64(cat.Bytes)))),
			mutedStyle.Render(fmt.Sprintf("%5.1f%%", share)),
		))
	}
	body := lipgloss.JoinVertical(lipgloss.Left, lines...)
	title := labelStyle.Render("memory " + ui.FormatBytes(float64(mem.Total)))
	return sectionStyle.Render(title + "\n" + body)
}

func (m Model) renderSchedulers() string {
	ids := make([]uint64, 0, len(m.sched))
	for id := range m.sched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var lines []string
	for _, id := range ids {
		util := m.sched[id] * 100
		lines = append(lines, fmt.Sprintf("%s %s",
			labelStyle.Render(fmt.Sprintf("scheduler %-4d", id)),
			utilizationBar(util, 20),
		))
	}
	title := labelStyle.Render("scheduler utilization")
	return sectionStyle.Render(title + "\n" + lipgloss.JoinVertical(lipgloss.Left, lines...))
}

// utilizationBar renders a percent value as a thin bar with threshold colors.
func utilizationBar(percent float64, width int) string {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	bar := strings.Repeat("━", filled) + strings.Repeat("─", width-filled)

	color := ui.ColorSuccess
	switch {
	case percent >= 90:
		color = ui.ColorError
	case percent >= 70:
		color = ui.ColorWarning
	}
	return lipgloss.NewStyle().Foreground(color).Render(bar) +
		valueStyle.Render(fmt.Sprintf(" %5.1f%%", percent))
}

func (m Model) renderFooter() string {
	hints := []string{"q quit"}
	return footerStyle.Render(strings.Join(hints, " | "))
}
