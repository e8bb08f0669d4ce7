package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/bitdruid/llmm/internal/session"
	"github.com/bitdruid/llmm/internal/view"
)

// View implements tea.Model.
func (m Model) View() string {
	var body string
	switch m.tab {
	case tabModels:
		body = m.modelsView()
	case tabChat:
		body = m.chatView()
	default:
		body = m.dashboardView()
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.headerView(),
		body,
		m.statusView(),
		m.help.ShortHelpView(m.shortHelp()),
	)
}

func (m Model) headerView() string {
	st := m.styles
	tabs := make([]string, 0, len(tabNames))
	for i, name := range tabNames {
		label := fmt.Sprintf("%d %s", i+1, name)
		if tab(i) == m.tab {
			tabs = append(tabs, st.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, st.Tab.Render(label))
		}
	}
	live := st.Muted.Render("offline")
	if m.live {
		live = st.Success.Render("live")
	}
	return lipgloss.JoinHorizontal(lipgloss.Top,
		st.Title.Render("llmm"), "  ",
		lipgloss.JoinHorizontal(lipgloss.Top, tabs...), "  ",
		live,
	) + "\n"
}

func (m Model) statusView() string {
	switch {
	case m.status == "":
		return ""
	case m.statusErr:
		return m.styles.Error.Render(m.status)
	default:
		return m.styles.Muted.Render(m.status)
	}
}

func (m Model) dashboardView() string {
	st := m.styles
	v := view.Dashboard(m.snap)

	stat := func(title string, s view.Stat) string {
		value := st.Value.Render(s.Value) + "\n" + st.Muted.Render(s.Caption)
		if s.Error != "" {
			value = st.Error.Render(s.Error)
		}
		return st.Box.Render(st.Header.Render(title) + "\n" + value)
	}
	stats := lipgloss.JoinHorizontal(lipgloss.Top,
		stat("Models", v.Totals), " ",
		stat("Storage", v.Storage),
	)

	var running string
	switch {
	case v.Running.Error != "":
		running = st.Error.Render(v.Running.Error)
	case v.Running.Empty:
		running = st.Muted.Render(v.Running.EmptyText)
	default:
		rows := make([][]string, 0, len(v.Running.Rows))
		for _, r := range v.Running.Rows {
			rows = append(rows, []string{r.Name, r.Params, r.Quant, r.Size})
		}
		running = table(st, []string{"NAME", "PARAMS", "QUANT", "SIZE"}, rows, -1)
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		stats,
		"",
		st.Header.Render("Running models"),
		running,
	)
}

func (m Model) modelsView() string {
	st := m.styles
	v := view.Models(m.snap.Models, m.snap.ModelsErr)

	var listing string
	switch {
	case v.Error != "":
		listing = st.Error.Render(v.Error)
	case v.Empty:
		listing = st.Muted.Render(v.EmptyText)
	default:
		rows := make([][]string, 0, len(v.Rows))
		for _, r := range v.Rows {
			rows = append(rows, []string{r.Name, r.Size, r.Params, r.Format, r.Quant, r.Modified})
		}
		listing = table(st, []string{"NAME", "SIZE", "PARAMS", "FORMAT", "QUANT", "MODIFIED"}, rows, m.selected)
	}

	parts := []string{st.Header.Render("Installed models"), listing, ""}
	if m.confirming != "" {
		parts = append(parts, st.Error.Render(fmt.Sprintf("Delete model %q? [y/N]", m.confirming)), "")
	}
	parts = append(parts, m.pullView())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) pullView() string {
	st := m.styles
	v := view.Pull(m.pull)

	trigger := st.Muted.Render("[" + v.TriggerLabel + "]")
	if v.TriggerEnabled {
		trigger = st.Selected.Render("[" + v.TriggerLabel + "]")
	}
	lines := []string{m.pullInput.View() + "  " + trigger}
	if v.ShowBar {
		lines = append(lines, v.Status, m.progress.ViewAs(float64(v.Percent)/100))
		if v.Detail != "" {
			lines = append(lines, st.Muted.Render(v.Detail))
		}
	}
	switch {
	case v.Failed:
		lines = append(lines, st.Error.Render(v.Alert))
	case v.Success:
		lines = append(lines, st.Success.Render(v.Alert))
	}
	return strings.Join(lines, "\n")
}

func (m Model) chatView() string {
	st := m.styles
	model := m.chatModel
	if model == "" {
		model = view.Placeholder
	}
	line := st.Muted.Render("Model: ") + st.Value.Render(model)
	if m.chat.Busy() {
		line += "  " + st.Thinking.Render("Generating... (esc to stop)")
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		line,
		m.viewport.View(),
		m.input.View(),
	)
}

func (m *Model) refreshTranscript() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// renderTranscript lays out the chat bubbles. Assistant content is rendered
// as markdown; user text is shown as typed.
func (m Model) renderTranscript() string {
	st := m.styles
	v := view.Chat(m.messages)
	if v.Empty {
		return st.Muted.Render(v.EmptyText)
	}
	width := max(m.width-4, 20)

	var b strings.Builder
	for i, bubble := range v.Bubbles {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if bubble.Role == session.RoleUser {
			b.WriteString(st.User.Render(bubble.Label))
			b.WriteString("\n")
			b.WriteString(lipgloss.NewStyle().Width(width).Render(bubble.Content))
			continue
		}
		b.WriteString(st.Assistant.Render(bubble.Label))
		if bubble.Thinking != "" {
			b.WriteString("\n")
			b.WriteString(st.Thinking.Width(width).Render(bubble.Thinking))
		}
		b.WriteString("\n")
		b.WriteString(m.md.Render(bubble.Content, m.theme, width))
	}
	return b.String()
}

// table renders rows in aligned columns. The row at selected is marked.
func table(st view.Styles, header []string, rows [][]string, selected int) string {
	widths := make([]int, len(header))
	for i, h := range header {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], lipgloss.Width(cell))
		}
	}

	format := func(cells []string) string {
		padded := make([]string, len(cells))
		for i, c := range cells {
			padded[i] = c + strings.Repeat(" ", widths[i]-lipgloss.Width(c))
		}
		return strings.TrimRight(strings.Join(padded, "  "), " ")
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, st.Muted.Render("  "+format(header)))
	for i, row := range rows {
		if i == selected {
			lines = append(lines, st.Selected.Render("> "+format(row)))
			continue
		}
		lines = append(lines, "  "+format(row))
	}
	return strings.Join(lines, "\n")
}
