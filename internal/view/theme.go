package view

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// Theme is the persisted colour preference.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
)

// ParseTheme accepts "light" or "dark" in any case. Empty means light.
func ParseTheme(s string) (Theme, error) {
	switch Theme(strings.ToLower(strings.TrimSpace(s))) {
	case "", ThemeLight:
		return ThemeLight, nil
	case ThemeDark:
		return ThemeDark, nil
	default:
		return "", fmt.Errorf("unknown theme %q (want light or dark)", s)
	}
}

// Toggle returns the other theme.
func (t Theme) Toggle() Theme {
	if t == ThemeLight {
		return ThemeDark
	}
	return ThemeLight
}

// Styles are the lipgloss styles of one theme.
type Styles struct {
	Title     lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	Thinking  lipgloss.Style
	Muted     lipgloss.Style
	Error     lipgloss.Style
	Success   lipgloss.Style
	Value     lipgloss.Style
	Box       lipgloss.Style
	Header    lipgloss.Style
	Selected  lipgloss.Style
}

type palette struct {
	fg, muted, accent, userBG, userFG, assistantBG, errorFG, successFG, border lipgloss.Color
}

var palettes = map[Theme]palette{
	ThemeDark: {
		fg: "#E6E6E6", muted: "#8A8A8A", accent: "#7AA2F7",
		userBG: "#3D59A1", userFG: "#FFFFFF", assistantBG: "#2A2E3A",
		errorFG: "#F7768E", successFG: "#9ECE6A", border: "#414868",
	},
	ThemeLight: {
		fg: "#1F2328", muted: "#6E7781", accent: "#0969DA",
		userBG: "#0969DA", userFG: "#FFFFFF", assistantBG: "#EAEEF2",
		errorFG: "#CF222E", successFG: "#1A7F37", border: "#D0D7DE",
	},
}

// StylesFor returns the styles of t.
func StylesFor(t Theme) Styles {
	p, ok := palettes[t]
	if !ok {
		p = palettes[ThemeLight]
	}
	return Styles{
		Title:     lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		Tab:       lipgloss.NewStyle().Padding(0, 2).Foreground(p.muted),
		ActiveTab: lipgloss.NewStyle().Padding(0, 2).Bold(true).Foreground(p.accent).Underline(true),
		User:      lipgloss.NewStyle().Padding(0, 1).Background(p.userBG).Foreground(p.userFG),
		Assistant: lipgloss.NewStyle().Padding(0, 1).Background(p.assistantBG).Foreground(p.fg),
		Thinking:  lipgloss.NewStyle().Italic(true).Foreground(p.muted),
		Muted:     lipgloss.NewStyle().Foreground(p.muted),
		Error:     lipgloss.NewStyle().Foreground(p.errorFG),
		Success:   lipgloss.NewStyle().Foreground(p.successFG),
		Value:     lipgloss.NewStyle().Bold(true).Foreground(p.fg),
		Box:       lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.border).Padding(0, 1),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(p.fg),
		Selected:  lipgloss.NewStyle().Bold(true).Foreground(p.accent),
	}
}

// Markdown renders message content with glamour in the theme's standard
// style. Renderers are built lazily per theme and width.
type Markdown struct {
	mu        sync.Mutex
	renderers map[markdownKey]*glamour.TermRenderer
}

type markdownKey struct {
	theme Theme
	width int
}

// NewMarkdown creates an empty renderer cache.
func NewMarkdown() *Markdown {
	return &Markdown{renderers: make(map[markdownKey]*glamour.TermRenderer)}
}

// Render returns s rendered as markdown. If rendering fails the raw text is
// returned.
func (m *Markdown) Render(s string, theme Theme, width int) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	r, err := m.renderer(theme, width)
	if err != nil {
		return s
	}
	out, err := r.Render(s)
	if err != nil {
		return s
	}
	return strings.Trim(out, "\n")
}

func (m *Markdown) renderer(theme Theme, width int) (*glamour.TermRenderer, error) {
	if width <= 0 {
		width = 80
	}
	key := markdownKey{theme: theme, width: width}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.renderers[key]; ok {
		return r, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(string(theme)),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("creating markdown renderer: %w", err)
	}
	m.renderers[key] = r
	return r, nil
}
