package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Quit     key.Binding
	NextTab  key.Binding
	PrevTab  key.Binding
	Theme    key.Binding
	Refresh  key.Binding
	Up       key.Binding
	Down     key.Binding
	Select   key.Binding
	Pull     key.Binding
	Update   key.Binding
	Delete   key.Binding
	Confirm  key.Binding
	Decline  key.Binding
	Send     key.Binding
	Stop     key.Binding
	Clear    key.Binding
	ScrollUp key.Binding
	ScrollDn key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("q"), key.WithHelp("q", "quit")),
		NextTab:  key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
		PrevTab:  key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev tab")),
		Theme:    key.NewBinding(key.WithKeys("t"), key.WithHelp("t", "theme")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "chat")),
		Pull:     key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "pull")),
		Update:   key.NewBinding(key.WithKeys("u"), key.WithHelp("u", "update")),
		Delete:   key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete")),
		Confirm:  key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "confirm")),
		Decline:  key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "cancel")),
		Send:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "send")),
		Stop:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "stop")),
		Clear:    key.NewBinding(key.WithKeys("ctrl+l"), key.WithHelp("ctrl+l", "clear")),
		ScrollUp: key.NewBinding(key.WithKeys("pgup"), key.WithHelp("pgup", "scroll up")),
		ScrollDn: key.NewBinding(key.WithKeys("pgdown"), key.WithHelp("pgdn", "scroll down")),
	}
}

// shortHelp lists the bindings that apply to the current tab.
func (m Model) shortHelp() []key.Binding {
	k := m.keys
	switch {
	case m.confirming != "":
		return []key.Binding{k.Confirm, k.Decline}
	case m.tab == tabModels && m.pullInput.Focused():
		return []key.Binding{
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "start")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		}
	case m.tab == tabModels:
		return []key.Binding{k.Up, k.Down, k.Select, k.Pull, k.Update, k.Delete, k.Refresh, k.Theme, k.NextTab, k.Quit}
	case m.tab == tabChat:
		return []key.Binding{k.Send, k.Stop, k.Clear, k.ScrollUp, k.NextTab,
			key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit"))}
	default:
		return []key.Binding{k.Refresh, k.Theme, k.NextTab, k.Quit}
	}
}
