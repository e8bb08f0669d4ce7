// Package view turns dashboard and session state into display descriptions.
// Every function here is a pure projection; the TUI and the CLI render the
// results.
package view

import (
	"strconv"

	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/dashboard"
	"github.com/bitdruid/llmm/internal/session"
)

// Placeholder stands in for missing model details.
const Placeholder = "-"

// Empty-state texts.
const (
	EmptyChat    = "Select a model and start chatting"
	EmptyRunning = "No models running"
	EmptyModels  = "No models installed"
)

func orDash(s string) string {
	if s == "" {
		return Placeholder
	}
	return s
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return session.ErrorText(err.Error())
}

// ChatBubble is one rendered transcript message.
type ChatBubble struct {
	Role     string
	Label    string
	Content  string
	Thinking string
}

// ChatView is the rendered transcript. Empty views show EmptyText instead.
type ChatView struct {
	Empty     bool
	EmptyText string
	Bubbles   []ChatBubble
}

// Chat projects a transcript.
func Chat(msgs []session.Message) ChatView {
	if len(msgs) == 0 {
		return ChatView{Empty: true, EmptyText: EmptyChat}
	}
	v := ChatView{Bubbles: make([]ChatBubble, 0, len(msgs))}
	for _, m := range msgs {
		label := "Assistant"
		if m.Role == session.RoleUser {
			label = "You"
		}
		v.Bubbles = append(v.Bubbles, ChatBubble{
			Role:     m.Role,
			Label:    label,
			Content:  m.Content,
			Thinking: m.Thinking,
		})
	}
	return v
}

// PullView describes the pull form: trigger, status line, progress bar and
// the final alert.
type PullView struct {
	TriggerLabel   string
	TriggerEnabled bool

	Status  string
	ShowBar bool
	Percent int
	Detail  string

	Alert   string
	Failed  bool
	Success bool
}

// Pull projects a pull state.
func Pull(s session.PullState) PullView {
	v := PullView{
		TriggerLabel:   "Pull",
		TriggerEnabled: s.TriggerEnabled(),
	}
	switch s.Phase {
	case session.PhaseRunning:
		v.TriggerLabel = "Pulling..."
		v.Status = s.Status
		v.ShowBar = true
		v.Percent = s.Percent
		if s.HasProgress {
			v.Detail = ProgressDetail(s.Completed, s.Total, s.Percent)
		}
	case session.PhaseSucceeded:
		v.Success = true
		v.Alert = s.Status
	case session.PhaseFailed:
		v.Failed = true
		v.Alert = session.ErrorText(s.Error)
		if s.Error == session.MsgEnterModelName {
			v.Alert = s.Error
		}
	}
	return v
}

// RunningRow is one running model on the overview.
type RunningRow struct {
	Name   string
	Params string
	Quant  string
	Size   string
}

// RunningView lists running models or explains why there are none.
type RunningView struct {
	Error     string
	Empty     bool
	EmptyText string
	Rows      []RunningRow
}

// Running projects the running-models slice.
func Running(models []client.Model, err error) RunningView {
	if err != nil {
		return RunningView{Error: errText(err)}
	}
	if len(models) == 0 {
		return RunningView{Empty: true, EmptyText: EmptyRunning}
	}
	v := RunningView{Rows: make([]RunningRow, 0, len(models))}
	for _, m := range models {
		size := "Active"
		if m.Size > 0 {
			size = FormatBytes(m.Size)
		}
		v.Rows = append(v.Rows, RunningRow{
			Name:   m.Name,
			Params: orDash(m.Details.ParameterSize),
			Quant:  orDash(m.Details.QuantizationLevel),
			Size:   size,
		})
	}
	return v
}

// ModelRow is one line of the installed-models table.
type ModelRow struct {
	Name     string
	Size     string
	Params   string
	Format   string
	Quant    string
	Modified string
}

// ModelsView is the installed-models table.
type ModelsView struct {
	Error     string
	Empty     bool
	EmptyText string
	Rows      []ModelRow
}

// Models projects the model listing.
func Models(models []client.Model, err error) ModelsView {
	if err != nil {
		return ModelsView{Error: errText(err)}
	}
	if len(models) == 0 {
		return ModelsView{Empty: true, EmptyText: EmptyModels}
	}
	return ModelsView{Rows: ModelRows(models)}
}

// ModelRows renders model entries with "-" for missing details.
func ModelRows(models []client.Model) []ModelRow {
	rows := make([]ModelRow, 0, len(models))
	for _, m := range models {
		size := Placeholder
		if m.Size > 0 {
			size = FormatBytes(m.Size)
		}
		modified := Placeholder
		if m.ModifiedAt != nil && !m.ModifiedAt.IsZero() {
			modified = m.ModifiedAt.Local().Format("2006-01-02")
		}
		rows = append(rows, ModelRow{
			Name:     m.Name,
			Size:     size,
			Params:   orDash(m.Details.ParameterSize),
			Format:   orDash(m.Details.Format),
			Quant:    orDash(m.Details.QuantizationLevel),
			Modified: modified,
		})
	}
	return rows
}

// Stat is a single figure on the overview.
type Stat struct {
	Value   string
	Caption string
	Error   string
}

// Totals renders the installed model count.
func Totals(count int, err error) Stat {
	if err != nil {
		return Stat{Error: errText(err)}
	}
	return Stat{Value: strconv.Itoa(count), Caption: "models installed"}
}

// Storage renders the summed model size.
func Storage(bytes int64, err error) Stat {
	if err != nil {
		return Stat{Error: errText(err)}
	}
	return Stat{Value: FormatBytes(bytes), Caption: "total disk usage"}
}

// DashboardView is the whole overview.
type DashboardView struct {
	Running RunningView
	Models  ModelsView
	Totals  Stat
	Storage Stat
}

// Dashboard projects a dashboard snapshot.
func Dashboard(s dashboard.Snapshot) DashboardView {
	return DashboardView{
		Running: Running(s.Running, s.RunningErr),
		Models:  Models(s.Models, s.ModelsErr),
		Totals:  Totals(s.TotalModels, s.TotalsErr),
		Storage: Storage(s.StorageBytes, s.StorageErr),
	}
}
