package session

import (
	"math"

	"github.com/bitdruid/llmm/internal/stream"
)

// Roles of transcript messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one transcript entry. Thinking is only filled for assistant
// messages of models that stream a reasoning channel.
type Message struct {
	Role     string `json:"role"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
}

// ReduceChat applies one frame to the last message of msgs, which must be the
// in-progress assistant message. It reports whether the message changed and
// whether consumption must stop.
//
// An error frame replaces the content with the error text and stops. Content
// and thinking deltas are appended. Generate frames carry their text in
// Response and are appended to the content the same way.
func ReduceChat(msgs []Message, f stream.Frame) (changed, stop bool) {
	if len(msgs) == 0 {
		return false, f.HasError()
	}
	last := &msgs[len(msgs)-1]

	if f.HasError() {
		last.Content = ErrorText(string(f.Error))
		return true, true
	}

	if f.Message != nil {
		if f.Message.Content != "" {
			last.Content += f.Message.Content
			changed = true
		}
		if f.Message.Thinking != "" {
			last.Thinking += f.Message.Thinking
			changed = true
		}
	}
	if f.Response != "" {
		last.Content += f.Response
		changed = true
	}
	return changed, false
}

// PullPhase is the lifecycle stage of a pull.
type PullPhase int

const (
	PhaseIdle PullPhase = iota
	PhaseRunning
	PhaseSucceeded
	PhaseFailed
)

func (p PullPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseSucceeded:
		return "succeeded"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PullState is the live record of one pull.
type PullState struct {
	Phase       PullPhase
	Model       string
	Status      string
	Completed   int64
	Total       int64
	Percent     int
	HasProgress bool
	Error       string
}

// TriggerEnabled reports whether a new pull may be started.
func (s PullState) TriggerEnabled() bool { return s.Phase != PhaseRunning }

// ReducePull returns the state after applying f. Status text is replaced when
// present; byte counters update the percentage only when total is positive;
// an error frame fails the pull.
func ReducePull(s PullState, f stream.Frame) PullState {
	if f.HasError() {
		s.Phase = PhaseFailed
		s.Error = string(f.Error)
		return s
	}
	if f.Status != "" {
		s.Status = f.Status
	}
	if f.HasProgress() {
		s.Completed = *f.Completed
		s.Total = *f.Total
		s.Percent = Percent(s.Completed, s.Total)
		s.HasProgress = true
	}
	return s
}

// Percent returns round(completed/total*100), or 0 when total is not positive.
func Percent(completed, total int64) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(completed) / float64(total) * 100))
}
