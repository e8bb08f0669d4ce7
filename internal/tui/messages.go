package tui

import (
	"github.com/bitdruid/llmm/internal/client"
	"github.com/bitdruid/llmm/internal/dashboard"
	"github.com/bitdruid/llmm/internal/session"
)

// Forwarded from orchestrator goroutines through the update channel.
type (
	snapshotMsg     dashboard.Snapshot
	chatMsg         []session.Message
	pullMsg         session.PullState
	eventMsg        client.Event
	eventsClosedMsg struct{ err error }
)

// Returned by commands.
type (
	eventsUpMsg   struct{ stream EventStream }
	eventsDownMsg struct{ err error }
	reconnectMsg  struct{}

	chatDoneMsg struct{ err error }

	pullDoneMsg struct {
		name string
		err  error
	}

	deleteDoneMsg struct {
		name string
		res  client.DeleteResult
		err  error
	}

	themeSavedMsg struct{ err error }
)
