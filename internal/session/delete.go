package session

import (
	"context"
	"strings"

	"github.com/bitdruid/llmm/internal/client"
)

// DeleteBackend is the part of the dashboard API a delete needs.
type DeleteBackend interface {
	Delete(ctx context.Context, name string) (client.DeleteResult, error)
}

// Delete removes a model after confirm approves it. confirm blocks until the
// user answers; a nil confirm approves. On decline nothing is sent and
// ErrDeclined is returned. A reply whose status is not "success" is returned
// together with an *client.APIError carrying its message.
func Delete(ctx context.Context, backend DeleteBackend, name string, confirm func(name string) bool) (client.DeleteResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return client.DeleteResult{}, ErrNoModel
	}
	if confirm != nil && !confirm(name) {
		return client.DeleteResult{}, ErrDeclined
	}

	res, err := backend.Delete(ctx, name)
	if err != nil {
		return client.DeleteResult{}, err
	}
	if !res.OK() {
		msg := res.Message
		if msg == "" {
			msg = "delete failed"
		}
		return res, &client.APIError{Message: msg}
	}
	return res, nil
}
