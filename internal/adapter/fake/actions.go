package fake

import (
	"context"
	"sync"

	"netbus/internal/action"
)

var _ action.Sender = (*Actions)(nil)

// Actions records every action sent to it instead of queueing it.
type Actions struct {
	CallRecorder

	mu   sync.Mutex
	sent []action.Action

	// SendErr, when set, fails every Send with its result.
	SendErr func(a action.Action) error
}

func (a *Actions) Send(_ context.Context, act action.Action) error {
	a.record("Send", act)
	if a.SendErr != nil {
		if err := a.SendErr(act); err != nil {
			return err
		}
	}
	a.mu.Lock()
	a.sent = append(a.sent, act)
	a.mu.Unlock()
	return nil
}

// Sent returns the accepted actions in order.
func (a *Actions) Sent() []action.Action {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]action.Action, len(a.sent))
	copy(out, a.sent)
	return out
}
