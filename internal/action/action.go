// Package action carries user-requested mutations from the bus adapters to
// the owner of the authoritative network state.
package action

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"netbus"
	"netbus/internal/check"
)

// ErrQueueClosed is returned by Send after Close.
var ErrQueueClosed = errors.New("action queue closed")

// Action is one of AddConnection, UpdateConnection, RemoveConnection or Apply.
type Action interface {
	action()
	String() string
}

// AddConnection asks for a new connection profile with the given name.
type AddConnection struct {
	ID   string
	Kind netbus.ConnectionKind
}

// UpdateConnection replaces the stored profile with the same UUID.
type UpdateConnection struct {
	Conn netbus.Connection
}

// RemoveConnection drops the profile with the given name.
type RemoveConnection struct {
	ID string
}

// Apply writes the current profiles to the backing store.
type Apply struct{}

func (AddConnection) action()    {}
func (UpdateConnection) action() {}
func (RemoveConnection) action() {}
func (Apply) action()            {}

func (a AddConnection) String() string {
	return fmt.Sprintf("add-connection(%s, %s)", a.ID, a.Kind)
}

func (a UpdateConnection) String() string {
	return fmt.Sprintf("update-connection(%s)", a.Conn.UUID)
}

func (a RemoveConnection) String() string {
	return fmt.Sprintf("remove-connection(%s)", a.ID)
}

func (Apply) String() string { return "apply" }

// Sender is the sending half handed to bus adapters.
type Sender interface {
	Send(ctx context.Context, a Action) error
}

// Queue is a buffered action channel with an explicit close. Sending on a
// closed queue is an error rather than a panic.
type Queue struct {
	ch chan Action

	mu     sync.RWMutex
	closed bool
}

func NewQueue(capacity int) *Queue {
	check.Assert(capacity >= 0, "action.NewQueue: capacity must not be negative")
	return &Queue{ch: make(chan Action, capacity)}
}

// Send blocks until the action is queued, ctx is done, or the queue closes.
func (q *Queue) Send(ctx context.Context, a Action) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrQueueClosed
	}
	select {
	case q.ch <- a:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("queue %s: %w", a, ctx.Err())
	}
}

// Receive returns the receiving end. Close closes it; actions buffered
// before Close can still be read.
func (q *Queue) Receive() <-chan Action {
	return q.ch
}

// Close stops accepting actions. It waits for in-flight Sends to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}
