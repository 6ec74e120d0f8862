// Package system owns the authoritative network state. It loads the state
// at startup, publishes it through the object tree, and applies the
// actions bus clients queue.
package system

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"netbus"
	"netbus/internal/action"
	"netbus/internal/check"
)

var (
	ErrConnectionExists   = errors.New("connection already exists")
	ErrConnectionNotFound = errors.New("connection not found")
)

// State is a snapshot of the network configuration.
type State struct {
	Devices     []netbus.Device
	Connections []netbus.Connection
}

// System applies actions to the state and keeps the tree in step with it.
type System struct {
	devices DeviceSource
	store   ConnectionStore
	tree    Tree

	mu    sync.Mutex
	state State
}

func New(devices DeviceSource, store ConnectionStore, tree Tree) *System {
	check.Assert(devices != nil, "system.New: devices must not be nil")
	check.Assert(store != nil, "system.New: store must not be nil")
	check.Assert(tree != nil, "system.New: tree must not be nil")
	return &System{devices: devices, store: store, tree: tree}
}

// Setup reads devices and stored connections and publishes both.
func (s *System) Setup(ctx context.Context) error {
	devs, err := s.devices.Devices(ctx)
	if err != nil {
		return fmt.Errorf("read devices: %w", err)
	}
	conns, err := s.store.ListConnections()
	if err != nil {
		return fmt.Errorf("read connections: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = State{Devices: slices.Clone(devs), Connections: make([]netbus.Connection, 0, len(conns))}
	for _, c := range conns {
		s.state.Connections = append(s.state.Connections, c.Clone())
	}

	if err := s.tree.SetDevices(ctx, devs); err != nil {
		return fmt.Errorf("publish devices: %w", err)
	}
	if err := s.tree.SetConnections(ctx, conns); err != nil {
		return fmt.Errorf("publish connections: %w", err)
	}
	slog.Info("Network state published.", "devices", len(devs), "connections", len(conns))
	return nil
}

// Listen applies actions until ctx is done or actions is closed. A failed
// action is logged and does not stop the loop.
func (s *System) Listen(ctx context.Context, actions <-chan action.Action) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case a, ok := <-actions:
			if !ok {
				return nil
			}
			if err := s.Dispatch(ctx, a); err != nil {
				slog.Error("Action failed.", "action", a, "err", err)
			}
		}
	}
}

// Dispatch applies a single action.
func (s *System) Dispatch(ctx context.Context, a action.Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch a := a.(type) {
	case action.AddConnection:
		return s.addConnection(ctx, a)
	case action.UpdateConnection:
		return s.updateConnection(ctx, a.Conn)
	case action.RemoveConnection:
		return s.removeConnection(ctx, a.ID)
	case action.Apply:
		return s.apply()
	default:
		return fmt.Errorf("unsupported action %v", a)
	}
}

// Refresh re-reads the devices and republishes them.
func (s *System) Refresh(ctx context.Context) error {
	devs, err := s.devices.Devices(ctx)
	if err != nil {
		return fmt.Errorf("read devices: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Devices = devs
	if err := s.tree.SetDevices(ctx, devs); err != nil {
		return fmt.Errorf("publish devices: %w", err)
	}
	return nil
}

// WatchDevices refreshes the devices on every notification from changes
// until ctx is done or changes is closed.
func (s *System) WatchDevices(ctx context.Context, changes <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
			if err := s.Refresh(ctx); err != nil {
				slog.Warn("Device refresh failed.", "err", err)
			}
		}
	}
}

// Snapshot returns a copy of the current state.
func (s *System) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := State{
		Devices:     slices.Clone(s.state.Devices),
		Connections: make([]netbus.Connection, 0, len(s.state.Connections)),
	}
	for _, c := range s.state.Connections {
		out.Connections = append(out.Connections, c.Clone())
	}
	return out
}

func (s *System) addConnection(ctx context.Context, a action.AddConnection) error {
	if s.indexByID(a.ID) >= 0 {
		return fmt.Errorf("add connection %q: %w", a.ID, ErrConnectionExists)
	}
	conn := netbus.NewConnection(a.ID, a.Kind)
	if err := s.tree.AddConnection(ctx, conn); err != nil {
		return fmt.Errorf("add connection %q: %w", a.ID, err)
	}
	s.state.Connections = append(s.state.Connections, conn)
	slog.Info("Connection added.", "id", conn.ID, "uuid", conn.UUID, "kind", conn.Kind)
	return nil
}

func (s *System) updateConnection(ctx context.Context, conn netbus.Connection) error {
	i := slices.IndexFunc(s.state.Connections, func(c netbus.Connection) bool { return c.UUID == conn.UUID })
	if i < 0 {
		return fmt.Errorf("update connection %s: %w", conn.UUID, ErrConnectionNotFound)
	}
	// The bus adapters already carry the edit, so the state follows even if
	// the tree fails to refresh.
	s.state.Connections[i] = conn.Clone()
	if err := s.tree.UpdateConnection(ctx, conn); err != nil {
		return fmt.Errorf("update connection %s: %w", conn.UUID, err)
	}
	slog.Debug("Connection updated.", "id", conn.ID, "uuid", conn.UUID)
	return nil
}

func (s *System) removeConnection(ctx context.Context, id string) error {
	i := s.indexByID(id)
	if i < 0 {
		return fmt.Errorf("remove connection %q: %w", id, ErrConnectionNotFound)
	}
	conn := s.state.Connections[i]
	if err := s.tree.RemoveConnection(ctx, conn.UUID); err != nil {
		return fmt.Errorf("remove connection %q: %w", id, err)
	}
	s.state.Connections = slices.Delete(s.state.Connections, i, i+1)
	slog.Info("Connection removed.", "id", id, "uuid", conn.UUID)
	return nil
}

func (s *System) apply() error {
	if err := s.store.SaveConnections(s.state.Connections); err != nil {
		return fmt.Errorf("apply connections: %w", err)
	}
	slog.Info("Connections applied.", "connections", len(s.state.Connections))
	return nil
}

func (s *System) indexByID(id string) int {
	return slices.IndexFunc(s.state.Connections, func(c netbus.Connection) bool { return c.ID == id })
}
