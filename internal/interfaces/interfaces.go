// Package interfaces holds the per-object bus adapters: the capability
// interfaces attached at device and connection paths and at the two
// collection roots.
//
// Adapters are exported with godbus. Every exported method whose last result
// is *dbus.Error becomes a bus method; Properties feeds the
// org.freedesktop.DBus.Properties implementation for the path.
package interfaces

import (
	"context"
	"sync"
	"time"

	"netbus"
	"netbus/internal/action"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const (
	ServiceName = "org.opensuse.Agama.Network1"

	DeviceInterface      = ServiceName + ".Device"
	DevicesInterface     = ServiceName + ".Devices"
	ConnectionInterface  = ServiceName + ".Connection"
	ConnectionsInterface = ServiceName + ".Connections"
	IPv4Interface        = ServiceName + ".Connection.IPv4"
	WirelessInterface    = ServiceName + ".Connection.Wireless"
)

// sendTimeout bounds how long a bus call waits for room in the action queue.
const sendTimeout = 5 * time.Second

// Interface is one capability interface published at an object path.
type Interface interface {
	// Name is the bus interface name.
	Name() string
	// Properties returns the current property values. It is called on every
	// publish and refresh, so values must reflect the adapter's model.
	Properties() map[string]*prop.Prop
}

// PathSource answers collection queries from the object registry.
type PathSource interface {
	DevicesPaths() []dbus.ObjectPath
	ConnectionsPaths() []dbus.ObjectPath
	ConnectionPathByID(id string) (dbus.ObjectPath, bool)
}

// Shared is the connection model behind the adapters of one path. All
// adapters of a path hold the same Shared so an update is seen by each.
type Shared struct {
	mu   sync.RWMutex
	conn netbus.Connection
}

func NewShared(c netbus.Connection) *Shared {
	return &Shared{conn: c.Clone()}
}

// Get returns a copy of the current connection.
func (s *Shared) Get() netbus.Connection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn.Clone()
}

func (s *Shared) Set(c netbus.Connection) {
	s.mu.Lock()
	s.conn = c.Clone()
	s.mu.Unlock()
}

func readOnly(v any) *prop.Prop {
	return &prop.Prop{Value: v, Writable: false, Emit: prop.EmitTrue}
}

func writable(v any, cb func(*prop.Change) *dbus.Error) *prop.Prop {
	return &prop.Prop{Value: v, Writable: true, Emit: prop.EmitTrue, Callback: cb}
}

// sendUpdate forwards an edited copy of the connection and, once queued,
// makes it the adapters' current model.
func sendUpdate(actions action.Sender, shared *Shared, edit func(*netbus.Connection) error) *dbus.Error {
	conn := shared.Get()
	if err := edit(&conn); err != nil {
		return dbus.MakeFailedError(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := actions.Send(ctx, action.UpdateConnection{Conn: conn}); err != nil {
		return dbus.MakeFailedError(err)
	}
	shared.Set(conn)
	return nil
}
