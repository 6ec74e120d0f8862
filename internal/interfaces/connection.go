package interfaces

import (
	"context"
	"fmt"

	"netbus"
	"netbus/internal/action"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// Connection is the base view of a connection profile.
type Connection struct {
	shared *Shared
}

func NewConnection(shared *Shared) *Connection {
	return &Connection{shared: shared}
}

func (c *Connection) Name() string { return ConnectionInterface }

func (c *Connection) Properties() map[string]*prop.Prop {
	conn := c.shared.Get()
	return map[string]*prop.Prop{
		"Id":        readOnly(conn.ID),
		"Uuid":      readOnly(conn.UUID.String()),
		"Type":      readOnly(uint8(conn.Kind)),
		"Interface": readOnly(conn.Interface),
	}
}

// Connections is the collection view published at the connections root.
// Its mutating methods only queue actions; the tree changes once the owner
// of the network state has applied them.
type Connections struct {
	paths   PathSource
	actions action.Sender
}

func NewConnections(paths PathSource, actions action.Sender) *Connections {
	return &Connections{paths: paths, actions: actions}
}

func (c *Connections) Name() string { return ConnectionsInterface }

func (c *Connections) Properties() map[string]*prop.Prop { return nil }

// GetConnections returns the object paths of every known connection.
func (c *Connections) GetConnections() ([]dbus.ObjectPath, *dbus.Error) {
	return c.paths.ConnectionsPaths(), nil
}

// GetConnection resolves a connection name to its object path.
func (c *Connections) GetConnection(id string) (dbus.ObjectPath, *dbus.Error) {
	path, ok := c.paths.ConnectionPathByID(id)
	if !ok {
		return "", dbus.MakeFailedError(fmt.Errorf("connection %q not found", id))
	}
	return path, nil
}

// AddConnection queues the creation of a connection. ty is the connection
// type code: 0 for plain, 1 for wireless.
func (c *Connections) AddConnection(id string, ty uint8) *dbus.Error {
	kind, err := netbus.ConnectionKindFromWire(ty)
	if err != nil {
		return dbus.MakeFailedError(err)
	}
	return c.send(action.AddConnection{ID: id, Kind: kind})
}

func (c *Connections) RemoveConnection(id string) *dbus.Error {
	return c.send(action.RemoveConnection{ID: id})
}

// Apply asks the owner to persist the current connections.
func (c *Connections) Apply() *dbus.Error {
	return c.send(action.Apply{})
}

func (c *Connections) send(a action.Action) *dbus.Error {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := c.actions.Send(ctx, a); err != nil {
		return dbus.MakeFailedError(err)
	}
	return nil
}
