package system

import (
	"context"

	"netbus"

	"github.com/google/uuid"
)

// DeviceSource reads the host's network devices.
// link.Source satisfies this interface.
type DeviceSource interface {
	Devices(ctx context.Context) ([]netbus.Device, error)
}

// ConnectionStore loads and persists connection profiles.
// sqlite.Store satisfies this interface.
type ConnectionStore interface {
	ListConnections() ([]netbus.Connection, error)
	SaveConnections(conns []netbus.Connection) error
}

// Tree mirrors the state onto the bus object tree.
// tree.Tree satisfies this interface.
type Tree interface {
	SetDevices(ctx context.Context, devices []netbus.Device) error
	SetConnections(ctx context.Context, conns []netbus.Connection) error
	AddConnection(ctx context.Context, conn netbus.Connection) error
	UpdateConnection(ctx context.Context, conn netbus.Connection) error
	RemoveConnection(ctx context.Context, id uuid.UUID) error
}
