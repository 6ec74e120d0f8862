package tree

import (
	"strings"

	"netbus"
	"netbus/internal/action"
	"netbus/internal/interfaces"
)

// Capability is a set of capability interfaces attached at one path.
type Capability uint8

const (
	CapDevice Capability = 1 << iota
	CapDevices
	CapConnection
	CapConnections
	CapIPv4
	CapWireless
)

// Object variants. Publish and unpublish are driven by these sets through
// capabilityTable.
const (
	DeviceObject             = CapDevice
	PlainConnectionObject    = CapConnection | CapIPv4
	WirelessConnectionObject = PlainConnectionObject | CapWireless
	// AnyConnectionObject covers every interface a connection path may carry.
	AnyConnectionObject = WirelessConnectionObject
)

// ConnectionObject returns the variant published for a connection kind.
func ConnectionObject(kind netbus.ConnectionKind) Capability {
	if kind == netbus.ConnectionWireless {
		return WirelessConnectionObject
	}
	return PlainConnectionObject
}

// objectDeps is what the adapter constructors may draw on.
type objectDeps struct {
	device  netbus.Device
	shared  *interfaces.Shared
	paths   interfaces.PathSource
	actions action.Sender
}

type capabilityEntry struct {
	cap   Capability
	iface string
	// optional interfaces are skipped with a warning when they fail to
	// attach, and a missing optional interface is ignored on removal.
	optional bool
	build    func(objectDeps) interfaces.Interface
}

var capabilityTable = []capabilityEntry{
	{
		cap:   CapDevice,
		iface: interfaces.DeviceInterface,
		build: func(d objectDeps) interfaces.Interface { return interfaces.NewDevice(d.device) },
	},
	{
		cap:   CapDevices,
		iface: interfaces.DevicesInterface,
		build: func(d objectDeps) interfaces.Interface { return interfaces.NewDevices(d.paths) },
	},
	{
		cap:   CapConnection,
		iface: interfaces.ConnectionInterface,
		build: func(d objectDeps) interfaces.Interface { return interfaces.NewConnection(d.shared) },
	},
	{
		cap:   CapConnections,
		iface: interfaces.ConnectionsInterface,
		build: func(d objectDeps) interfaces.Interface { return interfaces.NewConnections(d.paths, d.actions) },
	},
	{
		cap:   CapIPv4,
		iface: interfaces.IPv4Interface,
		build: func(d objectDeps) interfaces.Interface { return interfaces.NewIPv4(d.shared, d.actions) },
	},
	{
		cap:      CapWireless,
		iface:    interfaces.WirelessInterface,
		optional: true,
		build:    func(d objectDeps) interfaces.Interface { return interfaces.NewWireless(d.shared, d.actions) },
	},
}

func (c Capability) Has(o Capability) bool {
	return c&o == o
}

// Interfaces lists the bus interface names in the set, in table order.
func (c Capability) Interfaces() []string {
	var out []string
	for _, entry := range capabilityTable {
		if c.Has(entry.cap) {
			out = append(out, entry.iface)
		}
	}
	return out
}

func (c Capability) String() string {
	if c == 0 {
		return "{}"
	}
	names := make([]string, 0, len(capabilityTable))
	for _, entry := range capabilityTable {
		if c.Has(entry.cap) {
			names = append(names, entry.iface[strings.LastIndex(entry.iface, ".")+1:])
		}
	}
	return "{" + strings.Join(names, ",") + "}"
}

// build constructs the adapters for every capability in the set.
func (c Capability) build(d objectDeps) []interfaces.Interface {
	var out []interfaces.Interface
	for _, entry := range capabilityTable {
		if c.Has(entry.cap) {
			out = append(out, entry.build(d))
		}
	}
	return out
}

func entryFor(iface string) (capabilityEntry, bool) {
	for _, entry := range capabilityTable {
		if entry.iface == iface {
			return entry, true
		}
	}
	return capabilityEntry{}, false
}
