// Package client talks to a running netbusd over the bus.
package client

import (
	"context"
	"fmt"

	"netbus"
	"netbus/internal/bus"
	"netbus/internal/interfaces"
	"netbus/internal/tree"

	"github.com/godbus/dbus/v5"
)

const getAllMethod = bus.PropertiesInterface + ".GetAll"

// DeviceInfo is a device as published by the daemon.
type DeviceInfo struct {
	Path         dbus.ObjectPath
	Name         string
	Kind         netbus.DeviceKind
	HardwareAddr string
	MTU          uint32
	Up           bool
	Addresses    []string
}

// ConnectionInfo is a connection as published by the daemon.
type ConnectionInfo struct {
	Path      dbus.ObjectPath
	ID        string
	UUID      string
	Kind      netbus.ConnectionKind
	Interface string
	Method    string
	Addresses []string
}

// objects is the part of *dbus.Conn the client needs.
type objects interface {
	Object(dest string, path dbus.ObjectPath) dbus.BusObject
}

type Client struct {
	conn    objects
	closer  func() error
	service string
}

// Dial connects to target (system, session, or a bus address) and talks to
// the daemon owning service.
func Dial(target, service string) (*Client, error) {
	conn, err := bus.Connect(target)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, closer: conn.Close, service: service}, nil
}

func (c *Client) Close() error {
	if c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Client) Devices(ctx context.Context) ([]DeviceInfo, error) {
	var paths []dbus.ObjectPath
	root := c.conn.Object(c.service, tree.DevicesRoot)
	if err := root.CallWithContext(ctx, interfaces.DevicesInterface+".GetDevices", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}

	out := make([]DeviceInfo, 0, len(paths))
	for _, p := range paths {
		props, err := c.getAll(ctx, p, interfaces.DeviceInterface)
		if err != nil {
			return nil, fmt.Errorf("read device %s: %w", p, err)
		}
		out = append(out, DeviceInfo{
			Path:         p,
			Name:         str(props, "Name"),
			Kind:         netbus.DeviceKind(u8(props, "Type")),
			HardwareAddr: str(props, "HardwareAddress"),
			MTU:          u32(props, "MTU"),
			Up:           boolean(props, "Up"),
			Addresses:    strs(props, "Addresses"),
		})
	}
	return out, nil
}

func (c *Client) Connections(ctx context.Context) ([]ConnectionInfo, error) {
	var paths []dbus.ObjectPath
	if err := c.connections().CallWithContext(ctx, interfaces.ConnectionsInterface+".GetConnections", 0).Store(&paths); err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}

	out := make([]ConnectionInfo, 0, len(paths))
	for _, p := range paths {
		props, err := c.getAll(ctx, p, interfaces.ConnectionInterface)
		if err != nil {
			return nil, fmt.Errorf("read connection %s: %w", p, err)
		}
		ipv4, err := c.getAll(ctx, p, interfaces.IPv4Interface)
		if err != nil {
			return nil, fmt.Errorf("read ipv4 settings of %s: %w", p, err)
		}
		out = append(out, ConnectionInfo{
			Path:      p,
			ID:        str(props, "Id"),
			UUID:      str(props, "Uuid"),
			Kind:      netbus.ConnectionKind(u8(props, "Type")),
			Interface: str(props, "Interface"),
			Method:    str(ipv4, "Method"),
			Addresses: strs(ipv4, "Addresses"),
		})
	}
	return out, nil
}

func (c *Client) AddConnection(ctx context.Context, id string, kind netbus.ConnectionKind) error {
	return c.call(ctx, "AddConnection", id, uint8(kind))
}

func (c *Client) RemoveConnection(ctx context.Context, id string) error {
	return c.call(ctx, "RemoveConnection", id)
}

func (c *Client) Apply(ctx context.Context) error {
	return c.call(ctx, "Apply")
}

func (c *Client) connections() dbus.BusObject {
	return c.conn.Object(c.service, tree.ConnectionsRoot)
}

func (c *Client) call(ctx context.Context, method string, args ...any) error {
	if err := c.connections().CallWithContext(ctx, interfaces.ConnectionsInterface+"."+method, 0, args...).Err; err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Client) getAll(ctx context.Context, path dbus.ObjectPath, iface string) (map[string]dbus.Variant, error) {
	var props map[string]dbus.Variant
	if err := c.conn.Object(c.service, path).CallWithContext(ctx, getAllMethod, 0, iface).Store(&props); err != nil {
		return nil, err
	}
	return props, nil
}

func str(props map[string]dbus.Variant, key string) string {
	s, _ := props[key].Value().(string)
	return s
}

func u8(props map[string]dbus.Variant, key string) uint8 {
	v, _ := props[key].Value().(uint8)
	return v
}

func u32(props map[string]dbus.Variant, key string) uint32 {
	v, _ := props[key].Value().(uint32)
	return v
}

func boolean(props map[string]dbus.Variant, key string) bool {
	v, _ := props[key].Value().(bool)
	return v
}

func strs(props map[string]dbus.Variant, key string) []string {
	v, _ := props[key].Value().([]string)
	return v
}
