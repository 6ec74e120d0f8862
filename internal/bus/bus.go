// Package bus is the thin port over the godbus connection used to attach and
// detach objects. The object tree only needs these primitives, which keeps it
// testable against an in-memory fake.
package bus

import (
	"fmt"
	"reflect"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

const (
	PropertiesInterface     = "org.freedesktop.DBus.Properties"
	IntrospectableInterface = "org.freedesktop.DBus.Introspectable"
)

// Well-known bus names accepted by Connect.
const (
	System  = "system"
	Session = "session"
)

// Properties updates exported property values on behalf of the owning
// process. Unlike a remote Set it ignores the writable flag and does not run
// property callbacks. Unchanged values emit no signal.
type Properties interface {
	Update(iface, property string, v any) error
}

// Conn exports values at object paths. Export with a nil value detaches the
// interface and is a no-op when nothing is attached.
type Conn interface {
	Export(v any, path dbus.ObjectPath, iface string) error
	ExportProperties(path dbus.ObjectPath, props prop.Map) (Properties, error)
}

// FromDBus adapts a godbus connection.
func FromDBus(conn *dbus.Conn) Conn {
	return dbusConn{conn: conn}
}

type dbusConn struct {
	conn *dbus.Conn
}

func (c dbusConn) Export(v any, path dbus.ObjectPath, iface string) error {
	return c.conn.Export(v, path, iface)
}

func (c dbusConn) ExportProperties(path dbus.ObjectPath, props prop.Map) (Properties, error) {
	p, err := prop.Export(c.conn, path, props)
	if err != nil {
		return nil, fmt.Errorf("export properties at %s: %w", path, err)
	}
	return dbusProperties{props: p}, nil
}

type dbusProperties struct {
	props *prop.Properties
}

// Update goes through GetMust/SetMust, which panic on an unknown property or
// a failed signal emission; both come back as errors.
func (d dbusProperties) Update(iface, property string, v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("update property %s.%s: %v", iface, property, r)
		}
	}()
	if reflect.DeepEqual(d.props.GetMust(iface, property), v) {
		return nil
	}
	d.props.SetMust(iface, property, v)
	return nil
}

// Connect opens the bus named by target: System, Session, or a bus address
// such as unix:path=/run/dbus/system_bus_socket.
func Connect(target string) (*dbus.Conn, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	switch target {
	case System:
		conn, err = dbus.ConnectSystemBus()
	case Session:
		conn, err = dbus.ConnectSessionBus()
	default:
		conn, err = dbus.Connect(target)
	}
	if err != nil {
		return nil, fmt.Errorf("connect to %s bus: %w", target, err)
	}
	return conn, nil
}
