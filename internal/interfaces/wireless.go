package interfaces

import (
	"errors"
	"slices"

	"netbus"
	"netbus/internal/action"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

var errNotWireless = errors.New("connection has no wireless settings")

// Wireless is the wireless settings view. It is only attached to
// connections of kind wireless.
type Wireless struct {
	shared  *Shared
	actions action.Sender
}

func NewWireless(shared *Shared, actions action.Sender) *Wireless {
	return &Wireless{shared: shared, actions: actions}
}

func (w *Wireless) Name() string { return WirelessInterface }

func (w *Wireless) Properties() map[string]*prop.Prop {
	cfg := netbus.WirelessConfig{}
	if conn := w.shared.Get(); conn.Wireless != nil {
		cfg = *conn.Wireless
	}
	ssid := cfg.SSID
	if ssid == nil {
		ssid = []byte{}
	}
	return map[string]*prop.Prop{
		"SSID":     writable(slices.Clone(ssid), w.setSSID),
		"Mode":     writable(string(cfg.Mode), w.setMode),
		"Security": writable(string(cfg.Security), w.setSecurity),
		"Password": writable(cfg.Password, w.setPassword),
	}
}

func (w *Wireless) edit(fn func(*netbus.WirelessConfig) error) *dbus.Error {
	return sendUpdate(w.actions, w.shared, func(conn *netbus.Connection) error {
		if conn.Wireless == nil {
			return errNotWireless
		}
		return fn(conn.Wireless)
	})
}

func (w *Wireless) setSSID(c *prop.Change) *dbus.Error {
	return w.edit(func(cfg *netbus.WirelessConfig) error {
		cfg.SSID = slices.Clone(c.Value.([]byte))
		return nil
	})
}

func (w *Wireless) setMode(c *prop.Change) *dbus.Error {
	return w.edit(func(cfg *netbus.WirelessConfig) error {
		mode, err := netbus.ParseWirelessMode(c.Value.(string))
		if err != nil {
			return err
		}
		cfg.Mode = mode
		return nil
	})
}

func (w *Wireless) setSecurity(c *prop.Change) *dbus.Error {
	return w.edit(func(cfg *netbus.WirelessConfig) error {
		sec, err := netbus.ParseSecurityProtocol(c.Value.(string))
		if err != nil {
			return err
		}
		cfg.Security = sec
		return nil
	})
}

func (w *Wireless) setPassword(c *prop.Change) *dbus.Error {
	return w.edit(func(cfg *netbus.WirelessConfig) error {
		cfg.Password = c.Value.(string)
		return nil
	})
}
