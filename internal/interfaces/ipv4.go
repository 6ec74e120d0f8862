package interfaces

import (
	"fmt"
	"net/netip"

	"netbus"
	"netbus/internal/action"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// IPv4 is the address configuration view of a connection. Writes are
// forwarded as UpdateConnection actions.
type IPv4 struct {
	shared  *Shared
	actions action.Sender
}

func NewIPv4(shared *Shared, actions action.Sender) *IPv4 {
	return &IPv4{shared: shared, actions: actions}
}

func (i *IPv4) Name() string { return IPv4Interface }

func (i *IPv4) Properties() map[string]*prop.Prop {
	cfg := i.shared.Get().IPv4

	gateway := ""
	if cfg.Gateway.IsValid() {
		gateway = cfg.Gateway.String()
	}
	return map[string]*prop.Prop{
		"Method":      writable(string(cfg.Method), i.setMethod),
		"Addresses":   writable(prefixStrings(cfg.Addresses), i.setAddresses),
		"Gateway":     writable(gateway, i.setGateway),
		"Nameservers": writable(addrStrings(cfg.Nameservers), i.setNameservers),
	}
}

func (i *IPv4) setMethod(c *prop.Change) *dbus.Error {
	return sendUpdate(i.actions, i.shared, func(conn *netbus.Connection) error {
		m, err := netbus.ParseIPv4Method(c.Value.(string))
		if err != nil {
			return err
		}
		conn.IPv4.Method = m
		return nil
	})
}

func (i *IPv4) setAddresses(c *prop.Change) *dbus.Error {
	return sendUpdate(i.actions, i.shared, func(conn *netbus.Connection) error {
		prefixes, err := parsePrefixes(c.Value.([]string))
		if err != nil {
			return err
		}
		conn.IPv4.Addresses = prefixes
		return nil
	})
}

func (i *IPv4) setGateway(c *prop.Change) *dbus.Error {
	return sendUpdate(i.actions, i.shared, func(conn *netbus.Connection) error {
		s := c.Value.(string)
		if s == "" {
			conn.IPv4.Gateway = netip.Addr{}
			return nil
		}
		gw, err := netip.ParseAddr(s)
		if err != nil {
			return fmt.Errorf("parse gateway: %w", err)
		}
		if !gw.Is4() {
			return fmt.Errorf("gateway %s is not an ipv4 address", gw)
		}
		conn.IPv4.Gateway = gw
		return nil
	})
}

func (i *IPv4) setNameservers(c *prop.Change) *dbus.Error {
	return sendUpdate(i.actions, i.shared, func(conn *netbus.Connection) error {
		raw := c.Value.([]string)
		out := make([]netip.Addr, 0, len(raw))
		for _, s := range raw {
			a, err := netip.ParseAddr(s)
			if err != nil {
				return fmt.Errorf("parse nameserver: %w", err)
			}
			out = append(out, a)
		}
		conn.IPv4.Nameservers = out
		return nil
	})
}

func parsePrefixes(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, s := range raw {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("parse address: %w", err)
		}
		if !p.Addr().Is4() {
			return nil, fmt.Errorf("address %s is not ipv4", p)
		}
		out = append(out, p)
	}
	return out, nil
}

func prefixStrings(in []netip.Prefix) []string {
	out := make([]string, 0, len(in))
	for _, p := range in {
		out = append(out, p.String())
	}
	return out
}

func addrStrings(in []netip.Addr) []string {
	out := make([]string, 0, len(in))
	for _, a := range in {
		out = append(out, a.String())
	}
	return out
}
