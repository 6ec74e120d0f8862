// Package link reads network devices from the kernel and reports when they
// change.
package link

import (
	"os"
	"path/filepath"

	"netbus"
)

const defaultSysfs = "/sys/class/net"

// Source lists the host's network links as devices.
type Source struct {
	sysfs     string
	wireguard bool
}

type Option func(*Source)

// WithSysfs overrides the directory probed for per-link wireless
// directories.
func WithSysfs(root string) Option {
	return func(s *Source) {
		s.sysfs = root
	}
}

// WithWireGuard enables reading public key and listen port of WireGuard
// links through wgctrl.
func WithWireGuard(enabled bool) Option {
	return func(s *Source) {
		s.wireguard = enabled
	}
}

func New(opts ...Option) *Source {
	s := &Source{sysfs: defaultSysfs, wireguard: true}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// classify maps the kernel's link type to a device kind. Physical links
// report "device"; wireless ones are told apart by sysfs.
func classify(linkType string, loopback, wireless bool) netbus.DeviceKind {
	switch {
	case loopback:
		return netbus.DeviceLoopback
	case wireless:
		return netbus.DeviceWireless
	}
	switch linkType {
	case "device":
		return netbus.DeviceEthernet
	case "bridge":
		return netbus.DeviceBridge
	case "wireguard":
		return netbus.DeviceWireGuard
	case "veth", "tun", "tuntap", "dummy", "vlan", "macvlan", "bond", "vxlan":
		return netbus.DeviceVirtual
	default:
		return netbus.DeviceUnknown
	}
}

func (s *Source) isWireless(name string) bool {
	_, err := os.Stat(filepath.Join(s.sysfs, name, "wireless"))
	return err == nil
}

// signal queues a change notification without blocking. Notifications that
// arrive while one is pending are coalesced.
func signal(ch chan<- struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
