package netbus

import "net/netip"

// DeviceKind classifies a network interface.
type DeviceKind uint8

const (
	DeviceUnknown DeviceKind = iota
	DeviceEthernet
	DeviceWireless
	DeviceLoopback
	DeviceBridge
	DeviceWireGuard
	DeviceVirtual
)

func (k DeviceKind) String() string {
	switch k {
	case DeviceEthernet:
		return "ethernet"
	case DeviceWireless:
		return "wireless"
	case DeviceLoopback:
		return "loopback"
	case DeviceBridge:
		return "bridge"
	case DeviceWireGuard:
		return "wireguard"
	case DeviceVirtual:
		return "virtual"
	default:
		return "unknown"
	}
}

// Device is a network interface known to the host. Name is unique among
// the devices of one snapshot.
type Device struct {
	Name         string
	Kind         DeviceKind
	Index        int
	HardwareAddr string
	MTU          int
	Up           bool
	Addresses    []netip.Prefix

	// Only set for DeviceWireGuard.
	WireGuardPublicKey  string
	WireGuardListenPort int
}
