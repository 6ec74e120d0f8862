package netbus

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"github.com/google/uuid"
)

// ConnectionKind selects which extra capabilities a connection carries.
// The numeric value is the wire form used by the bus API.
type ConnectionKind uint8

const (
	ConnectionPlain ConnectionKind = iota
	ConnectionWireless
)

func (k ConnectionKind) String() string {
	switch k {
	case ConnectionPlain:
		return "plain"
	case ConnectionWireless:
		return "wireless"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseConnectionKind accepts the names returned by String. "ethernet" is
// accepted as an alias for plain.
func ParseConnectionKind(s string) (ConnectionKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "plain", "ethernet", "":
		return ConnectionPlain, nil
	case "wireless", "wifi":
		return ConnectionWireless, nil
	default:
		return 0, fmt.Errorf("unknown connection kind %q", s)
	}
}

// ConnectionKindFromWire converts the bus type code.
func ConnectionKindFromWire(code uint8) (ConnectionKind, error) {
	k := ConnectionKind(code)
	if k != ConnectionPlain && k != ConnectionWireless {
		return 0, fmt.Errorf("unknown connection type code %d", code)
	}
	return k, nil
}

func (k ConnectionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *ConnectionKind) UnmarshalText(b []byte) error {
	parsed, err := ParseConnectionKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// IPv4Method is how a connection obtains its IPv4 configuration.
type IPv4Method string

const (
	IPv4Disabled  IPv4Method = "disabled"
	IPv4Auto      IPv4Method = "auto"
	IPv4Manual    IPv4Method = "manual"
	IPv4LinkLocal IPv4Method = "link-local"
)

func ParseIPv4Method(s string) (IPv4Method, error) {
	m := IPv4Method(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case IPv4Disabled, IPv4Auto, IPv4Manual, IPv4LinkLocal:
		return m, nil
	default:
		return "", fmt.Errorf("unknown ipv4 method %q", s)
	}
}

type IPv4Config struct {
	Method      IPv4Method     `json:"method"`
	Addresses   []netip.Prefix `json:"addresses,omitempty"`
	Gateway     netip.Addr     `json:"gateway,omitzero"`
	Nameservers []netip.Addr   `json:"nameservers,omitempty"`
}

type WirelessMode string

const (
	WirelessInfrastructure WirelessMode = "infrastructure"
	WirelessAdHoc          WirelessMode = "adhoc"
	WirelessMesh           WirelessMode = "mesh"
	WirelessAP             WirelessMode = "ap"
)

func ParseWirelessMode(s string) (WirelessMode, error) {
	m := WirelessMode(strings.ToLower(strings.TrimSpace(s)))
	switch m {
	case WirelessInfrastructure, WirelessAdHoc, WirelessMesh, WirelessAP:
		return m, nil
	default:
		return "", fmt.Errorf("unknown wireless mode %q", s)
	}
}

type SecurityProtocol string

const (
	SecurityNone   SecurityProtocol = "none"
	SecurityWEP    SecurityProtocol = "wep"
	SecurityWPAPSK SecurityProtocol = "wpa-psk"
	SecuritySAE    SecurityProtocol = "sae"
)

func ParseSecurityProtocol(s string) (SecurityProtocol, error) {
	p := SecurityProtocol(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case SecurityNone, SecurityWEP, SecurityWPAPSK, SecuritySAE:
		return p, nil
	default:
		return "", fmt.Errorf("unknown security protocol %q", s)
	}
}

type WirelessConfig struct {
	SSID     []byte           `json:"ssid"`
	Mode     WirelessMode     `json:"mode"`
	Security SecurityProtocol `json:"security"`
	Password string           `json:"password,omitempty"`
}

// Connection is a network connection profile. UUID is stable across updates
// of the same logical connection; ID is the human-readable name.
type Connection struct {
	ID        string          `json:"id"`
	UUID      uuid.UUID       `json:"uuid"`
	Kind      ConnectionKind  `json:"kind"`
	Interface string          `json:"interface,omitempty"`
	IPv4      IPv4Config      `json:"ipv4"`
	Wireless  *WirelessConfig `json:"wireless,omitempty"`
}

// NewConnection returns a connection with a fresh UUID and automatic IPv4.
func NewConnection(id string, kind ConnectionKind) Connection {
	c := Connection{
		ID:   id,
		UUID: uuid.New(),
		Kind: kind,
		IPv4: IPv4Config{Method: IPv4Auto},
	}
	if kind == ConnectionWireless {
		c.Wireless = &WirelessConfig{Mode: WirelessInfrastructure, Security: SecurityNone}
	}
	return c
}

// IsWireless reports whether the connection carries wireless settings.
func (c Connection) IsWireless() bool {
	return c.Kind == ConnectionWireless
}

func (c Connection) Validate() error {
	if strings.TrimSpace(c.ID) == "" {
		return errors.New("connection id is required")
	}
	if c.UUID == uuid.Nil {
		return fmt.Errorf("connection %q has no uuid", c.ID)
	}
	if c.IsWireless() && c.Wireless == nil {
		return fmt.Errorf("wireless connection %q has no wireless settings", c.ID)
	}
	return nil
}

// Clone returns a deep copy so callers can hand connections across
// goroutines without sharing slices.
func (c Connection) Clone() Connection {
	out := c
	out.IPv4.Addresses = slices.Clone(c.IPv4.Addresses)
	out.IPv4.Nameservers = slices.Clone(c.IPv4.Nameservers)
	if c.Wireless != nil {
		w := *c.Wireless
		w.SSID = slices.Clone(c.Wireless.SSID)
		out.Wireless = &w
	}
	return out
}
