package link

import (
	"os"
	"path/filepath"
	"testing"

	"netbus"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		linkType string
		loopback bool
		wireless bool
		want     netbus.DeviceKind
	}{
		{"device", true, false, netbus.DeviceLoopback},
		{"device", false, true, netbus.DeviceWireless},
		{"device", false, false, netbus.DeviceEthernet},
		{"bridge", false, false, netbus.DeviceBridge},
		{"wireguard", false, false, netbus.DeviceWireGuard},
		{"veth", false, false, netbus.DeviceVirtual},
		{"vlan", false, false, netbus.DeviceVirtual},
		{"ipip", false, false, netbus.DeviceUnknown},
	}
	for _, tt := range tests {
		if got := classify(tt.linkType, tt.loopback, tt.wireless); got != tt.want {
			t.Errorf("classify(%q, %v, %v) = %v, want %v", tt.linkType, tt.loopback, tt.wireless, got, tt.want)
		}
	}
}

func TestIsWireless(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "wlan0", "wireless"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "eth0"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := New(WithSysfs(root))
	if !s.isWireless("wlan0") {
		t.Error("wlan0 should be wireless")
	}
	if s.isWireless("eth0") {
		t.Error("eth0 should not be wireless")
	}
	if s.isWireless("missing0") {
		t.Error("unknown link should not be wireless")
	}
}

func TestSignalCoalesces(t *testing.T) {
	t.Parallel()

	ch := make(chan struct{}, 1)
	for i := 0; i < 5; i++ {
		signal(ch)
	}
	if len(ch) != 1 {
		t.Fatalf("pending notifications = %d, want 1", len(ch))
	}
	<-ch
	signal(ch)
	if len(ch) != 1 {
		t.Fatal("notification after drain was dropped")
	}
}

func TestNewDefaults(t *testing.T) {
	t.Parallel()

	s := New()
	if s.sysfs != "/sys/class/net" || !s.wireguard {
		t.Errorf("New() = %+v", s)
	}
	if New(WithWireGuard(false)).wireguard {
		t.Error("WithWireGuard(false) ignored")
	}
}
