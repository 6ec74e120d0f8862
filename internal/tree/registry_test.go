package tree

import (
	"slices"
	"testing"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

func TestRegistryConnections(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	u1, u2 := uuid.New(), uuid.New()
	r.RegisterConnection(u1, ConnectionsRoot+"/0")
	r.RegisterConnection(u2, ConnectionsRoot+"/1")

	if p, ok := r.ConnectionPath(u1); !ok || p != ConnectionsRoot+"/0" {
		t.Fatalf("ConnectionPath(u1) = %q, %v", p, ok)
	}
	if _, ok := r.ConnectionPath(uuid.New()); ok {
		t.Fatal("ConnectionPath of an unknown uuid should report absent")
	}

	// Overwrite is allowed.
	r.RegisterConnection(u1, ConnectionsRoot+"/2")
	if p, _ := r.ConnectionPath(u1); p != ConnectionsRoot+"/2" {
		t.Errorf("after overwrite: got %q", p)
	}

	p, ok := r.DeregisterConnection(u1)
	if !ok || p != ConnectionsRoot+"/2" {
		t.Errorf("DeregisterConnection(u1) = %q, %v", p, ok)
	}
	if _, ok := r.DeregisterConnection(u1); ok {
		t.Error("second DeregisterConnection should report absent")
	}

	want := []dbus.ObjectPath{ConnectionsRoot + "/1"}
	if got := r.ConnectionsPaths(); !slices.Equal(got, want) {
		t.Errorf("ConnectionsPaths() = %v, want %v", got, want)
	}
}

func TestRegistryDevices(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.RegisterDevice("eth0", DevicesRoot+"/0")
	r.RegisterDevice("wlan0", DevicesRoot+"/1")

	if got := r.DeviceNames(); !slices.Equal(got, []string{"eth0", "wlan0"}) {
		t.Errorf("DeviceNames() = %v", got)
	}
	if p, ok := r.DevicePath("wlan0"); !ok || p != DevicesRoot+"/1" {
		t.Errorf("DevicePath(wlan0) = %q, %v", p, ok)
	}
	r.DeregisterDevice("eth0")
	if got := r.DevicesPaths(); !slices.Equal(got, []dbus.ObjectPath{DevicesRoot + "/1"}) {
		t.Errorf("DevicesPaths() = %v", got)
	}
}

func TestRegistryPathsSortNumerically(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	for i := 0; i < 12; i++ {
		r.RegisterConnection(uuid.New(), childPath(ConnectionsRoot, i))
	}
	paths := r.ConnectionsPaths()
	for i, p := range paths {
		if p != childPath(ConnectionsRoot, i) {
			t.Fatalf("paths[%d] = %s, want %s", i, p, childPath(ConnectionsRoot, i))
		}
	}
}

func TestRegistryVerify(t *testing.T) {
	t.Parallel()

	t.Run("consistent", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterDevice("eth0", DevicesRoot+"/0")
		r.RegisterConnection(uuid.New(), ConnectionsRoot+"/0")
		if err := r.Verify(DevicesRoot, ConnectionsRoot); err != nil {
			t.Fatalf("Verify: %v", err)
		}
	})

	t.Run("shared path", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterConnection(uuid.New(), ConnectionsRoot+"/0")
		r.RegisterConnection(uuid.New(), ConnectionsRoot+"/0")
		if err := r.Verify(DevicesRoot, ConnectionsRoot); err == nil {
			t.Fatal("expected error for two connections on one path")
		}
	})

	t.Run("wrong namespace", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterDevice("eth0", ConnectionsRoot+"/0")
		if err := r.Verify(DevicesRoot, ConnectionsRoot); err == nil {
			t.Fatal("expected error for device under the connections root")
		}
	})

	t.Run("nested path", func(t *testing.T) {
		r := NewRegistry()
		r.RegisterDevice("eth0", DevicesRoot+"/0/1")
		if err := r.Verify(DevicesRoot, ConnectionsRoot); err == nil {
			t.Fatal("expected error for a path that is not a direct child")
		}
	})
}

func TestNextFreePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		used []dbus.ObjectPath
		want dbus.ObjectPath
	}{
		{"empty", nil, DevicesRoot + "/0"},
		{"dense", []dbus.ObjectPath{DevicesRoot + "/0", DevicesRoot + "/1"}, DevicesRoot + "/2"},
		{"gap", []dbus.ObjectPath{DevicesRoot + "/0", DevicesRoot + "/2"}, DevicesRoot + "/1"},
	}
	for _, tt := range tests {
		if got := nextFreePath(DevicesRoot, tt.used); got != tt.want {
			t.Errorf("%s: nextFreePath() = %s, want %s", tt.name, got, tt.want)
		}
	}
}
