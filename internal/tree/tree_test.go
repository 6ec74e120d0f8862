package tree

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"netbus"
	"netbus/internal/adapter/fake"
	"netbus/internal/bus"
	"netbus/internal/interfaces"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newTestTree(t *testing.T, opts ...Option) (*Tree, *fake.Bus) {
	t.Helper()
	b := fake.NewBus()
	return New(b, &fake.Actions{}, opts...), b
}

func plain(id string) netbus.Connection {
	return netbus.NewConnection(id, netbus.ConnectionPlain)
}

func wireless(id string) netbus.Connection {
	return netbus.NewConnection(id, netbus.ConnectionWireless)
}

func mustVerify(t *testing.T, tr *Tree) {
	t.Helper()
	if err := tr.Verify(); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestSetConnectionsPublishesEachOnce(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	conns := []netbus.Connection{plain("c1"), plain("c2"), wireless("c3")}

	if err := tr.SetConnections(ctx, conns); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}

	paths := tr.ConnectionsPaths()
	if len(paths) != 3 {
		t.Fatalf("ConnectionsPaths() = %v, want 3 entries", paths)
	}
	for i, c := range conns {
		got, ok := tr.ConnectionPath(c.UUID)
		if !ok || got != childPath(ConnectionsRoot, i) {
			t.Errorf("ConnectionPath(%s) = %q, %v", c.ID, got, ok)
		}
	}
	if !b.Has(ConnectionsRoot, interfaces.ConnectionsInterface) {
		t.Error("connections root not published")
	}
	mustVerify(t, tr)
}

func TestSetConnectionsReplacesAll(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	old := []netbus.Connection{plain("a"), wireless("b"), plain("c")}
	if err := tr.SetConnections(ctx, old); err != nil {
		t.Fatalf("SetConnections(old): %v", err)
	}

	fresh := plain("d")
	if err := tr.SetConnections(ctx, []netbus.Connection{fresh}); err != nil {
		t.Fatalf("SetConnections(new): %v", err)
	}

	for _, c := range old {
		if _, ok := tr.ConnectionPath(c.UUID); ok {
			t.Errorf("stale connection %s still registered", c.ID)
		}
	}
	if got := tr.ConnectionsPaths(); len(got) != 1 {
		t.Fatalf("ConnectionsPaths() = %v, want 1 entry", got)
	}
	for _, p := range []dbus.ObjectPath{ConnectionsRoot + "/1", ConnectionsRoot + "/2"} {
		if ifaces := b.Interfaces(p); len(ifaces) != 0 {
			t.Errorf("stale object at %s still carries %v", p, ifaces)
		}
	}
	mustVerify(t, tr)
}

func TestSetConnectionsPlainAndWireless(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	u1, u2 := plain("wired"), wireless("home")
	if err := tr.SetConnections(context.Background(), []netbus.Connection{u1, u2}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}

	p1, _ := tr.ConnectionPath(u1.UUID)
	p2, _ := tr.ConnectionPath(u2.UUID)
	if p1 == p2 {
		t.Fatalf("both connections at %s", p1)
	}
	for _, p := range []dbus.ObjectPath{p1, p2} {
		for _, iface := range []string{interfaces.ConnectionInterface, interfaces.IPv4Interface} {
			if !b.Has(p, iface) {
				t.Errorf("%s missing at %s", iface, p)
			}
		}
	}
	if b.Has(p1, interfaces.WirelessInterface) {
		t.Errorf("plain connection at %s carries the wireless interface", p1)
	}
	if !b.Has(p2, interfaces.WirelessInterface) {
		t.Errorf("wireless connection at %s lacks the wireless interface", p2)
	}
}

func TestSetConnectionsEmptyPublishesRoot(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	if err := tr.SetConnections(context.Background(), nil); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}
	if !b.Has(ConnectionsRoot, interfaces.ConnectionsInterface) {
		t.Error("connections root not published")
	}
	if got := tr.ConnectionsPaths(); len(got) != 0 {
		t.Errorf("ConnectionsPaths() = %v, want none", got)
	}
}

func TestAddRemoveConnectionRoundTrip(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	base := []netbus.Connection{plain("a"), plain("b")}
	if err := tr.SetConnections(ctx, base); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}
	before := tr.ConnectionsPaths()
	beforeBus := b.Paths()

	c := wireless("guest")
	if err := tr.AddConnection(ctx, c); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if got := len(tr.ConnectionsPaths()); got != len(before)+1 {
		t.Fatalf("after add: %d paths, want %d", got, len(before)+1)
	}
	if err := tr.RemoveConnection(ctx, c.UUID); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}

	if got := tr.ConnectionsPaths(); !slices.Equal(got, before) {
		t.Errorf("ConnectionsPaths() = %v, want %v", got, before)
	}
	if got := b.Paths(); !slices.Equal(got, beforeBus) {
		t.Errorf("bus paths = %v, want %v", got, beforeBus)
	}
	mustVerify(t, tr)
}

func TestAddConnectionKeepsOtherPaths(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTree(t)
	ctx := context.Background()
	a, b2, c := plain("a"), plain("b"), plain("c")
	if err := tr.SetConnections(ctx, []netbus.Connection{a, b2, c}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}
	if err := tr.RemoveConnection(ctx, b2.UUID); err != nil {
		t.Fatalf("RemoveConnection: %v", err)
	}

	// The freed index is reused; a and c do not move.
	d := plain("d")
	if err := tr.AddConnection(ctx, d); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	want := map[uuid.UUID]dbus.ObjectPath{
		a.UUID: ConnectionsRoot + "/0",
		d.UUID: ConnectionsRoot + "/1",
		c.UUID: ConnectionsRoot + "/2",
	}
	for id, p := range want {
		if got, _ := tr.ConnectionPath(id); got != p {
			t.Errorf("ConnectionPath(%s) = %s, want %s", id, got, p)
		}
	}
	mustVerify(t, tr)
}

func TestAddConnectionPublishesRootOnFirstUse(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	if err := tr.AddConnection(context.Background(), plain("first")); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if !b.Has(ConnectionsRoot, interfaces.ConnectionsInterface) {
		t.Error("connections root not published")
	}
}

func TestAddConnectionSameUUIDReusesPath(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	c := wireless("home")
	if err := tr.AddConnection(ctx, c); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	path, _ := tr.ConnectionPath(c.UUID)

	c.Kind = netbus.ConnectionPlain
	c.Wireless = nil
	if err := tr.AddConnection(ctx, c); err != nil {
		t.Fatalf("AddConnection again: %v", err)
	}
	if got := tr.ConnectionsPaths(); !slices.Equal(got, []dbus.ObjectPath{path}) {
		t.Fatalf("ConnectionsPaths() = %v, want [%s]", got, path)
	}
	if b.Has(path, interfaces.WirelessInterface) {
		t.Error("wireless interface left behind after republishing as plain")
	}
	mustVerify(t, tr)
}

func TestAddConnectionRejectsInvalid(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	c := wireless("broken")
	c.Wireless = nil
	if err := tr.AddConnection(context.Background(), c); err == nil {
		t.Fatal("expected error for wireless connection without settings")
	}
	if len(b.Paths()) != 0 {
		t.Errorf("bus carries %v after a rejected add", b.Paths())
	}
}

func TestRemoveConnectionIsIdempotent(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	c := plain("a")
	if err := tr.SetConnections(ctx, []netbus.Connection{c}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := tr.RemoveConnection(ctx, c.UUID); err != nil {
			t.Fatalf("RemoveConnection #%d: %v", i+1, err)
		}
	}
	// Unknown UUIDs are a no-op.
	if err := tr.RemoveConnection(ctx, uuid.New()); err != nil {
		t.Fatalf("RemoveConnection(unknown): %v", err)
	}
	if got := tr.ConnectionsPaths(); len(got) != 0 {
		t.Errorf("ConnectionsPaths() = %v, want none", got)
	}
	if got := b.Paths(); !slices.Equal(got, []dbus.ObjectPath{ConnectionsRoot}) {
		t.Errorf("bus paths = %v, want only the root", got)
	}
}

func TestRemoveUnknownLeavesOthers(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTree(t)
	ctx := context.Background()
	u1, u2 := plain("u1"), wireless("u2")
	if err := tr.SetConnections(ctx, []netbus.Connection{u1, u2}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}
	if err := tr.RemoveConnection(ctx, uuid.New()); err != nil {
		t.Fatalf("RemoveConnection(u3): %v", err)
	}
	if got := len(tr.ConnectionsPaths()); got != 2 {
		t.Errorf("ConnectionsPaths() has %d entries, want 2", got)
	}
}

func TestConcurrentRemoveUnpublishesOnce(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	c := wireless("shared")
	if err := tr.SetConnections(ctx, []netbus.Connection{c}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}
	path, _ := tr.ConnectionPath(c.UUID)
	b.Reset()

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = tr.RemoveConnection(ctx, c.UUID)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("RemoveConnection #%d: %v", i, err)
		}
	}
	detaches := 0
	for _, call := range b.Calls("Export") {
		if call.Args[0] == path && call.Args[1] == interfaces.ConnectionInterface && call.Args[2] == true {
			detaches++
		}
	}
	if detaches != 1 {
		t.Errorf("connection interface detached %d times, want 1", detaches)
	}
}

func TestMandatoryFailureLeavesNoEntry(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	boom := errors.New("ipv4 refused")
	b.ExportErr = func(_ dbus.ObjectPath, iface string, detach bool) error {
		if iface == interfaces.IPv4Interface && !detach {
			return boom
		}
		return nil
	}

	c := plain("a")
	err := tr.AddConnection(context.Background(), c)
	if !errors.Is(err, boom) {
		t.Fatalf("AddConnection: got %v, want %v", err, boom)
	}
	if _, ok := tr.ConnectionPath(c.UUID); ok {
		t.Error("failed connection is registered")
	}
	if ifaces := b.Interfaces(ConnectionsRoot + "/0"); len(ifaces) != 0 {
		t.Errorf("failed connection left %v on the bus", ifaces)
	}
	mustVerify(t, tr)
}

func TestWirelessFailureDoesNotFailAdd(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	b.ExportErr = func(_ dbus.ObjectPath, iface string, detach bool) error {
		if iface == interfaces.WirelessInterface && !detach {
			return errors.New("wireless refused")
		}
		return nil
	}

	c := wireless("home")
	if err := tr.AddConnection(context.Background(), c); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	path, ok := tr.ConnectionPath(c.UUID)
	if !ok {
		t.Fatal("connection not registered")
	}
	if got := tr.Publisher().Published(path); got != PlainConnectionObject {
		t.Errorf("Published() = %s, want %s", got, PlainConnectionObject)
	}
	mustVerify(t, tr)
}

func TestCleanupFailureKeepsEntry(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	stuck := plain("stuck")
	if err := tr.SetConnections(ctx, []netbus.Connection{stuck}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}
	stuckPath, _ := tr.ConnectionPath(stuck.UUID)

	boom := errors.New("detach refused")
	b.ExportErr = func(p dbus.ObjectPath, iface string, detach bool) error {
		if p == stuckPath && iface == interfaces.ConnectionInterface && detach {
			return boom
		}
		return nil
	}

	fresh := plain("fresh")
	err := tr.SetConnections(ctx, []netbus.Connection{fresh})
	if !errors.Is(err, boom) {
		t.Fatalf("SetConnections: got %v, want %v", err, boom)
	}
	if got, ok := tr.ConnectionPath(stuck.UUID); !ok || got != stuckPath {
		t.Errorf("stuck connection: got %q, %v; want it kept at %s", got, ok, stuckPath)
	}
	freshPath, ok := tr.ConnectionPath(fresh.UUID)
	if !ok {
		t.Fatal("new connection not published")
	}
	if freshPath == stuckPath {
		t.Errorf("new connection took the path of a live object: %s", freshPath)
	}
	mustVerify(t, tr)
}

func TestAddDevicesThenSetDevices(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	eth0 := netbus.Device{Name: "eth0", Kind: netbus.DeviceEthernet}
	wlan0 := netbus.Device{Name: "wlan0", Kind: netbus.DeviceWireless}

	if err := tr.AddDevices(ctx, []netbus.Device{eth0, wlan0}); err != nil {
		t.Fatalf("AddDevices: %v", err)
	}
	if got := len(tr.DevicesPaths()); got != 2 {
		t.Fatalf("DevicesPaths() has %d entries, want 2", got)
	}

	if err := tr.SetDevices(ctx, []netbus.Device{eth0}); err != nil {
		t.Fatalf("SetDevices: %v", err)
	}
	paths := tr.DevicesPaths()
	if len(paths) != 1 {
		t.Fatalf("DevicesPaths() = %v, want 1 entry", paths)
	}
	if v, ok := b.Property(paths[0], interfaces.DeviceInterface, "Name"); !ok || v != "eth0" {
		t.Errorf("device at %s has Name %v, want eth0", paths[0], v)
	}
	if _, ok := tr.DevicePath("wlan0"); ok {
		t.Error("wlan0 still registered")
	}
	if !b.Has(DevicesRoot, interfaces.DevicesInterface) {
		t.Error("devices root not published")
	}
	mustVerify(t, tr)
}

func TestAddDevicesSameNameReusesPath(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	if err := tr.AddDevices(ctx, []netbus.Device{{Name: "eth0", MTU: 1500}}); err != nil {
		t.Fatalf("AddDevices: %v", err)
	}
	if err := tr.AddDevices(ctx, []netbus.Device{{Name: "eth0", MTU: 9000}}); err != nil {
		t.Fatalf("AddDevices again: %v", err)
	}
	paths := tr.DevicesPaths()
	if len(paths) != 1 {
		t.Fatalf("DevicesPaths() = %v, want 1 entry", paths)
	}
	if v, _ := b.Property(paths[0], interfaces.DeviceInterface, "MTU"); v != uint32(9000) {
		t.Errorf("MTU = %v, want 9000", v)
	}
}

func TestDevicesAndConnectionsAreDisjoint(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTree(t)
	ctx := context.Background()
	if err := tr.SetDevices(ctx, []netbus.Device{{Name: "eth0"}, {Name: "wlan0"}}); err != nil {
		t.Fatalf("SetDevices: %v", err)
	}
	if err := tr.SetConnections(ctx, []netbus.Connection{plain("a"), wireless("b")}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}
	for _, d := range tr.DevicesPaths() {
		if slices.Contains(tr.ConnectionsPaths(), d) {
			t.Errorf("path %s is both a device and a connection", d)
		}
	}
	mustVerify(t, tr)
}

func TestUpdateConnectionRefreshesProperties(t *testing.T) {
	t.Parallel()

	b := fake.NewBus()
	actions := &fake.Actions{}
	tr := New(b, actions)
	ctx := context.Background()
	c := plain("office")
	if err := tr.AddConnection(ctx, c); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	path, _ := tr.ConnectionPath(c.UUID)

	c.Interface = "eth1"
	c.IPv4.Method = netbus.IPv4Manual
	if err := tr.UpdateConnection(ctx, c); err != nil {
		t.Fatalf("UpdateConnection: %v", err)
	}
	if v, _ := b.Property(path, interfaces.ConnectionInterface, "Interface"); v != "eth1" {
		t.Errorf("Interface = %v, want eth1", v)
	}
	if v, _ := b.Property(path, interfaces.IPv4Interface, "Method"); v != "manual" {
		t.Errorf("Method = %v, want manual", v)
	}
	if got, _ := tr.ConnectionPath(c.UUID); got != path {
		t.Errorf("path moved from %s to %s", path, got)
	}
	// Interface is read-only; only the two changed values are signalled.
	if n := b.Count("EmitChanged"); n != 2 {
		t.Errorf("EmitChanged calls = %d, want 2", n)
	}
	if n := actions.Count("Send"); n != 0 {
		t.Errorf("refresh queued %d actions, want none", n)
	}
}

func TestRemoveConnectionWithStuckHelpers(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	c := plain("office")
	if err := tr.AddConnection(ctx, c); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	path, _ := tr.ConnectionPath(c.UUID)

	boom := errors.New("properties detach refused")
	b.ExportErr = func(p dbus.ObjectPath, iface string, detach bool) error {
		if p == path && iface == bus.PropertiesInterface && detach {
			return boom
		}
		return nil
	}
	if err := tr.RemoveConnection(ctx, c.UUID); !errors.Is(err, boom) {
		t.Fatalf("RemoveConnection: got %v, want %v", err, boom)
	}
	if _, ok := tr.ConnectionPath(c.UUID); ok {
		t.Error("connection still registered after all its interfaces were detached")
	}
	mustVerify(t, tr)

	b.ExportErr = nil
	next := plain("next")
	if err := tr.AddConnection(ctx, next); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	if got, _ := tr.ConnectionPath(next.UUID); got != path {
		t.Errorf("next connection at %s, want the freed %s", got, path)
	}
	mustVerify(t, tr)
}

func TestUpdateConnectionKindChange(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	c := plain("flip")
	if err := tr.AddConnection(ctx, c); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	path, _ := tr.ConnectionPath(c.UUID)

	w := c.Clone()
	w.Kind = netbus.ConnectionWireless
	w.Wireless = &netbus.WirelessConfig{SSID: []byte("cafe"), Mode: netbus.WirelessInfrastructure, Security: netbus.SecurityNone}
	if err := tr.UpdateConnection(ctx, w); err != nil {
		t.Fatalf("UpdateConnection: %v", err)
	}
	if !b.Has(path, interfaces.WirelessInterface) {
		t.Error("wireless interface not attached after kind change")
	}
	mustVerify(t, tr)
}

func TestUpdateUnknownConnection(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTree(t)
	err := tr.UpdateConnection(context.Background(), plain("ghost"))
	if !errors.Is(err, ErrUnknownConnection) {
		t.Fatalf("UpdateConnection: got %v, want ErrUnknownConnection", err)
	}
}

func TestConnectionPathByID(t *testing.T) {
	t.Parallel()

	tr, _ := newTestTree(t)
	c := plain("office")
	if err := tr.AddConnection(context.Background(), c); err != nil {
		t.Fatalf("AddConnection: %v", err)
	}
	want, _ := tr.ConnectionPath(c.UUID)
	if got, ok := tr.ConnectionPathByID("office"); !ok || got != want {
		t.Errorf("ConnectionPathByID(office) = %q, %v", got, ok)
	}
	if _, ok := tr.ConnectionPathByID("missing"); ok {
		t.Error("ConnectionPathByID(missing) should report absent")
	}
}

func TestCollectionAdaptersAnswerFromRegistry(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t)
	ctx := context.Background()
	if err := tr.SetDevices(ctx, []netbus.Device{{Name: "eth0"}}); err != nil {
		t.Fatalf("SetDevices: %v", err)
	}
	if err := tr.SetConnections(ctx, []netbus.Connection{plain("a")}); err != nil {
		t.Fatalf("SetConnections: %v", err)
	}

	devices, ok := b.Object(DevicesRoot, interfaces.DevicesInterface).(*interfaces.Devices)
	if !ok {
		t.Fatal("devices root does not carry the Devices adapter")
	}
	got, dErr := devices.GetDevices()
	if dErr != nil || !slices.Equal(got, tr.DevicesPaths()) {
		t.Errorf("GetDevices() = %v, %v", got, dErr)
	}

	conns, ok := b.Object(ConnectionsRoot, interfaces.ConnectionsInterface).(*interfaces.Connections)
	if !ok {
		t.Fatal("connections root does not carry the Connections adapter")
	}
	paths, dErr := conns.GetConnections()
	if dErr != nil || !slices.Equal(paths, tr.ConnectionsPaths()) {
		t.Errorf("GetConnections() = %v, %v", paths, dErr)
	}
}

func TestWithRoots(t *testing.T) {
	t.Parallel()

	tr, b := newTestTree(t, WithRoots("/test/devices", "/test/connections"))
	if err := tr.AddDevices(context.Background(), []netbus.Device{{Name: "lo"}}); err != nil {
		t.Fatalf("AddDevices: %v", err)
	}
	if got := tr.DevicesPaths(); !slices.Equal(got, []dbus.ObjectPath{"/test/devices/0"}) {
		t.Errorf("DevicesPaths() = %v", got)
	}
	if !b.Has("/test/devices", interfaces.DevicesInterface) {
		t.Error("custom devices root not published")
	}
}

func TestTreeRecordsSpans(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr, b := newTestTree(t, WithTracer(provider.Tracer("test")))

	boom := errors.New("refused")
	b.ExportErr = func(_ dbus.ObjectPath, iface string, detach bool) error {
		if iface == interfaces.DeviceInterface && !detach {
			return boom
		}
		return nil
	}
	if err := tr.AddDevices(context.Background(), []netbus.Device{{Name: "eth0"}}); !errors.Is(err, boom) {
		t.Fatalf("AddDevices: got %v, want %v", err, boom)
	}

	var found bool
	for _, s := range recorder.Ended() {
		if s.Name() != "tree.AddDevices" {
			continue
		}
		found = true
		if s.Status().Code != codes.Error {
			t.Errorf("span status = %v, want Error", s.Status().Code)
		}
	}
	if !found {
		t.Fatal("no tree.AddDevices span recorded")
	}
}
