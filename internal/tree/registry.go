package tree

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// Registry maps device names and connection UUIDs to object paths.
//
// Registry does no locking of its own; the Tree owning it serializes every
// access under one mutex so that lookup-then-mutate sequences are atomic.
type Registry struct {
	devices     map[string]dbus.ObjectPath
	connections map[uuid.UUID]dbus.ObjectPath
}

func NewRegistry() *Registry {
	return &Registry{
		devices:     make(map[string]dbus.ObjectPath),
		connections: make(map[uuid.UUID]dbus.ObjectPath),
	}
}

// RegisterDevice inserts or overwrites the path of a device.
func (r *Registry) RegisterDevice(name string, path dbus.ObjectPath) {
	r.devices[name] = path
}

// RegisterConnection inserts or overwrites the path of a connection.
func (r *Registry) RegisterConnection(id uuid.UUID, path dbus.ObjectPath) {
	r.connections[id] = path
}

func (r *Registry) DevicePath(name string) (dbus.ObjectPath, bool) {
	p, ok := r.devices[name]
	return p, ok
}

// ConnectionPath looks up a connection. A missing entry is a normal outcome.
func (r *Registry) ConnectionPath(id uuid.UUID) (dbus.ObjectPath, bool) {
	p, ok := r.connections[id]
	return p, ok
}

// DeregisterDevice removes a device and returns the path it had.
func (r *Registry) DeregisterDevice(name string) (dbus.ObjectPath, bool) {
	p, ok := r.devices[name]
	delete(r.devices, name)
	return p, ok
}

// DeregisterConnection removes a connection and returns the path it had.
func (r *Registry) DeregisterConnection(id uuid.UUID) (dbus.ObjectPath, bool) {
	p, ok := r.connections[id]
	delete(r.connections, id)
	return p, ok
}

// DevicesPaths returns every device path, sorted.
func (r *Registry) DevicesPaths() []dbus.ObjectPath {
	return sortedPaths(r.devices)
}

// ConnectionsPaths returns every connection path, sorted.
func (r *Registry) ConnectionsPaths() []dbus.ObjectPath {
	return sortedPaths(r.connections)
}

// DeviceNames returns the registered device names, sorted.
func (r *Registry) DeviceNames() []string {
	out := make([]string, 0, len(r.devices))
	for name := range r.devices {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// ConnectionUUIDs returns the registered connection UUIDs ordered by path.
func (r *Registry) ConnectionUUIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.connections))
	for id := range r.connections {
		out = append(out, id)
	}
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return comparePaths(r.connections[a], r.connections[b])
	})
	return out
}

// Verify checks that no path is shared by two entries and that every path
// lives directly under the root of its namespace.
func (r *Registry) Verify(devicesRoot, connectionsRoot dbus.ObjectPath) error {
	var errs []error
	owners := make(map[dbus.ObjectPath]string, len(r.devices)+len(r.connections))
	for name, p := range r.devices {
		if !isChildOf(p, devicesRoot) {
			errs = append(errs, fmt.Errorf("device %s has path %s outside %s", name, p, devicesRoot))
		}
		if prev, ok := owners[p]; ok {
			errs = append(errs, fmt.Errorf("path %s owned by %s and device %s", p, prev, name))
		}
		owners[p] = "device " + name
	}
	for id, p := range r.connections {
		if !isChildOf(p, connectionsRoot) {
			errs = append(errs, fmt.Errorf("connection %s has path %s outside %s", id, p, connectionsRoot))
		}
		if prev, ok := owners[p]; ok {
			errs = append(errs, fmt.Errorf("path %s owned by %s and connection %s", p, prev, id))
		}
		owners[p] = "connection " + id.String()
	}
	return errors.Join(errs...)
}

func sortedPaths[K comparable](m map[K]dbus.ObjectPath) []dbus.ObjectPath {
	out := make([]dbus.ObjectPath, 0, len(m))
	for _, p := range m {
		out = append(out, p)
	}
	slices.SortFunc(out, comparePaths)
	return out
}

// comparePaths orders child paths by numeric index so that root/10 sorts
// after root/9.
func comparePaths(a, b dbus.ObjectPath) int {
	if len(a) != len(b) {
		return len(a) - len(b)
	}
	return strings.Compare(string(a), string(b))
}

func isChildOf(p, root dbus.ObjectPath) bool {
	rest, ok := strings.CutPrefix(string(p), string(root)+"/")
	return ok && rest != "" && !strings.Contains(rest, "/")
}

func childPath(root dbus.ObjectPath, index int) dbus.ObjectPath {
	return dbus.ObjectPath(fmt.Sprintf("%s/%d", root, index))
}

// nextFreePath returns root/<n> for the lowest n not present in used.
func nextFreePath(root dbus.ObjectPath, used []dbus.ObjectPath) dbus.ObjectPath {
	taken := make(map[dbus.ObjectPath]struct{}, len(used))
	for _, p := range used {
		taken[p] = struct{}{}
	}
	for i := 0; ; i++ {
		p := childPath(root, i)
		if _, ok := taken[p]; !ok {
			return p
		}
	}
}
