package fake

import (
	"fmt"
	"reflect"
	"slices"
	"sync"

	"netbus/internal/bus"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// Compile-time interface assertion.
var _ bus.Conn = (*Bus)(nil)

// Bus is an in-memory object server. It keeps what is attached at each path
// and the property maps exported there.
type Bus struct {
	CallRecorder

	mu      sync.Mutex
	objects map[dbus.ObjectPath]map[string]any
	props   map[dbus.ObjectPath]prop.Map

	// ExportErr, when set, is consulted before every Export. detach is true
	// for Export(nil, ...) calls.
	ExportErr func(path dbus.ObjectPath, iface string, detach bool) error
	// ExportPropertiesErr, when set, is consulted before ExportProperties.
	ExportPropertiesErr func(path dbus.ObjectPath) error
}

func NewBus() *Bus {
	return &Bus{
		objects: make(map[dbus.ObjectPath]map[string]any),
		props:   make(map[dbus.ObjectPath]prop.Map),
	}
}

func (b *Bus) Export(v any, path dbus.ObjectPath, iface string) error {
	detach := v == nil
	b.record("Export", path, iface, detach)
	if b.ExportErr != nil {
		if err := b.ExportErr(path, iface, detach); err != nil {
			return err
		}
	}
	if !path.IsValid() {
		return fmt.Errorf("dbus: invalid path name %q", path)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if detach {
		if ifaces, ok := b.objects[path]; ok {
			delete(ifaces, iface)
			if len(ifaces) == 0 {
				delete(b.objects, path)
			}
		}
		if iface == bus.PropertiesInterface {
			delete(b.props, path)
		}
		return nil
	}
	if b.objects[path] == nil {
		b.objects[path] = make(map[string]any)
	}
	b.objects[path][iface] = v
	return nil
}

func (b *Bus) ExportProperties(path dbus.ObjectPath, props prop.Map) (bus.Properties, error) {
	b.record("ExportProperties", path)
	if b.ExportPropertiesErr != nil {
		if err := b.ExportPropertiesErr(path); err != nil {
			return nil, err
		}
	}
	if err := b.Export(struct{}{}, path, bus.PropertiesInterface); err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.props[path] = props
	b.mu.Unlock()
	return &properties{bus: b, path: path}, nil
}

// Has reports whether iface is attached at path.
func (b *Bus) Has(path dbus.ObjectPath, iface string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[path][iface]
	return ok
}

// Object returns the value exported for iface at path, or nil.
func (b *Bus) Object(path dbus.ObjectPath, iface string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.objects[path][iface]
}

// Interfaces lists the interfaces attached at path, sorted.
func (b *Bus) Interfaces(path dbus.ObjectPath) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.objects[path]))
	for iface := range b.objects[path] {
		out = append(out, iface)
	}
	slices.Sort(out)
	return out
}

// Paths lists every path with at least one interface, sorted.
func (b *Bus) Paths() []dbus.ObjectPath {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]dbus.ObjectPath, 0, len(b.objects))
	for p := range b.objects {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// Property returns the current value of a property exported at path.
func (b *Bus) Property(path dbus.ObjectPath, iface, name string) (any, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	p, ok := b.props[path][iface][name]
	if !ok {
		return nil, false
	}
	return p.Value, true
}

// SetProperty behaves like a remote client calling
// org.freedesktop.DBus.Properties.Set: read-only properties and mismatched
// types are rejected, the callback runs, and the value is stored only when
// the callback accepts it.
func (b *Bus) SetProperty(path dbus.ObjectPath, iface, name string, v any) *dbus.Error {
	b.record("SetProperty", path, iface, name)
	b.mu.Lock()
	p, ok := b.props[path][iface][name]
	b.mu.Unlock()
	if !ok {
		return prop.ErrPropNotFound
	}
	if !p.Writable {
		return prop.ErrReadOnly
	}
	if reflect.TypeOf(v) != reflect.TypeOf(p.Value) {
		return prop.ErrInvalidArg
	}
	if p.Callback != nil {
		if dErr := p.Callback(&prop.Change{Iface: iface, Name: name, Value: v}); dErr != nil {
			return dErr
		}
	}
	b.mu.Lock()
	p.Value = v
	b.mu.Unlock()
	b.record("EmitChanged", path, iface, name)
	return nil
}

type properties struct {
	bus  *Bus
	path dbus.ObjectPath
}

// Update mirrors prop.Properties.SetMust: no writable check and no callback.
// A changed value is recorded as an EmitChanged call.
func (p *properties) Update(iface, property string, v any) error {
	p.bus.record("UpdateProperty", p.path, iface, property)
	p.bus.mu.Lock()
	entry, ok := p.bus.props[p.path][iface][property]
	if !ok {
		p.bus.mu.Unlock()
		return fmt.Errorf("update property %s.%s at %s: no such property", iface, property, p.path)
	}
	if reflect.DeepEqual(entry.Value, v) {
		p.bus.mu.Unlock()
		return nil
	}
	entry.Value = v
	p.bus.mu.Unlock()
	p.bus.record("EmitChanged", p.path, iface, property)
	return nil
}
