package tree

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"netbus/internal/bus"
	"netbus/internal/interfaces"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/godbus/dbus/v5/prop"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrNotPublished is returned by Detach when the interface is not attached
// at the path.
var ErrNotPublished = errors.New("interface not published")

// Publisher attaches capability interfaces to object paths on a shared bus
// connection and remembers what is live at each path.
//
// Publishing several interfaces at one path is not atomic on the bus. A
// failing mandatory interface rolls back the interfaces attached by the same
// call; a failing optional interface is logged and skipped.
type Publisher struct {
	conn   bus.Conn
	tracer trace.Tracer

	mu      sync.Mutex
	objects map[dbus.ObjectPath]*object
}

type object struct {
	caps   Capability
	ifaces map[string]interfaces.Interface
	props  bus.Properties
}

func NewPublisher(conn bus.Conn, tracer trace.Tracer) *Publisher {
	return &Publisher{
		conn:    conn,
		tracer:  tracer,
		objects: make(map[dbus.ObjectPath]*object),
	}
}

// Publish attaches ifaces at path. Interfaces already attached under the
// same name are replaced.
func (p *Publisher) Publish(ctx context.Context, path dbus.ObjectPath, ifaces ...interfaces.Interface) (err error) {
	_, span := p.tracer.Start(ctx, "publish", trace.WithAttributes(attribute.String("path", string(path))))
	defer func() { endSpan(span, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	obj, existed := p.objects[path]
	if !existed {
		obj = &object{ifaces: make(map[string]interfaces.Interface)}
	}

	var added []capabilityEntry
	for _, iface := range ifaces {
		name := iface.Name()
		entry, known := entryFor(name)
		if !known {
			p.rollback(path, obj, added)
			return fmt.Errorf("publish %s at %s: unknown capability interface", name, path)
		}
		if err := p.conn.Export(iface, path, name); err != nil {
			if entry.optional {
				slog.Warn("Optional interface not published.", "path", path, "iface", name, "err", err)
				continue
			}
			p.rollback(path, obj, added)
			return fmt.Errorf("publish %s at %s: %w", name, path, err)
		}
		if !obj.caps.Has(entry.cap) {
			added = append(added, entry)
		}
		obj.caps |= entry.cap
		obj.ifaces[name] = iface
	}

	if err := p.exportHelpers(path, obj); err != nil {
		p.rollback(path, obj, added)
		return err
	}
	p.objects[path] = obj
	slog.Debug("Published object.", "path", path, "caps", obj.caps)
	return nil
}

// rollback detaches interfaces newly attached by a failed Publish. Detach
// errors are logged; the publish error is what the caller sees.
func (p *Publisher) rollback(path dbus.ObjectPath, obj *object, added []capabilityEntry) {
	for _, entry := range added {
		if err := p.conn.Export(nil, path, entry.iface); err != nil {
			slog.Warn("Rollback of interface failed.", "path", path, "iface", entry.iface, "err", err)
			continue
		}
		obj.caps &^= entry.cap
		delete(obj.ifaces, entry.iface)
	}
	if len(obj.ifaces) == 0 {
		if err := p.detachHelpers(path); err != nil {
			slog.Warn("Rollback of helper interfaces failed.", "path", path, "err", err)
		}
		delete(p.objects, path)
	}
}

// Unpublish detaches the interfaces of caps from path. Interfaces that are
// not attached are skipped, so Unpublish is idempotent. Any other failure
// stops the removal and is returned; the remaining interfaces stay live.
// Callers check Published to tell whether the object survived an error.
func (p *Publisher) Unpublish(ctx context.Context, path dbus.ObjectPath, caps Capability) (err error) {
	_, span := p.tracer.Start(ctx, "unpublish", trace.WithAttributes(
		attribute.String("path", string(path)),
		attribute.String("caps", caps.String()),
	))
	defer func() { endSpan(span, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	// Reverse table order: optional interfaces go first, base interfaces last.
	for i := len(capabilityTable) - 1; i >= 0; i-- {
		entry := capabilityTable[i]
		if !caps.Has(entry.cap) {
			continue
		}
		if err := p.detach(path, entry); err != nil {
			if errors.Is(err, ErrNotPublished) {
				continue
			}
			return err
		}
	}

	obj, ok := p.objects[path]
	if !ok {
		return nil
	}
	if len(obj.ifaces) == 0 {
		// With no capability left the object is gone, even if its helper
		// interfaces fail to detach.
		delete(p.objects, path)
		if err := p.detachHelpers(path); err != nil {
			return err
		}
		slog.Debug("Unpublished object.", "path", path)
		return nil
	}
	return p.exportHelpers(path, obj)
}

// Detach removes a single capability interface from path. It returns
// ErrNotPublished when the interface is not attached there.
func (p *Publisher) Detach(path dbus.ObjectPath, c Capability) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, entry := range capabilityTable {
		if entry.cap == c {
			return p.detach(path, entry)
		}
	}
	return fmt.Errorf("detach %s at %s: not a single capability", c, path)
}

func (p *Publisher) detach(path dbus.ObjectPath, entry capabilityEntry) error {
	obj, ok := p.objects[path]
	if !ok || !obj.caps.Has(entry.cap) {
		return fmt.Errorf("detach %s at %s: %w", entry.iface, path, ErrNotPublished)
	}
	if err := p.conn.Export(nil, path, entry.iface); err != nil {
		return fmt.Errorf("unpublish %s at %s: %w", entry.iface, path, err)
	}
	obj.caps &^= entry.cap
	delete(obj.ifaces, entry.iface)
	return nil
}

// Refresh pushes the adapters' current property values to the bus,
// emitting change signals for the properties that changed. Read-only
// properties are updated too, and no property callback runs, so a refresh
// never queues actions.
func (p *Publisher) Refresh(ctx context.Context, path dbus.ObjectPath) (err error) {
	_, span := p.tracer.Start(ctx, "refresh", trace.WithAttributes(attribute.String("path", string(path))))
	defer func() { endSpan(span, err) }()

	p.mu.Lock()
	defer p.mu.Unlock()

	obj, ok := p.objects[path]
	if !ok || obj.props == nil {
		return fmt.Errorf("refresh %s: %w", path, ErrNotPublished)
	}
	for _, name := range sortedKeys(obj.ifaces) {
		props := obj.ifaces[name].Properties()
		for _, key := range sortedKeys(props) {
			if err := obj.props.Update(name, key, props[key].Value); err != nil {
				return fmt.Errorf("refresh %s.%s at %s: %w", name, key, path, err)
			}
		}
	}
	return nil
}

// Published returns the capabilities live at path.
func (p *Publisher) Published(path dbus.ObjectPath) Capability {
	p.mu.Lock()
	defer p.mu.Unlock()
	if obj, ok := p.objects[path]; ok {
		return obj.caps
	}
	return 0
}

// Paths returns every path with at least one live interface, sorted.
func (p *Publisher) Paths() []dbus.ObjectPath {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]dbus.ObjectPath, 0, len(p.objects))
	for path := range p.objects {
		out = append(out, path)
	}
	slices.SortFunc(out, comparePaths)
	return out
}

// exportHelpers (re)exports org.freedesktop.DBus.Properties and
// org.freedesktop.DBus.Introspectable for the interfaces live at path.
func (p *Publisher) exportHelpers(path dbus.ObjectPath, obj *object) error {
	props := make(prop.Map, len(obj.ifaces))
	for name, iface := range obj.ifaces {
		if m := iface.Properties(); len(m) > 0 {
			props[name] = m
		}
	}
	setter, err := p.conn.ExportProperties(path, props)
	if err != nil {
		return fmt.Errorf("publish properties at %s: %w", path, err)
	}
	obj.props = setter
	if err := p.conn.Export(introspectable{p: p, path: path}, path, bus.IntrospectableInterface); err != nil {
		return fmt.Errorf("publish introspection at %s: %w", path, err)
	}
	return nil
}

func (p *Publisher) detachHelpers(path dbus.ObjectPath) error {
	var errs []error
	for _, iface := range []string{bus.PropertiesInterface, bus.IntrospectableInterface} {
		if err := p.conn.Export(nil, path, iface); err != nil {
			errs = append(errs, fmt.Errorf("unpublish %s at %s: %w", iface, path, err))
		}
	}
	return errors.Join(errs...)
}

// node builds the introspection data of path. Children are the live
// objects directly below it. Callers hold p.mu.
func (p *Publisher) node(path dbus.ObjectPath) *introspect.Node {
	n := &introspect.Node{
		Name:       string(path),
		Interfaces: []introspect.Interface{introspect.IntrospectData, prop.IntrospectData},
	}
	if obj, ok := p.objects[path]; ok {
		for _, name := range sortedKeys(obj.ifaces) {
			iface := obj.ifaces[name]
			n.Interfaces = append(n.Interfaces, introspect.Interface{
				Name:       name,
				Methods:    introspect.Methods(iface),
				Properties: propertyIntrospection(iface.Properties()),
			})
		}
	}
	prefix := string(path) + "/"
	for child := range p.objects {
		rest, ok := strings.CutPrefix(string(child), prefix)
		if ok && rest != "" && !strings.Contains(rest, "/") {
			n.Children = append(n.Children, introspect.Node{Name: rest})
		}
	}
	slices.SortFunc(n.Children, func(a, b introspect.Node) int {
		return comparePaths(dbus.ObjectPath(a.Name), dbus.ObjectPath(b.Name))
	})
	return n
}

func propertyIntrospection(props map[string]*prop.Prop) []introspect.Property {
	out := make([]introspect.Property, 0, len(props))
	for _, name := range sortedKeys(props) {
		access := "read"
		if props[name].Writable {
			access = "readwrite"
		}
		out = append(out, introspect.Property{
			Name:   name,
			Type:   dbus.SignatureOf(props[name].Value).String(),
			Access: access,
		})
	}
	return out
}

// introspectable answers Introspect from the publisher's live state, so
// collection roots list children added after they were published.
type introspectable struct {
	p    *Publisher
	path dbus.ObjectPath
}

func (i introspectable) Introspect() (string, *dbus.Error) {
	i.p.mu.Lock()
	n := i.p.node(i.path)
	i.p.mu.Unlock()
	data, err := xml.Marshal(n)
	if err != nil {
		return "", dbus.MakeFailedError(err)
	}
	return introspect.IntrospectDeclarationString + string(data), nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
