// Package tree keeps the bus object tree in step with the in-memory network
// state. Devices are published under DevicesRoot/<n> and connections under
// ConnectionsRoot/<n>; each root carries a collection interface listing its
// children.
//
// Every Tree operation runs under a single mutex that guards the registry
// and the choice of paths. Publication happens inside the same critical
// section, so a lookup that decides what to unpublish and the registry update
// that records it can never interleave with another operation on the same
// identity.
package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"netbus"
	"netbus/internal/action"
	"netbus/internal/bus"
	"netbus/internal/check"
	"netbus/internal/interfaces"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const (
	DevicesRoot     dbus.ObjectPath = "/org/opensuse/Agama/Network1/devices"
	ConnectionsRoot dbus.ObjectPath = "/org/opensuse/Agama/Network1/connections"
)

// ErrUnknownConnection is returned when an operation names a connection
// that is not in the tree.
var ErrUnknownConnection = errors.New("unknown connection")

// Tree owns the object registry and drives the publisher.
type Tree struct {
	pub     *Publisher
	actions action.Sender
	tracer  trace.Tracer

	devicesRoot     dbus.ObjectPath
	connectionsRoot dbus.ObjectPath

	mu    sync.Mutex
	reg   *Registry
	conns map[uuid.UUID]*interfaces.Shared
}

// Option configures a Tree.
type Option func(*Tree)

// WithTracer records spans for every tree operation.
func WithTracer(tracer trace.Tracer) Option {
	return func(t *Tree) {
		t.tracer = tracer
	}
}

// WithRoots overrides the collection roots.
func WithRoots(devices, connections dbus.ObjectPath) Option {
	return func(t *Tree) {
		t.devicesRoot = devices
		t.connectionsRoot = connections
	}
}

// New creates an empty tree publishing on conn. actions is only handed to
// the adapters it constructs.
func New(conn bus.Conn, actions action.Sender, opts ...Option) *Tree {
	check.Assert(conn != nil, "tree.New: conn must not be nil")
	check.Assert(actions != nil, "tree.New: actions must not be nil")

	t := &Tree{
		actions:         actions,
		tracer:          noop.NewTracerProvider().Tracer("netbus/tree"),
		devicesRoot:     DevicesRoot,
		connectionsRoot: ConnectionsRoot,
		reg:             NewRegistry(),
		conns:           make(map[uuid.UUID]*interfaces.Shared),
	}
	for _, opt := range opts {
		opt(t)
	}
	check.Assert(t.devicesRoot.IsValid() && t.connectionsRoot.IsValid(), "tree.New: roots must be valid object paths")
	check.Assert(t.devicesRoot != t.connectionsRoot, "tree.New: roots must differ")
	t.pub = NewPublisher(conn, t.tracer)
	return t
}

// Publisher exposes the publication layer, mainly for inspection.
func (t *Tree) Publisher() *Publisher {
	return t.pub
}

// SetDevices replaces every published device with devices. Stale objects
// are unpublished best-effort: a failure is reported in the returned error
// but does not stop the new set from being published, and the failed entry
// stays registered because its object is still live.
func (t *Tree) SetDevices(ctx context.Context, devices []netbus.Device) (err error) {
	ctx, span := t.tracer.Start(ctx, "tree.SetDevices", trace.WithAttributes(attribute.Int("devices", len(devices))))
	defer func() { endSpan(span, err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.checkInvariants("SetDevices")

	cleanupErr := t.removeDevices(ctx)
	if err := t.addDevices(ctx, devices); err != nil {
		return errors.Join(cleanupErr, err)
	}
	return cleanupErr
}

// AddDevices publishes devices without touching the ones already known and
// republishes the devices collection.
func (t *Tree) AddDevices(ctx context.Context, devices []netbus.Device) (err error) {
	ctx, span := t.tracer.Start(ctx, "tree.AddDevices", trace.WithAttributes(attribute.Int("devices", len(devices))))
	defer func() { endSpan(span, err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.checkInvariants("AddDevices")

	return t.addDevices(ctx, devices)
}

// SetConnections replaces every published connection with conns, with the
// same best-effort cleanup as SetDevices.
func (t *Tree) SetConnections(ctx context.Context, conns []netbus.Connection) (err error) {
	ctx, span := t.tracer.Start(ctx, "tree.SetConnections", trace.WithAttributes(attribute.Int("connections", len(conns))))
	defer func() { endSpan(span, err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.checkInvariants("SetConnections")

	cleanupErr := t.removeConnections(ctx)
	for _, conn := range conns {
		if err := t.addConnection(ctx, conn); err != nil {
			return errors.Join(cleanupErr, err)
		}
	}
	if err := t.publishConnectionsRoot(ctx); err != nil {
		return errors.Join(cleanupErr, err)
	}
	return cleanupErr
}

// AddConnection publishes one connection at the lowest free index under
// the connections root. Paths of other connections are left untouched. A
// connection whose UUID is already published is republished at its
// current path.
func (t *Tree) AddConnection(ctx context.Context, conn netbus.Connection) (err error) {
	ctx, span := t.tracer.Start(ctx, "tree.AddConnection", trace.WithAttributes(attribute.String("uuid", conn.UUID.String())))
	defer func() { endSpan(span, err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.checkInvariants("AddConnection")

	if err := t.addConnection(ctx, conn); err != nil {
		return err
	}
	if t.pub.Published(t.connectionsRoot) == 0 {
		return t.publishConnectionsRoot(ctx)
	}
	return nil
}

// RemoveConnection unpublishes a connection. Removing a UUID that is not in
// the tree succeeds without doing anything. When every capability interface
// is detached but the Properties or Introspectable helpers are not, the
// connection is still deregistered and the error returned.
func (t *Tree) RemoveConnection(ctx context.Context, id uuid.UUID) (err error) {
	ctx, span := t.tracer.Start(ctx, "tree.RemoveConnection", trace.WithAttributes(attribute.String("uuid", id.String())))
	defer func() { endSpan(span, err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.checkInvariants("RemoveConnection")

	return t.removeConnection(ctx, id)
}

// UpdateConnection refreshes the model behind a published connection.
// Property changes go out as change signals; the object is not
// republished unless the kind changed and the set of interfaces with it.
func (t *Tree) UpdateConnection(ctx context.Context, conn netbus.Connection) (err error) {
	ctx, span := t.tracer.Start(ctx, "tree.UpdateConnection", trace.WithAttributes(attribute.String("uuid", conn.UUID.String())))
	defer func() { endSpan(span, err) }()

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.checkInvariants("UpdateConnection")

	path, ok := t.reg.ConnectionPath(conn.UUID)
	if !ok {
		return fmt.Errorf("update connection %s: %w", conn.UUID, ErrUnknownConnection)
	}
	if t.pub.Published(path) != ConnectionObject(conn.Kind) {
		return t.addConnection(ctx, conn)
	}
	t.conns[conn.UUID].Set(conn)
	if err := t.pub.Refresh(ctx, path); err != nil {
		return fmt.Errorf("update connection %s: %w", conn.UUID, err)
	}
	return nil
}

// DevicesPaths returns the paths of every published device.
func (t *Tree) DevicesPaths() []dbus.ObjectPath {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reg.DevicesPaths()
}

// ConnectionsPaths returns the paths of every published connection.
func (t *Tree) ConnectionsPaths() []dbus.ObjectPath {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reg.ConnectionsPaths()
}

func (t *Tree) DevicePath(name string) (dbus.ObjectPath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reg.DevicePath(name)
}

func (t *Tree) ConnectionPath(id uuid.UUID) (dbus.ObjectPath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reg.ConnectionPath(id)
}

// ConnectionPathByID resolves a connection by its human-readable name.
func (t *Tree) ConnectionPathByID(id string) (dbus.ObjectPath, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, u := range t.reg.ConnectionUUIDs() {
		if t.conns[u].Get().ID == id {
			return t.reg.ConnectionPath(u)
		}
	}
	return "", false
}

// Verify checks that the registry and the published objects correspond
// one to one.
func (t *Tree) Verify() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.verify()
}

func (t *Tree) verify() error {
	errs := []error{t.reg.Verify(t.devicesRoot, t.connectionsRoot)}
	registered := make(map[dbus.ObjectPath]struct{})
	for _, p := range t.reg.DevicesPaths() {
		registered[p] = struct{}{}
		if !t.pub.Published(p).Has(DeviceObject) {
			errs = append(errs, fmt.Errorf("device path %s is registered but not published", p))
		}
	}
	for _, u := range t.reg.ConnectionUUIDs() {
		p, _ := t.reg.ConnectionPath(u)
		registered[p] = struct{}{}
		if !t.pub.Published(p).Has(CapConnection) {
			errs = append(errs, fmt.Errorf("connection path %s is registered but not published", p))
		}
		if _, ok := t.conns[u]; !ok {
			errs = append(errs, fmt.Errorf("connection %s has no model", u))
		}
	}
	for _, p := range t.pub.Paths() {
		if p == t.devicesRoot || p == t.connectionsRoot {
			continue
		}
		if _, ok := registered[p]; !ok {
			errs = append(errs, fmt.Errorf("path %s is published but not registered", p))
		}
	}
	return errors.Join(errs...)
}

func (t *Tree) checkInvariants(op string) {
	check.Invariant("tree."+op, t.verify())
}

func (t *Tree) deps() objectDeps {
	return objectDeps{paths: pathSource{t}, actions: t.actions}
}

func (t *Tree) removeDevices(ctx context.Context) error {
	var errs []error
	for _, name := range t.reg.DeviceNames() {
		path, _ := t.reg.DevicePath(name)
		if err := t.pub.Unpublish(ctx, path, DeviceObject); err != nil {
			slog.Warn("Failed to unpublish stale device.", "device", name, "path", path, "err", err)
			errs = append(errs, fmt.Errorf("unpublish device %s: %w", name, err))
			if t.pub.Published(path) != 0 {
				continue
			}
		}
		t.reg.DeregisterDevice(name)
	}
	return errors.Join(errs...)
}

func (t *Tree) addDevices(ctx context.Context, devices []netbus.Device) error {
	for _, dev := range devices {
		path, ok := t.reg.DevicePath(dev.Name)
		if !ok {
			path = nextFreePath(t.devicesRoot, t.reg.DevicesPaths())
		}
		deps := t.deps()
		deps.device = dev
		if err := t.pub.Publish(ctx, path, DeviceObject.build(deps)...); err != nil {
			return fmt.Errorf("publish device %s: %w", dev.Name, err)
		}
		t.reg.RegisterDevice(dev.Name, path)
	}
	if err := t.pub.Publish(ctx, t.devicesRoot, CapDevices.build(t.deps())...); err != nil {
		return fmt.Errorf("publish devices collection: %w", err)
	}
	return nil
}

func (t *Tree) removeConnections(ctx context.Context) error {
	var errs []error
	for _, id := range t.reg.ConnectionUUIDs() {
		if err := t.removeConnection(ctx, id); err != nil {
			slog.Warn("Failed to unpublish stale connection.", "uuid", id, "err", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *Tree) addConnection(ctx context.Context, conn netbus.Connection) error {
	if err := conn.Validate(); err != nil {
		return fmt.Errorf("add connection: %w", err)
	}

	caps := ConnectionObject(conn.Kind)
	path, existing := t.reg.ConnectionPath(conn.UUID)
	if !existing {
		path = nextFreePath(t.connectionsRoot, t.reg.ConnectionsPaths())
	}

	shared := interfaces.NewShared(conn)
	deps := t.deps()
	deps.shared = shared
	if err := t.pub.Publish(ctx, path, caps.build(deps)...); err != nil {
		return fmt.Errorf("publish connection %s: %w", conn.UUID, err)
	}
	if existing {
		// Drop interfaces the previous variant had and this one lacks.
		if extra := t.pub.Published(path) &^ caps; extra != 0 {
			if err := t.pub.Unpublish(ctx, path, extra); err != nil {
				return fmt.Errorf("republish connection %s: %w", conn.UUID, err)
			}
		}
	}
	t.reg.RegisterConnection(conn.UUID, path)
	t.conns[conn.UUID] = shared
	slog.Debug("Connection added to tree.", "uuid", conn.UUID, "id", conn.ID, "path", path)
	return nil
}

func (t *Tree) removeConnection(ctx context.Context, id uuid.UUID) error {
	path, ok := t.reg.ConnectionPath(id)
	if !ok {
		return nil
	}
	err := t.pub.Unpublish(ctx, path, AnyConnectionObject)
	if err != nil {
		err = fmt.Errorf("remove connection %s: %w", id, err)
		if t.pub.Published(path) != 0 {
			return err
		}
		// Only helper interfaces failed to detach; the object itself is gone.
		slog.Warn("Connection removed with leftover helper interfaces.", "uuid", id, "path", path, "err", err)
	}
	t.reg.DeregisterConnection(id)
	delete(t.conns, id)
	slog.Debug("Connection removed from tree.", "uuid", id, "path", path)
	return err
}

func (t *Tree) publishConnectionsRoot(ctx context.Context) error {
	if err := t.pub.Publish(ctx, t.connectionsRoot, CapConnections.build(t.deps())...); err != nil {
		return fmt.Errorf("publish connections collection: %w", err)
	}
	return nil
}

// pathSource serves collection queries from bus calls. It takes the tree
// lock, so it must not be used by code already holding it.
type pathSource struct {
	t *Tree
}

func (s pathSource) DevicesPaths() []dbus.ObjectPath     { return s.t.DevicesPaths() }
func (s pathSource) ConnectionsPaths() []dbus.ObjectPath { return s.t.ConnectionsPaths() }
func (s pathSource) ConnectionPathByID(id string) (dbus.ObjectPath, bool) {
	return s.t.ConnectionPathByID(id)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
