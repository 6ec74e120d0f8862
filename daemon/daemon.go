// Package daemon wires the bus connection, the object tree, and the
// network system together and runs them until shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"netbus/config"
	"netbus/internal/action"
	"netbus/internal/adapter/link"
	"netbus/internal/adapter/sqlite"
	"netbus/internal/bus"
	"netbus/internal/system"
	"netbus/internal/tree"

	"github.com/cenkalti/backoff/v4"
	systemd "github.com/coreos/go-systemd/v22/daemon"
	"github.com/godbus/dbus/v5"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"
)

const (
	queueCapacity       = 64
	nameRequestMaxTime  = 30 * time.Second
	errNameAccessDenied = "org.freedesktop.DBus.Error.AccessDenied"
)

// ErrNameTaken is returned when another process owns the service name.
var ErrNameTaken = errors.New("bus name already owned")

// Run publishes the network state on the configured bus, requests the
// service name, and serves actions until ctx is cancelled.
func Run(ctx context.Context, cfg config.Config) error {
	conn, err := bus.Connect(cfg.Bus)
	if err != nil {
		return err
	}
	defer conn.Close()

	store, err := sqlite.Open(cfg.StatePath)
	if err != nil {
		return err
	}
	defer store.Close()

	queue := action.NewQueue(queueCapacity)
	defer queue.Close()

	tr := tree.New(bus.FromDBus(conn), queue, tree.WithTracer(otel.Tracer("netbus/tree")))
	links := link.New()
	sys := system.New(links, store, tr)

	slog.Info("Publishing network state.", "bus", cfg.Bus)
	if err := sys.Setup(ctx); err != nil {
		return fmt.Errorf("set up network system: %w", err)
	}
	if err := RequestName(ctx, conn, cfg.Service, newNameBackoff()); err != nil {
		return err
	}
	slog.Info("Service name acquired.", "name", cfg.Service)

	if _, err := systemd.SdNotify(false, systemd.SdNotifyReady); err != nil {
		slog.Error("Failed to notify systemd that the daemon is ready.", "err", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sys.Listen(ctx, queue.Receive()) })
	g.Go(func() error {
		<-ctx.Done()
		queue.Close()
		return nil
	})
	if cfg.WatchLinks {
		changes, err := links.Watch(ctx)
		if err != nil {
			slog.Warn("Link watch unavailable; devices will not refresh.", "err", err)
		} else {
			g.Go(func() error { return sys.WatchDevices(ctx, changes) })
		}
	}

	err = g.Wait()
	if _, nErr := systemd.SdNotify(false, systemd.SdNotifyStopping); nErr != nil {
		slog.Debug("Failed to notify systemd that the daemon is stopping.", "err", nErr)
	}
	return err
}

// NameRequester is the part of *dbus.Conn used to claim a service name.
type NameRequester interface {
	RequestName(name string, flags dbus.RequestNameFlags) (dbus.RequestNameReply, error)
}

// RequestName claims name, retrying while another owner may still be
// releasing it. Access denied by bus policy is not retried.
func RequestName(ctx context.Context, conn NameRequester, name string, b backoff.BackOff) error {
	err := backoff.Retry(func() error {
		reply, err := conn.RequestName(name, dbus.NameFlagDoNotQueue)
		if err != nil {
			if isAccessDenied(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		switch reply {
		case dbus.RequestNameReplyPrimaryOwner, dbus.RequestNameReplyAlreadyOwner:
			return nil
		default:
			slog.Debug("Service name busy, retrying.", "name", name, "reply", reply)
			return ErrNameTaken
		}
	}, backoff.WithContext(b, ctx))
	if err != nil {
		return fmt.Errorf("request name %s: %w", name, err)
	}
	return nil
}

func isAccessDenied(err error) bool {
	var dErr dbus.Error
	if errors.As(err, &dErr) {
		return dErr.Name == errNameAccessDenied
	}
	var dErrPtr *dbus.Error
	return errors.As(err, &dErrPtr) && dErrPtr.Name == errNameAccessDenied
}

func newNameBackoff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(100*time.Millisecond),
		backoff.WithMaxInterval(2*time.Second),
		backoff.WithMaxElapsedTime(nameRequestMaxTime),
	)
}
