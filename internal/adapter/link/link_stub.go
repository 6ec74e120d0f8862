//go:build !linux

package link

import (
	"context"

	"netbus"
)

// Devices reports no devices on platforms without netlink.
func (s *Source) Devices(_ context.Context) ([]netbus.Device, error) {
	return nil, nil
}

// Watch never reports a change; the channel closes when ctx is done.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	out := make(chan struct{})
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}
