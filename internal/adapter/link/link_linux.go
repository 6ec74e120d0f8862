//go:build linux

package link

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"os"
	"slices"

	"netbus"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
	"golang.zx2c4.com/wireguard/wgctrl"
)

// Devices lists every link with its addresses, ordered by interface index.
func (s *Source) Devices(_ context.Context) ([]netbus.Device, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}

	out := make([]netbus.Device, 0, len(links))
	for _, l := range links {
		dev, err := s.device(l)
		if err != nil {
			// The link went away between the listing and the address query.
			if errors.Is(err, unix.ENODEV) {
				continue
			}
			return nil, err
		}
		out = append(out, dev)
	}
	slices.SortFunc(out, func(a, b netbus.Device) int { return a.Index - b.Index })

	if s.wireguard {
		s.enrichWireGuard(out)
	}
	return out, nil
}

func (s *Source) device(l netlink.Link) (netbus.Device, error) {
	attrs := l.Attrs()
	dev := netbus.Device{
		Name:         attrs.Name,
		Index:        attrs.Index,
		HardwareAddr: attrs.HardwareAddr.String(),
		MTU:          attrs.MTU,
		Up:           attrs.RawFlags&unix.IFF_UP != 0,
	}
	loopback := attrs.RawFlags&unix.IFF_LOOPBACK != 0
	dev.Kind = classify(l.Type(), loopback, !loopback && s.isWireless(attrs.Name))

	addrs, err := netlink.AddrList(l, netlink.FAMILY_ALL)
	if err != nil {
		return netbus.Device{}, fmt.Errorf("list addresses of %s: %w", attrs.Name, err)
	}
	for _, a := range addrs {
		if a.IPNet == nil {
			continue
		}
		ip, ok := netip.AddrFromSlice(a.IPNet.IP)
		if !ok {
			continue
		}
		ones, _ := a.IPNet.Mask.Size()
		dev.Addresses = append(dev.Addresses, netip.PrefixFrom(ip.Unmap(), ones))
	}
	return dev, nil
}

// enrichWireGuard fills in key and port of WireGuard links. Failures are
// logged; the device is still reported.
func (s *Source) enrichWireGuard(devs []netbus.Device) {
	if !slices.ContainsFunc(devs, func(d netbus.Device) bool { return d.Kind == netbus.DeviceWireGuard }) {
		return
	}
	wg, err := wgctrl.New()
	if err != nil {
		slog.Warn("Failed to create wireguard client.", "err", err)
		return
	}
	defer wg.Close()

	for i := range devs {
		if devs[i].Kind != netbus.DeviceWireGuard {
			continue
		}
		wdev, err := wg.Device(devs[i].Name)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				slog.Warn("Failed to inspect wireguard device.", "device", devs[i].Name, "err", err)
			}
			continue
		}
		devs[i].WireGuardPublicKey = wdev.PublicKey.String()
		devs[i].WireGuardListenPort = wdev.ListenPort
	}
}

// Watch reports link and address changes on the returned channel until ctx
// is done. Bursts of kernel notifications are coalesced into one.
func (s *Source) Watch(ctx context.Context) (<-chan struct{}, error) {
	done := make(chan struct{})
	links := make(chan netlink.LinkUpdate, 16)
	addrs := make(chan netlink.AddrUpdate, 16)

	if err := netlink.LinkSubscribe(links, done); err != nil {
		close(done)
		return nil, fmt.Errorf("subscribe link updates: %w", err)
	}
	if err := netlink.AddrSubscribe(addrs, done); err != nil {
		close(done)
		return nil, fmt.Errorf("subscribe address updates: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-links:
				if !ok {
					return
				}
				slog.Debug("Link changed.", "device", u.Attrs().Name, "up", u.IfInfomsg.Flags&unix.IFF_UP != 0)
				signal(out)
			case u, ok := <-addrs:
				if !ok {
					return
				}
				slog.Debug("Address changed.", "addr", u.LinkAddress.String(), "new", u.NewAddr)
				signal(out)
			}
		}
	}()
	return out, nil
}
