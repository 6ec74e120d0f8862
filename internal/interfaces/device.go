package interfaces

import (
	"slices"

	"netbus"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/prop"
)

// Device is the base view of a network interface.
type Device struct {
	dev netbus.Device
}

func NewDevice(dev netbus.Device) *Device {
	dev.Addresses = slices.Clone(dev.Addresses)
	return &Device{dev: dev}
}

func (d *Device) Name() string { return DeviceInterface }

func (d *Device) Properties() map[string]*prop.Prop {
	addrs := make([]string, 0, len(d.dev.Addresses))
	for _, a := range d.dev.Addresses {
		addrs = append(addrs, a.String())
	}
	return map[string]*prop.Prop{
		"Name":            readOnly(d.dev.Name),
		"Type":            readOnly(uint8(d.dev.Kind)),
		"HardwareAddress": readOnly(d.dev.HardwareAddr),
		"MTU":             readOnly(uint32(d.dev.MTU)),
		"Up":              readOnly(d.dev.Up),
		"Addresses":       readOnly(addrs),
	}
}

// Devices is the collection view published at the devices root.
type Devices struct {
	paths PathSource
}

func NewDevices(paths PathSource) *Devices {
	return &Devices{paths: paths}
}

func (d *Devices) Name() string { return DevicesInterface }

func (d *Devices) Properties() map[string]*prop.Prop { return nil }

// GetDevices returns the object paths of every known device.
func (d *Devices) GetDevices() ([]dbus.ObjectPath, *dbus.Error) {
	return d.paths.DevicesPaths(), nil
}
