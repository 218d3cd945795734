package identity

import (
	"strings"

	"vauchi/go-core/pkg/models"
)

// AddDevice derives a device at the next free index, appends it, and
// re-signs the registry with an incremented version.
func (id *Identity) AddDevice(name string) (models.Device, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Device{}, ErrEmptyDeviceName
	}
	if len(id.Registry.Devices) >= MaxDevices {
		return models.Device{}, ErrMaxDevicesReached
	}
	for _, d := range id.Registry.Devices {
		if d.Name == name {
			return models.Device{}, ErrDeviceAlreadyExists
		}
	}

	index := 0
	for _, d := range id.Registry.Devices {
		if d.Index >= index {
			index = d.Index + 1
		}
	}
	device, err := id.deriveDevice(index, name)
	if err != nil {
		return models.Device{}, err
	}
	id.Registry.Devices = append(id.Registry.Devices, device)
	id.Registry.Version++
	id.signRegistry()
	return device, nil
}

// RevokeDevice marks a device inactive and re-signs the registry. The last
// active device cannot be revoked.
func (id *Identity) RevokeDevice(deviceID string) error {
	target := -1
	for i, d := range id.Registry.Devices {
		if d.DeviceID == deviceID {
			target = i
			break
		}
	}
	if target < 0 {
		return ErrDeviceNotFound
	}
	if id.Registry.Devices[target].Active && id.Registry.ActiveCount() <= 1 {
		return ErrCannotRemoveLastDevice
	}
	id.Registry.Devices[target].Active = false
	id.Registry.Version++
	id.signRegistry()
	return nil
}

// ActiveDevices returns the active subset of the registry.
func (id *Identity) ActiveDevices() []models.Device {
	out := make([]models.Device, 0, len(id.Registry.Devices))
	for _, d := range id.Registry.Devices {
		if d.Active {
			out = append(out, d)
		}
	}
	return out
}
