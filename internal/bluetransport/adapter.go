package bluetransport

import (
	"fmt"

	"github.com/muka/go-bluetooth/api"
	gobtadapter "github.com/muka/go-bluetooth/bluez/profile/adapter"
)

// AdapterHandle wraps a BlueZ adapter object for property access and
// device enumeration over D-Bus.
type AdapterHandle struct {
	id  string
	raw *gobtadapter.Adapter1
}

// ListAdapters enumerates the host's Bluetooth adapters.
func ListAdapters() ([]AdapterHandle, error) {
	ids, err := gobtadapter.GetAdapterIDs()
	if err != nil {
		return nil, fmt.Errorf("bluetransport: list adapters: %w", err)
	}
	out := make([]AdapterHandle, 0, len(ids))
	for _, id := range ids {
		a, err := gobtadapter.GetAdapter(id)
		if err != nil {
			continue
		}
		out = append(out, AdapterHandle{id: id, raw: a})
	}
	return out, nil
}

// OpenAdapter resolves a single adapter by its hciN id.
func OpenAdapter(id string) (AdapterHandle, error) {
	a, err := gobtadapter.GetAdapter(id)
	if err != nil {
		return AdapterHandle{}, fmt.Errorf("bluetransport: open adapter %s: %w", id, err)
	}
	return AdapterHandle{id: id, raw: a}, nil
}

// ID returns the adapter's hciN identifier.
func (a AdapterHandle) ID() string { return a.id }

// Address returns the adapter's Bluetooth MAC as the colon-separated hex
// string reported by BlueZ.
func (a AdapterHandle) Address() (string, error) {
	return a.raw.GetAddress()
}

func (a AdapterHandle) SetPowered(on bool) error             { return a.raw.SetPowered(on) }
func (a AdapterHandle) SetPairable(on bool) error             { return a.raw.SetPairable(on) }
func (a AdapterHandle) SetPairableTimeout(seconds uint32) error {
	return a.raw.SetPairableTimeout(seconds)
}
func (a AdapterHandle) SetDiscoverable(on bool) error { return a.raw.SetDiscoverable(on) }
func (a AdapterHandle) SetDiscoverableTimeout(seconds uint32) error {
	return a.raw.SetDiscoverableTimeout(seconds)
}
func (a AdapterHandle) SetAlias(alias string) error { return a.raw.SetAlias(alias) }

// SetClass writes the device class (e.g. "0x002508" for Gamepad). This
// MUST be called after SetDiscoverable — BlueZ silently reverts an
// earlier write.
func (a AdapterHandle) SetClass(class string) error {
	return api.SetDeviceClass(a.id, class)
}

// FindPeersWithAlias returns the MAC addresses of known remote devices
// whose BlueZ alias/name matches name (used to discover a "Nintendo
// Switch" peer for reconnection candidates).
func (a AdapterHandle) FindPeersWithAlias(name string) ([]string, error) {
	devices, err := a.raw.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("bluetransport: list devices: %w", err)
	}
	var matches []string
	for _, dev := range devices {
		devName, err := dev.GetName()
		if err != nil || devName != name {
			continue
		}
		addr, err := dev.GetAddress()
		if err != nil {
			continue
		}
		matches = append(matches, addr)
	}
	return matches, nil
}

// ConnectedPeers returns the addresses of currently-connected remote
// devices, used by the reset watchdog to detect stale peers.
func (a AdapterHandle) ConnectedPeers() ([]string, error) {
	devices, err := a.raw.GetDevices()
	if err != nil {
		return nil, fmt.Errorf("bluetransport: list devices: %w", err)
	}
	var connected []string
	for _, dev := range devices {
		ok, err := dev.GetConnected()
		if err == nil && ok {
			addr, err := dev.GetAddress()
			if err == nil {
				connected = append(connected, addr)
			}
		}
	}
	return connected, nil
}

// RemoveDevice forgets a cached BlueZ device object by address, used by
// the connection-reset watchdog to drop a peer that connected then
// disconnected twice without completing pairing.
func (a AdapterHandle) RemoveDevice(address string) error {
	devices, err := a.raw.GetDevices()
	if err != nil {
		return fmt.Errorf("bluetransport: list devices: %w", err)
	}
	for _, dev := range devices {
		addr, err := dev.GetAddress()
		if err == nil && addr == address {
			return a.raw.RemoveDevice(dev.Path())
		}
	}
	return nil
}
