// Package controllerprofile registers the controller's SDP record and
// configures the adapter's power, pairable, discoverable-timeout and alias
// settings before the server starts advertising. It defines the Gamepad
// device class value but does not write it; the Server does that once the
// adapter is discoverable.
package controllerprofile

import (
	_ "embed"
	"fmt"

	"github.com/godbus/dbus/v5"
	"github.com/muka/go-bluetooth/bluez/profile/profile"

	"github.com/Brikwerk/nxbt/internal/bluetransport"
	"github.com/Brikwerk/nxbt/internal/protocol"
)

//go:embed switch-controller.xml
var sdpRecord string

const (
	// GamepadClass is the BlueZ device class value for "gamepad".
	GamepadClass = "0x002508"

	// SDPUUID is the controller profile's SDP service UUID.
	SDPUUID = "00001000-0000-1000-8000-00805f9b34fb"

	// SDPRecordPath is the D-Bus object path the profile is registered
	// under.
	SDPRecordPath = "/nxbt/controller"

	// DiscoverableTimeoutSeconds is how long the adapter stays
	// discoverable once advertising starts.
	DiscoverableTimeoutSeconds = 180
)

// Alias returns the BlueZ device alias the Switch shows to the user for
// kind.
func Alias(kind protocol.Kind) string {
	return kind.String()
}

var errProfileAlreadyRegistered = fmt.Errorf("controllerprofile: profile already registered")

// Setup configures adapter as the specified controller kind and registers
// the controller SDP record. It is idempotent: a DBus "already exists"
// error from RegisterProfile is swallowed.
func Setup(adapter bluetransport.AdapterHandle, kind protocol.Kind) error {
	if err := adapter.SetPowered(true); err != nil {
		return fmt.Errorf("controllerprofile: set powered: %w", err)
	}
	if err := adapter.SetPairable(true); err != nil {
		return fmt.Errorf("controllerprofile: set pairable: %w", err)
	}
	if err := adapter.SetPairableTimeout(0); err != nil {
		return fmt.Errorf("controllerprofile: set pairable timeout: %w", err)
	}
	if err := adapter.SetDiscoverableTimeout(DiscoverableTimeoutSeconds); err != nil {
		return fmt.Errorf("controllerprofile: set discoverable timeout: %w", err)
	}
	if err := adapter.SetAlias(Alias(kind)); err != nil {
		return fmt.Errorf("controllerprofile: set alias: %w", err)
	}

	if err := registerSDPRecord(); err != nil && err != errProfileAlreadyRegistered {
		return fmt.Errorf("controllerprofile: register sdp record: %w", err)
	}

	// Device class is deliberately NOT set here: BlueZ silently reverts a
	// class written before the adapter is discoverable. The Server sets it
	// after SetDiscoverable(true), and the connection watchdog re-asserts
	// it alongside the other advertising properties.
	return nil
}

func registerSDPRecord() error {
	mgr, err := profile.NewProfileManager1()
	if err != nil {
		return fmt.Errorf("profile manager: %w", err)
	}

	opts := map[string]dbus.Variant{
		"ServiceRecord":         dbus.MakeVariant(sdpRecord),
		"Role":                  dbus.MakeVariant("server"),
		"RequireAuthentication": dbus.MakeVariant(false),
		"RequireAuthorization":  dbus.MakeVariant(false),
		"AutoConnect":           dbus.MakeVariant(true),
	}

	err = mgr.RegisterProfile(dbus.ObjectPath(SDPRecordPath), SDPUUID, opts)
	if err != nil {
		if dbusErr, ok := err.(dbus.Error); ok && dbusErr.Name == "org.bluez.Error.AlreadyExists" {
			return errProfileAlreadyRegistered
		}
		return err
	}
	return nil
}
