// SPDX-License-Identifier: MIT
package buttplug

import (
	"encoding/json"
	"fmt"
)

const actuatorVibrate = "Vibrate"

// Device is an actuator reported by the server.
type Device struct {
	Index uint32
	Name  string

	// Vibrators lists the actuator indices that accept a vibration speed.
	Vibrators []uint32

	// Legacy marks devices that only advertise VibrateCmd.
	Legacy bool
}

// CanVibrate reports whether the device accepts vibrate commands.
func (d Device) CanVibrate() bool { return len(d.Vibrators) > 0 }

// Same reports whether d and other refer to the same server-side device.
func (d Device) Same(other Device) bool { return d.Index == other.Index }

func (d Device) String() string {
	return fmt.Sprintf("%s (#%d)", d.Name, d.Index)
}

func parseDevice(info deviceInfo) Device {
	d := Device{Index: info.DeviceIndex, Name: info.DeviceName}

	if raw, ok := info.DeviceMessages[typeScalarCmd]; ok {
		var attrs []scalarAttributes
		if err := json.Unmarshal(raw, &attrs); err == nil {
			for i, a := range attrs {
				if a.ActuatorType == actuatorVibrate {
					d.Vibrators = append(d.Vibrators, uint32(i))
				}
			}
		}
	}
	if d.CanVibrate() {
		return d
	}

	if raw, ok := info.DeviceMessages[typeVibrateCmd]; ok {
		var attrs vibrateAttributes
		if err := json.Unmarshal(raw, &attrs); err == nil {
			for i := range attrs.FeatureCount {
				d.Vibrators = append(d.Vibrators, i)
			}
			d.Legacy = d.CanVibrate()
		}
	}
	return d
}

// Event is a server notification delivered through Client.Events.
type Event interface {
	eventName() string
}

// ServerDisconnect is sent when the server closes the connection cleanly.
type ServerDisconnect struct{}

// DeviceAdded announces a newly connected device.
type DeviceAdded struct{ Device Device }

// DeviceRemoved announces that a device went away.
type DeviceRemoved struct{ Device Device }

// ScanningFinished is sent when the server stops scanning on its own.
type ScanningFinished struct{}

// Unhandled carries any other server message.
type Unhandled struct{ Message Message }

func (ServerDisconnect) eventName() string { return "ServerDisconnect" }
func (e DeviceAdded) eventName() string    { return typeDeviceAdded }
func (e DeviceRemoved) eventName() string  { return typeDeviceRemoved }
func (ScanningFinished) eventName() string { return typeScanningFinished }
func (e Unhandled) eventName() string      { return e.Message.Type }

// EventName returns a printable name for ev.
func EventName(ev Event) string { return ev.eventName() }
