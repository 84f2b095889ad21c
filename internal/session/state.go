// SPDX-License-Identifier: MIT
package session

import "bassmonitor/internal/buttplug"

// Phase is the lifecycle state of a Session.
type Phase uint8

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Scanning
	Active
	Terminated
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Scanning:
		return "scanning"
	case Active:
		return "active"
	case Terminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// canAdvance reports whether from -> to is a legal transition. Phases only
// move forward and every phase may jump to Terminated, which is final.
func canAdvance(from, to Phase) bool {
	if from == Terminated {
		return false
	}
	return to == Terminated || to == from+1
}

// Binding is the device a session drives: either Unbound or Bound.
type Binding interface {
	isBinding()
}

// Unbound means no device is driven; command ticks are no-ops.
type Unbound struct{}

// Bound holds the single device receiving vibrate commands.
type Bound struct {
	Device buttplug.Device
}

func (Unbound) isBinding() {}
func (Bound) isBinding()   {}

// bindNewest binds d when it can vibrate, replacing any earlier device.
// Devices without vibration leave b unchanged and report false.
func bindNewest(b Binding, d buttplug.Device) (Binding, bool) {
	if !d.CanVibrate() {
		return b, false
	}
	return Bound{Device: d}, true
}

// unbindRemoved drops the binding when d is the bound device.
func unbindRemoved(b Binding, d buttplug.Device) (Binding, bool) {
	if bound, ok := b.(Bound); ok && bound.Device.Same(d) {
		return Unbound{}, true
	}
	return b, false
}
