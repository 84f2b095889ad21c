// SPDX-License-Identifier: MIT
package audio

import "time"

// Device is a PortAudio device as shown to users.
type Device struct {
	ID                      int
	Name                    string
	MaxInputChannels        int
	MaxOutputChannels       int
	DefaultSampleRate       float64
	DefaultLowInputLatency  time.Duration
	DefaultHighInputLatency time.Duration
}

// Kind describes the device direction.
func (d Device) Kind() string {
	switch {
	case d.MaxInputChannels > 0 && d.MaxOutputChannels > 0:
		return "Input/Output"
	case d.MaxInputChannels > 0:
		return "Input"
	case d.MaxOutputChannels > 0:
		return "Output"
	default:
		return "Unavailable"
	}
}

// HostDevices returns all available audio devices. PortAudio must be
// initialized.
func HostDevices() ([]Device, error) {
	infos, err := paDevicesFunc()
	if err != nil {
		return nil, err
	}

	devices := make([]Device, len(infos))
	for i, info := range infos {
		devices[i] = Device{
			ID:                      i,
			Name:                    info.Name,
			MaxInputChannels:        info.MaxInputChannels,
			MaxOutputChannels:       info.MaxOutputChannels,
			DefaultSampleRate:       info.DefaultSampleRate,
			DefaultLowInputLatency:  info.DefaultLowInputLatency,
			DefaultHighInputLatency: info.DefaultHighInputLatency,
		}
	}
	return devices, nil
}
