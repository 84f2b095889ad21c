// SPDX-License-Identifier: MIT
package config

import "time"

// Defaults and limits for the monitor configuration.
const (
	DefaultLogLevel        = "info"
	DefaultDeviceID        = MinDeviceID // System default device
	DefaultSampleRate      = 44100
	DefaultFramesPerBuffer = 512
	DefaultChannels        = 2

	DefaultFFTSize        = 4096
	DefaultFFTWindow      = "rectangular"
	DefaultLowFreq        = 20.0
	DefaultHighFreq       = 50.0
	DefaultBassCutoff     = 0.3
	DefaultOverflowPolicy = "discard"

	DefaultServerAddress    = "ws://127.0.0.1:12345"
	DefaultClientName       = "bassmonitor"
	DefaultSendRate         = 20.0
	DefaultCommandTimeout   = 500 * time.Millisecond
	DefaultHandshakeTimeout = 5 * time.Second

	DefaultRecordingDir = "./recordings"

	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 100 * time.Millisecond
	DefaultWSAddress        = "127.0.0.1:8090"

	MinDeviceID     = -1     // -1 represents the system default device
	MinSampleRate   = 8000   // Hz
	MaxSampleRate   = 192000 // Hz
	MaxBufferFrames = 8192
	MinFFTSize      = 8
	MaxFFTSize      = 65536
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			OutputDevice:    DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			OutputChannels:  DefaultChannels,
		},
		Analysis: AnalysisConfig{
			FFTSize:        DefaultFFTSize,
			FFTWindow:      DefaultFFTWindow,
			LowFreq:        DefaultLowFreq,
			HighFreq:       DefaultHighFreq,
			BassCutoff:     DefaultBassCutoff,
			OverflowPolicy: DefaultOverflowPolicy,
		},
		Device: DeviceConfig{
			ServerAddress:    DefaultServerAddress,
			ClientName:       DefaultClientName,
			SendRate:         DefaultSendRate,
			CommandTimeout:   DefaultCommandTimeout,
			HandshakeTimeout: DefaultHandshakeTimeout,
		},
		Recording: RecordingConfig{
			OutputDir: DefaultRecordingDir,
		},
		Telemetry: TelemetryConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPSendInterval:  DefaultUDPSendInterval,
			WSAddress:        DefaultWSAddress,
		},
	}
}
