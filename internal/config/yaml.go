// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"bassmonitor/internal/analysis"
	"bassmonitor/internal/log"
	"bassmonitor/pkg/bitint"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // debug, info, warn, error
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Device    DeviceConfig    `yaml:"device"`
	Recording RecordingConfig `yaml:"recording"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// AudioConfig holds settings for the PortAudio duplex stream.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Hz.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low latency settings.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured and downmixed.
	OutputChannels  int     `yaml:"output_channels"`   // Pass-through channels, 0 disables output.
	GateThreshold   float64 `yaml:"gate_threshold"`    // Peak level below which blocks analyse as silence, 0 disables.
}

// AnalysisConfig holds the bass extractor settings.
type AnalysisConfig struct {
	FFTSize        int     `yaml:"fft_size"`        // Window capacity, a power of two.
	FFTWindow      string  `yaml:"fft_window"`      // rectangular, hann, hamming, blackman, ...
	LowFreq        float64 `yaml:"low_freq"`        // Hz.
	HighFreq       float64 `yaml:"high_freq"`       // Hz.
	BassCutoff     float64 `yaml:"bass_cutoff"`     // Peak to max ratio below which output is 0.
	OverflowPolicy string  `yaml:"overflow_policy"` // discard or carry.
}

// DeviceConfig holds the Buttplug server and command pacing settings.
type DeviceConfig struct {
	ServerAddress    string        `yaml:"server_address"`
	ClientName       string        `yaml:"client_name"`
	SendRate         float64       `yaml:"send_rate"`        // Commands per second.
	ChannelCapacity  int           `yaml:"channel_capacity"` // 0 derives it from send_rate.
	CommandTimeout   time.Duration `yaml:"command_timeout"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
}

// RecordingConfig holds settings for recording the input to WAV.
type RecordingConfig struct {
	Enabled   bool   `yaml:"enabled"`
	OutputDir string `yaml:"output_dir"`
}

// TelemetryConfig holds settings for publishing session status.
type TelemetryConfig struct {
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`
	WSEnabled        bool          `yaml:"ws_enabled"`
	WSAddress        string        `yaml:"ws_address"`
}

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it looks for config.yaml in the working directory and falls back to
// built-in defaults. Environment overrides are applied afterwards and the
// result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}

	a := c.Audio
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		return fmt.Errorf("audio.sample_rate %.0f outside [%d, %d]", a.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if a.FramesPerBuffer <= 0 || a.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("audio.frames_per_buffer %d outside [1, %d]", a.FramesPerBuffer, MaxBufferFrames)
	}
	if a.InputDevice < MinDeviceID || a.OutputDevice < MinDeviceID {
		return fmt.Errorf("audio device indices must be >= %d", MinDeviceID)
	}
	if a.InputChannels <= 0 {
		return errors.New("audio.input_channels must be positive")
	}
	if a.OutputChannels < 0 {
		return errors.New("audio.output_channels must not be negative")
	}
	if a.GateThreshold < 0 || a.GateThreshold >= 1 {
		return fmt.Errorf("audio.gate_threshold %v outside [0, 1)", a.GateThreshold)
	}

	an := c.Analysis
	if !bitint.IsPowerOfTwo(an.FFTSize) || an.FFTSize < MinFFTSize || an.FFTSize > MaxFFTSize {
		return fmt.Errorf("analysis.fft_size %d must be a power of two in [%d, %d] (nearest: %d)",
			an.FFTSize, MinFFTSize, MaxFFTSize, bitint.NearestPowerOfTwo(min(max(an.FFTSize, MinFFTSize), MaxFFTSize)))
	}
	if _, err := analysis.ParseWindowFunc(an.FFTWindow); err != nil {
		return fmt.Errorf("analysis.fft_window: %w", err)
	}
	if _, err := analysis.ParseOverflowPolicy(an.OverflowPolicy); err != nil {
		return fmt.Errorf("analysis.overflow_policy: %w", err)
	}
	band := analysis.Band{LowFreq: an.LowFreq, HighFreq: an.HighFreq, BassCutoff: an.BassCutoff}
	if err := band.Validate(a.SampleRate); err != nil {
		return fmt.Errorf("analysis: %w", err)
	}

	d := c.Device
	u, err := url.Parse(d.ServerAddress)
	if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") || u.Host == "" {
		return fmt.Errorf("device.server_address %q must be a ws:// or wss:// URL", d.ServerAddress)
	}
	if d.SendRate <= 0 {
		return fmt.Errorf("device.send_rate must be positive, got %v", d.SendRate)
	}
	if d.ChannelCapacity < 0 {
		return fmt.Errorf("device.channel_capacity must not be negative, got %d", d.ChannelCapacity)
	}
	if d.CommandTimeout <= 0 || d.HandshakeTimeout <= 0 {
		return errors.New("device timeouts must be positive")
	}

	if c.Recording.Enabled && c.Recording.OutputDir == "" {
		return errors.New("recording.output_dir must be set when recording is enabled")
	}

	t := c.Telemetry
	if t.UDPEnabled {
		if !strings.Contains(t.UDPTargetAddress, ":") {
			return fmt.Errorf("telemetry.udp_target_address %q appears invalid (missing port?)", t.UDPTargetAddress)
		}
		if t.UDPSendInterval <= 0 {
			return errors.New("telemetry.udp_send_interval must be positive when UDP is enabled")
		}
	}
	if t.WSEnabled && !strings.Contains(t.WSAddress, ":") {
		return fmt.Errorf("telemetry.ws_address %q appears invalid (missing port?)", t.WSAddress)
	}

	return nil
}

// applyEnvOverrides applies ENV_* variables on top of file values.
// Unparsable values are ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("configuration: Overriding log_level from env: %s", val)
	}

	// ENV_SERVER_ADDRESS
	if val, ok := os.LookupEnv("ENV_SERVER_ADDRESS"); ok {
		c.Device.ServerAddress = val
		log.Infof("configuration: Overriding device.server_address from env: %s", val)
	}
	// ENV_SEND_RATE
	if val, ok := os.LookupEnv("ENV_SEND_RATE"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Device.SendRate = f
			log.Infof("configuration: Overriding device.send_rate from env: %v", f)
		}
	}

	// ENV_UDP_{...}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Telemetry.UDPEnabled = b
			log.Infof("configuration: Overriding telemetry.udp_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Telemetry.UDPTargetAddress = val
		log.Infof("configuration: Overriding telemetry.udp_target_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Telemetry.UDPSendInterval = dur
			log.Infof("configuration: Overriding telemetry.udp_send_interval from env: %s", dur)
		}
	}

	// ENV_WS_{...}
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Telemetry.WSEnabled = b
			log.Infof("configuration: Overriding telemetry.ws_enabled from env: %v", b)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Telemetry.WSAddress = val
		log.Infof("configuration: Overriding telemetry.ws_address from env: %s", val)
	}
}
