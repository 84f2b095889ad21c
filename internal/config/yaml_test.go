// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if cfg.Analysis.FFTSize != DefaultFFTSize || cfg.Device.SendRate != DefaultSendRate {
		t.Errorf("expected defaults, got %+v", cfg)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Errorf("expected unmarshal error, got %v", err)
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
audio:
  sample_rate: 48000
  input_channels: 1
analysis:
  fft_size: 2048
  fft_window: hann
  low_freq: 30
  high_freq: 80
  bass_cutoff: 0.5
  overflow_policy: carry
device:
  server_address: ws://10.0.0.2:12345
  send_rate: 10
  command_timeout: 250ms
telemetry:
  udp_enabled: true
  udp_send_interval: 50ms
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Audio.SampleRate != 48000 || cfg.Audio.InputChannels != 1 {
		t.Errorf("unexpected top/audio values: %+v", cfg)
	}
	if cfg.Audio.FramesPerBuffer != DefaultFramesPerBuffer {
		t.Errorf("unset keys should keep defaults, frames_per_buffer = %d", cfg.Audio.FramesPerBuffer)
	}
	a := cfg.Analysis
	if a.FFTSize != 2048 || a.FFTWindow != "hann" || a.LowFreq != 30 || a.HighFreq != 80 || a.BassCutoff != 0.5 || a.OverflowPolicy != "carry" {
		t.Errorf("unexpected analysis values: %+v", a)
	}
	if cfg.Device.ServerAddress != "ws://10.0.0.2:12345" || cfg.Device.SendRate != 10 {
		t.Errorf("unexpected device values: %+v", cfg.Device)
	}
	if cfg.Device.CommandTimeout != 250*time.Millisecond {
		t.Errorf("command_timeout = %s, want 250ms", cfg.Device.CommandTimeout)
	}
	if !cfg.Telemetry.UDPEnabled || cfg.Telemetry.UDPSendInterval != 50*time.Millisecond {
		t.Errorf("unexpected telemetry values: %+v", cfg.Telemetry)
	}
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("ENV_LOG_LEVEL", "warn")
	t.Setenv("ENV_SERVER_ADDRESS", "ws://192.168.1.5:12345")
	t.Setenv("ENV_SEND_RATE", "40")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "127.0.0.1:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "20ms")
	t.Setenv("ENV_WS_ENABLED", "not-a-bool")

	path := writeTempConfig(t, "device:\n  send_rate: 5\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("log_level = %q, want warn", cfg.LogLevel)
	}
	if cfg.Device.ServerAddress != "ws://192.168.1.5:12345" || cfg.Device.SendRate != 40 {
		t.Errorf("env should override file values: %+v", cfg.Device)
	}
	tc := cfg.Telemetry
	if !tc.UDPEnabled || tc.UDPTargetAddress != "127.0.0.1:7000" || tc.UDPSendInterval != 20*time.Millisecond {
		t.Errorf("unexpected telemetry: %+v", tc)
	}
	if tc.WSEnabled {
		t.Error("unparsable ENV_WS_ENABLED should be ignored")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad log level", func(c *Config) { c.LogLevel = "chatty" }, "log_level"},
		{"low sample rate", func(c *Config) { c.Audio.SampleRate = 4000 }, "sample_rate"},
		{"huge buffer", func(c *Config) { c.Audio.FramesPerBuffer = 16384 }, "frames_per_buffer"},
		{"gate threshold at full scale", func(c *Config) { c.Audio.GateThreshold = 1 }, "gate_threshold"},
		{"no input channels", func(c *Config) { c.Audio.InputChannels = 0 }, "input_channels"},
		{"fft size not power of two", func(c *Config) { c.Analysis.FFTSize = 3000 }, "nearest: 2048"},
		{"fft size too small", func(c *Config) { c.Analysis.FFTSize = 4 }, "fft_size"},
		{"unknown window", func(c *Config) { c.Analysis.FFTWindow = "kaiser" }, "fft_window"},
		{"unknown policy", func(c *Config) { c.Analysis.OverflowPolicy = "ring" }, "overflow_policy"},
		{"inverted band", func(c *Config) { c.Analysis.LowFreq = 100 }, "band"},
		{"band above nyquist", func(c *Config) { c.Analysis.HighFreq = 30000 }, "band"},
		{"cutoff above one", func(c *Config) { c.Analysis.BassCutoff = 1.5 }, "cutoff"},
		{"http server address", func(c *Config) { c.Device.ServerAddress = "http://localhost:12345" }, "server_address"},
		{"zero send rate", func(c *Config) { c.Device.SendRate = 0 }, "send_rate"},
		{"negative capacity", func(c *Config) { c.Device.ChannelCapacity = -1 }, "channel_capacity"},
		{"zero timeout", func(c *Config) { c.Device.CommandTimeout = 0 }, "timeouts"},
		{"recording without dir", func(c *Config) { c.Recording = RecordingConfig{Enabled: true} }, "output_dir"},
		{"udp without port", func(c *Config) {
			c.Telemetry.UDPEnabled = true
			c.Telemetry.UDPTargetAddress = "localhost"
		}, "udp_target_address"},
		{"ws without port", func(c *Config) {
			c.Telemetry.WSEnabled = true
			c.Telemetry.WSAddress = "localhost"
		}, "ws_address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("expected valid config, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
