// SPDX-License-Identifier: MIT
package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"bassmonitor/internal/config"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantCmd    string
		wantFile   string
		wantFast   bool
		wantErr    bool
		wantConfig string
	}{
		{name: "root runs live", args: nil, wantCmd: CommandRun},
		{name: "devices", args: []string{"devices"}, wantCmd: CommandDevices},
		{name: "replay", args: []string{"replay", "take.wav"}, wantCmd: CommandReplay, wantFile: "take.wav"},
		{name: "replay fast", args: []string{"replay", "--fast", "take.wav"}, wantCmd: CommandReplay, wantFile: "take.wav", wantFast: true},
		{name: "config flag", args: []string{"-f", "my.yaml"}, wantCmd: CommandRun, wantConfig: "my.yaml"},
		{name: "persistent flag on subcommand", args: []string{"replay", "take.wav", "--config", "my.yaml"}, wantCmd: CommandReplay, wantFile: "take.wav", wantConfig: "my.yaml"},
		{name: "replay without file", args: []string{"replay"}, wantErr: true},
		{name: "unknown flag", args: []string{"--bogus"}, wantErr: true},
		{name: "stray argument", args: []string{"extra"}, wantErr: true},
		{name: "fast is replay only", args: []string{"--fast"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := ParseArgs(tt.args)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error, got options %+v", opts)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseArgs failed: %v", err)
			}
			if opts.Command != tt.wantCmd || opts.ReplayFile != tt.wantFile || opts.Fast != tt.wantFast {
				t.Errorf("got command=%q file=%q fast=%v", opts.Command, opts.ReplayFile, opts.Fast)
			}
			if opts.ConfigPath != tt.wantConfig {
				t.Errorf("ConfigPath = %q, want %q", opts.ConfigPath, tt.wantConfig)
			}
		})
	}
}

func TestParseArgsHelp(t *testing.T) {
	opts, err := ParseArgs([]string{"--help"})
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	if opts.Command != "" {
		t.Errorf("help should not select a command, got %q", opts.Command)
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestOptionsConfig(t *testing.T) {
	path := writeConfig(t, `
device:
  server_address: ws://10.0.0.9:12345
  send_rate: 5
recording:
  output_dir: /tmp/from-file
`)

	opts, err := ParseArgs([]string{"--config", path, "--send-rate", "40", "-r"})
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	cfg, err := opts.Config()
	if err != nil {
		t.Fatalf("Config failed: %v", err)
	}

	if cfg.Device.SendRate != 40 {
		t.Errorf("send_rate = %v, want flag value 40", cfg.Device.SendRate)
	}
	if cfg.Device.ServerAddress != "ws://10.0.0.9:12345" {
		t.Errorf("server_address = %q, file value should survive an unset flag", cfg.Device.ServerAddress)
	}
	if !cfg.Recording.Enabled || cfg.Recording.OutputDir != "/tmp/from-file" {
		t.Errorf("recording = %+v, want enabled into the file's dir", cfg.Recording)
	}
	if cfg.Audio.InputDevice != config.DefaultDeviceID {
		t.Errorf("input_device = %d, want default", cfg.Audio.InputDevice)
	}
}

func TestOptionsConfigInvalidFlag(t *testing.T) {
	path := writeConfig(t, "log_level: info\n")

	opts, err := ParseArgs([]string{"--config", path, "--server", "http://localhost:12345"})
	if err != nil {
		t.Fatalf("ParseArgs failed: %v", err)
	}
	if _, err := opts.Config(); err == nil || !strings.Contains(err.Error(), "server_address") {
		t.Errorf("expected server_address error, got %v", err)
	}
}
