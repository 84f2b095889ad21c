// SPDX-License-Identifier: MIT
package cmd

import (
	"fmt"

	"bassmonitor/internal/config"
	"bassmonitor/pkg/build"

	"github.com/spf13/cobra"
)

// Commands selected on the command line.
const (
	CommandRun     = "run"
	CommandDevices = "devices"
	CommandReplay  = "replay"
)

// Options holds the parsed command line. Command is empty when cobra only
// printed help or the version.
type Options struct {
	Command    string
	ConfigPath string
	ReplayFile string
	Fast       bool

	LogLevel      string
	ServerAddress string
	SendRate      float64
	InputDevice   int
	Record        bool
	RecordDir     string

	changed map[string]bool
}

// ParseArgs parses args (without the program name).
func ParseArgs(args []string) (*Options, error) {
	buildInfo := build.Get()
	options := &Options{changed: make(map[string]bool)}

	// Remember which overrides were given explicitly so config file values
	// survive flags left at their defaults.
	recordChanged := func(cmd *cobra.Command) {
		for _, name := range []string{"log-level", "server", "send-rate", "device", "record", "output"} {
			if cmd.Flags().Changed(name) {
				options.changed[name] = true
			}
		}
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.String(),
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			recordChanged(cmd)
		},
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandRun
		},
	}

	// Display help message
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	// Devices command
	devicesCmd := &cobra.Command{
		Use:   "devices",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandDevices
		},
	}
	rootCmd.AddCommand(devicesCmd)

	// Replay command
	replayCmd := &cobra.Command{
		Use:   "replay <file.wav>",
		Short: "Drive the device from a WAV file instead of the live input",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			options.Command = CommandReplay
			options.ReplayFile = args[0]
		},
	}
	replayCmd.Flags().BoolVar(&options.Fast, "fast", false,
		"Process the file as fast as possible instead of at its sample rate")
	rootCmd.AddCommand(replayCmd)

	// Configuration
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&options.ConfigPath, "config", "f", "",
		"Path to the YAML configuration file (default ./config.yaml if present)")
	flags.StringVar(&options.LogLevel, "log-level", config.DefaultLogLevel,
		"Log level: debug, info, warn, error")

	// Device Configuration
	flags.StringVarP(&options.ServerAddress, "server", "s", config.DefaultServerAddress,
		"Intiface / Buttplug server websocket address")
	flags.Float64Var(&options.SendRate, "send-rate", config.DefaultSendRate,
		"Device commands per second")

	// Audio Configuration
	flags.IntVarP(&options.InputDevice, "device", "d", config.DefaultDeviceID,
		"Input device ID. Use the 'devices' command to see available devices.")

	// Recording Configuration
	flags.BoolVarP(&options.Record, "record", "r", false,
		"Record the analysed input to a WAV file")
	flags.StringVarP(&options.RecordDir, "output", "o", config.DefaultRecordingDir,
		"Directory for recordings")

	// Execute the CLI
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}

	return options, nil
}

// Config loads the configuration file and applies the flags that were set
// explicitly on top of it.
func (o *Options) Config() (*config.Config, error) {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return nil, err
	}

	if o.changed["log-level"] {
		cfg.LogLevel = o.LogLevel
	}
	if o.changed["server"] {
		cfg.Device.ServerAddress = o.ServerAddress
	}
	if o.changed["send-rate"] {
		cfg.Device.SendRate = o.SendRate
	}
	if o.changed["device"] {
		cfg.Audio.InputDevice = o.InputDevice
	}
	if o.changed["record"] {
		cfg.Recording.Enabled = o.Record
	}
	if o.changed["output"] {
		cfg.Recording.OutputDir = o.RecordDir
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid command line: %w", err)
	}
	return cfg, nil
}
