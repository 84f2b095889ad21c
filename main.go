// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"bassmonitor/cmd"
	"bassmonitor/internal/audio"
	"bassmonitor/internal/config"
	"bassmonitor/internal/log"
	"bassmonitor/internal/pipeline"
	"bassmonitor/pkg/build"
)

// main is the entry point for the bass monitor.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute one-off commands if requested
//
// 2. Concurrent Phase (Hot Path):
//   - Connect to the device server and start scanning
//   - Run the audio source, analyser and session loop
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the device and recording
//   - Clean up resources
func main() {
	// ==================== STARTUP PHASE (Cold Path) ====================

	// Development builds carry no ldflags; version info then comes from the
	// module build info.
	if err := build.Initialize(); err != nil {
		log.Debugf("Build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Help or version was printed.
	if opts.Command == "" {
		return
	}

	cfg, err := opts.Config()
	if err != nil {
		log.Fatalf("%v", err)
	}
	if level, ok := log.ParseLevel(cfg.LogLevel); ok {
		log.SetLevel(level)
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = execute(ctx, opts, cfg)
	stop()

	// ==================== SHUTDOWN PHASE (Cold Path) ====================

	if err != nil {
		log.Errorf("%v", err)
		os.Exit(1)
	}
}

// execute runs the selected command until it finishes or ctx is cancelled.
func execute(ctx context.Context, opts *cmd.Options, cfg *config.Config) error {
	switch opts.Command {
	case cmd.CommandDevices:
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return audio.ListDevices(os.Stdout)

	case cmd.CommandReplay:
		file, err := audio.OpenFileSource(opts.ReplayFile, cfg.Audio.FramesPerBuffer, !opts.Fast)
		if err != nil {
			return err
		}
		defer file.Close()

		// The file dictates the stream format.
		cfg.Audio.SampleRate = float64(file.SampleRate())
		cfg.Audio.InputChannels = file.Channels()
		if err := cfg.Validate(); err != nil {
			return err
		}
		return pipeline.Run(ctx, cfg, pipeline.Replay{File: file})

	default:
		// Limit OS threads for real-time audio processing:
		// - One thread dedicated to the audio callback (time-critical)
		// - One thread for the session, telemetry and I/O
		runtime.GOMAXPROCS(2)

		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
		return pipeline.Run(ctx, cfg, pipeline.Live{})
	}
}
