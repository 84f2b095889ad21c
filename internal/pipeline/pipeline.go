// SPDX-License-Identifier: MIT

// Package pipeline assembles the monitor: an audio source drives the engine
// and analyser, intensities cross the channel to the device session, and
// the session status is published to the configured telemetry sinks.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"bassmonitor/internal/analysis"
	"bassmonitor/internal/audio"
	"bassmonitor/internal/buttplug"
	"bassmonitor/internal/config"
	"bassmonitor/internal/intensity"
	"bassmonitor/internal/log"
	"bassmonitor/internal/session"
	"bassmonitor/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

// Source feeds audio through the engine's callback until the input ends or
// ctx is done. After Run returns nil the engine must no longer be called; an
// error return makes no such promise.
type Source interface {
	Run(ctx context.Context, engine *audio.Engine) error
}

// Live runs the engine on the PortAudio duplex stream. PortAudio must be
// initialised.
type Live struct{}

// Run starts the stream and keeps it running until ctx is done.
func (Live) Run(ctx context.Context, engine *audio.Engine) error {
	if err := engine.StartStream(); err != nil {
		return err
	}
	<-ctx.Done()
	return engine.StopStream()
}

// Replay feeds the engine from a WAV file.
type Replay struct {
	File *audio.FileSource
}

// Run plays the file to the end.
func (r Replay) Run(ctx context.Context, engine *audio.Engine) error {
	return r.File.Run(ctx, engine.Process)
}

// Run connects to the device server, then processes src until it ends, the
// session terminates or ctx is cancelled. The device is stopped and every
// resource released before Run returns.
//
// A source that ends normally and a cancelled ctx both yield nil. A lost
// server yields session.ErrDisconnected.
func Run(ctx context.Context, cfg *config.Config, src Source) error {
	if cfg == nil || src == nil {
		return errors.New("pipeline: config and source are required")
	}

	window, err := analysis.ParseWindowFunc(cfg.Analysis.FFTWindow)
	if err != nil {
		return err
	}
	policy, err := analysis.ParseOverflowPolicy(cfg.Analysis.OverflowPolicy)
	if err != nil {
		return err
	}

	capacity := cfg.Device.ChannelCapacity
	if capacity <= 0 {
		capacity = intensity.CapacityFor(cfg.Device.SendRate)
	}
	tx, rx := intensity.New(capacity)
	log.Debugf("Pipeline: Intensity channel capacity %d", capacity)

	analyzer, err := analysis.NewAnalyzer(analysis.AnalyzerConfig{
		FFTSize:    cfg.Analysis.FFTSize,
		SampleRate: cfg.Audio.SampleRate,
		Window:     window,
		Policy:     policy,
		Params: analysis.NewParams(analysis.Band{
			LowFreq:    cfg.Analysis.LowFreq,
			HighFreq:   cfg.Analysis.HighFreq,
			BassCutoff: cfg.Analysis.BassCutoff,
		}),
	}, tx)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	engine, err := audio.NewEngine(cfg, analyzer)
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Errorf("Pipeline: Closing audio engine: %v", err)
		}
	}()

	board := telemetry.NewBoard()
	publisher, err := startTelemetry(cfg.Telemetry, board)
	if err != nil {
		return err
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			log.Warnf("Pipeline: Closing telemetry: %v", err)
		}
	}()

	client := buttplug.NewClient(buttplug.Options{
		Address:          cfg.Device.ServerAddress,
		ClientName:       cfg.Device.ClientName,
		HandshakeTimeout: cfg.Device.HandshakeTimeout,
	})
	sess := session.New(client, session.Options{
		CommandTimeout: cfg.Device.CommandTimeout,
		Board:          board,
	})
	defer func() {
		if err := sess.Close(); err != nil {
			log.Debugf("Pipeline: Closing session: %v", err)
		}
	}()

	if err := sess.Connect(ctx); err != nil {
		return err
	}
	if err := sess.StartScan(ctx); err != nil {
		return err
	}

	if cfg.Recording.Enabled {
		if _, err := engine.StartRecording(cfg.Recording.OutputDir); err != nil {
			return fmt.Errorf("pipeline: start recording: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := src.Run(gctx, engine)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		if err != nil {
			// The callback may still be running, so the channel stays open.
			// The failed group cancels gctx and the session stops on that.
			return err
		}
		tx.Close()
		return nil
	})

	g.Go(func() error {
		return session.Run(gctx, sess, rx, cfg.Device.SendRate)
	})

	err = g.Wait()

	sent, failed := sess.Commands()
	log.Infof("Pipeline: Finished after %d transforms, %d commands (%d failed), %d intensities dropped",
		analyzer.Transforms(), sent, failed, rx.Dropped())
	return err
}

// startTelemetry builds the configured sinks and starts publishing. The log
// sink is always present.
func startTelemetry(tc config.TelemetryConfig, board *telemetry.Board) (*telemetry.Publisher, error) {
	sinks := []telemetry.Sink{telemetry.NewLogSink()}
	closeAll := func() {
		for _, s := range sinks {
			s.Close()
		}
	}

	if tc.UDPEnabled {
		udp, err := telemetry.NewUDPSink(tc.UDPTargetAddress)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("pipeline: udp telemetry: %w", err)
		}
		sinks = append(sinks, udp)
	}
	if tc.WSEnabled {
		ws, err := telemetry.NewWebSocketSink(tc.WSAddress)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("pipeline: websocket telemetry: %w", err)
		}
		sinks = append(sinks, ws)
	}

	publisher, err := telemetry.NewPublisher(tc.UDPSendInterval, board, sinks...)
	if err != nil {
		closeAll()
		return nil, err
	}
	publisher.Start()
	return publisher, nil
}
