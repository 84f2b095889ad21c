// SPDX-License-Identifier: MIT
/*
Package audio connects the analysis hot path to real audio:
- PortAudio duplex stream whose callback passes input through to output
- Mono downmix of every block before analysis
- Optional noise gate that analyses quiet blocks as silence
- WAV recording that never blocks the callback
- WAV file replay through the same callback for offline runs

Thread Safety:
- The callback only touches pre-allocated buffers and atomics
- Recording is handed to a writer goroutine through buffer pools
*/
package audio

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"bassmonitor/internal/analysis"
	"bassmonitor/internal/config"
	"bassmonitor/internal/log"

	"github.com/gordonklaus/portaudio"
)

// Engine owns the duplex stream and the per-block buffers of the audio
// callback.
type Engine struct {
	config *config.Config

	// Stream handling.
	inputDevice   *portaudio.DeviceInfo
	outputDevice  *portaudio.DeviceInfo
	inputLatency  time.Duration
	outputLatency time.Duration
	stream        *portaudio.Stream

	// Analysis.
	processor analysis.Processor
	mono      []float32 // Downmixed block
	silence   []float32 // Fed to the processor while the gate is closed

	// Noise gate.
	gateEnabled   bool
	gateThreshold float32 // Peak absolute level, 0-1

	// Recording.
	recorder atomic.Pointer[Recorder]

	blocks atomic.Uint64
}

// NewEngine prepares an engine that feeds proc. No devices are opened until
// StartStream, so an engine can also be driven by a FileSource.
func NewEngine(cfg *config.Config, proc analysis.Processor) (*Engine, error) {
	if cfg == nil {
		return nil, errors.New("audio: config cannot be nil")
	}
	if proc == nil {
		return nil, errors.New("audio: processor cannot be nil")
	}

	e := &Engine{
		config:    cfg,
		processor: proc,
		mono:      make([]float32, config.MaxBufferFrames),
		silence:   make([]float32, config.MaxBufferFrames),
	}
	if cfg.Audio.GateThreshold > 0 {
		e.SetGateThreshold(cfg.Audio.GateThreshold)
		e.EnableGate()
	}
	return e, nil
}

// StartStream opens and starts the PortAudio duplex stream. PortAudio must
// be initialized.
func (e *Engine) StartStream() error {
	if e.stream != nil {
		return errors.New("audio: stream already running")
	}

	ac := e.config.Audio
	inputDevice, err := InputDevice(ac.InputDevice)
	if err != nil {
		return err
	}
	e.inputDevice = inputDevice
	e.inputLatency = inputDevice.DefaultHighInputLatency
	if ac.LowLatency {
		e.inputLatency = inputDevice.DefaultLowInputLatency
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   e.inputDevice,
			Channels: ac.InputChannels,
			Latency:  e.inputLatency,
		},
		FramesPerBuffer: ac.FramesPerBuffer,
		SampleRate:      ac.SampleRate,
	}

	if ac.OutputChannels > 0 {
		outputDevice, err := OutputDevice(ac.OutputDevice)
		if err != nil {
			return err
		}
		e.outputDevice = outputDevice
		e.outputLatency = outputDevice.DefaultHighOutputLatency
		if ac.LowLatency {
			e.outputLatency = outputDevice.DefaultLowOutputLatency
		}
		params.Output = portaudio.StreamDeviceParameters{
			Device:   e.outputDevice,
			Channels: ac.OutputChannels,
			Latency:  e.outputLatency,
		}
	}

	stream, err := portaudio.OpenStream(params, e.Process)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		return fmt.Errorf("start stream: %w", err)
	}
	e.stream = stream

	log.Infof("Audio: Streaming from %q (%d ch, %.0f Hz, %d frames)",
		inputDevice.Name, ac.InputChannels, ac.SampleRate, ac.FramesPerBuffer)
	return nil
}

// StopStream stops and closes the stream if it is running.
func (e *Engine) StopStream() error {
	if e.stream == nil {
		return nil
	}

	if err := e.stream.Stop(); err != nil {
		return err
	}
	if err := e.stream.Close(); err != nil {
		return err
	}
	e.stream = nil
	return nil
}

// Process is the audio callback. in and out hold one slice per channel.
// Performance Critical (Hot Path):
// - Uses pre-allocated buffers only
// - Never blocks or logs
func (e *Engine) Process(in, out [][]float32) {
	passThrough(out, in)

	n := Downmix(e.mono, in)
	block := e.mono[:n]

	if rec := e.recorder.Load(); rec != nil {
		rec.Write(in)
	}

	if e.gateEnabled && !gateOpen(block, e.gateThreshold) {
		block = e.silence[:n]
	}

	e.processor.Process(block)
	e.blocks.Add(1)
}

// Blocks returns how many callbacks have been processed.
func (e *Engine) Blocks() uint64 { return e.blocks.Load() }

// Close stops recording and the stream.
func (e *Engine) Close() error {
	return errors.Join(e.StopRecording(), e.StopStream())
}

// Downmix folds in to mono by averaging the channels into dst and returns
// the number of frames written, which is capped by len(dst).
func Downmix(dst []float32, in [][]float32) int {
	if len(in) == 0 {
		return 0
	}

	n := min(len(dst), len(in[0]))
	if len(in) == 1 {
		return copy(dst[:n], in[0])
	}

	scale := 1 / float32(len(in))
	for i := range n {
		var sum float32
		for _, ch := range in {
			sum += ch[i]
		}
		dst[i] = sum * scale
	}
	return n
}

// passThrough copies input channels to output channels. Extra output
// channels repeat the input channels in order; with no input the output is
// silenced.
func passThrough(out, in [][]float32) {
	for c, dst := range out {
		if len(in) == 0 {
			clear(dst)
			continue
		}
		n := copy(dst, in[c%len(in)])
		clear(dst[n:])
	}
}
