// SPDX-License-Identifier: MIT
/*
Package analysis implements the audio-rate half of the monitor:

  - Window accumulates downmixed samples until a transform is due
  - OverflowPolicy decides what happens when a block does not fit
  - Extractor runs the FFT and reduces it to one bass intensity
  - Analyzer glues them together and hands each intensity to a Sink

Everything reachable from Analyzer.Process runs inside the audio callback.
Buffers are allocated up front and nothing on that path blocks or locks.
*/
package analysis

import (
	"fmt"
	"math"
	"sync/atomic"

	applog "bassmonitor/internal/log"
)

// Sink receives one intensity per transform. TrySend must never block.
type Sink interface {
	TrySend(v float32) bool
}

// Params holds the band settings shared between a control goroutine, which
// may change them at any time, and the audio callback, which reads them once
// per transform.
type Params struct {
	band atomic.Pointer[Band]
}

// NewParams returns Params initialised to b.
func NewParams(b Band) *Params {
	p := &Params{}
	p.Set(b)
	return p
}

// Set publishes a new band. Safe for concurrent use.
func (p *Params) Set(b Band) {
	p.band.Store(&b)
}

// Band returns the current band. Safe for concurrent use and allocation free.
func (p *Params) Band() Band {
	return *p.band.Load()
}

// AnalyzerConfig describes a fully configured Analyzer.
type AnalyzerConfig struct {
	FFTSize    int
	SampleRate float64
	Window     WindowFunc
	Policy     OverflowPolicy
	Params     *Params
}

// Analyzer feeds blocks through the window and extractor and forwards each
// resulting intensity to its sink.
type Analyzer struct {
	window     *Window
	extractor  *Extractor
	policy     OverflowPolicy
	params     *Params
	sampleRate float64
	sink       Sink
	flushFn    func() // bound once so Process does not allocate a closure

	transforms atomic.Uint64
	dropped    atomic.Uint64
	last       atomic.Uint32 // float32 bits of the latest intensity
}

// NewAnalyzer validates cfg and pre-allocates every buffer the hot path needs.
func NewAnalyzer(cfg AnalyzerConfig, sink Sink) (*Analyzer, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %f", cfg.SampleRate)
	}
	if cfg.Params == nil {
		return nil, fmt.Errorf("analyzer requires band params")
	}
	if sink == nil {
		return nil, fmt.Errorf("analyzer requires an intensity sink")
	}
	window, err := NewWindow(cfg.FFTSize)
	if err != nil {
		return nil, err
	}
	extractor, err := NewExtractor(cfg.FFTSize, cfg.Window)
	if err != nil {
		return nil, err
	}
	policy := cfg.Policy
	if policy == nil {
		policy = DiscardOnOverflow
	}

	applog.Infof("Analysis: Initializing Analyzer (Size: %d, SampleRate: %.1f Hz, Window: %v)",
		cfg.FFTSize, cfg.SampleRate, cfg.Window)

	a := &Analyzer{
		window:     window,
		extractor:  extractor,
		policy:     policy,
		params:     cfg.Params,
		sampleRate: cfg.SampleRate,
		sink:       sink,
	}
	a.flushFn = a.flush
	return a, nil
}

// Process writes a mono block into the window according to the overflow
// policy, transforming as often as the policy demands.
func (a *Analyzer) Process(block []float32) {
	a.policy(a.window, block, a.flushFn)
}

func (a *Analyzer) flush() {
	v := a.extractor.Extract(a.window, a.params.Band(), a.sampleRate)
	a.transforms.Add(1)
	a.last.Store(math.Float32bits(v))
	if !a.sink.TrySend(v) {
		a.dropped.Add(1)
	}
}

// Transforms returns how many windows have been transformed.
func (a *Analyzer) Transforms() uint64 { return a.transforms.Load() }

// Dropped returns how many intensities the sink refused.
func (a *Analyzer) Dropped() uint64 { return a.dropped.Load() }

// Last returns the most recent intensity.
func (a *Analyzer) Last() float32 { return math.Float32frombits(a.last.Load()) }

// Pending returns how many samples sit in the window awaiting the next transform.
func (a *Analyzer) Pending() int { return a.window.Cursor() }
