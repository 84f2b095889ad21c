// SPDX-License-Identifier: MIT
package audio

import (
	"time"

	"bassmonitor/internal/config"

	"github.com/gordonklaus/portaudio"
)

const (
	testSampleRate = 44100
	testFrameSize  = 512
	testChannels   = 2
)

// blockRecorder is an analysis.Processor that keeps a copy of every block.
type blockRecorder struct {
	blocks [][]float32
}

func (r *blockRecorder) Process(block []float32) {
	r.blocks = append(r.blocks, append([]float32(nil), block...))
}

// discardProcessor accepts blocks without allocating.
type discardProcessor struct{ samples int }

func (d *discardProcessor) Process(block []float32) { d.samples += len(block) }

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Audio.SampleRate = testSampleRate
	cfg.Audio.FramesPerBuffer = testFrameSize
	cfg.Audio.InputChannels = testChannels
	cfg.Audio.OutputChannels = testChannels
	return cfg
}

func fakeDevices() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{Name: "Mic", MaxInputChannels: 2, DefaultSampleRate: 48000, DefaultLowInputLatency: 5 * time.Millisecond},
		{Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{Name: "Interface", MaxInputChannels: 8, MaxOutputChannels: 8, DefaultSampleRate: 96000},
	}
}

func stereoBlock(frames int, left, right float32) [][]float32 {
	in := [][]float32{make([]float32, frames), make([]float32, frames)}
	for i := range frames {
		in[0][i] = left
		in[1][i] = right
	}
	return in
}
