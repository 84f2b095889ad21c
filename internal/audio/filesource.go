// SPDX-License-Identifier: MIT
package audio

import (
	"context"
	"fmt"
	"os"
	"time"

	"bassmonitor/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// FileSource replays a PCM WAV file block by block through an audio
// callback, standing in for a live stream.
type FileSource struct {
	path     string
	file     *os.File
	decoder  *wav.Decoder
	frames   int
	realtime bool

	channels   int
	sampleRate int
	scale      float32

	pcm     *audio.IntBuffer
	in      [][]float32 // Full-size channel buffers
	out     [][]float32
	inView  [][]float32 // Resliced to the current block
	outView [][]float32
	total   uint64
}

// OpenFileSource opens a WAV file for replay in blocks of framesPerBuffer.
// With realtime set, blocks are delivered at the file's sample rate;
// otherwise as fast as the callback returns.
func OpenFileSource(path string, framesPerBuffer int, realtime bool) (*FileSource, error) {
	if framesPerBuffer <= 0 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", framesPerBuffer)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	dec := wav.NewDecoder(file)
	if !dec.IsValidFile() {
		file.Close()
		return nil, fmt.Errorf("%s is not a valid WAV file", path)
	}
	if err := dec.FwdToPCM(); err != nil {
		file.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	format := dec.Format()
	if format.NumChannels <= 0 || dec.BitDepth == 0 {
		file.Close()
		return nil, fmt.Errorf("%s: unsupported format", path)
	}

	fs := &FileSource{
		path:       path,
		file:       file,
		decoder:    dec,
		frames:     framesPerBuffer,
		realtime:   realtime,
		channels:   format.NumChannels,
		sampleRate: format.SampleRate,
		scale:      1 / float32(int64(1)<<(dec.BitDepth-1)),
		pcm: &audio.IntBuffer{
			Format: format,
			Data:   make([]int, framesPerBuffer*format.NumChannels),
		},
		in:      make([][]float32, format.NumChannels),
		out:     make([][]float32, format.NumChannels),
		inView:  make([][]float32, format.NumChannels),
		outView: make([][]float32, format.NumChannels),
	}
	for c := range fs.in {
		fs.in[c] = make([]float32, framesPerBuffer)
		fs.out[c] = make([]float32, framesPerBuffer)
	}
	return fs, nil
}

// SampleRate returns the file's sample rate in Hz.
func (fs *FileSource) SampleRate() int { return fs.sampleRate }

// Channels returns the file's channel count.
func (fs *FileSource) Channels() int { return fs.channels }

// Frames returns the number of frames delivered so far.
func (fs *FileSource) Frames() uint64 { return fs.total }

// Run feeds the whole file to process and returns nil at end of file. It
// stops early with the context's error when ctx is done.
func (fs *FileSource) Run(ctx context.Context, process func(in, out [][]float32)) error {
	period := time.Duration(float64(time.Second) * float64(fs.frames) / float64(fs.sampleRate))
	next := time.Now()
	log.Infof("Audio: Replaying %s (%d ch, %d Hz, realtime %v)", fs.path, fs.channels, fs.sampleRate, fs.realtime)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := fs.decoder.PCMBuffer(fs.pcm)
		if err != nil {
			return fmt.Errorf("read %s: %w", fs.path, err)
		}
		frames := n / fs.channels
		if frames == 0 {
			log.Infof("Audio: Replay of %s finished after %d frames", fs.path, fs.total)
			return nil
		}

		for c := range fs.channels {
			ch := fs.in[c][:frames]
			for i := range ch {
				ch[i] = float32(fs.pcm.Data[i*fs.channels+c]) * fs.scale
			}
			fs.inView[c] = ch
			fs.outView[c] = fs.out[c][:frames]
		}

		process(fs.inView, fs.outView)
		fs.total += uint64(frames)

		if fs.realtime {
			next = next.Add(period)
			if wait := time.Until(next); wait > 0 {
				select {
				case <-time.After(wait):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

// Close closes the file.
func (fs *FileSource) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
