// SPDX-License-Identifier: MIT
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"bassmonitor/internal/log"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	recordBitDepth = 16
	recordPoolSize = 32 // Blocks buffered between the callback and the writer
	wavPCMFormat   = 1
)

// Recorder writes audio blocks to a 16-bit PCM WAV file. Write is safe to
// call from the audio callback: it converts into a pooled buffer and hands
// it to a writer goroutine, dropping the block if no buffer is free.
type Recorder struct {
	path     string
	file     *os.File
	encoder  *wav.Encoder
	channels int

	free   chan *audio.IntBuffer
	filled chan *audio.IntBuffer
	done   chan struct{}
	wg     sync.WaitGroup

	dropped   atomic.Uint64
	written   atomic.Uint64 // Frames
	writeErr  error         // Set by the writer goroutine
	closeOnce sync.Once
	closeErr  error
}

// NewRecorder creates path and starts the writer goroutine.
func NewRecorder(path string, sampleRate, channels, framesPerBuffer int) (*Recorder, error) {
	if channels <= 0 || framesPerBuffer <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid recording format: %d Hz, %d ch, %d frames", sampleRate, channels, framesPerBuffer)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		path:     path,
		file:     file,
		encoder:  wav.NewEncoder(file, sampleRate, recordBitDepth, channels, wavPCMFormat),
		channels: channels,
		free:     make(chan *audio.IntBuffer, recordPoolSize),
		filled:   make(chan *audio.IntBuffer, recordPoolSize),
		done:     make(chan struct{}),
	}

	format := &audio.Format{NumChannels: channels, SampleRate: sampleRate}
	for range recordPoolSize {
		r.free <- &audio.IntBuffer{
			Format:         format,
			SourceBitDepth: recordBitDepth,
			Data:           make([]int, 0, framesPerBuffer*channels),
		}
	}

	r.wg.Add(1)
	go r.writeLoop()

	return r, nil
}

// Path returns the file being written.
func (r *Recorder) Path() string { return r.path }

// Dropped returns the number of blocks lost because the writer fell behind.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }

// Frames returns the number of frames written to the file.
func (r *Recorder) Frames() uint64 { return r.written.Load() }

// Write queues one block. in holds one slice per channel; missing channels
// are written as silence and frames beyond the pooled capacity are cut.
// It never blocks and reports false when the block was dropped.
func (r *Recorder) Write(in [][]float32) bool {
	if len(in) == 0 {
		return true
	}

	var buf *audio.IntBuffer
	select {
	case buf = <-r.free:
	default:
		r.dropped.Add(1)
		return false
	}

	frames := min(len(in[0]), cap(buf.Data)/r.channels)
	buf.Data = buf.Data[:frames*r.channels]
	for i := range frames {
		for c := range r.channels {
			var v float32
			if c < len(in) {
				v = in[c][i]
			}
			buf.Data[i*r.channels+c] = toPCM16(v)
		}
	}

	select {
	case r.filled <- buf:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

func (r *Recorder) writeLoop() {
	defer r.wg.Done()

	for {
		select {
		case buf := <-r.filled:
			r.encode(buf)
		case <-r.done:
			for {
				select {
				case buf := <-r.filled:
					r.encode(buf)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) encode(buf *audio.IntBuffer) {
	if r.writeErr == nil {
		if err := r.encoder.Write(buf); err != nil {
			r.writeErr = err
			log.Errorf("Audio: Recording to %s failed: %v", r.path, err)
		} else {
			r.written.Add(uint64(len(buf.Data) / r.channels))
		}
	}
	r.free <- buf
}

// Close drains queued blocks, finalises the WAV header and closes the file.
// Blocks written concurrently with Close may be lost.
func (r *Recorder) Close() error {
	r.closeOnce.Do(func() {
		close(r.done)
		r.wg.Wait()
		r.closeErr = errors.Join(r.writeErr, r.encoder.Close(), r.file.Close())
		log.Infof("Audio: Recorded %d frames to %s (%d blocks dropped)", r.Frames(), r.path, r.Dropped())
	})
	return r.closeErr
}

func toPCM16(v float32) int {
	v = min(max(v, -1), 1)
	return int(v * 32767)
}

// StartRecording begins recording the input stream to a new file in dir.
func (e *Engine) StartRecording(dir string) (string, error) {
	if e.recorder.Load() != nil {
		return "", errors.New("already recording")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create recording dir: %w", err)
	}
	path := filepath.Join(dir, "bassmonitor-"+time.Now().Format("20060102-150405")+".wav")

	ac := e.config.Audio
	rec, err := NewRecorder(path, int(ac.SampleRate), ac.InputChannels, ac.FramesPerBuffer)
	if err != nil {
		return "", err
	}
	if !e.recorder.CompareAndSwap(nil, rec) {
		rec.Close()
		os.Remove(path)
		return "", errors.New("already recording")
	}

	log.Infof("Audio: Recording to %s", path)
	return path, nil
}

// StopRecording finishes the current recording, if any.
func (e *Engine) StopRecording() error {
	rec := e.recorder.Swap(nil)
	if rec == nil {
		return nil
	}
	return rec.Close()
}

// Recording reports whether a recording is in progress.
func (e *Engine) Recording() bool {
	return e.recorder.Load() != nil
}
