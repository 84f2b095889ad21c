// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"

	"bassmonitor/pkg/bitint"
)

// WindowStatus reports whether a Window still accepts samples or is full.
type WindowStatus int

const (
	Filling WindowStatus = iota
	Ready
)

func (s WindowStatus) String() string {
	if s == Ready {
		return "ready"
	}
	return "filling"
}

// Window is a fixed-capacity accumulator of downmixed samples awaiting a
// transform. The slots are complex so the FFT can run over them in place.
// A Window is owned by the audio goroutine and is not safe for concurrent use.
type Window struct {
	slots  []complex128
	cursor int
}

// NewWindow allocates a window holding capacity slots. Capacity must be a
// power of two.
func NewWindow(capacity int) (*Window, error) {
	if !bitint.IsPowerOfTwo(capacity) {
		return nil, fmt.Errorf("window capacity must be a power of 2, got %d", capacity)
	}
	return &Window{slots: make([]complex128, capacity)}, nil
}

// Push writes one sample at the cursor and advances it. Ready means the
// window is full and must be drained before the next Push.
func (w *Window) Push(sample float32) WindowStatus {
	w.slots[w.cursor] = complex(float64(sample), 0)
	w.cursor++
	if w.cursor == len(w.slots) {
		return Ready
	}
	return Filling
}

// Capacity returns the fixed number of slots.
func (w *Window) Capacity() int { return len(w.slots) }

// Cursor returns the index of the next slot to fill.
func (w *Window) Cursor() int { return w.cursor }

// Remaining returns how many samples fit before the window is full.
func (w *Window) Remaining() int { return len(w.slots) - w.cursor }

// Reset rewinds the cursor. Slot contents are left in place.
func (w *Window) Reset() { w.cursor = 0 }

// Slots exposes the backing storage. The transform overwrites it in place.
func (w *Window) Slots() []complex128 { return w.slots }
