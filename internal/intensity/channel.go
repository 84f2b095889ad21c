// SPDX-License-Identifier: MIT
/*
Package intensity carries intensity values from the audio callback to the
device session.

The producer side never blocks: when the queue is full the new value is
dropped and counted. The consumer polls without blocking and learns that the
producer is gone once the queue has been drained after Close.
*/
package intensity

import (
	"math"
	"sync"
	"sync/atomic"
)

// RecvStatus is the outcome of a TryReceive.
type RecvStatus int

const (
	Received RecvStatus = iota
	Empty
	Closed
)

func (s RecvStatus) String() string {
	switch s {
	case Received:
		return "received"
	case Empty:
		return "empty"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// defaultSlotsPerSecond over the send rate gives the default queue length:
// 5 slots at 20 Hz.
const defaultSlotsPerSecond = 100.0

// CapacityFor sizes a queue for a consumer ticking at sendRate Hz.
func CapacityFor(sendRate float64) int {
	if sendRate <= 0 || math.IsInf(sendRate, 0) || math.IsNaN(sendRate) {
		return 1
	}
	return max(1, int(math.Ceil(defaultSlotsPerSecond/sendRate)))
}

type queue struct {
	ch        chan float32
	closeOnce sync.Once
	dropped   atomic.Uint64
	sent      atomic.Uint64
}

// Sender is the producer handle. It must be used from a single goroutine.
type Sender struct{ q *queue }

// Receiver is the consumer handle.
type Receiver struct{ q *queue }

// New creates a bounded queue with the given capacity (minimum 1).
func New(capacity int) (*Sender, *Receiver) {
	q := &queue{ch: make(chan float32, max(1, capacity))}
	return &Sender{q: q}, &Receiver{q: q}
}

// TrySend enqueues v without blocking. It reports false when the queue is
// full and the value was dropped.
func (s *Sender) TrySend(v float32) bool {
	select {
	case s.q.ch <- v:
		s.q.sent.Add(1)
		return true
	default:
		s.q.dropped.Add(1)
		return false
	}
}

// Close tells the consumer that no more values will arrive. It must not run
// concurrently with TrySend. Calling it more than once is harmless.
func (s *Sender) Close() {
	s.q.closeOnce.Do(func() { close(s.q.ch) })
}

// Dropped returns the number of values lost to a full queue.
func (s *Sender) Dropped() uint64 { return s.q.dropped.Load() }

// Sent returns the number of values accepted by the queue.
func (s *Sender) Sent() uint64 { return s.q.sent.Load() }

// TryReceive returns the oldest undelivered value, Empty when nothing is
// queued, or Closed once the sender has closed and the queue is drained.
func (r *Receiver) TryReceive() (float32, RecvStatus) {
	select {
	case v, ok := <-r.q.ch:
		if !ok {
			return 0, Closed
		}
		return v, Received
	default:
		return 0, Empty
	}
}

// Dropped returns the number of values the producer lost to a full queue.
func (r *Receiver) Dropped() uint64 { return r.q.dropped.Load() }

// Cap returns the queue capacity.
func (r *Receiver) Cap() int { return cap(r.q.ch) }

// Len returns the number of values currently queued.
func (r *Receiver) Len() int { return len(r.q.ch) }
