// SPDX-License-Identifier: MIT
package buttplug

import "sync"

// eventQueue is an unbounded FIFO between the read loop and the delivery
// goroutine. ready holds at most one pending wake-up.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	ready  chan struct{}
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

// close marks the end of the stream. Events pushed before close are still
// drained.
func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// drain takes every queued event and reports whether the stream has ended.
func (q *eventQueue) drain() ([]Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.items
	q.items = nil
	return batch, q.closed
}

func (q *eventQueue) wake() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}
