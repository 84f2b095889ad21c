// SPDX-License-Identifier: MIT

// Package telemetry publishes the state of a running monitor: which device
// is bound, what was last sent and how many commands succeeded, failed or
// were dropped before reaching the session.
package telemetry

import (
	"sync"
	"time"
)

// NoDevice is the DeviceIndex reported while nothing is bound.
const NoDevice int32 = -1

// Snapshot is one observation of the session.
type Snapshot struct {
	Seq         uint32    `json:"seq"`
	Timestamp   time.Time `json:"ts"`
	SessionID   string    `json:"session_id"`
	Phase       string    `json:"phase"`
	PhaseCode   uint8     `json:"phase_code"`
	DeviceIndex int32     `json:"device_index"`
	DeviceName  string    `json:"device_name,omitempty"`
	Intensity   float32   `json:"intensity"`
	Commands    uint64    `json:"commands"`
	Failures    uint64    `json:"failures"`
	Dropped     uint64    `json:"dropped"`
}

// Board holds the latest Snapshot. Writers are the session loop, readers
// are publishers. A nil *Board ignores updates.
type Board struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewBoard returns a board with no bound device.
func NewBoard() *Board {
	return &Board{snap: Snapshot{DeviceIndex: NoDevice}}
}

// Update applies fn to the current snapshot under the write lock.
func (b *Board) Update(fn func(*Snapshot)) {
	if b == nil {
		return
	}
	b.mu.Lock()
	fn(&b.snap)
	b.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (b *Board) Snapshot() Snapshot {
	if b == nil {
		return Snapshot{DeviceIndex: NoDevice}
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}
