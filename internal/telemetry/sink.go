// SPDX-License-Identifier: MIT
package telemetry

import (
	"bassmonitor/internal/log"
)

// Sink receives snapshots from a Publisher. Implementations must be safe for
// use from the publisher goroutine while Close runs on another.
type Sink interface {
	Send(s Snapshot) error
	Close() error
}

// LogSink writes each snapshot to the debug log.
type LogSink struct{}

// NewLogSink creates a LogSink.
func NewLogSink() *LogSink {
	log.Debugf("Telemetry: Using log sink")
	return &LogSink{}
}

// Send logs s at debug level.
func (LogSink) Send(s Snapshot) error {
	log.Debugf("Telemetry: #%d %s device=%d intensity=%.3f commands=%d failures=%d dropped=%d",
		s.Seq, s.Phase, s.DeviceIndex, s.Intensity, s.Commands, s.Failures, s.Dropped)
	return nil
}

// Close is a no-op.
func (LogSink) Close() error { return nil }

var _ Sink = (*LogSink)(nil)
