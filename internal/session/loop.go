// SPDX-License-Identifier: MIT
package session

import (
	"context"
	"time"

	"bassmonitor/internal/intensity"
	"bassmonitor/internal/log"
	"bassmonitor/internal/telemetry"
)

// Interval returns the command tick period for sendRate commands per second.
func Interval(sendRate float64) time.Duration {
	if sendRate <= 0 {
		return time.Second
	}
	return time.Duration(float64(time.Second) / sendRate)
}

// Run drives s from rx at sendRate until the session terminates, rx is
// closed or ctx is done. s must have completed Connect and StartScan.
//
// Run returns nil when rx closes or ctx is cancelled and ErrDisconnected
// when the server goes away, whether or not it said goodbye.
func Run(ctx context.Context, s *Session, rx *intensity.Receiver, sendRate float64) error {
	ticker := time.NewTicker(Interval(sendRate))
	defer ticker.Stop()
	return run(ctx, s, rx, ticker.C)
}

func run(ctx context.Context, s *Session, rx *intensity.Receiver, ticks <-chan time.Time) error {
	if !s.advance(Active) {
		return ErrDisconnected
	}
	log.Infof("Session %s: Event loop running", s.id)

	events := s.client.Events()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				log.Warnf("Session %s: Event stream ended", s.id)
				s.OnServerDisconnect()
				return ErrDisconnected
			}
			s.Handle(ev)
			if s.phase == Terminated {
				return ErrDisconnected
			}

		case <-ticks:
			v, status := rx.TryReceive()
			switch status {
			case intensity.Received:
				s.Drive(ctx, v)
			case intensity.Closed:
				log.Infof("Session %s: Intensity source closed", s.id)
				return nil
			}
			s.publish(func(snap *telemetry.Snapshot) { snap.Dropped = rx.Dropped() })

		case <-ctx.Done():
			log.Infof("Session %s: Stopping: %v", s.id, context.Cause(ctx))
			return nil
		}
	}
}
