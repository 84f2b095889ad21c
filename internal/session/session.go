// SPDX-License-Identifier: MIT

// Package session drives one remote actuator from a stream of intensity
// values. A Session tracks the connection phase and the single bound
// device; Run multiplexes server events with a fixed-rate command tick.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bassmonitor/internal/buttplug"
	"bassmonitor/internal/log"
	"bassmonitor/internal/telemetry"

	"github.com/google/uuid"
)

const (
	DefaultCommandTimeout = 500 * time.Millisecond
	shutdownTimeout       = time.Second
)

var (
	// ErrConnect wraps the cause of a failed connect.
	ErrConnect = errors.New("session: connect failed")
	// ErrScan wraps the cause of a failed scan request.
	ErrScan = errors.New("session: scan failed")
	// ErrDisconnected is returned by Run when the server went away.
	ErrDisconnected = errors.New("session: server disconnected")
)

// Client is the remote control protocol as seen by a Session.
type Client interface {
	Connect(ctx context.Context) error
	StartScanning(ctx context.Context) error
	Devices() []buttplug.Device
	Events() <-chan buttplug.Event
	Vibrate(ctx context.Context, d buttplug.Device, speed float64) error
	Stop(ctx context.Context, d buttplug.Device) error
	Close() error
}

var _ Client = (*buttplug.Client)(nil)

// Options configures a Session.
type Options struct {
	// CommandTimeout bounds each vibrate call.
	CommandTimeout time.Duration
	// Board receives status updates. May be nil.
	Board *telemetry.Board
}

// Session owns the connection phase and device binding. It is not safe for
// concurrent use; Run is its only driver once connected.
type Session struct {
	id      string
	client  Client
	timeout time.Duration
	board   *telemetry.Board

	phase   Phase
	binding Binding

	commands uint64
	failures uint64
}

// New creates a Disconnected session over client.
func New(client Client, opts Options) *Session {
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = DefaultCommandTimeout
	}
	s := &Session{
		id:      uuid.NewString(),
		client:  client,
		timeout: opts.CommandTimeout,
		board:   opts.Board,
		phase:   Disconnected,
		binding: Unbound{},
	}
	s.publish(func(snap *telemetry.Snapshot) { snap.SessionID = s.id })
	return s
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return s.phase }

// Binding returns the current device binding.
func (s *Session) Binding() Binding { return s.binding }

// Commands returns the number of vibrate commands attempted and how many of
// them failed.
func (s *Session) Commands() (sent, failed uint64) { return s.commands, s.failures }

// Connect establishes the server connection. Any failure terminates the
// session.
func (s *Session) Connect(ctx context.Context) error {
	if !s.advance(Connecting) {
		return fmt.Errorf("session %s: connect in phase %s", s.id, s.phase)
	}

	if err := s.client.Connect(ctx); err != nil {
		log.Errorf("Session %s: Connection failed: %v", s.id, err)
		s.terminate()
		return fmt.Errorf("%w: %w", ErrConnect, err)
	}

	s.advance(Connected)
	log.Infof("Session %s: Connected", s.id)
	return nil
}

// StartScan requests device discovery and offers every device the server
// already knows to OnDeviceAdded. Any failure terminates the session.
func (s *Session) StartScan(ctx context.Context) error {
	if s.phase != Connected {
		return fmt.Errorf("session %s: scan in phase %s", s.id, s.phase)
	}

	if err := s.client.StartScanning(ctx); err != nil {
		log.Errorf("Session %s: Scan failed: %v", s.id, err)
		s.terminate()
		return fmt.Errorf("%w: %w", ErrScan, err)
	}

	s.advance(Scanning)
	log.Infof("Session %s: Scanning for devices", s.id)

	for _, d := range s.client.Devices() {
		s.OnDeviceAdded(d)
	}
	return nil
}

// OnDeviceAdded binds d when it can vibrate, superseding any bound device.
func (s *Session) OnDeviceAdded(d buttplug.Device) {
	if s.phase == Terminated {
		return
	}

	next, changed := bindNewest(s.binding, d)
	if !changed {
		log.Debugf("Session %s: Ignoring %s without vibration", s.id, d)
		return
	}
	s.rebind(next)
	log.Infof("Session %s: Bound %s", s.id, d)
}

// OnDeviceRemoved unbinds d when it is the bound device.
func (s *Session) OnDeviceRemoved(d buttplug.Device) {
	if s.phase == Terminated {
		return
	}

	next, changed := unbindRemoved(s.binding, d)
	if !changed {
		log.Debugf("Session %s: %s removed", s.id, d)
		return
	}
	s.rebind(next)
	log.Infof("Session %s: Unbound %s", s.id, d)
}

// OnServerDisconnect terminates the session.
func (s *Session) OnServerDisconnect() {
	if s.phase == Terminated {
		return
	}
	log.Infof("Session %s: Server disconnected", s.id)
	s.terminate()
}

// Drive sends intensity to the bound device. Without a bound device, or
// once terminated, it does nothing. A failed command is logged and counted;
// the session stays usable.
func (s *Session) Drive(ctx context.Context, intensity float32) {
	if s.phase == Terminated {
		return
	}
	bound, ok := s.binding.(Bound)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	s.commands++
	err := s.client.Vibrate(ctx, bound.Device, float64(intensity))
	if err != nil {
		s.failures++
		log.Warnf("Session %s: Vibrate %s failed: %v", s.id, bound.Device, err)
	}

	s.publish(func(snap *telemetry.Snapshot) {
		snap.Commands = s.commands
		snap.Failures = s.failures
		if err == nil {
			snap.Intensity = intensity
		}
	})
}

// Handle dispatches a server event to the matching transition.
func (s *Session) Handle(ev buttplug.Event) {
	switch e := ev.(type) {
	case buttplug.ServerDisconnect:
		s.OnServerDisconnect()
	case buttplug.DeviceAdded:
		s.OnDeviceAdded(e.Device)
	case buttplug.DeviceRemoved:
		s.OnDeviceRemoved(e.Device)
	default:
		log.Debugf("Session %s: Ignoring %s", s.id, buttplug.EventName(ev))
	}
}

// Close stops the bound device, closes the client and terminates the
// session. It is safe to call more than once.
func (s *Session) Close() error {
	if bound, ok := s.binding.(Bound); ok {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.client.Stop(ctx, bound.Device); err != nil {
			log.Debugf("Session %s: Stop %s: %v", s.id, bound.Device, err)
		}
		cancel()
		s.rebind(Unbound{})
	}
	s.terminate()
	return s.client.Close()
}

func (s *Session) advance(to Phase) bool {
	if !canAdvance(s.phase, to) {
		return false
	}
	s.phase = to
	s.publish(func(snap *telemetry.Snapshot) {
		snap.Phase = to.String()
		snap.PhaseCode = uint8(to)
	})
	return true
}

func (s *Session) terminate() {
	s.advance(Terminated)
}

func (s *Session) rebind(b Binding) {
	s.binding = b
	s.publish(func(snap *telemetry.Snapshot) {
		switch b := b.(type) {
		case Bound:
			snap.DeviceIndex = int32(b.Device.Index)
			snap.DeviceName = b.Device.Name
		default:
			snap.DeviceIndex = telemetry.NoDevice
			snap.DeviceName = ""
			snap.Intensity = 0
		}
	})
}

func (s *Session) publish(fn func(*telemetry.Snapshot)) {
	s.board.Update(fn)
}
