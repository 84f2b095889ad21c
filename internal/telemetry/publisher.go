// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"sync"
	"time"

	"bassmonitor/internal/log"
)

// DefaultInterval is used when a publisher is created with a non-positive
// interval.
const DefaultInterval = 100 * time.Millisecond

// Publisher periodically reads the Board and fans the snapshot out to its
// sinks. It runs in its own goroutine between Start and Stop.
type Publisher struct {
	board    *Board
	sinks    []Sink
	interval time.Duration
	now      func() time.Time

	mu       sync.Mutex
	ticker   *time.Ticker
	doneChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	seq uint32
}

// NewPublisher creates a publisher for board.
func NewPublisher(interval time.Duration, board *Board, sinks ...Sink) (*Publisher, error) {
	if board == nil {
		return nil, errors.New("telemetry: board cannot be nil")
	}
	if len(sinks) == 0 {
		return nil, errors.New("telemetry: at least one sink is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
		log.Warnf("Telemetry: Invalid interval provided, defaulting to %s", interval)
	}

	return &Publisher{
		board:    board,
		sinks:    sinks,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Start launches the publishing goroutine. Calling Start while running is a
// no-op.
func (p *Publisher) Start() {
	p.mu.Lock()
	if p.ticker != nil {
		p.mu.Unlock()
		log.Warnf("Telemetry: Start called but already running.")
		return
	}

	p.ticker = time.NewTicker(p.interval)
	p.doneChan = make(chan struct{})
	p.stopOnce = sync.Once{}
	ticker := p.ticker
	doneChan := p.doneChan
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Debugf("Telemetry: Publisher started (Interval: %s, Sinks: %d)", p.interval, len(p.sinks))
		for {
			select {
			case <-ticker.C:
				p.publish()
			case <-doneChan:
				return
			}
		}
	}()
}

// Stop ends the publishing goroutine and waits for it. It is safe to call
// more than once.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if p.ticker == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopOnce.Do(func() {
		close(p.doneChan)
		p.ticker.Stop()
		p.ticker = nil
	})
	p.mu.Unlock()

	p.wg.Wait()
	log.Debugf("Telemetry: Publisher stopped after %d snapshots", p.seq)
	return nil
}

// Close stops the publisher, sends one final snapshot and closes every sink.
func (p *Publisher) Close() error {
	err := p.Stop()
	p.publish()
	for _, s := range p.sinks {
		err = errors.Join(err, s.Close())
	}
	return err
}

func (p *Publisher) publish() {
	p.seq++
	snap := p.board.Snapshot()
	snap.Seq = p.seq
	snap.Timestamp = p.now()

	for _, s := range p.sinks {
		if err := s.Send(snap); err != nil {
			log.Debugf("Telemetry: Sink %T failed on #%d: %v", s, snap.Seq, err)
		}
	}
}

var _ interface{ Close() error } = (*Publisher)(nil)
