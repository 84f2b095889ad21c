// SPDX-License-Identifier: MIT

// Package buttplug is a minimal client for Buttplug/Intiface servers over
// websocket: handshake, scanning, device tracking and vibrate commands.
package buttplug

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"bassmonitor/internal/log"

	"github.com/gorilla/websocket"
)

const (
	// DefaultAddress is where Intiface Central listens out of the box.
	DefaultAddress = "ws://127.0.0.1:12345"

	// DefaultHandshakeTimeout bounds Connect when Options leaves it unset.
	DefaultHandshakeTimeout = 5 * time.Second

	writeTimeout     = 2 * time.Second
	eventBufferSize  = 32
	closeGracePeriod = time.Second
)

var (
	// ErrClosed is returned by requests once the connection has gone away.
	ErrClosed = errors.New("buttplug: connection closed")

	// ErrNotConnected is returned by requests issued before Connect.
	ErrNotConnected = errors.New("buttplug: not connected")
)

// ServerError is an Error reply from the server.
type ServerError struct {
	Code    int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("buttplug: server error %d: %s", e.Code, e.Message)
}

// Options configures a Client.
type Options struct {
	Address          string
	ClientName       string
	HandshakeTimeout time.Duration
}

// Client holds one websocket connection to a Buttplug server. Requests are
// safe for concurrent use. Events are delivered on a single channel that is
// closed when the connection ends.
type Client struct {
	opts Options

	conn      *websocket.Conn
	connected atomic.Bool
	writeMu   sync.Mutex
	nextID    atomic.Uint32

	mu      sync.Mutex
	pending map[uint32]chan Message
	devices map[uint32]Device

	serverName  string
	maxPingTime time.Duration

	events    chan Event
	queue     eventQueue
	quit      chan struct{}
	done      chan struct{}
	closing   atomic.Bool
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewClient creates an unconnected client.
func NewClient(opts Options) *Client {
	if opts.Address == "" {
		opts.Address = DefaultAddress
	}
	if opts.ClientName == "" {
		opts.ClientName = "bassmonitor"
	}
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Client{
		opts:    opts,
		pending: make(map[uint32]chan Message),
		devices: make(map[uint32]Device),
		events:  make(chan Event, eventBufferSize),
		queue:   eventQueue{ready: make(chan struct{}, 1)},
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Connect dials the server, performs the handshake and loads the devices the
// server already knows about, all within the handshake timeout. A Client can
// only be connected once.
func (c *Client) Connect(ctx context.Context) error {
	if c.connected.Load() || c.closing.Load() {
		return errors.New("buttplug: client already used")
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.HandshakeTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, c.opts.Address, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.opts.Address, err)
	}
	c.conn = conn
	c.connected.Store(true)

	c.wg.Add(2)
	go c.readLoop()
	go c.deliverLoop()

	reply, err := c.request(ctx, typeRequestServerInfo, &requestServerInfo{
		ClientName:     c.opts.ClientName,
		MessageVersion: MessageVersion,
	})
	if err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	if reply.Type != typeServerInfo {
		c.Close()
		return fmt.Errorf("handshake: unexpected %s reply", reply.Type)
	}

	var info serverInfo
	if err := reply.decode(&info); err != nil {
		c.Close()
		return fmt.Errorf("handshake: %w", err)
	}
	c.serverName = info.ServerName
	c.maxPingTime = time.Duration(info.MaxPingTime) * time.Millisecond
	log.Infof("Buttplug: Connected to %q at %s (spec v%d)", info.ServerName, c.opts.Address, info.MessageVersion)

	if c.maxPingTime > 0 {
		c.wg.Add(1)
		go c.pingLoop()
	}

	if _, err := c.RequestDeviceList(ctx); err != nil {
		log.Warnf("Buttplug: Initial device list unavailable: %v", err)
	}
	return nil
}

// ServerName returns the name reported during the handshake.
func (c *Client) ServerName() string { return c.serverName }

// Events returns the server event stream. The channel is closed when the
// connection ends. A clean close by the server is reported as
// ServerDisconnect first; an abrupt loss only closes the channel.
func (c *Client) Events() <-chan Event { return c.events }

// StartScanning asks the server to look for devices.
func (c *Client) StartScanning(ctx context.Context) error {
	_, err := c.expectOk(ctx, typeStartScanning, &bare{})
	return err
}

// StopScanning asks the server to stop looking for devices.
func (c *Client) StopScanning(ctx context.Context) error {
	_, err := c.expectOk(ctx, typeStopScanning, &bare{})
	return err
}

// RequestDeviceList refreshes and returns the devices the server reports.
func (c *Client) RequestDeviceList(ctx context.Context) ([]Device, error) {
	reply, err := c.request(ctx, typeRequestDeviceList, &bare{})
	if err != nil {
		return nil, err
	}
	if reply.Type != typeDeviceList {
		return nil, fmt.Errorf("unexpected %s reply to %s", reply.Type, typeRequestDeviceList)
	}

	var list deviceList
	if err := reply.decode(&list); err != nil {
		return nil, err
	}

	c.mu.Lock()
	for _, info := range list.Devices {
		d := parseDevice(info)
		c.devices[d.Index] = d
	}
	c.mu.Unlock()
	return c.Devices(), nil
}

// Devices returns the currently known devices ordered by index.
func (c *Client) Devices() []Device {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Device, 0, len(c.devices))
	for _, d := range c.devices {
		out = append(out, d)
	}
	slices.SortFunc(out, func(a, b Device) int { return cmp.Compare(a.Index, b.Index) })
	return out
}

// Vibrate sets every vibration actuator of d to speed, clamped to [0, 1].
func (c *Client) Vibrate(ctx context.Context, d Device, speed float64) error {
	if !d.CanVibrate() {
		return fmt.Errorf("device %s does not accept vibrate commands", d)
	}
	speed = min(max(speed, 0), 1)

	if d.Legacy {
		cmd := &vibrateCmd{DeviceIndex: d.Index, Speeds: make([]speedSubcommand, len(d.Vibrators))}
		for i, idx := range d.Vibrators {
			cmd.Speeds[i] = speedSubcommand{Index: idx, Speed: speed}
		}
		_, err := c.expectOk(ctx, typeVibrateCmd, cmd)
		return err
	}

	cmd := &scalarCmd{DeviceIndex: d.Index, Scalars: make([]scalarSubcommand, len(d.Vibrators))}
	for i, idx := range d.Vibrators {
		cmd.Scalars[i] = scalarSubcommand{Index: idx, Scalar: speed, ActuatorType: actuatorVibrate}
	}
	_, err := c.expectOk(ctx, typeScalarCmd, cmd)
	return err
}

// Stop halts all output of d.
func (c *Client) Stop(ctx context.Context, d Device) error {
	_, err := c.expectOk(ctx, typeStopDeviceCmd, &deviceCommand{DeviceIndex: d.Index})
	return err
}

// Close sends a close frame, tears down the connection and waits for the
// background goroutines. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		close(c.quit)
		if !c.connected.Load() {
			close(c.events)
			return
		}

		c.writeMu.Lock()
		_ = c.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeTimeout),
		)
		c.writeMu.Unlock()

		select {
		case <-c.done:
		case <-time.After(closeGracePeriod):
		}
		err = c.conn.Close()
		c.wg.Wait()
	})
	return err
}

func (c *Client) expectOk(ctx context.Context, msgType string, payload identified) (Message, error) {
	reply, err := c.request(ctx, msgType, payload)
	if err != nil {
		return reply, err
	}
	if reply.Type != typeOk {
		return reply, fmt.Errorf("unexpected %s reply to %s", reply.Type, msgType)
	}
	return reply, nil
}

func (c *Client) request(ctx context.Context, msgType string, payload identified) (Message, error) {
	if !c.connected.Load() {
		return Message{}, ErrNotConnected
	}

	id := c.nextID.Add(1)
	payload.setID(id)
	reply := make(chan Message, 1)

	c.mu.Lock()
	c.pending[id] = reply
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(msgType, payload); err != nil {
		return Message{}, err
	}

	select {
	case m := <-reply:
		if m.Type == typeError {
			var e errorMessage
			if err := m.decode(&e); err != nil {
				return m, err
			}
			return m, &ServerError{Code: e.ErrorCode, Message: e.ErrorMessage}
		}
		return m, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrClosed
	}
}

func (c *Client) write(msgType string, payload any) error {
	data, err := encodeMessage(msgType, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", msgType, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("write %s: %w", msgType, err)
	}
	return nil
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	defer c.queue.close()
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.finish(err)
			return
		}

		msgs, err := decodeFrame(data)
		if err != nil {
			log.Warnf("Buttplug: Dropping frame: %v", err)
			continue
		}
		for _, m := range msgs {
			c.dispatch(m)
		}
	}
}

// finish classifies how the connection ended.
func (c *Client) finish(err error) {
	if c.closing.Load() {
		log.Debugf("Buttplug: Connection closed locally")
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		log.Infof("Buttplug: Server closed the connection")
		c.emit(ServerDisconnect{})
		return
	}
	log.Warnf("Buttplug: Connection lost: %v", err)
}

func (c *Client) dispatch(m Message) {
	if m.ID != 0 {
		c.mu.Lock()
		reply, ok := c.pending[m.ID]
		c.mu.Unlock()
		if !ok {
			log.Debugf("Buttplug: Reply %s for unknown request %d", m.Type, m.ID)
			return
		}
		select {
		case reply <- m:
		default:
			log.Debugf("Buttplug: Duplicate reply %s for request %d", m.Type, m.ID)
		}
		return
	}

	switch m.Type {
	case typeDeviceAdded:
		var msg deviceAdded
		if err := m.decode(&msg); err != nil {
			log.Warnf("Buttplug: %v", err)
			return
		}
		d := parseDevice(msg.deviceInfo)
		c.mu.Lock()
		c.devices[d.Index] = d
		c.mu.Unlock()
		c.emit(DeviceAdded{Device: d})

	case typeDeviceRemoved:
		var msg deviceRemoved
		if err := m.decode(&msg); err != nil {
			log.Warnf("Buttplug: %v", err)
			return
		}
		c.mu.Lock()
		d, ok := c.devices[msg.DeviceIndex]
		delete(c.devices, msg.DeviceIndex)
		c.mu.Unlock()
		if !ok {
			d = Device{Index: msg.DeviceIndex}
		}
		c.emit(DeviceRemoved{Device: d})

	case typeScanningFinished:
		c.emit(ScanningFinished{})

	default:
		c.emit(Unhandled{Message: m})
	}
}

// emit queues ev for delivery. It never blocks, so replies keep flowing
// while the consumer is busy.
func (c *Client) emit(ev Event) {
	c.queue.push(ev)
}

// deliverLoop forwards queued events to the events channel in order and
// closes it once the read loop has finished and the queue is drained.
func (c *Client) deliverLoop() {
	defer c.wg.Done()
	defer close(c.events)

	for {
		select {
		case <-c.queue.ready:
		case <-c.quit:
			return
		}

		batch, closed := c.queue.drain()
		for _, ev := range batch {
			select {
			case c.events <- ev:
			case <-c.quit:
				return
			}
		}
		if closed {
			return
		}
	}
}

// pingLoop keeps the server's ping watchdog satisfied. A missed ping tears
// the connection down so the event stream ends.
func (c *Client) pingLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.maxPingTime / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.maxPingTime)
			_, err := c.expectOk(ctx, typePing, &bare{})
			cancel()
			if err != nil {
				if !errors.Is(err, ErrClosed) {
					log.Errorf("Buttplug: Ping failed: %v", err)
					c.conn.Close()
				}
				return
			}
		case <-c.quit:
			return
		case <-c.done:
			return
		}
	}
}
