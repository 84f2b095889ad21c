// SPDX-License-Identifier: MIT
package telemetry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sync"

	"bassmonitor/internal/log"
)

/*
UDP packet (BigEndian, 45 bytes)

|<- 4 ->|<- 8 ->|<- 1 ->|<- 4 ->|<-- 4 -->|<- 8 -->|<- 8 -->|<- 8 ->|
+-------+-------+-------+-------+---------+--------+--------+-------+
|  seq  |  ts   | phase | device|intensity|commands|failures|dropped|
|uint32 | int64 | uint8 | int32 | float32 | uint64 | uint64 | uint64|
+-------+-------+-------+-------+---------+--------+--------+-------+

ts is nanoseconds since the Unix epoch; device is -1 when nothing is bound.
*/

// PacketSize is the encoded size of one snapshot.
const PacketSize = 45

type wirePacket struct {
	Seq       uint32
	Timestamp int64
	Phase     uint8
	Device    int32
	Intensity float32
	Commands  uint64
	Failures  uint64
	Dropped   uint64
}

// EncodePacket writes s into buf in the UDP wire format.
func EncodePacket(buf *bytes.Buffer, s Snapshot) error {
	p := wirePacket{
		Seq:       s.Seq,
		Timestamp: s.Timestamp.UnixNano(),
		Phase:     s.PhaseCode,
		Device:    s.DeviceIndex,
		Intensity: s.Intensity,
		Commands:  s.Commands,
		Failures:  s.Failures,
		Dropped:   s.Dropped,
	}
	return binary.Write(buf, binary.BigEndian, &p)
}

// UDPSender sends datagrams to a fixed target.
type UDPSender struct {
	conn   *net.UDPConn
	mu     sync.Mutex
	closed bool
}

// NewUDPSender dials targetAddress ("host:port").
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP target address '%s': %w", targetAddress, err)
	}

	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial UDP for target '%s': %w", targetAddress, err)
	}

	log.Infof("Telemetry: UDP sender connected to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn}, nil
}

// Send transmits data as one datagram.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.New("UDP sender is closed")
	}
	if _, err := s.conn.Write(data); err != nil {
		return fmt.Errorf("failed to send UDP packet: %w", err)
	}
	return nil
}

// Close closes the connection. Further sends fail.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close UDP connection: %w", err)
	}
	return nil
}

// UDPSink packs snapshots into binary packets and sends them over UDP.
type UDPSink struct {
	sender *UDPSender
	buf    bytes.Buffer
}

// NewUDPSink creates a sink sending to targetAddress.
func NewUDPSink(targetAddress string) (*UDPSink, error) {
	sender, err := NewUDPSender(targetAddress)
	if err != nil {
		return nil, err
	}
	return &UDPSink{sender: sender}, nil
}

// Send encodes and transmits s. Only the publisher goroutine calls Send.
func (u *UDPSink) Send(s Snapshot) error {
	u.buf.Reset()
	if err := EncodePacket(&u.buf, s); err != nil {
		return fmt.Errorf("pack snapshot %d: %w", s.Seq, err)
	}
	return u.sender.Send(u.buf.Bytes())
}

// Close closes the underlying sender.
func (u *UDPSink) Close() error {
	return u.sender.Close()
}

var _ Sink = (*UDPSink)(nil)
