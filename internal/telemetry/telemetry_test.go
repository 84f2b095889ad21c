// SPDX-License-Identifier: MIT
package telemetry

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type recordingSink struct {
	mu     sync.Mutex
	snaps  []Snapshot
	closed bool
	got    chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{got: make(chan struct{}, 64)}
}

func (r *recordingSink) Send(s Snapshot) error {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	select {
	case r.got <- struct{}{}:
	default:
	}
	return nil
}

func (r *recordingSink) Close() error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	return nil
}

func (r *recordingSink) snapshots() []Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Snapshot(nil), r.snaps...)
}

func TestBoardUpdateAndSnapshot(t *testing.T) {
	b := NewBoard()
	if got := b.Snapshot().DeviceIndex; got != NoDevice {
		t.Errorf("New board DeviceIndex = %d, want %d", got, NoDevice)
	}

	b.Update(func(s *Snapshot) {
		s.DeviceIndex = 2
		s.Intensity = 0.5
		s.Commands++
	})

	snap := b.Snapshot()
	if snap.DeviceIndex != 2 || snap.Intensity != 0.5 || snap.Commands != 1 {
		t.Errorf("Unexpected snapshot: %+v", snap)
	}
}

func TestNilBoard(t *testing.T) {
	var b *Board
	b.Update(func(s *Snapshot) { t.Error("Update on nil board should not call fn") })
	if got := b.Snapshot().DeviceIndex; got != NoDevice {
		t.Errorf("Nil board DeviceIndex = %d, want %d", got, NoDevice)
	}
}

func TestEncodePacket(t *testing.T) {
	ts := time.Unix(1700000000, 42)
	snap := Snapshot{
		Seq:         7,
		Timestamp:   ts,
		PhaseCode:   4,
		DeviceIndex: -1,
		Intensity:   0.525,
		Commands:    10,
		Failures:    2,
		Dropped:     3,
	}

	var buf bytes.Buffer
	if err := EncodePacket(&buf, snap); err != nil {
		t.Fatalf("EncodePacket failed: %v", err)
	}
	if buf.Len() != PacketSize {
		t.Fatalf("Packet size = %d, want %d", buf.Len(), PacketSize)
	}

	data := buf.Bytes()
	if got := binary.BigEndian.Uint32(data[0:4]); got != 7 {
		t.Errorf("seq = %d, want 7", got)
	}
	if got := int64(binary.BigEndian.Uint64(data[4:12])); got != ts.UnixNano() {
		t.Errorf("ts = %d, want %d", got, ts.UnixNano())
	}
	if data[12] != 4 {
		t.Errorf("phase = %d, want 4", data[12])
	}
	if got := int32(binary.BigEndian.Uint32(data[13:17])); got != -1 {
		t.Errorf("device = %d, want -1", got)
	}

	var p wirePacket
	if err := binary.Read(bytes.NewReader(data), binary.BigEndian, &p); err != nil {
		t.Fatalf("binary.Read failed: %v", err)
	}
	if p.Intensity != 0.525 || p.Commands != 10 || p.Failures != 2 || p.Dropped != 3 {
		t.Errorf("Unexpected decoded packet: %+v", p)
	}
}

func TestUDPSinkDelivers(t *testing.T) {
	ln, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatalf("ListenUDP failed: %v", err)
	}
	defer ln.Close()

	sink, err := NewUDPSink(ln.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewUDPSink failed: %v", err)
	}

	if err := sink.Send(Snapshot{Seq: 3, Timestamp: time.Now(), DeviceIndex: 1}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	buf := make([]byte, 128)
	_ = ln.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := ln.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP failed: %v", err)
	}
	if n != PacketSize {
		t.Fatalf("Received %d bytes, want %d", n, PacketSize)
	}
	if got := binary.BigEndian.Uint32(buf[0:4]); got != 3 {
		t.Errorf("seq = %d, want 3", got)
	}

	if err := sink.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if err := sink.Send(Snapshot{}); err == nil {
		t.Error("Send after Close should fail")
	}
}

func TestWebSocketSinkBroadcast(t *testing.T) {
	sink, err := NewWebSocketSink("127.0.0.1:0")
	if err != nil {
		t.Fatalf("NewWebSocketSink failed: %v", err)
	}
	defer sink.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+sink.Addr().String()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for sink.Clients() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if sink.Clients() != 1 {
		t.Fatalf("Clients = %d, want 1", sink.Clients())
	}

	if err := sink.Send(Snapshot{Seq: 9, Phase: "active", DeviceIndex: 4, DeviceName: "Lush"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got Snapshot
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("ReadJSON failed: %v", err)
	}
	if got.Seq != 9 || got.Phase != "active" || got.DeviceName != "Lush" {
		t.Errorf("Unexpected snapshot: %+v", got)
	}
}

func TestPublisherValidation(t *testing.T) {
	if _, err := NewPublisher(time.Millisecond, nil, newRecordingSink()); err == nil {
		t.Error("Expected error for nil board")
	}
	if _, err := NewPublisher(time.Millisecond, NewBoard()); err == nil {
		t.Error("Expected error without sinks")
	}

	p, err := NewPublisher(0, NewBoard(), newRecordingSink())
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	if p.interval != DefaultInterval {
		t.Errorf("interval = %s, want %s", p.interval, DefaultInterval)
	}
}

func TestPublisherLifecycle(t *testing.T) {
	board := NewBoard()
	board.Update(func(s *Snapshot) { s.Phase = "active" })
	sink := newRecordingSink()

	p, err := NewPublisher(5*time.Millisecond, board, sink)
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}

	p.Start()
	p.Start()
	for range 3 {
		select {
		case <-sink.got:
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for snapshots")
		}
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("Second Stop failed: %v", err)
	}

	snaps := sink.snapshots()
	for i, s := range snaps {
		if s.Seq != uint32(i+1) {
			t.Errorf("snapshot %d has Seq %d", i, s.Seq)
		}
		if s.Phase != "active" {
			t.Errorf("snapshot %d has Phase %q", i, s.Phase)
		}
	}

	if err := p.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if len(sink.snapshots()) != len(snaps)+1 {
		t.Error("Close should publish one final snapshot")
	}
	if !sink.closed {
		t.Error("Close should close sinks")
	}
}
