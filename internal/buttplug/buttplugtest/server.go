// SPDX-License-Identifier: MIT

// Package buttplugtest provides an in-process Buttplug server for tests.
package buttplugtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DeviceSpec describes a device the fake server reports.
type DeviceSpec struct {
	Index     uint32
	Name      string
	Vibrators int
	// Legacy advertises VibrateCmd instead of ScalarCmd.
	Legacy bool
}

// Received is a message the server got from the client.
type Received struct {
	Type    string
	Payload json.RawMessage
}

// Server is a scripted Buttplug server. Exported fields must be set before
// the client connects.
type Server struct {
	URL string

	MaxPingTime  uint32
	FailScan     bool
	FailCommands bool
	Silent       bool // Accept and record, never reply

	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	conn      *websocket.Conn
	devices   []DeviceSpec
	received  []Received
	connected chan struct{}
	once      sync.Once
	changed   chan struct{}
}

// NewServer starts a fake server reporting the given devices on connect.
func NewServer(devices ...DeviceSpec) *Server {
	s := &Server{
		devices:   devices,
		connected: make(chan struct{}),
		changed:   make(chan struct{}, 1),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = "ws" + strings.TrimPrefix(s.srv.URL, "http")
	return s
}

// Close shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.mu.Unlock()
	s.srv.Close()
}

// WaitConnected blocks until a client completes the websocket upgrade.
func (s *Server) WaitConnected(timeout time.Duration) bool {
	select {
	case <-s.connected:
		return true
	case <-time.After(timeout):
		return false
	}
}

// AddDevice registers d and announces it to the connected client.
func (s *Server) AddDevice(d DeviceSpec) {
	s.mu.Lock()
	s.devices = append(s.devices, d)
	s.mu.Unlock()
	s.push("DeviceAdded", withID(deviceJSON(d), 0))
}

// RemoveDevice forgets the device at index and announces its removal.
func (s *Server) RemoveDevice(index uint32) {
	s.mu.Lock()
	for i, d := range s.devices {
		if d.Index == index {
			s.devices = append(s.devices[:i], s.devices[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	s.push("DeviceRemoved", map[string]any{"Id": 0, "DeviceIndex": index})
}

// FinishScanning announces the end of a scan.
func (s *Server) FinishScanning() {
	s.push("ScanningFinished", map[string]any{"Id": 0})
}

// Disconnect closes the connection with a normal close frame.
func (s *Server) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"),
		time.Now().Add(time.Second),
	)
	s.conn.Close()
}

// Drop closes the underlying connection without a close frame.
func (s *Server) Drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.UnderlyingConn().Close()
	}
}

// Received returns the messages of the given type seen so far, or all of
// them when msgType is empty.
func (s *Server) Received(msgType string) []Received {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Received
	for _, r := range s.received {
		if msgType == "" || r.Type == msgType {
			out = append(out, r)
		}
	}
	return out
}

// WaitFor blocks until at least n messages of msgType were received.
func (s *Server) WaitFor(msgType string, n int, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if len(s.Received(msgType)) >= n {
			return true
		}
		select {
		case <-s.changed:
		case <-deadline:
			return false
		}
	}
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	s.once.Do(func() { close(s.connected) })

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var entries []map[string]json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			continue
		}
		for _, entry := range entries {
			for msgType, payload := range entry {
				s.record(msgType, payload)
				if !s.Silent {
					s.reply(msgType, payload)
				}
			}
		}
	}
}

func (s *Server) record(msgType string, payload json.RawMessage) {
	s.mu.Lock()
	s.received = append(s.received, Received{Type: msgType, Payload: payload})
	s.mu.Unlock()

	select {
	case s.changed <- struct{}{}:
	default:
	}
}

func (s *Server) reply(msgType string, payload json.RawMessage) {
	var hdr struct{ Id uint32 }
	_ = json.Unmarshal(payload, &hdr)
	id := hdr.Id

	switch msgType {
	case "RequestServerInfo":
		s.push("ServerInfo", map[string]any{
			"Id":             id,
			"ServerName":     "buttplugtest",
			"MessageVersion": 3,
			"MaxPingTime":    s.MaxPingTime,
		})
	case "RequestDeviceList":
		s.mu.Lock()
		devices := make([]map[string]any, 0, len(s.devices))
		for _, d := range s.devices {
			devices = append(devices, deviceJSON(d))
		}
		s.mu.Unlock()
		s.push("DeviceList", map[string]any{"Id": id, "Devices": devices})
	case "StartScanning":
		if s.FailScan {
			s.pushError(id, "no device communication managers available")
			return
		}
		s.pushOk(id)
	case "ScalarCmd", "VibrateCmd":
		if s.FailCommands {
			s.pushError(id, "device disconnected")
			return
		}
		s.pushOk(id)
	case "StopScanning", "StopDeviceCmd", "StopAllDevices", "Ping":
		s.pushOk(id)
	default:
		s.pushError(id, "unknown message "+msgType)
	}
}

func (s *Server) pushOk(id uint32) {
	s.push("Ok", map[string]any{"Id": id})
}

func (s *Server) pushError(id uint32, msg string) {
	s.push("Error", map[string]any{"Id": id, "ErrorMessage": msg, "ErrorCode": 4})
}

func (s *Server) push(msgType string, payload any) {
	data, err := json.Marshal([]map[string]any{{msgType: payload}})
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return
	}
	_ = s.conn.WriteMessage(websocket.TextMessage, data)
}

func deviceJSON(d DeviceSpec) map[string]any {
	messages := map[string]any{"StopDeviceCmd": map[string]any{}}
	if d.Legacy {
		messages["VibrateCmd"] = map[string]any{"FeatureCount": d.Vibrators}
	} else if d.Vibrators > 0 {
		attrs := make([]map[string]any, d.Vibrators)
		for i := range attrs {
			attrs[i] = map[string]any{"FeatureDescriptor": "", "StepCount": 20, "ActuatorType": "Vibrate"}
		}
		messages["ScalarCmd"] = attrs
	}
	return map[string]any{
		"DeviceName":     d.Name,
		"DeviceIndex":    d.Index,
		"DeviceMessages": messages,
	}
}

func withID(m map[string]any, id uint32) map[string]any {
	m["Id"] = id
	return m
}
