// SPDX-License-Identifier: MIT
package telemetry

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"bassmonitor/internal/log"

	"github.com/gorilla/websocket"
)

const (
	broadcastQueueSize = 64
	clientWriteTimeout = time.Second
)

// WebSocketSink serves snapshots as JSON text frames to every client
// connected to /ws.
type WebSocketSink struct {
	upgrader  websocket.Upgrader
	listener  net.Listener
	server    *http.Server
	clients   map[*websocket.Conn]struct{}
	clientsMu sync.Mutex
	broadcast chan Snapshot
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewWebSocketSink listens on addr and starts serving immediately. Use port
// 0 to pick a free port and Addr to discover it.
func NewWebSocketSink(addr string) (*WebSocketSink, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}

	ws := &WebSocketSink{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		listener:  ln,
		clients:   make(map[*websocket.Conn]struct{}),
		broadcast: make(chan Snapshot, broadcastQueueSize),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", ws.handle)
	ws.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ws.wg.Add(2)
	go func() {
		defer ws.wg.Done()
		log.Infof("Telemetry: WebSocket server listening on %s", ln.Addr())
		if err := ws.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Telemetry: WebSocket server error: %v", err)
		}
	}()
	go ws.broadcastLoop()

	return ws, nil
}

// Addr returns the listening address.
func (ws *WebSocketSink) Addr() net.Addr { return ws.listener.Addr() }

// Clients returns the number of connected clients.
func (ws *WebSocketSink) Clients() int {
	ws.clientsMu.Lock()
	defer ws.clientsMu.Unlock()
	return len(ws.clients)
}

func (ws *WebSocketSink) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warnf("Telemetry: WebSocket upgrade error: %v", err)
		return
	}

	ws.clientsMu.Lock()
	ws.clients[conn] = struct{}{}
	total := len(ws.clients)
	ws.clientsMu.Unlock()
	log.Infof("Telemetry: WebSocket client connected, total: %d", total)

	// Clients never send; the read only detects the disconnect.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				ws.drop(conn)
				return
			}
		}
	}()
}

func (ws *WebSocketSink) drop(conn *websocket.Conn) {
	ws.clientsMu.Lock()
	_, ok := ws.clients[conn]
	delete(ws.clients, conn)
	total := len(ws.clients)
	ws.clientsMu.Unlock()

	if ok {
		conn.Close()
		log.Infof("Telemetry: WebSocket client disconnected, total: %d", total)
	}
}

func (ws *WebSocketSink) broadcastLoop() {
	defer ws.wg.Done()

	for snap := range ws.broadcast {
		ws.clientsMu.Lock()
		for conn := range ws.clients {
			_ = conn.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
			if err := conn.WriteJSON(snap); err != nil {
				log.Debugf("Telemetry: Dropping WebSocket client: %v", err)
				conn.Close()
				delete(ws.clients, conn)
			}
		}
		ws.clientsMu.Unlock()
	}
}

// Send queues s for broadcast. A full queue drops s.
func (ws *WebSocketSink) Send(s Snapshot) error {
	select {
	case ws.broadcast <- s:
	default:
	}
	return nil
}

// Close disconnects all clients and stops the server. Send must not be
// called after Close.
func (ws *WebSocketSink) Close() error {
	var err error
	ws.closeOnce.Do(func() {
		log.Infof("Telemetry: Closing WebSocket server")
		err = ws.server.Close()
		close(ws.broadcast)

		ws.clientsMu.Lock()
		for conn := range ws.clients {
			conn.Close()
		}
		clear(ws.clients)
		ws.clientsMu.Unlock()

		ws.wg.Wait()
	})
	return err
}

var _ Sink = (*WebSocketSink)(nil)
