// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package websocket

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/mapsync/internal/session"
)

// testStream is the server side of one client under test.
type testStream struct {
	updates chan session.View

	mu           sync.Mutex
	events       []string
	eventErr     error
	unsubscribed chan bool
	once         sync.Once
}

func newTestStream() *testStream {
	return &testStream{
		updates:      make(chan session.View, 4),
		unsubscribed: make(chan bool),
	}
}

func (s *testStream) unsubscribe() {
	s.once.Do(func() { close(s.unsubscribed) })
}

func (s *testStream) onEvent(eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, eventType)
	return s.eventErr
}

func (s *testStream) recorded() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.events...)
}

// setupClientServer upgrades each request and hands the connection to a
// Client bound to stream. The pumps own the connection afterwards.
func setupClientServer(t *testing.T, stream *testStream, handler EventHandler) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		NewClient(conn, stream.updates, stream.unsubscribe, handler).Start()
	}))
}

// dialWebSocket establishes a WebSocket connection to the test server
func dialWebSocket(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if resp != nil && resp.Body != nil {
		defer resp.Body.Close()
	}
	if err != nil {
		t.Fatalf("Failed to dial websocket: %v", err)
	}
	return conn
}

// waitForChannel waits for a channel signal with timeout
func waitForChannel(t *testing.T, ch <-chan bool, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
		// Success
	case <-time.After(timeout):
		t.Errorf("%s: timeout after %v", msg, timeout)
	}
}

type received struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func readMessage(t *testing.T, conn *websocket.Conn) received {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg received
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal %s: %v", raw, err)
	}
	return msg
}

func writeJSON(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}
}

func TestClient_Constants(t *testing.T) {
	if writeWait != 10*time.Second {
		t.Errorf("Expected writeWait 10s, got %v", writeWait)
	}
	if pongWait != 60*time.Second {
		t.Errorf("Expected pongWait 60s, got %v", pongWait)
	}
	if pingPeriod >= pongWait {
		t.Errorf("pingPeriod %v must be shorter than pongWait %v", pingPeriod, pongWait)
	}
}

func TestNewClient_UniqueIDs(t *testing.T) {
	stream := newTestStream()
	a := NewClient(nil, stream.updates, stream.unsubscribe, nil)
	b := NewClient(nil, stream.updates, stream.unsubscribe, nil)

	if a.ID() == b.ID() {
		t.Errorf("Expected unique client IDs, both were %d", a.ID())
	}
	if b.ID() <= a.ID() {
		t.Errorf("Expected increasing IDs, got %d then %d", a.ID(), b.ID())
	}
}

func TestClient_Send_FullBuffer(t *testing.T) {
	stream := newTestStream()
	client := NewClient(nil, stream.updates, stream.unsubscribe, nil)

	for i := 0; i < sendBuffer; i++ {
		if !client.Send(Message{Type: MessageTypePong}) {
			t.Fatalf("Send %d rejected before buffer was full", i)
		}
	}
	if client.Send(Message{Type: MessageTypePong}) {
		t.Error("Send should report false once the buffer is full")
	}
}

func TestClient_ForwardsViews(t *testing.T) {
	stream := newTestStream()
	server := setupClientServer(t, stream, stream.onEvent)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	stream.updates <- session.View{ID: "session-1", Revision: 3}

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeView {
		t.Fatalf("Expected type %q, got %q", MessageTypeView, msg.Type)
	}
	var view struct {
		ID       string `json:"id"`
		Revision uint64 `json:"revision"`
	}
	if err := json.Unmarshal(msg.Data, &view); err != nil {
		t.Fatalf("Unmarshal view: %v", err)
	}
	if view.ID != "session-1" || view.Revision != 3 {
		t.Errorf("Unexpected view %+v", view)
	}
}

func TestClient_PingPong(t *testing.T) {
	stream := newTestStream()
	server := setupClientServer(t, stream, stream.onEvent)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	writeJSON(t, conn, map[string]string{"type": MessageTypePing})

	if msg := readMessage(t, conn); msg.Type != MessageTypePong {
		t.Errorf("Expected pong, got %q", msg.Type)
	}
}

func TestClient_Event(t *testing.T) {
	stream := newTestStream()
	server := setupClientServer(t, stream, stream.onEvent)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	writeJSON(t, conn, map[string]interface{}{
		"type": MessageTypeEvent,
		"data": map[string]string{"type": "dragstart"},
	})
	// A ping after the event orders the assertions: once the pong
	// arrives the event has been handled.
	writeJSON(t, conn, map[string]string{"type": MessageTypePing})

	if msg := readMessage(t, conn); msg.Type != MessageTypePong {
		t.Fatalf("Expected pong, got %q", msg.Type)
	}
	events := stream.recorded()
	if len(events) != 1 || events[0] != "dragstart" {
		t.Errorf("Expected [dragstart], got %v", events)
	}
}

func TestClient_EventErrors(t *testing.T) {
	tests := []struct {
		name     string
		handler  func(*testStream) EventHandler
		message  interface{}
		wantCode string
	}{
		{
			name:     "rejected by handler",
			handler:  func(s *testStream) EventHandler { s.eventErr = errors.New("unknown event"); return s.onEvent },
			message:  map[string]interface{}{"type": MessageTypeEvent, "data": map[string]string{"type": "mousemove"}},
			wantCode: "INVALID_EVENT",
		},
		{
			name:     "missing event type",
			handler:  func(s *testStream) EventHandler { return s.onEvent },
			message:  map[string]interface{}{"type": MessageTypeEvent, "data": map[string]string{}},
			wantCode: "INVALID_EVENT",
		},
		{
			name:     "read-only stream",
			handler:  func(*testStream) EventHandler { return nil },
			message:  map[string]interface{}{"type": MessageTypeEvent, "data": map[string]string{"type": "tick"}},
			wantCode: "READ_ONLY",
		},
		{
			name:     "unknown message type",
			handler:  func(s *testStream) EventHandler { return s.onEvent },
			message:  map[string]string{"type": "subscribe"},
			wantCode: "UNKNOWN_TYPE",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream := newTestStream()
			server := setupClientServer(t, stream, tt.handler(stream))
			defer server.Close()

			conn := dialWebSocket(t, server)
			defer conn.Close()

			writeJSON(t, conn, tt.message)

			msg := readMessage(t, conn)
			if msg.Type != MessageTypeError {
				t.Fatalf("Expected error message, got %q", msg.Type)
			}
			var data ErrorData
			if err := json.Unmarshal(msg.Data, &data); err != nil {
				t.Fatalf("Unmarshal error data: %v", err)
			}
			if data.Code != tt.wantCode {
				t.Errorf("Expected code %q, got %q (%s)", tt.wantCode, data.Code, data.Message)
			}
		})
	}
}

func TestClient_InvalidJSON(t *testing.T) {
	stream := newTestStream()
	server := setupClientServer(t, stream, stream.onEvent)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != MessageTypeError {
		t.Errorf("Expected error message, got %q", msg.Type)
	}
}

func TestClient_SessionClosedSendsCloseFrame(t *testing.T) {
	stream := newTestStream()
	server := setupClientServer(t, stream, stream.onEvent)
	defer server.Close()

	conn := dialWebSocket(t, server)
	defer conn.Close()

	close(stream.updates)

	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected normal close, got %v", err)
	}
}

func TestClient_DisconnectUnsubscribes(t *testing.T) {
	stream := newTestStream()
	server := setupClientServer(t, stream, stream.onEvent)
	defer server.Close()

	conn := dialWebSocket(t, server)
	conn.Close()

	waitForChannel(t, stream.unsubscribed, 2*time.Second, "unsubscribe after disconnect")
}
