// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/mapsync/internal/config"
	"github.com/tomtom215/mapsync/internal/models"
	ws "github.com/tomtom215/mapsync/internal/websocket"
)

type streamMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func dialStream(t *testing.T, server *httptest.Server, id, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/sessions/" + id + "/ws"
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return conn, resp, err
}

func readStream(t *testing.T, conn *websocket.Conn) (streamMessage, testView) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	var msg streamMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		t.Fatalf("Unmarshal %s: %v", raw, err)
	}
	var v testView
	if msg.Type == ws.MessageTypeView {
		if err := json.Unmarshal(msg.Data, &v); err != nil {
			t.Fatalf("Unmarshal view: %v", err)
		}
	}
	return msg, v
}

func TestSessionStream_ViewsAndEvents(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{})
	id := decodeView(t, rec).ID

	conn, _, err := dialStream(t, server, id, "http://localhost:5173")
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	msg, first := readStream(t, conn)
	if msg.Type != ws.MessageTypeView || first.ID != id {
		t.Fatalf("Expected initial view for %s, got %s %+v", id, msg.Type, first)
	}

	event := map[string]interface{}{"type": ws.MessageTypeEvent, "data": map[string]string{"type": "pointerdown"}}
	data, _ := json.Marshal(event)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		t.Fatalf("WriteMessage: %v", err)
	}

	for {
		msg, v := readStream(t, conn)
		if msg.Type != ws.MessageTypeView {
			continue
		}
		if v.State.State == "user_controlled" {
			break
		}
	}

	// Unmounting the session closes the stream
	env.do(t, http.MethodDelete, "/api/v1/sessions/"+id, nil)
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline: %v", err)
	}
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Errorf("Expected normal close, got %v", err)
			}
			break
		}
	}
}

func TestSessionStream_RejectsMissingOrigin(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	rec := env.do(t, http.MethodPost, "/api/v1/sessions", models.CreateSessionRequest{})
	id := decodeView(t, rec).ID

	_, resp, err := dialStream(t, server, id, "")
	if err == nil {
		t.Fatal("Expected handshake to fail without Origin")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("Expected 403, got %v", resp)
	}
}

func TestSessionStream_UnknownSession(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	_, resp, err := dialStream(t, server, "4a7c1f0e-8d3b-4c2a-9f6e-1b2c3d4e5f60", "http://localhost")
	if err == nil {
		t.Fatal("Expected handshake to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404, got %v", resp)
	}
}

func TestCheckWebSocketOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origins []string
		origin  string
		want    bool
	}{
		{"missing origin", []string{"*"}, "", false},
		{"wildcard", []string{"*"}, "https://any.example.com", true},
		{"listed", []string{"https://maps.example.org"}, "https://maps.example.org", true},
		{"unlisted", []string{"https://maps.example.org"}, "https://evil.example.com", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &Handler{config: &config.Config{Security: config.SecurityConfig{CORSOrigins: tt.origins}}}
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if got := h.checkWebSocketOrigin(req); got != tt.want {
				t.Errorf("checkWebSocketOrigin() = %v, want %v", got, tt.want)
			}
		})
	}
}
