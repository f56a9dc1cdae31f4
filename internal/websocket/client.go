// Mapsync - Address Resolution and Map Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/mapsync

// Package websocket streams map session views to a browser and accepts
// renderer events on the same connection.
//
// Outbound messages:
//
//	{"type":"view","data":{...session view...}}
//	{"type":"pong"}
//	{"type":"error","data":{"code":"INVALID_EVENT","message":"..."}}
//
// Inbound messages:
//
//	{"type":"ping"}
//	{"type":"event","data":{"type":"dragstart"}}
//
// Views carry a revision; a client keeps the highest one it has seen.
package websocket

import (
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/tomtom215/mapsync/internal/logging"
	"github.com/tomtom215/mapsync/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
	sendBuffer     = 16
)

// Message types
const (
	MessageTypeView  = "view"
	MessageTypePing  = "ping"
	MessageTypePong  = "pong"
	MessageTypeEvent = "event"
	MessageTypeError = "error"
)

// Message is an outbound websocket message.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// inbound is a message received from the browser.
type inbound struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type eventData struct {
	Type string `json:"type"`
}

// ErrorData is the payload of an error message.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// EventHandler applies one renderer event to the session.
type EventHandler func(eventType string) error

// clientIDCounter generates unique, monotonically increasing IDs for clients.
var clientIDCounter atomic.Uint64

// Client connects one websocket to one session subscription.
type Client struct {
	id          uint64
	conn        *websocket.Conn
	updates     <-chan session.View
	unsubscribe func()
	onEvent     EventHandler
	send        chan Message
}

// NewClient creates a client. updates and unsubscribe come from
// session.Subscribe; onEvent may be nil to make the stream read-only.
func NewClient(conn *websocket.Conn, updates <-chan session.View, unsubscribe func(), onEvent EventHandler) *Client {
	return &Client{
		id:          clientIDCounter.Add(1),
		conn:        conn,
		updates:     updates,
		unsubscribe: unsubscribe,
		onEvent:     onEvent,
		send:        make(chan Message, sendBuffer),
	}
}

// ID returns the client's unique identifier
func (c *Client) ID() uint64 {
	return c.id
}

// Send queues msg without blocking. It reports false when the buffer is full.
func (c *Client) Send(msg Message) bool {
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

// Start begins reading and writing for the client
func (c *Client) Start() {
	go c.writePump()
	go c.readPump()
}

// readPump handles inbound messages until the connection fails, then ends
// the session subscription, which in turn stops writePump.
func (c *Client) readPump() {
	defer func() {
		c.unsubscribe()
		_ = c.conn.Close() // best-effort cleanup
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set read deadline")
		return
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Error().Err(err).Uint64("client_id", c.id).Msg("unexpected websocket close error")
			}
			return
		}
		c.handle(raw)
	}
}

func (c *Client) handle(raw []byte) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		c.Send(Message{Type: MessageTypeError, Data: ErrorData{Code: "INVALID_MESSAGE", Message: "message is not valid JSON"}})
		return
	}

	switch msg.Type {
	case MessageTypePing:
		c.Send(Message{Type: MessageTypePong})
	case MessageTypeEvent:
		var ev eventData
		if err := json.Unmarshal(msg.Data, &ev); err != nil || ev.Type == "" {
			c.Send(Message{Type: MessageTypeError, Data: ErrorData{Code: "INVALID_EVENT", Message: "event data must carry a type"}})
			return
		}
		if c.onEvent == nil {
			c.Send(Message{Type: MessageTypeError, Data: ErrorData{Code: "READ_ONLY", Message: "this stream does not accept events"}})
			return
		}
		if err := c.onEvent(ev.Type); err != nil {
			c.Send(Message{Type: MessageTypeError, Data: ErrorData{Code: "INVALID_EVENT", Message: err.Error()}})
		}
	default:
		c.Send(Message{Type: MessageTypeError, Data: ErrorData{Code: "UNKNOWN_TYPE", Message: "unknown message type"}})
	}
}

// writePump forwards session views and queued messages to the connection.
// It returns when the subscription closes or a write fails.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close() // best-effort cleanup
	}()

	for {
		select {
		case view, ok := <-c.updates:
			if !ok {
				// Session closed or subscription ended
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if !c.write(Message{Type: MessageTypeView, Data: view}) {
				return
			}

		case msg := <-c.send:
			if !c.write(msg) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				logging.Error().Err(err).Msg("failed to set write deadline for ping")
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) write(msg Message) bool {
	data, err := json.Marshal(msg)
	if err != nil {
		logging.Error().Err(err).Str("type", msg.Type).Msg("failed to marshal websocket message")
		return true
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		logging.Error().Err(err).Msg("failed to set write deadline")
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		logging.Debug().Err(err).Uint64("client_id", c.id).Msg("websocket write failed")
		return false
	}
	return true
}
