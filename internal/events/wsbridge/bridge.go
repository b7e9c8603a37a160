// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package wsbridge re-publishes every event from an events.Bus over a
// local websocket connection, for an optional UI to consume. Adapted
// from the teacher's internal/server/websocket.go WSHub/WSClient
// broadcast pattern, repurposed from "job progress over HTTP" to
// "engine event sink over a local socket" - the UI itself stays
// out-of-process and out of scope.
package wsbridge

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rivershard/launcher/internal/events"
)

const (
	writeTimeout  = 10 * time.Second
	clientBacklog = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// wireEvent is the JSON shape sent to each connected client.
type wireEvent struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

// Bridge accepts websocket connections and fans every Bus event out to
// all of them as JSON text frames.
type Bridge struct {
	bus *events.Bus
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
}

type client struct {
	conn *websocket.Conn
	send chan wireEvent
}

// New returns a Bridge that will forward every event published on bus.
func New(bus *events.Bus, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{bus: bus, log: log, clients: map[*client]struct{}{}}
}

// Run subscribes to the bus and forwards events to connected clients
// until ch is closed or done fires.
func (br *Bridge) Run(ch <-chan events.Event, done <-chan struct{}) {
	for {
		select {
		case e, ok := <-ch:
			if !ok {
				return
			}
			br.broadcast(wireEvent{Name: string(e.Name), Data: e.Data})
		case <-done:
			return
		}
	}
}

func (br *Bridge) broadcast(w wireEvent) {
	br.mu.Lock()
	defer br.mu.Unlock()
	for c := range br.clients {
		select {
		case c.send <- w:
		default:
			br.log.Warn("wsbridge: dropping slow client")
			delete(br.clients, c)
			close(c.send)
			c.conn.Close()
		}
	}
}

// ServeHTTP upgrades the request to a websocket and registers the
// resulting client as a broadcast recipient until it disconnects.
func (br *Bridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		br.log.Error("wsbridge: upgrade failed", "error", err)
		return
	}
	c := &client{conn: conn, send: make(chan wireEvent, clientBacklog)}

	br.mu.Lock()
	br.clients[c] = struct{}{}
	br.mu.Unlock()

	go br.writePump(c)
	br.readPump(c)
}

// readPump discards inbound frames; the bridge is one-directional. It
// returns (closing the connection) once the client disconnects, which
// also unblocks writePump via the closed connection.
func (br *Bridge) readPump(c *client) {
	defer br.removeClient(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (br *Bridge) writePump(c *client) {
	for w := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		b, err := json.Marshal(w)
		if err != nil {
			continue
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
			return
		}
	}
}

func (br *Bridge) removeClient(c *client) {
	br.mu.Lock()
	defer br.mu.Unlock()
	if _, ok := br.clients[c]; ok {
		delete(br.clients, c)
		close(c.send)
	}
	c.conn.Close()
}
