// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package wsbridge_test

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/events/wsbridge"
)

func TestBridgeForwardsPublishedEvents(t *testing.T) {
	bus := events.NewBus()
	br := wsbridge.New(bus, nil)

	ch, unsubscribe := bus.Subscribe()
	defer unsubscribe()
	done := make(chan struct{})
	defer close(done)
	go br.Run(ch, done)

	srv := httptest.NewServer(br)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine a moment to register the client before
	// publishing, since registration happens asynchronously to Dial.
	time.Sleep(20 * time.Millisecond)

	bus.Publish(events.Event{Name: events.MoveVersion, Data: events.MoveVersionPayload{Version: "v1"}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(msg), "move-version")
}
