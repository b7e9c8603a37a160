// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/events"
)

type recordingSink struct {
	events []events.Event
}

func (r *recordingSink) Publish(e events.Event) { r.events = append(r.events, e) }

func TestStreamProgressParsesKnownStages(t *testing.T) {
	raw := "Enumerating objects: 5, done.\nCompressing objects: 50% (2/4)\nWriting objects: 100% (4/4), 1.2 KiB\n"
	sink := &recordingSink{}
	streamProgress(strings.NewReader(raw), sink)

	var lines []string
	for _, e := range sink.events {
		payload := e.Data.(events.UploadLogPayload)
		lines = append(lines, payload.Line)
	}
	require.Len(t, lines, 3)
	require.Contains(t, lines[1], "Compressing 50% (2/4)")
	require.Contains(t, lines[2], "Writing 100% (4/4)")
}

func TestChunkStrings(t *testing.T) {
	chunks := chunkStrings([]string{"a", "b", "c", "d", "e"}, 2)
	require.Equal(t, [][]string{{"a", "b"}, {"c", "d"}, {"e"}}, chunks)

	require.Nil(t, chunkStrings(nil, 2))
	require.Equal(t, [][]string{{"a", "b", "c"}}, chunkStrings([]string{"a", "b", "c"}, 0))
}
