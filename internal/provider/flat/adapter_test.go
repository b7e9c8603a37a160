// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package flat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/provider"
)

func TestNewSetsFlatID(t *testing.T) {
	a := New("acme-games")
	require.Equal(t, "flat", a.ID())
	require.False(t, a.SupportsSubgroups())
	require.Equal(t, "https://api.github.com", a.HealthURL())
}

func TestSetTokenRoundTrips(t *testing.T) {
	a := New("acme-games")
	a.SetToken("abc123")
	require.Equal(t, "abc123", a.Token())
}

func TestShardNamePattern(t *testing.T) {
	require.Equal(t, "mygame_main_0", shardName("mygame", "main", 0))
	require.Equal(t, "mygame_updates_3", shardName("mygame", "updates", 3))
}

func TestSlugifyCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "My-Game-Title", slugify("My  Game Title"))
}

func TestPlatformFromAssetName(t *testing.T) {
	require.Equal(t, provider.PlatformWindows, platformFromAssetName("game.7z.001_win64.exe"))
	require.Equal(t, provider.PlatformMacOS, platformFromAssetName("game.7z.001_darwin"))
	require.Equal(t, provider.PlatformLinux, platformFromAssetName("game.7z.001_linux"))
}

func TestCloneBoxCopiesState(t *testing.T) {
	a := New("acme-games")
	a.SetToken("secret")
	clone := a.CloneBox()
	require.Equal(t, "secret", clone.Token())
	require.Equal(t, a.ID(), clone.ID())
}

func TestGetAssetURLTemplate(t *testing.T) {
	a := New("acme-games")
	require.Contains(t, a.GetAssetURL(), "<FILE_NAME>")
}
