// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package hierarchical

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/provider"
)

func TestNewSetsHierarchicalID(t *testing.T) {
	a := New("https://gitlab.example.com")
	require.Equal(t, "hierarchical", a.ID())
	require.True(t, a.SupportsSubgroups())
	require.Equal(t, "https://gitlab.example.com/-/health", a.HealthURL())
}

func TestSetTokenRoundTrips(t *testing.T) {
	a := New("https://gitlab.example.com")
	a.SetToken("abc123")
	require.Equal(t, "abc123", a.Token())
}

func TestPlatformFromAssetName(t *testing.T) {
	require.Equal(t, provider.PlatformWindows, platformFromAssetName("game.7z.001_win64.exe"))
	require.Equal(t, provider.PlatformMacOS, platformFromAssetName("game.7z.001_darwin"))
	require.Equal(t, provider.PlatformLinux, platformFromAssetName("game.7z.001_linux"))
}

func TestCloneBoxCopiesState(t *testing.T) {
	a := New("https://gitlab.example.com")
	a.SetToken("secret")
	clone := a.CloneBox()
	require.Equal(t, "secret", clone.Token())
	require.Equal(t, a.ID(), clone.ID())
}

func TestGetAssetURLTemplate(t *testing.T) {
	a := New("https://gitlab.example.com")
	require.Contains(t, a.GetAssetURL(), "<PROJECT_ID>")
}
