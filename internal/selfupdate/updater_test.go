// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package selfupdate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/provider"
	"github.com/rivershard/launcher/internal/provider/providertest"
)

// TestCheckNegativeSameVersion mirrors spec scenario 6's first case:
// running 1.2.3, latest tag 1.2.3 -> no update.
func TestCheckNegativeSameVersion(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	fake.LatestRelease = provider.ReleaseGit{Version: "1.2.3"}
	u := New(fake, "owner", "launcher", nil)

	_, ok, err := u.Check(context.Background(), "1.2.3")
	require.NoError(t, err)
	require.False(t, ok)
}

// TestCheckPositivePrerelease mirrors spec scenario 6's second case:
// running 1.2.3, latest 1.2.4-rc1 -> update available, since a
// prerelease of a higher version still outranks the current release.
func TestCheckPositivePrerelease(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	fake.LatestRelease = provider.ReleaseGit{Version: "1.2.4-rc1"}
	u := New(fake, "owner", "launcher", nil)

	release, ok, err := u.Check(context.Background(), "1.2.3")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "1.2.4-rc1", release.Version)
}

func TestCheckUnparseableCurrentFallsBackToZero(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	fake.LatestRelease = provider.ReleaseGit{Version: "0.0.1"}
	u := New(fake, "owner", "launcher", nil)

	_, ok, err := u.Check(context.Background(), "not-a-version")
	require.NoError(t, err)
	require.True(t, ok, "any parseable latest release beats an unparseable current (0.0.0)")
}

func TestCheckNothingNewerThanZero(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	fake.LatestRelease = provider.ReleaseGit{Version: "not-a-version-either"}
	u := New(fake, "owner", "launcher", nil)

	_, ok, err := u.Check(context.Background(), "not-a-version")
	require.NoError(t, err)
	require.False(t, ok, "two unparseable versions both fall back to 0.0.0, so neither exceeds the other")
}

func TestDownloadSelectsMatchingPlatformAsset(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	content := []byte("binary-bytes")
	fake.PutBlobURL("https://example.invalid/linux-asset", content)

	release := provider.ReleaseGit{
		Assets: []provider.ReleaseAsset{
			{Name: "launcher-windows.exe", Platform: provider.PlatformWindows, DownloadLink: "https://example.invalid/windows-asset"},
			{Name: "launcher-linux", Platform: provider.PlatformLinux, DownloadLink: "https://example.invalid/linux-asset"},
		},
	}
	if currentPlatform() != provider.PlatformLinux {
		t.Skip("test asset table only covers the linux platform branch")
	}

	u := New(fake, "owner", "launcher", nil)
	dir := t.TempDir()
	path, err := u.Download(context.Background(), release, dir)
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, content, got)
	require.Equal(t, dir, filepath.Dir(path))
}

func TestDownloadErrorsWhenNoAssetMatchesPlatform(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	release := provider.ReleaseGit{Assets: []provider.ReleaseAsset{
		{Name: "other", Platform: provider.Platform("Plan9")},
	}}
	u := New(fake, "owner", "launcher", nil)
	_, err := u.Download(context.Background(), release, t.TempDir())
	require.Error(t, err)
}
