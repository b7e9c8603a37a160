// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/provider"
	"github.com/rivershard/launcher/internal/provider/providertest"
)

func TestResolveAssetUploadURLSubstitutesFileName(t *testing.T) {
	got := resolveAssetUploadURL("https://host/upload/<PROJECT_ID>/<FILE_NAME>", "game.7z.001")
	require.Equal(t, "https://host/upload/<PROJECT_ID>/game.7z.001", got)
}

func TestPublishV2CommitsTagsReleasesAndUploadsEveryFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte("shard-bytes")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "game.7z.001"), content, 0o644))

	fake := providertest.NewFake("flat", "http://example.invalid")
	bus := events.NewBus()
	manifest := provider.ReleaseManifest{
		TotalFilesCount: 1,
		TotalSize:       int64(len(content)),
		Files:           []provider.GameManifestFile{{Name: "game.7z.001", Size: int64(len(content))}},
	}

	err := PublishV2(context.Background(), fake, bus, "v1_main_1", "v1.0.0", dir, manifest)
	require.NoError(t, err)

	require.Len(t, fake.AddedFiles, 1)
	require.Equal(t, "manifest.json", fake.AddedFiles[0].Name)

	require.Len(t, fake.UploadedAssets, 1)
	require.Equal(t, content, fake.UploadedAssets[0].Data)
}
