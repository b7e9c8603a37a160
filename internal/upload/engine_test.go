// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/config"
	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/provider"
	"github.com/rivershard/launcher/internal/provider/providertest"
)

func skipIfNoGit(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git binary not available")
	}
}

// newBareRemote creates a bare repo to stand in for a shard's real
// forge-hosted remote, addressable by plain filesystem path - since
// that path never matches the "git@HOST:PATH" form, rewriteRemoteURL
// passes it through unchanged.
func newBareRemote(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	_, err := git.PlainInit(dir, true)
	require.NoError(t, err)
	return dir
}

func newTestUploadStore(t *testing.T) *config.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	store, err := config.Open(path)
	require.NoError(t, err)
	return store
}

func TestStartPublishesGroupsAndSetsVisibility(t *testing.T) {
	skipIfNoGit(t)

	stagingDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(stagingDir, "game.7z.001"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(stagingDir, "manifest.json"), []byte(`{"total_files_count":1}`), 0o644))

	remote := newBareRemote(t)
	fake := providertest.NewFake("flat", "http://example.invalid")
	fake.ManifestFound = true
	fake.Manifest = provider.BootstrapManifest{MaxSize: 1000}
	fake.ShardsByRelease["v1"] = []provider.ShardDescriptor{{Name: "v1_main_1", SSHRemoteURL: remote}}
	fake.SetToken("tok")

	store := newTestUploadStore(t)
	bus := events.NewBus()
	engine := New(fake, store, bus, nil)

	err := engine.Start(context.Background(), "v1", stagingDir, 10)
	require.NoError(t, err)

	require.Len(t, fake.VisibilityCalls, 1)
	require.Equal(t, "v1", fake.VisibilityCalls[0].NameOrSlug)
	require.True(t, fake.VisibilityCalls[0].Public)

	require.Nil(t, store.Snapshot().ProgressUpload)

	st, err := readSidecar(filepath.Join(stagingDir, "main_1"))
	require.NoError(t, err)
	require.Equal(t, ShardCompleted, st.State)
	require.Equal(t, 1, st.UploadedFilesCount)
	require.LessOrEqual(t, st.UploadedFilesCount, st.TotalFilesCount)
	for _, c := range st.Commits {
		require.True(t, c.WasPushed)
	}
}

// TestContinueResumesStrandedUnpushedCommit mirrors spec scenario 4:
// after the sidecar records a commit with was_pushed=false (simulating
// a crash right after the commit but before the push completed), the
// next Continue() must push exactly that commit first and bump
// uploaded_files_count by precisely its file count.
func TestContinueResumesStrandedUnpushedCommit(t *testing.T) {
	skipIfNoGit(t)

	stagingDir := t.TempDir()
	shardDir := filepath.Join(stagingDir, "main_1")
	require.NoError(t, os.MkdirAll(shardDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(shardDir, "game.7z.001"), make([]byte, 10), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(shardDir, "manifest.json"), []byte(`{}`), 0o644))
	require.NoError(t, writeGitFiles(shardDir))

	remote := newBareRemote(t)
	repo, err := initShardRepo(shardDir, remote)
	require.NoError(t, err)
	require.NoError(t, ensureBranchIsMaster(shardDir))

	hash, err := commitFiles(repo, []string{"game.7z.001", "manifest.json", ".gitignore", ".gitattributes"}, "initial commit")
	require.NoError(t, err)

	_, err = initSidecar(shardDir, 1)
	require.NoError(t, err)
	require.NoError(t, mutateSidecar(shardDir, func(s *SyncState) {
		s.Commits[hash] = CommitLog{Files: []string{"game.7z.001", "manifest.json", ".gitignore", ".gitattributes"}, WasPushed: false}
	}))

	fake := providertest.NewFake("flat", "http://example.invalid")
	fake.ManifestFound = true
	fake.Manifest = provider.BootstrapManifest{MaxSize: 1000}
	fake.ShardsByRelease["v1"] = []provider.ShardDescriptor{{Name: "v1_main_1", SSHRemoteURL: remote}}

	store := newTestUploadStore(t)
	require.NoError(t, store.Mutate(func(cfg *config.AppConfig) error {
		cfg.ProgressUpload = &config.VersionProgressUpload{
			Name: "v1", PathDir: stagingDir, FilesPerCommit: 10, TotalGroups: 1,
		}
		return nil
	}))

	bus := events.NewBus()
	engine := New(fake, store, bus, nil)

	err = engine.Continue(context.Background())
	require.NoError(t, err)

	final, err := readSidecar(shardDir)
	require.NoError(t, err)
	require.True(t, final.Commits[hash].WasPushed)
	require.Equal(t, 1, final.UploadedFilesCount, "only the one archive file counts, not the bookkeeping files")
	require.Equal(t, ShardCompleted, final.State)
}
