// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/rivershard/launcher/internal/config"
	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/provider"
)

// Engine drives the shard-packing, commit, and push pipeline that
// publishes a staged release directory to a release's shard repos.
type Engine struct {
	adapter    provider.Adapter
	store      *config.Store
	bus        events.Sink
	log        *slog.Logger
	maxRetries int
}

// New returns an Engine. log defaults to slog.Default() if nil.
func New(adapter provider.Adapter, store *config.Store, bus events.Sink, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{adapter: adapter, store: store, bus: bus, log: log, maxRetries: defaultMaxRetries}
}

// shardPlan binds one group's in-memory packing result to its resolved
// repo directory and remote.
type shardPlan struct {
	Index     int
	Dir       string
	Repo      provider.ShardDescriptor
	FileNames []string
}

// Start plans and runs a fresh publish of releaseName from stagingDir,
// committing filesPerCommit files per commit.
func (e *Engine) Start(ctx context.Context, releaseName, stagingDir string, filesPerCommit int) error {
	manifest, ok := e.adapter.GetManifest()
	if !ok {
		return provider.ErrManifestMissing
	}

	files, err := scanStagingDir(stagingDir)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNothingToUpload
	}

	groups := groupFilesBySize(files, int64(manifest.MaxSize))
	total := totalFileCount(groups)

	// Persist progress_upload *before* any file is moved: a crash
	// between this write and materializeGroups still leaves continue()
	// able to locate shards by the main_<i> convention.
	upload := &config.VersionProgressUpload{
		Name:           releaseName,
		PathDir:        stagingDir,
		FilesPerCommit: filesPerCommit,
		TotalGroups:    len(groups),
	}
	if err := e.store.Mutate(func(cfg *config.AppConfig) error {
		cfg.ProgressUpload = upload
		return nil
	}); err != nil {
		return err
	}

	if err := materializeGroups(stagingDir, groups); err != nil {
		return err
	}

	plans, err := e.resolveShardPlans(ctx, releaseName, stagingDir, groups)
	if err != nil {
		return err
	}

	for _, p := range plans {
		if _, err := initSidecar(p.Dir, total); err != nil {
			return err
		}
	}

	return e.runGroups(ctx, releaseName, plans, filesPerCommit)
}

// Continue resumes a previously-started publish from the persisted
// VersionProgressUpload.
func (e *Engine) Continue(ctx context.Context) error {
	snapshot := e.store.Snapshot()
	upload := snapshot.ProgressUpload
	if upload == nil {
		return ErrNoUploadInProgress
	}

	groups, err := discoverExistingGroups(upload.PathDir, upload.TotalGroups)
	if err != nil {
		return err
	}
	plans, err := e.resolveShardPlans(ctx, upload.Name, upload.PathDir, groups)
	if err != nil {
		return err
	}

	return e.runGroups(ctx, upload.Name, plans, upload.FilesPerCommit)
}

// resolveShardPlans maps each group's already-materialized directory to
// its shard repo and rewritten remote URL.
func (e *Engine) resolveShardPlans(ctx context.Context, releaseName, stagingDir string, groups []fileGroup) ([]shardPlan, error) {
	repos, err := e.adapter.GetReleaseReposByName(ctx, releaseName)
	if err != nil {
		return nil, err
	}
	if len(repos) == 0 {
		return nil, &provider.ErrNoShards{Release: releaseName}
	}
	byName := map[string]provider.ShardDescriptor{}
	for _, r := range repos {
		byName[r.Name] = r
	}

	plans := make([]shardPlan, 0, len(groups))
	for i, g := range groups {
		name := shardDirName(i + 1)
		repo, ok := findShardByNameSuffix(byName, name)
		if !ok {
			return nil, fmt.Errorf("upload: no shard repo found matching %q for release %q", name, releaseName)
		}
		// Bookkeeping files go first so chunkStrings places them in the
		// first commit chunk, not the last: .gitattributes normalization
		// must apply to every commit, and main_1's manifest.json must be
		// present from the start in case publish is interrupted.
		bookkeeping := []string{".gitignore", ".gitattributes"}
		if i == 0 {
			if _, err := os.Stat(filepath.Join(stagingDir, name, "manifest.json")); err == nil {
				bookkeeping = append(bookkeeping, "manifest.json")
			}
		}
		names := make([]string, 0, len(bookkeeping)+len(g.Files))
		names = append(names, bookkeeping...)
		for _, f := range g.Files {
			names = append(names, f.Name)
		}
		plans = append(plans, shardPlan{
			Index:     i + 1,
			Dir:       filepath.Join(stagingDir, name),
			Repo:      repo,
			FileNames: names,
		})
	}
	return plans, nil
}

// findShardByNameSuffix returns the repo whose name ends with suffix,
// matching the spec's "resolve each main_<i> directory to the shard
// repo whose name ends with main_<i>" rule.
func findShardByNameSuffix(repos map[string]provider.ShardDescriptor, suffix string) (provider.ShardDescriptor, bool) {
	for name, r := range repos {
		if len(name) >= len(suffix) && name[len(name)-len(suffix):] == suffix {
			return r, true
		}
	}
	return provider.ShardDescriptor{}, false
}

// discoverExistingGroups rebuilds the in-memory fileGroup view from an
// already-materialized staging directory, for resumption via Continue.
func discoverExistingGroups(stagingDir string, totalGroups int) ([]fileGroup, error) {
	groups := make([]fileGroup, 0, totalGroups)
	for i := 1; i <= totalGroups; i++ {
		dir := filepath.Join(stagingDir, shardDirName(i))
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		var g fileGroup
		for _, ent := range entries {
			if ent.IsDir() || !isArchiveFile(ent.Name()) {
				continue
			}
			info, err := ent.Info()
			if err != nil {
				return nil, err
			}
			g.Files = append(g.Files, stagedFile{Name: ent.Name(), Size: info.Size()})
			g.Size += info.Size()
		}
		sort.Slice(g.Files, func(a, b int) bool { return g.Files[a].Name < g.Files[b].Name })
		groups = append(groups, g)
	}
	return groups, nil
}

func isArchiveFile(name string) bool {
	return len(name) >= len("game.7z") && name[:len("game.7z")] == "game.7z"
}

// runGroups runs the commit/push loop for every plan in order, then
// clears progress_upload and flips the release public once every group
// reaches Completed.
func (e *Engine) runGroups(ctx context.Context, releaseName string, plans []shardPlan, filesPerCommit int) error {
	firstShardDir := ""
	if len(plans) > 0 {
		firstShardDir = plans[0].Dir
	}

	for _, p := range plans {
		if err := e.runGroup(ctx, releaseName, p, filesPerCommit, firstShardDir); err != nil {
			return err
		}
		var uploadedGroups, totalGroups int
		if err := e.store.Mutate(func(cfg *config.AppConfig) error {
			if cfg.ProgressUpload != nil {
				cfg.ProgressUpload.UploadedGroups++
				uploadedGroups = cfg.ProgressUpload.UploadedGroups
				totalGroups = cfg.ProgressUpload.TotalGroups
			}
			return nil
		}); err != nil {
			return err
		}
		e.bus.Publish(events.Event{Name: events.UploadProgress, Data: events.UploadProgressPayload{
			Group: p.Index, UploadedGroups: uploadedGroups, TotalGroups: totalGroups,
		}})
	}

	if err := e.store.Mutate(func(cfg *config.AppConfig) error {
		cfg.ProgressUpload = nil
		return nil
	}); err != nil {
		return err
	}

	return e.adapter.SetReleaseVisibility(ctx, releaseName, true)
}

// runGroup commits and pushes one shard directory to completion,
// resuming a stranded was_pushed=false commit first if the sidecar
// records one.
func (e *Engine) runGroup(ctx context.Context, releaseName string, p shardPlan, filesPerCommit int, firstShardDir string) error {
	repoURL := rewriteRemoteURL(p.Repo.SSHRemoteURL, e.adapter.Token())
	repo, err := initShardRepo(p.Dir, repoURL)
	if err != nil {
		return err
	}
	if err := ensureBranchIsMaster(p.Dir); err != nil {
		return err
	}

	st, err := readSidecar(p.Dir)
	if err != nil {
		return err
	}

	for commitID, log := range st.Commits {
		if !log.WasPushed {
			if err := pushWithRetry(ctx, p.Dir, e.bus, e.maxRetries); err != nil {
				return err
			}
			if err := mutateSidecar(p.Dir, func(s *SyncState) {
				c := s.Commits[commitID]
				c.WasPushed = true
				s.Commits[commitID] = c
			}); err != nil {
				return err
			}
			if err := e.bumpGlobalCounter(firstShardDir, contentFileCount(log.Files)); err != nil {
				return err
			}
		}
	}

	pending := remainingFiles(p.FileNames, st)
	chunks := chunkStrings(pending, filesPerCommit)

	for _, chunk := range chunks {
		hash, err := commitFiles(repo, chunk, fmt.Sprintf("publish %s shard %d", releaseName, p.Index))
		if err != nil {
			return err
		}
		if err := mutateSidecar(p.Dir, func(s *SyncState) {
			s.Commits[hash] = CommitLog{Files: chunk, WasPushed: false}
		}); err != nil {
			return err
		}
		if err := pushWithRetry(ctx, p.Dir, e.bus, e.maxRetries); err != nil {
			return err
		}
		if err := mutateSidecar(p.Dir, func(s *SyncState) {
			c := s.Commits[hash]
			c.WasPushed = true
			s.Commits[hash] = c
		}); err != nil {
			return err
		}
		if err := e.bumpGlobalCounter(firstShardDir, contentFileCount(chunk)); err != nil {
			return err
		}
	}

	return mutateSidecar(p.Dir, func(s *SyncState) { s.State = ShardCompleted })
}

// bumpGlobalCounter increments uploaded_files_count in the first shard's
// sidecar regardless of which shard actually pushed, per the spec's
// global-counter-lives-in-shard-1 rule, then emits upload-files-count. A
// sidecar write failure is returned to the caller rather than swallowed,
// consistent with every other mutateSidecar call in this file.
func (e *Engine) bumpGlobalCounter(firstShardDir string, n int) error {
	var uploaded, total int
	if err := mutateSidecar(firstShardDir, func(s *SyncState) {
		s.UploadedFilesCount += n
		uploaded = s.UploadedFilesCount
		total = s.TotalFilesCount
	}); err != nil {
		return err
	}
	e.bus.Publish(events.Event{Name: events.UploadFilesCount, Data: events.UploadFilesCountPayload{Uploaded: uploaded, Total: total}})
	return nil
}

// contentFileCount counts the archive parts among names, excluding the
// bookkeeping files (.gitignore, .gitattributes, manifest.json) a chunk
// may also carry - only archive files count toward total_files_count /
// uploaded_files_count per the sidecar's invariant.
func contentFileCount(names []string) int {
	n := 0
	for _, name := range names {
		if len(name) >= len("game.7z") && name[:len("game.7z")] == "game.7z" {
			n++
		}
	}
	return n
}

// remainingFiles returns p.FileNames minus every name already recorded
// in any of st's commits, so a resumed run never re-stages a file whose
// commit already exists (pushed or not - a not-yet-pushed commit's files
// are handled by the push-first step, not re-chunked).
func remainingFiles(all []string, st *SyncState) []string {
	seen := map[string]bool{}
	for _, c := range st.Commits {
		for _, f := range c.Files {
			seen[f] = true
		}
	}
	var out []string
	for _, f := range all {
		if !seen[f] {
			out = append(out, f)
		}
	}
	return out
}

// chunkStrings splits names into groups of at most size, preserving
// order. A non-positive size yields one chunk containing everything.
func chunkStrings(names []string, size int) [][]string {
	if size <= 0 {
		if len(names) == 0 {
			return nil
		}
		return [][]string{names}
	}
	var chunks [][]string
	for len(names) > 0 {
		n := size
		if n > len(names) {
			n = len(names)
		}
		chunks = append(chunks, names[:n])
		names = names[n:]
	}
	return chunks
}

// bootstrapManifestJSON re-encodes a provider.ReleaseManifest, used when
// the v2 native-release-API publish path commits manifest.json directly
// rather than relying on it already sitting in the staging directory.
func bootstrapManifestJSON(m provider.ReleaseManifest) ([]byte, error) {
	return json.MarshalIndent(m, "", "  ")
}
