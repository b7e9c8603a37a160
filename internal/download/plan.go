// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rivershard/launcher/internal/config"
	"github.com/rivershard/launcher/internal/provider"
)

// fileTask is one unit of work for a download worker.
type fileTask struct {
	Version      string
	Name         string
	DownloadPath string
	TotalSize    int64
}

// unpackTask is one unit of work for the unpack worker.
type unpackTask struct {
	Version      string
	Name         string
	ArchivePath  string
	InstallPath  string
	IsLatest     bool
}

// partPath returns the sidecar resume file for a destination file path.
func partPath(destPath string) string { return destPath + ".part" }

// readPart returns the byte count recorded in destPath's .part sidecar,
// or 0 if absent/unparsable.
func readPart(destPath string) int64 {
	b, err := os.ReadFile(partPath(destPath))
	if err != nil {
		return 0
	}
	n, err := strconv.ParseInt(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// writePart rewrites destPath's .part sidecar with n, best-effort.
func writePart(destPath string, n int64) error {
	return os.WriteFile(partPath(destPath), []byte(strconv.FormatInt(n, 10)), 0o644)
}

// removePart deletes destPath's .part sidecar, ignoring a missing file.
func removePart(destPath string) {
	_ = os.Remove(partPath(destPath))
}

// planFresh builds a VersionProgress for a version never downloaded
// before: it resolves the release's manifest.json (committed into the
// first main shard) for per-file sizes, then asks the adapter for the
// shard asset list via GetMainRelease.
func planFresh(ctx context.Context, a provider.Adapter, name string) (*config.VersionProgress, error) {
	manifest, err := fetchReleaseManifest(ctx, a, name)
	if err != nil {
		return nil, err
	}
	items, err := a.GetMainRelease(ctx, name)
	if err != nil {
		return nil, err
	}
	sizeByName := map[string]int64{}
	for _, f := range manifest.Files {
		sizeByName[f.Name] = f.Size
	}

	vp := &config.VersionProgress{
		Manifest: &config.Manifest{
			TotalFilesCount: manifest.TotalFilesCount,
			TotalSize:       manifest.TotalSize,
			CompressedSize:  manifest.CompressedSize,
		},
	}
	for _, it := range items {
		vp.Files = append(vp.Files, &config.FileProgress{
			ID:        it.ID,
			Name:      it.Name,
			TotalSize: sizeByName[it.Name],
		})
		vp.Manifest.Files = append(vp.Manifest.Files, config.ManifestFile{Name: it.Name, Size: sizeByName[it.Name]})
	}
	vp.Normalize()
	return vp, nil
}

// fetchReleaseManifest locates the release's first main shard and reads
// its committed manifest.json.
func fetchReleaseManifest(ctx context.Context, a provider.Adapter, name string) (provider.ReleaseManifest, error) {
	shards, err := a.GetReleaseReposByName(ctx, name)
	if err != nil {
		return provider.ReleaseManifest{}, err
	}
	sort.Slice(shards, func(i, j int) bool { return shards[i].Name < shards[j].Name })
	raw, err := a.GetFileRaw(ctx, shards[0].Slug, "manifest.json")
	if err != nil {
		return provider.ReleaseManifest{}, err
	}
	var m provider.ReleaseManifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return provider.ReleaseManifest{}, &provider.DecodeError{URL: shards[0].Slug + "#manifest.json", Err: err}
	}
	return m, nil
}

// planResume recomputes each file's current size from its .part sidecar
// (or leaves TotalSize/full size if already marked unpacked), then sorts
// descending by current size so the largest in-progress items surface
// first.
func planResume(downloadPath string, vp *config.VersionProgress) {
	for _, f := range vp.Files {
		destPath := downloadFilePath(downloadPath, f.Name)
		switch {
		case f.IsUnpacked:
			f.Size = f.TotalSize
			f.IsDownloaded = true
		case f.IsDownloaded:
			f.Size = f.TotalSize
		default:
			f.Size = readPart(destPath)
		}
	}
	sort.SliceStable(vp.Files, func(i, j int) bool { return vp.Files[i].Size > vp.Files[j].Size })
	vp.Normalize()
}

func downloadFilePath(downloadPath, name string) string {
	return filepath.Join(downloadPath, name)
}

// removeArchive deletes a successfully-unpacked staging archive,
// ignoring a missing file.
func removeArchive(path string) {
	_ = os.Remove(path)
}
