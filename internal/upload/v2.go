// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/provider"
)

// PublishV2 is the alternative publish path for adapters exposing a
// native release API instead of raw shard-repo git pushes: it commits
// manifest.json, tags the release, creates it, then streams each
// manifest file to the asset upload URL directly. There is no shard
// packing or commit/push loop in this path - the backend owns storage.
func PublishV2(ctx context.Context, adapter provider.Adapter, bus events.Sink, repo, tag, stagingDir string, manifest provider.ReleaseManifest) error {
	manifestJSON, err := bootstrapManifestJSON(manifest)
	if err != nil {
		return err
	}
	if err := adapter.AddFileToRepo(ctx, repo, "manifest.json", manifestJSON, "publish manifest.json", "master"); err != nil {
		return err
	}
	if err := adapter.CreateTag(ctx, repo, tag, "master"); err != nil {
		return err
	}

	created, err := adapter.CreateRelease(ctx, repo, tag, nil)
	if err != nil {
		return err
	}

	var uploaded int64
	start := time.Now()
	for _, f := range manifest.Files {
		path := filepath.Join(stagingDir, f.Name)
		if err := uploadOneAssetV2(ctx, adapter, created.UploadURL, repo, tag, f, path); err != nil {
			return err
		}
		uploaded += f.Size
		elapsed := time.Since(start).Seconds()
		var speed float64
		if elapsed > 0 {
			speed = float64(uploaded) / elapsed
		}
		if bus != nil {
			bus.Publish(events.Event{Name: events.UploadProgress, Data: events.UploadProgressPayload{
				Group: 1, UploadedGroups: int(uploaded), TotalGroups: int(manifest.TotalSize),
			}})
			bus.Publish(events.Event{Name: events.UploadLog, Data: events.UploadLogPayload{
				Line: fmt.Sprintf("uploaded %s (%d/%d bytes, %.0f B/s)", f.Name, uploaded, manifest.TotalSize, speed),
			}})
		}
	}
	return nil
}

// uploadOneAssetV2 streams one manifest file to uploadURL, substituting
// the <FILE_NAME> placeholder the way CreateRelease's template expects.
func uploadOneAssetV2(ctx context.Context, adapter provider.Adapter, uploadURLTemplate, repo, tag string, f provider.GameManifestFile, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	url := resolveAssetUploadURL(uploadURLTemplate, f.Name)
	return adapter.UploadReleaseFile(ctx, url, f.Size, file)
}

// resolveAssetUploadURL substitutes <FILE_NAME> in a per-adapter upload
// URL template; <PROJECT_ID>/<NAME_SPACE>/<VERSION> are already resolved
// by the time CreateRelease returns the template.
func resolveAssetUploadURL(template, fileName string) string {
	const placeholder = "<FILE_NAME>"
	out := make([]byte, 0, len(template))
	for i := 0; i < len(template); {
		if i+len(placeholder) <= len(template) && template[i:i+len(placeholder)] == placeholder {
			out = append(out, fileName...)
			i += len(placeholder)
			continue
		}
		out = append(out, template[i])
		i++
	}
	return string(out)
}
