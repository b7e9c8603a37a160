// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package config owns the on-disk application state: the JSON config file,
// the download/upload progress records embedded in it, and the atomic
// load/save/merge rules the rest of the launcher depends on.
package config

import "time"

// Version is a release descriptor, discovered remotely or by local scan.
type Version struct {
	Name          string         `json:"name"`
	Slug          string         `json:"slug"`
	RemoteID      int64          `json:"remote_id,omitempty"`
	Manifest      *Manifest      `json:"manifest,omitempty"`
	InstalledPath string         `json:"installed_path,omitempty"`
	DownloadPath  string         `json:"download_path,omitempty"`
	IsLocal       bool           `json:"is_local"`
	AppliedTags   []string       `json:"applied_tags,omitempty"`
}

// Manifest is the ReleaseManifest: the immutable description of a
// published release's shard layout.
type Manifest struct {
	TotalFilesCount int64          `json:"total_files_count"`
	TotalSize       int64          `json:"total_size"`
	CompressedSize  int64          `json:"compressed_size"`
	Files           []ManifestFile `json:"files"`
}

// ManifestFile is one entry in a release manifest's file list.
type ManifestFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// FileProgress tracks one file within a VersionProgress.
type FileProgress struct {
	ID           string `json:"id"`
	DownloadLink string `json:"download_link"`
	Name         string `json:"name"`
	TotalSize    int64  `json:"total_size"`
	Size         int64  `json:"size"`
	IsDownloaded bool   `json:"is_downloaded"`
	IsUnpacked   bool   `json:"is_unpacked"`
}

// VersionProgress is the per-version download state, persisted in config.
type VersionProgress struct {
	InstalledPath      string          `json:"installed_path"`
	DownloadPath       string          `json:"download_path"`
	Files              []*FileProgress `json:"files"`
	DownloadedFilesCnt int             `json:"downloaded_files_cnt"`
	TotalFileCount     int             `json:"total_file_count"`
	Manifest           *Manifest       `json:"manifest,omitempty"`
}

// Normalize recomputes DownloadedFilesCnt from Files so the invariant
// DownloadedFilesCnt == |{f : f.IsDownloaded}| always holds after a mutation.
func (vp *VersionProgress) Normalize() {
	n := 0
	for _, f := range vp.Files {
		if f.IsDownloaded {
			n++
		}
	}
	vp.DownloadedFilesCnt = n
	vp.TotalFileCount = len(vp.Files)
}

// VersionProgressUpload describes an in-flight publish.
type VersionProgressUpload struct {
	Name           string `json:"name"`
	PathDir        string `json:"path_dir"`
	PathRepo       string `json:"path_repo"`
	FilesPerCommit int    `json:"files_per_commit"`
	TotalGroups    int    `json:"total_groups"`
	UploadedGroups int    `json:"uploaded_groups"`
}

// RunParams holds process-launch settings applied when starting the game,
// nested under AppConfig so it participates in the shallow-merge rule.
type RunParams struct {
	Executable string   `json:"executable,omitempty"`
	Args       []string `json:"args,omitempty"`
	WorkingDir string   `json:"working_dir,omitempty"`
}

// ProviderToken is the obfuscated on-disk form of a backend credential.
type ProviderToken struct {
	Obfuscated string `json:"obfuscated"`
}

// AppConfig is the top-level on-disk configuration document.
type AppConfig struct {
	SchemaVersion   int                      `json:"schema_version"`
	ClientUUID      string                   `json:"client_uuid"`
	FirstRun        bool                     `json:"first_run"`
	CurrentProvider string                   `json:"current_provider,omitempty"`
	Tokens          map[string]ProviderToken `json:"tokens,omitempty"`
	RunParams       RunParams                `json:"run_params"`
	Versions        map[string]*Version      `json:"versions,omitempty"`
	Progress        map[string]*VersionProgress `json:"progress,omitempty"`
	ProgressUpload  *VersionProgressUpload   `json:"progress_upload,omitempty"`
	LastUpdatedAt   time.Time                `json:"last_updated_at"`
}

// Defaults returns a fresh AppConfig with every nested container
// initialized, matching what a first-run config.json should contain.
func Defaults() *AppConfig {
	return &AppConfig{
		SchemaVersion: currentSchemaVersion,
		FirstRun:      true,
		Tokens:        map[string]ProviderToken{},
		RunParams:     RunParams{},
		Versions:      map[string]*Version{},
		Progress:      map[string]*VersionProgress{},
	}
}

const currentSchemaVersion = 1
