// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package events defines the launcher's outbound event contract and an
// in-process pub/sub bus engines publish onto. Payload shapes are fixed
// records; nothing downstream of publication affects correctness, only
// observability - a dropped or slow subscriber must never block an engine.
package events

// Name is one of the fixed outbound event names from the external
// interface contract.
type Name string

const (
	DownloadVersion       Name = "download-version"
	DownloadVersionFiles  Name = "download-version-files"
	DownloadUnpackVersion Name = "download-unpack-version"
	CancelDownloadVersion Name = "cancel-download-version"
	DownloadSpeedStatus   Name = "download-speed-status"
	FileUnzipped          Name = "file-unzipped"
	UploadLog             Name = "upload-log"
	UploadFilesCount      Name = "upload-files-count"
	UploadProgress        Name = "upload-progress"
	PackingProgress       Name = "packing-progress"
	MoveVersion           Name = "move-version"
	LauncherNewVersion    Name = "launcher-new-version"
)

// Event is one published occurrence: Name identifies the fixed payload
// shape carried in Data.
type Event struct {
	Name Name
	Data any
}

// DownloadVersionPayload accompanies DownloadVersion: the version just
// entered the DownloadFiles state with TotalFiles known.
type DownloadVersionPayload struct {
	Version    string `json:"version"`
	TotalFiles int    `json:"total_files"`
}

// DownloadVersionFilesPayload accompanies DownloadVersionFiles: one
// file's progress changed.
type DownloadVersionFilesPayload struct {
	Version string `json:"version"`
	File    string `json:"file"`
	Size    int64  `json:"size"`
	Total   int64  `json:"total"`
}

// DownloadUnpackVersionPayload accompanies DownloadUnpackVersion: unpack
// of the version's files has started or finished.
type DownloadUnpackVersionPayload struct {
	Version string `json:"version"`
	Done    bool   `json:"done"`
}

// CancelDownloadVersionPayload accompanies CancelDownloadVersion.
type CancelDownloadVersionPayload struct {
	Version string `json:"version"`
}

// DownloadSpeedStatusPayload accompanies DownloadSpeedStatus: a periodic
// aggregate throughput sample.
type DownloadSpeedStatusPayload struct {
	Version      string  `json:"version"`
	BytesPerSecond float64 `json:"bytes_per_second"`
}

// FileUnzippedPayload accompanies FileUnzipped: one file finished
// extraction.
type FileUnzippedPayload struct {
	Version string `json:"version"`
	File    string `json:"file"`
}

// UploadLogPayload accompanies UploadLog: a human-readable line from the
// publish pipeline (push stage percentages, retries, etc).
type UploadLogPayload struct {
	Line string `json:"line"`
}

// UploadFilesCountPayload accompanies UploadFilesCount: the running
// global uploaded-file counter against the plan's total, emitted after
// every commit that finishes pushing.
type UploadFilesCountPayload struct {
	Uploaded int `json:"uploaded"`
	Total    int `json:"total"`
}

// UploadProgressPayload accompanies UploadProgress: one shard group
// finished pushing.
type UploadProgressPayload struct {
	Group          int `json:"group"`
	UploadedGroups int `json:"uploaded_groups"`
	TotalGroups    int `json:"total_groups"`
}

// PackingProgressPayload accompanies PackingProgress: the greedy packer
// assigned one more file to a group.
type PackingProgressPayload struct {
	FilesPacked int `json:"files_packed"`
	TotalFiles  int `json:"total_files"`
}

// MoveVersionPayload accompanies MoveVersion: a completed download was
// relocated from its staging path to InstalledPath.
type MoveVersionPayload struct {
	Version string `json:"version"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// LauncherNewVersionPayload accompanies LauncherNewVersion: the
// self-updater found a release newer than the running binary.
type LauncherNewVersionPayload struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
}

// Sink receives published events. Implementations must not block the
// publisher for long; Bus already decouples via per-subscriber buffering,
// so a Sink should do its own work (render, forward, log) quickly.
type Sink interface {
	Publish(e Event)
}
