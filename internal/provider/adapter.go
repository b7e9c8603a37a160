// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"io"
)

// Platform identifies the OS a launcher release asset targets.
type Platform string

const (
	PlatformWindows Platform = "Windows"
	PlatformLinux   Platform = "Linux"
	PlatformMacOS   Platform = "MacOS"
)

// TreeItemType distinguishes a file from a directory in a repo tree walk.
type TreeItemType string

const (
	TreeItemBlob TreeItemType = "blob"
	TreeItemTree TreeItemType = "tree"
)

// TreeParams narrows a tree listing to one subpath and page.
type TreeParams struct {
	Path      string
	Ref       string
	Recursive bool
	Page      int
}

// TreeItem is one entry from a repo tree walk. ProjectID is left empty by
// some adapter implementations (the hierarchical one does not always know
// it at listing time); the engine fills it in later when it resolves the
// owning repo. Preserve this contract rather than silently depending on
// it being populated - see Open Question (b) in DESIGN.md.
type TreeItem struct {
	ID        string
	ProjectID int64
	Name      string
	Path      string
	Type      TreeItemType
}

// IssueParams narrows an issue search.
type IssueParams struct {
	Title  string
	Labels []string
}

// Issue is the subset of a forge issue the launcher needs.
type Issue struct {
	Title       string
	Description string
}

// ReleaseAsset is one downloadable artifact attached to a launcher
// release (as opposed to a release's shard repos).
type ReleaseAsset struct {
	Name         string
	Platform     Platform
	Size         int64
	DownloadLink string
}

// ReleaseGit is the latest-release shape returned for the self-updater.
type ReleaseGit struct {
	Name    string
	Version string
	Assets  []ReleaseAsset
}

// ReleaseSummary is one entry from a provider's release listing.
type ReleaseSummary struct {
	ID   int64
	Name string
	Slug string
}

// ShardDescriptor identifies one main_<n>/updates_<n> repo belonging to a
// release.
type ShardDescriptor struct {
	ID           int64
	Name         string
	Slug         string
	SSHRemoteURL string
}

// CreatedRelease is the result of creating a forge release: an
// upload-URL template carrying <PROJECT_ID>/<NAME_SPACE>/<VERSION>/<FILE_NAME>
// placeholders for asset upload.
type CreatedRelease struct {
	UploadURL string
}

// BootstrapManifest is the well-known "manifest.json" issue body: the
// root handle under which release groups/repos are enumerated, and the
// per-shard byte budget used by the upload planner.
type BootstrapManifest struct {
	RootID  string `json:"root_id,omitempty"`
	MaxSize uint64 `json:"max_size"`
}

// Status reports a single health-probe outcome. Never persisted.
type Status struct {
	Available bool
	LatencyMS *int64
}

// GameManifestFile mirrors config.ManifestFile on the wire, decoupling
// the provider package from internal/config.
type GameManifestFile struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ReleaseManifest mirrors config.Manifest on the wire.
type ReleaseManifest struct {
	TotalFilesCount int64              `json:"total_files_count"`
	TotalSize       int64              `json:"total_size"`
	CompressedSize  int64              `json:"compressed_size"`
	Files           []GameManifestFile `json:"files"`
}

// Adapter is the capability contract every forge backend implements.
// Implementations must never leak backend-specific return shapes outside
// this interface - every concrete adapter translates its SDK's types
// into the ones declared here.
type Adapter interface {
	// ID is the adapter's stable short name, used as the registry key.
	ID() string

	// HealthURL is the fixed endpoint PingAll/Ping issue a GET against.
	HealthURL() string

	SupportsSubgroups() bool

	SetToken(token string)
	Token() string

	LoadManifest(ctx context.Context) (BootstrapManifest, error)
	GetManifest() (BootstrapManifest, bool)

	GetLauncherBackground(ctx context.Context) ([]byte, error)

	GetFileRaw(ctx context.Context, repo, path string) ([]byte, error)
	// GetBlobStream returns a stream honoring Range: bytes=seek- when
	// seek > 0; the caller is responsible for closing it.
	GetBlobStream(ctx context.Context, repo, ref string, seek int64) (io.ReadCloser, error)
	GetBlobByURLStream(ctx context.Context, url string, seek int64) (io.ReadCloser, error)
	GetBlobDirectURL(ctx context.Context, repo, ref string) (string, error)
	GetFileContentSize(ctx context.Context, url string) (int64, error)

	Tree(ctx context.Context, repo string, params TreeParams) ([]TreeItem, error)
	GetFullTree(ctx context.Context, repo string) ([]TreeItem, error)

	FindIssue(ctx context.Context, repo string, params IssueParams) ([]Issue, error)
	FindUser(ctx context.Context, repo, uuid string) ([]Issue, error)

	AddFileToRepo(ctx context.Context, repo, name string, content []byte, message, branch string) error
	UploadReleaseFile(ctx context.Context, uploadURL string, size int64, r io.Reader) error
	CreateTag(ctx context.Context, repo, tag, branch string) error
	CreateRelease(ctx context.Context, repo, tag string, assets []string) (CreatedRelease, error)
	GetAssetURL() string

	GetLauncherLatestRelease(ctx context.Context, owner, project string) (ReleaseGit, error)

	// GetMainRelease returns the download plan for a release's main
	// shard assets: a GitHub-style release asset list for the flat
	// adapter, or a tree walk keeping only blobs named "game.7z*" for
	// the hierarchical adapter.
	GetMainRelease(ctx context.Context, name string) ([]TreeItem, error)

	GetReleases(ctx context.Context, cached bool) ([]ReleaseSummary, error)
	SetReleaseVisibility(ctx context.Context, nameOrSlug string, public bool) error

	GetReleaseReposByName(ctx context.Context, name string) ([]ShardDescriptor, error)
	GetUpdatesReposByName(ctx context.Context, name string) ([]ShardDescriptor, error)

	CreateGroup(ctx context.Context, name, parent string) (ShardDescriptor, error)
	CreateRepo(ctx context.Context, name, description, parent string) (ShardDescriptor, error)

	// CloneBox returns an owned handle safe to hand to a worker
	// goroutine: for a stateless HTTP-client adapter this may just be
	// the adapter itself, but the method exists so an adapter with
	// mutable per-call state can return an isolated copy.
	CloneBox() Adapter
}
