// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package launcher is the public, embeddable facade over the launcher's
engines: open a config store, register a backend, and drive downloads,
publishes, and self-updates without importing internal packages
directly. It plays the role the teacher's pkg/hfdownloader played for
that repo - a stable library surface the CLI itself is built on top of,
generalized here from "one HuggingFace download job" to "the launcher's
full engine set".

# Quick start

	store, err := launcher.OpenConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	client := launcher.New(launcher.Options{
		Store:    store,
		Provider: launcher.Flat("my-org"),
	})

	bus, unsubscribe := client.Subscribe()
	defer unsubscribe()
	go func() {
		for e := range bus {
			fmt.Println(e.Name, e.Data)
		}
	}()

	err = client.Download(ctx, launcher.DownloadOptions{
		VersionName:  "1.0.0",
		DownloadPath: "Downloads",
		InstallPath:  "Games",
	})
*/
package launcher

import (
	"context"
	"log/slog"

	"github.com/rivershard/launcher/internal/config"
	"github.com/rivershard/launcher/internal/download"
	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/provider"
	"github.com/rivershard/launcher/internal/provider/flat"
	"github.com/rivershard/launcher/internal/provider/hierarchical"
	"github.com/rivershard/launcher/internal/selfupdate"
	"github.com/rivershard/launcher/internal/upload"
)

// OpenConfig opens (creating if absent) the launcher's config.json at
// path. See internal/config.Open for the exact on-disk fallback rules.
func OpenConfig(path string) (*config.Store, error) {
	return config.Open(path)
}

// Flat returns a provider.Adapter backed by a GitHub-style flat forge,
// scoped to org.
func Flat(org string) provider.Adapter { return flat.New(org) }

// Hierarchical returns a provider.Adapter backed by a GitLab-style forge
// at baseURL.
func Hierarchical(baseURL string) provider.Adapter { return hierarchical.New(baseURL) }

// Options configures a Client.
type Options struct {
	Store    *config.Store
	Provider provider.Adapter
	Log      *slog.Logger
}

// Client bundles one provider adapter with the download, upload, and
// self-update engines built over it, plus the shared event bus every
// engine publishes onto.
type Client struct {
	store    *config.Store
	adapter  provider.Adapter
	bus      *events.Bus
	download *download.Engine
	upload   *upload.Engine
}

// New returns a Client wired from opts. Panics are never used for
// misconfiguration: callers get a Client usable for every operation as
// long as opts.Store and opts.Provider are non-nil.
func New(opts Options) *Client {
	bus := events.NewBus()
	return &Client{
		store:    opts.Store,
		adapter:  opts.Provider,
		bus:      bus,
		download: download.New(opts.Provider, opts.Store, bus, download.NewExecExtractor(""), opts.Log),
		upload:   upload.New(opts.Provider, opts.Store, bus, opts.Log),
	}
}

// Subscribe returns a channel of every event published by this client's
// engines, and an unsubscribe func that must be called to release it.
func (c *Client) Subscribe() (<-chan events.Event, func()) {
	return c.bus.Subscribe()
}

// DownloadOptions mirrors download.StartOptions, re-exported so callers
// never need to import internal/download directly.
type DownloadOptions = download.StartOptions

// Download starts a fresh download, blocking until it completes or is
// cancelled via ctx.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) error {
	return c.download.Start(ctx, opts)
}

// ResumeDownload continues a previously paused download for versionName.
func (c *Client) ResumeDownload(ctx context.Context, versionName string) error {
	return c.download.Resume(ctx, versionName)
}

// CancelDownload pauses an in-flight download for versionName, reporting
// whether one was running.
func (c *Client) CancelDownload(versionName string) bool {
	return c.download.Cancel(versionName)
}

// Publish packs and pushes a staged release directory to its shard
// repos, committing filesPerCommit archive files at a time.
func (c *Client) Publish(ctx context.Context, releaseName, stagingDir string, filesPerCommit int) error {
	return c.upload.Start(ctx, releaseName, stagingDir, filesPerCommit)
}

// ContinuePublish resumes a publish interrupted mid-push.
func (c *Client) ContinuePublish(ctx context.Context) error {
	return c.upload.Continue(ctx)
}

// CheckForLauncherUpdate compares current against the adapter's latest
// launcher release, returning ok=false when nothing newer exists.
func (c *Client) CheckForLauncherUpdate(ctx context.Context, owner, project, current string) (provider.ReleaseGit, bool, error) {
	return selfupdate.New(c.adapter, owner, project, nil).Check(ctx, current)
}
