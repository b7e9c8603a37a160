// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the launcher's engines (provider, download, upload,
// selfupdate, wake) into a cobra command tree. Generalized from the
// teacher's internal/cli/root.go, which wired a single downloader job
// into one "download" command plus a handful of supporting ones.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rivershard/launcher/internal/applog"
	"github.com/rivershard/launcher/internal/config"
	"github.com/rivershard/launcher/internal/download"
	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/events/wsbridge"
	"github.com/rivershard/launcher/internal/manifest"
	"github.com/rivershard/launcher/internal/provider"
	"github.com/rivershard/launcher/internal/provider/flat"
	"github.com/rivershard/launcher/internal/provider/hierarchical"
	"github.com/rivershard/launcher/internal/selfupdate"
	"github.com/rivershard/launcher/internal/upload"
	"github.com/rivershard/launcher/internal/wake"
)

// RootOpts holds global CLI options, parsed once by the root command's
// persistent flags and threaded into every subcommand.
type RootOpts struct {
	ConfigPath      string
	LogFile         string
	LogLevel        string
	JSONOut         bool
	Provider        string
	FlatOrg         string
	HierarchicalURL string
	BootstrapRepo   string
	Token           string
}

// app bundles the long-lived state every subcommand reads: the config
// store, the provider registry, the event bus, and the engines built
// over them.
type app struct {
	opts     *RootOpts
	log      *slog.Logger
	store    *config.Store
	registry *provider.Registry
	bus      *events.Bus
	manifests *manifest.Store

	downloadEngine *download.Engine
	uploadEngine   *upload.Engine
}

// Execute runs the CLI with the given version string.
func Execute(version string) error {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "launcher",
		Short:         "Resumable, multi-backend game release launcher",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	root.PersistentFlags().StringVar(&ro.ConfigPath, "config", defaultConfigPath(), "Path to the launcher's config.json")
	root.PersistentFlags().StringVar(&ro.LogFile, "log-file", "", "Write structured logs to file in addition to stderr")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events on stdout instead of human text")
	root.PersistentFlags().StringVar(&ro.Provider, "provider", "", "Backend id to select for this run: flat or hierarchical (defaults to the config's current_provider)")
	root.PersistentFlags().StringVar(&ro.FlatOrg, "flat-org", "", "GitHub organization backing the flat provider")
	root.PersistentFlags().StringVar(&ro.HierarchicalURL, "hierarchical-url", "", "GitLab base URL backing the hierarchical provider")
	root.PersistentFlags().StringVar(&ro.BootstrapRepo, "bootstrap-repo", "launcher/bootstrap", "Repo carrying the manifest.json issue")
	root.PersistentFlags().StringVar(&ro.Token, "token", "", "Backend access token (also reads LAUNCHER_TOKEN env)")

	a := &app{opts: ro}

	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.init(cmd.Context())
	}

	root.AddCommand(newDownloadCmd(ctx, a))
	root.AddCommand(newUploadCmd(ctx, a))
	root.AddCommand(newProviderCmd(ctx, a))
	root.AddCommand(newSelfUpdateCmd(ctx, a, version))
	root.AddCommand(newWakeCmd(ctx, a))
	root.AddCommand(newServeCmd(ctx, a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newVersionCmd(version))
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errorColor("error:"), err)
		return err
	}
	return nil
}

// init opens the config store, builds the logger, registers both
// provider backends, selects one, and constructs the download/upload
// engines. Run once via PersistentPreRunE, before any subcommand body.
func (a *app) init(ctx context.Context) error {
	level := parseLevel(a.opts.LogLevel)
	var logFile *os.File
	if a.opts.LogFile != "" {
		f, err := os.OpenFile(a.opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("cli: open log file: %w", err)
		}
		logFile = f
	}
	a.log = applog.New(logFile, level)

	store, err := config.Open(a.opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("cli: open config: %w", err)
	}
	a.store = store

	a.bus = events.NewBus()
	a.registry = provider.NewRegistry()
	a.manifests = manifest.NewStore()

	snapshot := store.Snapshot()

	flatAdapter := flat.New(a.opts.FlatOrg)
	hierAdapter := hierarchical.New(a.opts.HierarchicalURL)
	a.registry.Register(flatAdapter)
	a.registry.Register(hierAdapter)

	tokens := map[string]string{}
	for id, tok := range snapshot.Tokens {
		tokens[id] = tok.Obfuscated
	}
	if a.opts.Token != "" {
		tokens[a.currentProviderID()] = config.ObfuscateToken(a.opts.Token)
	} else if env := os.Getenv("LAUNCHER_TOKEN"); env != "" {
		tokens[a.currentProviderID()] = config.ObfuscateToken(env)
	}
	a.registry.SetTokens(tokens, config.DeobfuscateToken)

	if err := a.registry.SetCurrent(a.currentProviderID()); err != nil {
		return fmt.Errorf("cli: %w", err)
	}
	current, err := a.registry.Current()
	if err != nil {
		return err
	}

	if _, _, err := a.loadManifest(ctx, current); err != nil && err != provider.ErrManifestMissing {
		a.log.Warn("cli: manifest load deferred", "error", err)
	}

	a.downloadEngine = download.New(current, a.store, a.bus, download.NewExecExtractor(""), a.log)
	a.uploadEngine = upload.New(current, a.store, a.bus, a.log)
	return nil
}

func (a *app) currentProviderID() string {
	if a.opts.Provider != "" {
		return a.opts.Provider
	}
	snapshot := a.store.Snapshot()
	if snapshot.CurrentProvider != "" {
		return snapshot.CurrentProvider
	}
	return "flat"
}

// loadManifest fetches and caches the bootstrap manifest for adapter,
// then applies it to the adapter's own manifest cache so GetManifest
// reflects it for the rest of the run.
func (a *app) loadManifest(ctx context.Context, adapter provider.Adapter) (provider.BootstrapManifest, bool, error) {
	m, err := a.manifests.Load(ctx, adapter, a.opts.BootstrapRepo)
	if err != nil {
		return provider.BootstrapManifest{}, false, err
	}
	if _, err := adapter.LoadManifest(ctx); err != nil {
		return m, false, err
	}
	return m, true, nil
}

func (a *app) newSelfUpdater(owner, project string) *selfupdate.Updater {
	current, _ := a.registry.Current()
	return selfupdate.New(current, owner, project, a.log)
}

func (a *app) newWakeDetector(settle time.Duration) *wake.Detector {
	return wake.New(settle, selfupdate.Restart, a.log)
}

// startWSBridge optionally exposes the bus over a local websocket for a
// UI to consume, mirroring the teacher's now-removed internal/server
// websocket surface but scoped to "forward events", nothing more.
func (a *app) startWSBridge(addr string) (stop func(), err error) {
	br := wsbridge.New(a.bus, a.log)
	ch, unsubscribe := a.bus.Subscribe()
	done := make(chan struct{})
	go br.Run(ch, done)

	mux := http.NewServeMux()
	mux.HandleFunc("/events", br.ServeHTTP)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("cli: websocket bridge stopped", "error", err)
		}
	}()

	return func() {
		close(done)
		unsubscribe()
		_ = srv.Close()
	}, nil
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "config.json"
	}
	return filepath.Join(home, ".config", "launcher", "config.json")
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
