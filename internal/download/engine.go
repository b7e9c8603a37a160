// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"log/slog"
	"os"

	"github.com/rivershard/launcher/internal/applog"
	"github.com/rivershard/launcher/internal/config"
	"github.com/rivershard/launcher/internal/events"
	"github.com/rivershard/launcher/internal/provider"
)

// State is a version's place in the download state machine:
// Idle -> Init -> DownloadFiles -> Completed, with Paused reachable
// from DownloadFiles via cancellation.
type State string

const (
	StateIdle          State = "idle"
	StateInit          State = "init"
	StateDownloadFiles State = "download_files"
	StatePaused        State = "paused"
	StateCompleted     State = "completed"
)

// defaultPullFilesSize is the fixed download worker pool size (PULL_FILES_SIZE).
const defaultPullFilesSize = 4

// StartOptions configures a fresh download.
type StartOptions struct {
	DownloadPath string
	InstallPath  string
	VersionName  string
}

// Engine drives the download and unpack pipelines for one launcher
// instance. One Engine is shared across all versions; concurrent
// versions are distinguished by the cancel registry key.
type Engine struct {
	adapter   provider.Adapter
	store     *config.Store
	bus       events.Sink
	extractor Extractor
	log       *slog.Logger

	pullFilesSize int
	cancels       *cancelRegistry
}

// New returns an Engine. log defaults to slog.Default() if nil.
func New(adapter provider.Adapter, store *config.Store, bus events.Sink, extractor Extractor, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		adapter:       adapter,
		store:         store,
		bus:           bus,
		extractor:     extractor,
		log:           log,
		pullFilesSize: defaultPullFilesSize,
		cancels:       newCancelRegistry(),
	}
}

// Cancel requests a pause of version's in-flight download, if any.
func (e *Engine) Cancel(version string) bool {
	cancelled := e.cancels.cancel(version)
	if cancelled {
		e.bus.Publish(events.Event{Name: events.CancelDownloadVersion, Data: events.CancelDownloadVersionPayload{Version: version}})
	}
	return cancelled
}

// Start plans and runs a fresh download for opts.VersionName.
func (e *Engine) Start(ctx context.Context, opts StartOptions) error {
	snapshot := e.store.Snapshot()
	if _, ok := snapshot.Versions[opts.VersionName]; !ok {
		return ErrVersionNotFound
	}

	vp, err := planFresh(ctx, e.adapter, opts.VersionName)
	if err != nil {
		return err
	}
	vp.DownloadPath = opts.DownloadPath
	vp.InstalledPath = opts.InstallPath

	if err := e.store.Mutate(func(cfg *config.AppConfig) error {
		cfg.Progress[opts.VersionName] = vp
		return nil
	}); err != nil {
		return err
	}

	return e.run(ctx, opts.VersionName, vp)
}

// Resume continues a previously-started download for versionName from
// its persisted VersionProgress.
func (e *Engine) Resume(ctx context.Context, versionName string) error {
	snapshot := e.store.Snapshot()
	vp, ok := snapshot.Progress[versionName]
	if !ok {
		return ErrVersionNotFound
	}
	planResume(vp.DownloadPath, vp)

	if err := e.store.Mutate(func(cfg *config.AppConfig) error {
		cfg.Progress[versionName] = vp
		return nil
	}); err != nil {
		return err
	}

	return e.run(ctx, versionName, vp)
}

// run drives the worker pool + unpack worker for versionName's plan vp
// and blocks until the version either completes or is paused.
func (e *Engine) run(parent context.Context, versionName string, vp *config.VersionProgress) error {
	ctx, cancel := context.WithCancel(parent)
	if !e.cancels.register(versionName, cancel) {
		cancel()
		return ErrAlreadyRunning
	}
	defer e.cancels.unregister(versionName)
	defer cancel()

	fatal := newFatalRecorder(cancel)

	total := len(vp.Files)
	e.bus.Publish(events.Event{Name: events.DownloadVersion, Data: events.DownloadVersionPayload{Version: versionName, TotalFiles: total}})

	fileTasks := make(chan fileTask, total+100)
	unpackTasks := make(chan unpackTask, total)

	for _, f := range vp.Files {
		if f.IsUnpacked {
			continue
		}
		fileTasks <- fileTask{
			Version:      versionName,
			Name:         f.Name,
			DownloadPath: vp.DownloadPath,
			TotalSize:    f.TotalSize,
		}
	}
	close(fileTasks)

	unpackDone := make(chan struct{})
	go func() {
		defer close(unpackDone)
		defer applog.RecoverAndLog(ctx, e.log, "download.unpackWorker", nil)
		e.unpackWorker(ctx, fatal, versionName, vp, unpackTasks)
	}()

	paused := e.downloadWorkers(ctx, fatal, versionName, vp, fileTasks, unpackTasks, total)

	// No further sends happen past this point whether paused or not;
	// closing lets the unpack worker drain what it already has and exit.
	close(unpackTasks)
	<-unpackDone

	// A fatal error takes priority over both the paused and the
	// Done:true paths: the version must never be reported complete (or
	// silently left paused) when a worker hit a permanent failure.
	if err := fatal.get(); err != nil {
		return err
	}

	if paused {
		return nil
	}

	e.bus.Publish(events.Event{Name: events.DownloadUnpackVersion, Data: events.DownloadUnpackVersionPayload{Version: versionName, Done: true}})
	return nil
}

// downloadFileDestPath mirrors plan.go's path join for use from outside
// the package-private helpers in worker.go.
func downloadFileDestPath(downloadPath, name string) string {
	return downloadFilePath(downloadPath, name)
}

func openForWrite(path string, seek int64) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(seek, 0); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}
