// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/rivershard/launcher/internal/events"
)

var (
	infoColor    = color.New(color.FgGreen).SprintFunc()
	successColor = color.New(color.FgHiGreen).SprintFunc()
	warnColor    = color.New(color.FgYellow).SprintFunc()
	errorColor   = color.New(color.FgRed).SprintFunc()
	dimColor     = color.New(color.Faint).SprintFunc()
)

// progressRenderer turns the event stream into either a live, colorized
// terminal display (one cheggaaa/pb bar per file currently downloading or
// packing) or plain text lines when stdout isn't a terminal - the same
// interactive/plain split the teacher's ui_progress.go made with
// golang.org/x/term, generalized here from one download job to every
// engine's events.
type progressRenderer struct {
	interactive bool

	mu   sync.Mutex
	bars map[string]*pb.ProgressBar
}

func newProgressRenderer() *progressRenderer {
	return &progressRenderer{
		interactive: term.IsTerminal(int(os.Stdout.Fd())),
		bars:        map[string]*pb.ProgressBar{},
	}
}

func (r *progressRenderer) handle(e events.Event) {
	switch e.Name {
	case events.DownloadVersion:
		p := e.Data.(events.DownloadVersionPayload)
		fmt.Println(infoColor(fmt.Sprintf("downloading %s: %d files", p.Version, p.TotalFiles)))
	case events.DownloadVersionFiles:
		p := e.Data.(events.DownloadVersionFilesPayload)
		r.updateBar(p.File, p.Size, p.Total)
	case events.FileUnzipped:
		p := e.Data.(events.FileUnzippedPayload)
		r.finishBar(p.File)
		fmt.Println(dimColor("  unpacked " + p.File))
	case events.DownloadUnpackVersion:
		p := e.Data.(events.DownloadUnpackVersionPayload)
		if p.Done {
			fmt.Println(successColor("done: " + p.Version))
		}
	case events.CancelDownloadVersion:
		p := e.Data.(events.CancelDownloadVersionPayload)
		r.finishBar(p.Version)
		fmt.Println(warnColor("cancelled: " + p.Version))
	case events.DownloadSpeedStatus:
		p := e.Data.(events.DownloadSpeedStatusPayload)
		fmt.Println(dimColor(fmt.Sprintf("  %s: %s/s", p.Version, humanRate(p.BytesPerSecond))))
	case events.MoveVersion:
		p := e.Data.(events.MoveVersionPayload)
		fmt.Println(dimColor(fmt.Sprintf("  moved %s -> %s", p.From, p.To)))
	case events.UploadLog:
		p := e.Data.(events.UploadLogPayload)
		fmt.Println(p.Line)
	case events.UploadFilesCount:
		p := e.Data.(events.UploadFilesCountPayload)
		fmt.Println(dimColor(fmt.Sprintf("  uploaded %d/%d files", p.Uploaded, p.Total)))
	case events.UploadProgress:
		p := e.Data.(events.UploadProgressPayload)
		fmt.Println(infoColor(fmt.Sprintf("  group %d pushed (%d/%d)", p.Group, p.UploadedGroups, p.TotalGroups)))
	case events.PackingProgress:
		p := e.Data.(events.PackingProgressPayload)
		r.updateBar("packing", int64(p.FilesPacked), int64(p.TotalFiles))
	case events.LauncherNewVersion:
		p := e.Data.(events.LauncherNewVersionPayload)
		fmt.Println(warnColor(fmt.Sprintf("launcher update available: %s -> %s", p.Current, p.Latest)))
	}
}

// updateBar renders bytes/total as a live cheggaaa/pb bar keyed by key when
// stdout is a terminal, or a plain "current/total" line otherwise.
func (r *progressRenderer) updateBar(key string, current, total int64) {
	if !r.interactive {
		fmt.Printf("  %s: %d/%d\n", key, current, total)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	bar, ok := r.bars[key]
	if !ok {
		fmt.Println(dimColor("  " + key))
		bar = pb.Full.Start64(total)
		bar.Set(pb.Bytes, true)
		r.bars[key] = bar
	}
	if total > 0 {
		bar.SetTotal(total)
	}
	bar.SetCurrent(current)
}

func (r *progressRenderer) finishBar(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if bar, ok := r.bars[key]; ok {
		bar.Finish()
		delete(r.bars, key)
	}
}

func (r *progressRenderer) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, bar := range r.bars {
		bar.Finish()
		delete(r.bars, key)
	}
}

func humanRate(bytesPerSecond float64) string {
	const unit = 1024.0
	if bytesPerSecond < unit {
		return fmt.Sprintf("%.0f B", bytesPerSecond)
	}
	div, exp := unit, 0
	for n := bytesPerSecond / unit; n >= unit && exp < 4; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", bytesPerSecond/div, "KMGT"[exp])
}

