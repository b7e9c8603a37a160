// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package selfupdate checks the launcher's own latest release against
// the running binary's version, downloads a matching replacement, and
// performs an atomic self-replace plus relaunch.
package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/Masterminds/semver/v3"

	"github.com/rivershard/launcher/internal/provider"
)

// Updater checks for and applies launcher self-updates against a fixed
// bootstrap repo (owner/project identify the launcher's own release
// home, not a game release).
type Updater struct {
	adapter provider.Adapter
	owner   string
	project string
	log     *slog.Logger
}

// New returns an Updater. log defaults to slog.Default() if nil.
func New(adapter provider.Adapter, owner, project string, log *slog.Logger) *Updater {
	if log == nil {
		log = slog.Default()
	}
	return &Updater{adapter: adapter, owner: owner, project: project, log: log}
}

// parseVersion parses v as semver, falling back to 0.0.0 for anything
// unparseable (including a leading "v" the library already strips).
func parseVersion(v string) *semver.Version {
	parsed, err := semver.NewVersion(v)
	if err != nil {
		parsed = semver.MustParse("0.0.0")
	}
	return parsed
}

// Check returns the latest launcher release iff its version strictly
// exceeds current by semver (prerelease ordering included, so
// "1.2.4-rc1" > "1.2.3"). ok is false when there is nothing newer.
func (u *Updater) Check(ctx context.Context, current string) (release provider.ReleaseGit, ok bool, err error) {
	latest, err := u.adapter.GetLauncherLatestRelease(ctx, u.owner, u.project)
	if err != nil {
		return provider.ReleaseGit{}, false, err
	}

	currentV := parseVersion(current)
	latestV := parseVersion(latest.Version)
	if !latestV.GreaterThan(currentV) {
		return provider.ReleaseGit{}, false, nil
	}
	return latest, true, nil
}

// currentPlatform maps runtime.GOOS to the Platform enum release assets
// are tagged with.
func currentPlatform() provider.Platform {
	switch runtime.GOOS {
	case "windows":
		return provider.PlatformWindows
	case "darwin":
		return provider.PlatformMacOS
	default:
		return provider.PlatformLinux
	}
}

// Download selects the asset matching the running OS from release and
// streams it to <appConfigDir>/<current executable's base name>,
// returning the written path.
func (u *Updater) Download(ctx context.Context, release provider.ReleaseGit, appConfigDir string) (string, error) {
	plat := currentPlatform()
	var asset *provider.ReleaseAsset
	for i := range release.Assets {
		if release.Assets[i].Platform == plat {
			asset = &release.Assets[i]
			break
		}
	}
	if asset == nil {
		return "", fmt.Errorf("selfupdate: no release asset for platform %s", plat)
	}

	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	destPath := filepath.Join(appConfigDir, filepath.Base(exe))

	stream, err := u.adapter.GetBlobByURLStream(ctx, asset.DownloadLink, 0)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	if err := os.MkdirAll(appConfigDir, 0o755); err != nil {
		return "", err
	}
	out, err := os.OpenFile(destPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, stream); err != nil {
		return "", err
	}
	return destPath, nil
}

// Install performs an OS-specific atomic self-replace of the running
// binary with the bytes at downloadedPath.
//
// Unix: os.Rename onto the running executable's path is atomic as long
// as both live on the same filesystem, and a process may replace its
// own on-disk image while running (the kernel keeps the old inode open
// for the current process's text segment).
//
// Windows: the running executable cannot be renamed or overwritten
// while it is executing, so Install instead renames the current exe
// aside (freeing its original path) and renames the new binary into
// that path; the aside copy is left for the next launch's wake/cleanup
// path to remove rather than deleted here, since deleting a file the
// OS still has mapped can itself fail.
func Install(downloadedPath string) error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	if runtime.GOOS == "windows" {
		aside := exe + ".old"
		_ = os.Remove(aside)
		if err := os.Rename(exe, aside); err != nil {
			return err
		}
		return os.Rename(downloadedPath, exe)
	}

	// The self-updater's final byte-write step is the one place in the
	// launcher allowed to crash: a full disk here should surface as a
	// process crash, not a caught-and-logged error.
	return os.Rename(downloadedPath, exe)
}

// Restart spawns the current executable as a new detached process and
// exits this one with code 0.
func Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return err
	}
	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Stdin = os.Stdin
	if err := cmd.Start(); err != nil {
		return err
	}
	os.Exit(0)
	return errors.New("unreachable")
}
