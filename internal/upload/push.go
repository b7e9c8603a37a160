// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"regexp"
	"strconv"
	"time"

	"github.com/rivershard/launcher/internal/events"
)

// defaultMaxRetries is the bounded push retry count; exceeded, the
// commit stays was_pushed=false for the next continue() to resume at.
const defaultMaxRetries = 3

// progressLineRe matches git's "<stage> NN% (cur/total)" sideband lines
// for the four stages the spec calls out.
var progressLineRe = regexp.MustCompile(`(Compressing|Writing|Counting|Uploading) objects:\s+(\d+)%\s+\((\d+)/(\d+)\)`)

// pushLogLine is one parsed progress update, surfaced as an
// events.UploadLog line.
type pushLogLine struct {
	Stage   string
	Percent int
	Current int
	Total   int
}

func (l pushLogLine) String() string {
	return fmt.Sprintf("%s %d%% (%d/%d)", l.Stage, l.Percent, l.Current, l.Total)
}

// pushWithRetry invokes "git push --progress --verbose origin master" in
// dir up to maxRetries times with exponential backoff (2^attempt
// seconds), surfacing parsed progress lines via bus. It returns
// GitPushFailedError if every attempt exits non-zero.
func pushWithRetry(ctx context.Context, dir string, bus events.Sink, maxRetries int) error {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	var lastExitCode int
	for attempt := 1; attempt <= maxRetries; attempt++ {
		exitCode, err := runGitPush(ctx, dir, bus)
		if err == nil && exitCode == 0 {
			return nil
		}
		lastExitCode = exitCode
		if attempt == maxRetries {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return &GitPushFailedError{Repo: dir, ExitCode: lastExitCode, Attempts: maxRetries}
}

// runGitPush shells out to git push in dir, streaming stdout/stderr
// through the progress-line parser and emitting events.UploadLog lines.
func runGitPush(ctx context.Context, dir string, bus events.Sink) (exitCode int, err error) {
	cmd := exec.CommandContext(ctx, "git", "push", "--progress", "--verbose", "origin", "master")
	cmd.Dir = dir
	cmd.Env = append(cmd.Env, "GIT_TERMINAL_PROMPT=0")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return -1, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return -1, err
	}
	if err := cmd.Start(); err != nil {
		return -1, err
	}

	done := make(chan struct{}, 2)
	go func() { streamProgress(stdout, bus); done <- struct{}{} }()
	go func() { streamProgress(stderr, bus); done <- struct{}{} }()
	<-done
	<-done

	waitErr := cmd.Wait()
	if waitErr == nil {
		return 0, nil
	}
	if exitErr, ok := waitErr.(*exec.ExitError); ok {
		return exitErr.ExitCode(), waitErr
	}
	return -1, waitErr
}

// streamProgress scans r line by line. Lines matching a known stage are
// reformatted into a pushLogLine before surfacing; everything else is
// surfaced verbatim. Either way every line becomes an upload-log event.
func streamProgress(r io.Reader, bus events.Sink) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if m := progressLineRe.FindStringSubmatch(line); m != nil {
			pct, _ := strconv.Atoi(m[2])
			cur, _ := strconv.Atoi(m[3])
			total, _ := strconv.Atoi(m[4])
			line = pushLogLine{Stage: m[1], Percent: pct, Current: cur, Total: total}.String()
		}
		if bus != nil {
			bus.Publish(events.Event{Name: events.UploadLog, Data: events.UploadLogPayload{Line: line}})
		}
	}
}
