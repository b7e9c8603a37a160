// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// sshRemoteRe matches the "git@HOST:PATH" form shard repos are reported
// with, which is rewritten into an HTTPS remote carrying the adapter's
// token so a plain git push needs no SSH agent.
var sshRemoteRe = regexp.MustCompile(`^git@([^:]+):(.+)$`)

// rewriteRemoteURL turns "git@HOST:PATH[.git]" into
// "https://oauth2:<token>@HOST/PATH[.git]". URLs already in another form
// are returned unchanged.
func rewriteRemoteURL(sshURL, token string) string {
	m := sshRemoteRe.FindStringSubmatch(sshURL)
	if m == nil {
		return sshURL
	}
	return fmt.Sprintf("https://oauth2:%s@%s/%s", token, m[1], m[2])
}

// initShardRepo creates (or opens, if already initialized) a local git
// repository in dir and attaches remoteURL as "origin".
func initShardRepo(dir, remoteURL string) (*git.Repository, error) {
	repo, err := git.PlainInit(dir, false)
	if err != nil {
		if err == git.ErrRepositoryAlreadyExists {
			repo, err = git.PlainOpen(dir)
			if err != nil {
				return nil, err
			}
		} else {
			return nil, err
		}
	}

	if _, err := repo.Remote("origin"); err != nil {
		if _, err := repo.CreateRemote(&config.RemoteConfig{
			Name: "origin",
			URLs: []string{remoteURL},
		}); err != nil {
			return nil, err
		}
	}
	return repo, nil
}

// commitFiles stages the named files (relative to the shard directory)
// and creates a commit. The first commit in an otherwise-empty repo
// becomes the initial commit on branch master with no parent;
// go-git's worktree.Commit does this automatically since there is no
// existing HEAD to parent against.
func commitFiles(repo *git.Repository, names []string, message string) (string, error) {
	wt, err := repo.Worktree()
	if err != nil {
		return "", err
	}
	for _, name := range names {
		if _, err := wt.Add(name); err != nil {
			return "", err
		}
	}
	sig := &object.Signature{Name: "launcher-publisher", Email: "publisher@launcher.local", When: time.Now()}
	hash, err := wt.Commit(message, &git.CommitOptions{Author: sig})
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// ensureBranchIsMaster renames the repository's initial branch to
// master if go-git created it under a different default name, since the
// publish contract always pushes "origin master".
func ensureBranchIsMaster(dir string) error {
	headPath := filepath.Join(dir, ".git", "HEAD")
	raw, err := os.ReadFile(headPath)
	if err != nil {
		return err
	}
	if string(raw) == "ref: refs/heads/master\n" {
		return nil
	}
	return os.WriteFile(headPath, []byte("ref: refs/heads/master\n"), 0o644)
}
