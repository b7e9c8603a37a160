// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package flat implements provider.Adapter against a GitHub-style forge:
// releases are modeled as GitHub Releases, shards are plain repos inside
// one org named "<release-slug>_main_<n>" / "<release-slug>_updates_<n>",
// and release listing enumerates org repos, deduplicating by the repo
// Description field (which carries the release name across shards).
package flat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/google/go-github/v61/github"

	"github.com/rivershard/launcher/internal/provider"
)

// Adapter is the flat, GitHub-backed provider.Adapter implementation.
type Adapter struct {
	org       string
	healthURL string

	mu       sync.RWMutex
	token    string
	client   *github.Client
	httpc    *http.Client
	manifest provider.BootstrapManifest
	hasManifest bool

	projectIDs sync.Map // slug -> int64, cached project lookup
}

// New returns a flat adapter for the given GitHub organization.
func New(org string) *Adapter {
	a := &Adapter{
		org:       org,
		healthURL: "https://api.github.com",
		httpc:     http.DefaultClient,
	}
	a.client = github.NewClient(a.httpc)
	return a
}

func (a *Adapter) ID() string              { return "flat" }
func (a *Adapter) HealthURL() string       { return a.healthURL }
func (a *Adapter) SupportsSubgroups() bool { return false }

func (a *Adapter) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
	a.client = github.NewClient(a.httpc).WithAuthToken(token)
}

func (a *Adapter) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *Adapter) client_() *github.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

// shardNamePattern builds the flat naming scheme "<slug>_main_<n>" /
// "<slug>_updates_<n>" shared by shard enumeration and creation.
func shardName(slug, kind string, n int) string {
	return fmt.Sprintf("%s_%s_%d", slug, kind, n)
}

// LoadManifest finds the issue titled "manifest.json" on the bootstrap
// repo "<org>/launcher-bootstrap" and decodes its body.
func (a *Adapter) LoadManifest(ctx context.Context) (provider.BootstrapManifest, error) {
	issues, err := a.FindIssue(ctx, "launcher-bootstrap", provider.IssueParams{Title: "manifest.json"})
	if err != nil {
		return provider.BootstrapManifest{}, err
	}
	if len(issues) == 0 {
		return provider.BootstrapManifest{}, provider.ErrManifestMissing
	}
	var m provider.BootstrapManifest
	if err := json.Unmarshal([]byte(issues[0].Description), &m); err != nil {
		return provider.BootstrapManifest{}, &provider.DecodeError{URL: "launcher-bootstrap#manifest.json", Err: err}
	}
	a.mu.Lock()
	a.manifest, a.hasManifest = m, true
	a.mu.Unlock()
	return m, nil
}

func (a *Adapter) GetManifest() (provider.BootstrapManifest, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manifest, a.hasManifest
}

func (a *Adapter) GetLauncherBackground(ctx context.Context) ([]byte, error) {
	return a.GetFileRaw(ctx, "launcher-bootstrap", "background.png")
}

func (a *Adapter) GetFileRaw(ctx context.Context, repo, path string) ([]byte, error) {
	rc, _, err := a.client_().Repositories.DownloadContents(ctx, a.org, repo, path, nil)
	if err != nil {
		return nil, translateErr(err, path)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (a *Adapter) GetBlobStream(ctx context.Context, repo, ref string, seek int64) (io.ReadCloser, error) {
	url, err := a.GetBlobDirectURL(ctx, repo, ref)
	if err != nil {
		return nil, err
	}
	return a.GetBlobByURLStream(ctx, url, seek)
}

func (a *Adapter) GetBlobByURLStream(ctx context.Context, url string, seek int64) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if seek > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", seek))
	}
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return nil, &provider.TransportError{Op: "get blob", Err: err}
	}
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &provider.APIError{Status: resp.StatusCode, Body: string(body), URL: url}
	}
	return resp.Body, nil
}

// GetBlobDirectURL resolves a release asset's browser_download_url by
// matching ref against the asset name on repo's latest release.
func (a *Adapter) GetBlobDirectURL(ctx context.Context, repo, ref string) (string, error) {
	rel, _, err := a.client_().Repositories.GetLatestRelease(ctx, a.org, repo)
	if err != nil {
		return "", translateErr(err, repo)
	}
	for _, asset := range rel.Assets {
		if asset.GetName() == ref {
			return asset.GetBrowserDownloadURL(), nil
		}
	}
	return "", &provider.APIError{Status: 404, URL: repo + "/" + ref, Body: "asset not found"}
}

func (a *Adapter) GetFileContentSize(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, err
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return 0, &provider.TransportError{Op: "head", Err: err}
	}
	defer resp.Body.Close()
	return resp.ContentLength, nil
}

func (a *Adapter) Tree(ctx context.Context, repo string, params provider.TreeParams) ([]provider.TreeItem, error) {
	ref := params.Ref
	if ref == "" {
		ref = "HEAD"
	}
	tree, _, err := a.client_().Git.GetTree(ctx, a.org, repo, ref, params.Recursive)
	if err != nil {
		return nil, translateErr(err, repo)
	}
	projectID, _ := a.resolveProjectID(ctx, repo)
	out := make([]provider.TreeItem, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		if params.Path != "" && !strings.HasPrefix(e.GetPath(), params.Path) {
			continue
		}
		itemType := provider.TreeItemBlob
		if e.GetType() == "tree" {
			itemType = provider.TreeItemTree
		}
		out = append(out, provider.TreeItem{
			ID:        e.GetSHA(),
			ProjectID: projectID,
			Name:      lastSegment(e.GetPath()),
			Path:      e.GetPath(),
			Type:      itemType,
		})
	}
	return out, nil
}

func (a *Adapter) GetFullTree(ctx context.Context, repo string) ([]provider.TreeItem, error) {
	return a.Tree(ctx, repo, provider.TreeParams{Recursive: true})
}

func (a *Adapter) resolveProjectID(ctx context.Context, repo string) (int64, error) {
	if v, ok := a.projectIDs.Load(repo); ok {
		return v.(int64), nil
	}
	r, _, err := a.client_().Repositories.Get(ctx, a.org, repo)
	if err != nil {
		return 0, translateErr(err, repo)
	}
	id := r.GetID()
	a.projectIDs.Store(repo, id)
	return id, nil
}

func (a *Adapter) FindIssue(ctx context.Context, repo string, params provider.IssueParams) ([]provider.Issue, error) {
	issues, _, err := a.client_().Issues.ListByRepo(ctx, a.org, repo, &github.IssueListByRepoOptions{
		State: "all",
	})
	if err != nil {
		return nil, translateErr(err, repo)
	}
	var out []provider.Issue
	for _, iss := range issues {
		if params.Title != "" && iss.GetTitle() != params.Title {
			continue
		}
		out = append(out, provider.Issue{Title: iss.GetTitle(), Description: iss.GetBody()})
	}
	return out, nil
}

func (a *Adapter) FindUser(ctx context.Context, repo, uuid string) ([]provider.Issue, error) {
	return a.FindIssue(ctx, repo, provider.IssueParams{Title: uuid})
}

func (a *Adapter) AddFileToRepo(ctx context.Context, repo, name string, content []byte, message, branch string) error {
	opts := &github.RepositoryContentFileOptions{
		Message: github.String(message),
		Content: content,
		Branch:  github.String(branch),
	}
	_, _, err := a.client_().Repositories.CreateFile(ctx, a.org, repo, name, opts)
	return translateErr(err, repo+"/"+name)
}

func (a *Adapter) UploadReleaseFile(ctx context.Context, uploadURL string, size int64, r io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := a.httpc.Do(req)
	if err != nil {
		return &provider.TransportError{Op: "upload asset", Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return &provider.APIError{Status: resp.StatusCode, Body: string(body), URL: uploadURL}
	}
	return nil
}

func (a *Adapter) CreateTag(ctx context.Context, repo, tag, branch string) error {
	ref, _, err := a.client_().Git.GetRef(ctx, a.org, repo, "refs/heads/"+branch)
	if err != nil {
		return translateErr(err, repo)
	}
	_, _, err = a.client_().Git.CreateRef(ctx, a.org, repo, &github.Reference{
		Ref:    github.String("refs/tags/" + tag),
		Object: ref.Object,
	})
	return translateErr(err, repo)
}

func (a *Adapter) CreateRelease(ctx context.Context, repo, tag string, assets []string) (provider.CreatedRelease, error) {
	rel := &github.RepositoryRelease{TagName: github.String(tag), Name: github.String(tag)}
	created, _, err := a.client_().Repositories.CreateRelease(ctx, a.org, repo, rel)
	if err != nil {
		return provider.CreatedRelease{}, translateErr(err, repo)
	}
	return provider.CreatedRelease{
		UploadURL: created.GetUploadURL(),
	}, nil
}

func (a *Adapter) GetAssetURL() string {
	return "https://uploads.github.com/repos/<NAME_SPACE>/<PROJECT_ID>/releases/<VERSION>/assets?name=<FILE_NAME>"
}

func (a *Adapter) GetLauncherLatestRelease(ctx context.Context, owner, project string) (provider.ReleaseGit, error) {
	rel, _, err := a.client_().Repositories.GetLatestRelease(ctx, owner, project)
	if err != nil {
		return provider.ReleaseGit{}, translateErr(err, owner+"/"+project)
	}
	out := provider.ReleaseGit{Name: rel.GetName(), Version: rel.GetTagName()}
	for _, asset := range rel.Assets {
		out.Assets = append(out.Assets, provider.ReleaseAsset{
			Name:         asset.GetName(),
			Platform:     platformFromAssetName(asset.GetName()),
			Size:         int64(asset.GetSize()),
			DownloadLink: asset.GetBrowserDownloadURL(),
		})
	}
	return out, nil
}

// GetMainRelease returns the release-asset list for name's GitHub
// release, keeping only assets whose name begins with "game.7z".
func (a *Adapter) GetMainRelease(ctx context.Context, name string) ([]provider.TreeItem, error) {
	rel, _, err := a.client_().Repositories.GetReleaseByTag(ctx, a.org, name, name)
	if err != nil {
		return nil, &provider.ErrNoShards{Release: name}
	}
	var out []provider.TreeItem
	for _, asset := range rel.Assets {
		if !strings.HasPrefix(asset.GetName(), "game.7z") {
			continue
		}
		out = append(out, provider.TreeItem{
			ID:   fmt.Sprint(asset.GetID()),
			Name: asset.GetName(),
			Path: asset.GetName(),
			Type: provider.TreeItemBlob,
		})
	}
	if len(out) == 0 {
		return nil, &provider.ErrNoShards{Release: name}
	}
	return out, nil
}

func (a *Adapter) GetReleases(ctx context.Context, cached bool) ([]provider.ReleaseSummary, error) {
	var out []provider.ReleaseSummary
	seenByDescription := map[string]bool{}
	opts := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: 100}}
	for {
		repos, resp, err := a.client_().Repositories.ListByOrg(ctx, a.org, opts)
		if err != nil {
			return nil, translateErr(err, a.org)
		}
		for _, r := range repos {
			desc := r.GetDescription()
			if desc == "" || seenByDescription[desc] {
				continue
			}
			if !strings.Contains(r.GetName(), "_main_") {
				continue
			}
			seenByDescription[desc] = true
			out = append(out, provider.ReleaseSummary{
				ID:   r.GetID(),
				Name: desc,
				Slug: slugify(desc),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return out, nil
}

func (a *Adapter) SetReleaseVisibility(ctx context.Context, nameOrSlug string, public bool) error {
	shards, err := a.GetReleaseReposByName(ctx, nameOrSlug)
	if err != nil {
		return err
	}
	visibility := "private"
	if public {
		visibility = "public"
	}
	for _, shard := range shards {
		_, _, err := a.client_().Repositories.Edit(ctx, a.org, shard.Name, &github.Repository{
			Visibility: github.String(visibility),
		})
		if err != nil {
			return translateErr(err, shard.Name)
		}
	}
	return nil
}

func (a *Adapter) reposByKind(ctx context.Context, name, kind string) ([]provider.ShardDescriptor, error) {
	var out []provider.ShardDescriptor
	opts := &github.RepositoryListByOrgOptions{ListOptions: github.ListOptions{PerPage: 100}}
	prefix := slugify(name) + "_" + kind + "_"
	for {
		repos, resp, err := a.client_().Repositories.ListByOrg(ctx, a.org, opts)
		if err != nil {
			return nil, translateErr(err, a.org)
		}
		for _, r := range repos {
			if !strings.HasPrefix(r.GetName(), prefix) {
				continue
			}
			out = append(out, provider.ShardDescriptor{
				ID:           r.GetID(),
				Name:         r.GetName(),
				Slug:         r.GetName(),
				SSHRemoteURL: r.GetSSHURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	if len(out) == 0 {
		return nil, &provider.ErrNoShards{Release: name}
	}
	return out, nil
}

func (a *Adapter) GetReleaseReposByName(ctx context.Context, name string) ([]provider.ShardDescriptor, error) {
	return a.reposByKind(ctx, name, "main")
}

func (a *Adapter) GetUpdatesReposByName(ctx context.Context, name string) ([]provider.ShardDescriptor, error) {
	return a.reposByKind(ctx, name, "updates")
}

// CreateGroup is a no-op for the flat adapter: it has no subgroup concept.
func (a *Adapter) CreateGroup(ctx context.Context, name, parent string) (provider.ShardDescriptor, error) {
	return provider.ShardDescriptor{Name: name, Slug: name}, nil
}

func (a *Adapter) CreateRepo(ctx context.Context, name, description, parent string) (provider.ShardDescriptor, error) {
	repo := &github.Repository{
		Name:        github.String(name),
		Description: github.String(description),
		Private:     github.Bool(true),
	}
	created, _, err := a.client_().Repositories.Create(ctx, a.org, repo)
	if err != nil {
		return provider.ShardDescriptor{}, translateErr(err, name)
	}
	return provider.ShardDescriptor{
		ID:           created.GetID(),
		Name:         created.GetName(),
		Slug:         created.GetName(),
		SSHRemoteURL: created.GetSSHURL(),
	}, nil
}

func (a *Adapter) CloneBox() provider.Adapter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	clone := &Adapter{
		org:         a.org,
		healthURL:   a.healthURL,
		token:       a.token,
		client:      a.client,
		httpc:       a.httpc,
		manifest:    a.manifest,
		hasManifest: a.hasManifest,
	}
	return clone
}

var _ provider.Adapter = (*Adapter)(nil)

func translateErr(err error, url string) error {
	if err == nil {
		return nil
	}
	if ghErr, ok := err.(*github.ErrorResponse); ok {
		status := 0
		if ghErr.Response != nil {
			status = ghErr.Response.StatusCode
		}
		return &provider.APIError{Status: status, Body: ghErr.Message, URL: url}
	}
	return &provider.TransportError{Op: "github api", Err: err}
}

func slugify(name string) string {
	return strings.Join(strings.Fields(name), "-")
}

func lastSegment(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return path
	}
	return path[idx+1:]
}

func platformFromAssetName(name string) provider.Platform {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "win"):
		return provider.PlatformWindows
	case strings.Contains(lower, "mac") || strings.Contains(lower, "darwin"):
		return provider.PlatformMacOS
	default:
		return provider.PlatformLinux
	}
}
