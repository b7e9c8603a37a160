// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package hierarchical implements provider.Adapter against a GitLab-style
// forge: a release is a subgroup of manifest.RootID named for the
// release, shards are projects inside that subgroup, and release
// listing enumerates subgroups of RootID directly rather than
// deduplicating a flat repo namespace.
package hierarchical

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/xanzy/go-gitlab"

	"github.com/rivershard/launcher/internal/provider"
)

// Adapter is the hierarchical, GitLab-backed provider.Adapter implementation.
type Adapter struct {
	baseURL string

	mu          sync.RWMutex
	token       string
	client      *gitlab.Client
	httpc       *http.Client
	manifest    provider.BootstrapManifest
	hasManifest bool

	projectIDs sync.Map // "group/project" -> int, cached project lookup
	groupIDs   sync.Map // group full path -> int, cached subgroup lookup
}

// New returns a hierarchical adapter against the GitLab instance at baseURL.
func New(baseURL string) *Adapter {
	a := &Adapter{
		baseURL: baseURL,
		httpc:   http.DefaultClient,
	}
	client, _ := gitlab.NewClient("", gitlab.WithBaseURL(baseURL))
	a.client = client
	return a
}

func (a *Adapter) ID() string              { return "hierarchical" }
func (a *Adapter) HealthURL() string       { return a.baseURL + "/-/health" }
func (a *Adapter) SupportsSubgroups() bool { return true }

func (a *Adapter) SetToken(token string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = token
	client, err := gitlab.NewClient(token, gitlab.WithBaseURL(a.baseURL))
	if err == nil {
		a.client = client
	}
}

func (a *Adapter) Token() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.token
}

func (a *Adapter) client_() *gitlab.Client {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.client
}

func (a *Adapter) rootID() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.manifest.RootID
}

// LoadManifest finds the issue titled "manifest.json" on the well-known
// "launcher-bootstrap" project and decodes its body.
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
	data, _, err := a.client_().RepositoryFiles.GetRawFile(repo, path, &gitlab.GetRawFileOptions{}, gitlab.WithContext(ctx))
	if err != nil {
		return nil, translateErr(err, repo+"/"+path)
	}
	return data, nil
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
		req.Header.Set("PRIVATE-TOKEN", tok)
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

// GetBlobDirectURL resolves a release link's direct_asset_url matching
// ref by name on repo's latest release.
func (a *Adapter) GetBlobDirectURL(ctx context.Context, repo, ref string) (string, error) {
	rel, _, err := a.client_().Releases.GetLatestRelease(repo, gitlab.WithContext(ctx))
	if err != nil {
		return "", translateErr(err, repo)
	}
	for _, link := range rel.Assets.Links {
		if link.Name == ref {
			return link.DirectAssetURL, nil
		}
	}
	return "", &provider.APIError{Status: 404, URL: repo + "/" + ref, Body: "asset link not found"}
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

func (a *Adapter) resolveProjectID(ctx context.Context, repo string) (int, error) {
	if v, ok := a.projectIDs.Load(repo); ok {
		return v.(int), nil
	}
	p, _, err := a.client_().Projects.GetProject(repo, nil, gitlab.WithContext(ctx))
	if err != nil {
		return 0, translateErr(err, repo)
	}
	a.projectIDs.Store(repo, p.ID)
	return p.ID, nil
}

// Tree does not always know the project id at listing time for every
// result; ProjectID is filled in once for the whole listing, which is
// cheaper than a per-entry project lookup and matches the engine's
// later-resolution contract (see provider.TreeItem doc comment).
func (a *Adapter) Tree(ctx context.Context, repo string, params provider.TreeParams) ([]provider.TreeItem, error) {
	projectID, err := a.resolveProjectID(ctx, repo)
	if err != nil {
		return nil, err
	}
	opts := &gitlab.ListTreeOptions{
		Path:      gitlab.Ptr(params.Path),
		Ref:       gitlab.Ptr(params.Ref),
		Recursive: gitlab.Ptr(params.Recursive),
		ListOptions: gitlab.ListOptions{
			Page:    params.Page,
			PerPage: 100,
		},
	}
	nodes, _, err := a.client_().Repositories.ListTree(repo, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, translateErr(err, repo)
	}
	out := make([]provider.TreeItem, 0, len(nodes))
	for _, n := range nodes {
		itemType := provider.TreeItemBlob
		if n.Type == "tree" {
			itemType = provider.TreeItemTree
		}
		out = append(out, provider.TreeItem{
			ID:        n.ID,
			ProjectID: int64(projectID),
			Name:      n.Name,
			Path:      n.Path,
			Type:      itemType,
		})
	}
	return out, nil
}

func (a *Adapter) GetFullTree(ctx context.Context, repo string) ([]provider.TreeItem, error) {
	return a.Tree(ctx, repo, provider.TreeParams{Recursive: true})
}

func (a *Adapter) FindIssue(ctx context.Context, repo string, params provider.IssueParams) ([]provider.Issue, error) {
	opts := &gitlab.ListProjectIssuesOptions{}
	if params.Title != "" {
		opts.Search = gitlab.Ptr(params.Title)
	}
	issues, _, err := a.client_().Issues.ListProjectIssues(repo, opts, gitlab.WithContext(ctx))
	if err != nil {
		return nil, translateErr(err, repo)
	}
	var out []provider.Issue
	for _, iss := range issues {
		if params.Title != "" && iss.Title != params.Title {
			continue
		}
		out = append(out, provider.Issue{Title: iss.Title, Description: iss.Description})
	}
	return out, nil
}

func (a *Adapter) FindUser(ctx context.Context, repo, uuid string) ([]provider.Issue, error) {
	return a.FindIssue(ctx, repo, provider.IssueParams{Title: uuid})
}

func (a *Adapter) AddFileToRepo(ctx context.Context, repo, name string, content []byte, message, branch string) error {
	opts := &gitlab.CreateFileOptions{
		Branch:        gitlab.Ptr(branch),
		Content:       gitlab.Ptr(string(content)),
		CommitMessage: gitlab.Ptr(message),
	}
	_, _, err := a.client_().RepositoryFiles.CreateFile(repo, name, opts, gitlab.WithContext(ctx))
	return translateErr(err, repo+"/"+name)
}

func (a *Adapter) UploadReleaseFile(ctx context.Context, uploadURL string, size int64, r io.Reader) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, r)
	if err != nil {
		return err
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	a.mu.RLock()
	tok := a.token
	a.mu.RUnlock()
	if tok != "" {
		req.Header.Set("PRIVATE-TOKEN", tok)
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
	_, _, err := a.client_().Tags.CreateTag(repo, &gitlab.CreateTagOptions{
		TagName: gitlab.Ptr(tag),
		Ref:     gitlab.Ptr(branch),
	}, gitlab.WithContext(ctx))
	return translateErr(err, repo)
}

func (a *Adapter) CreateRelease(ctx context.Context, repo, tag string, assets []string) (provider.CreatedRelease, error) {
	_, _, err := a.client_().Releases.CreateRelease(repo, &gitlab.CreateReleaseOptions{
		TagName: gitlab.Ptr(tag),
		Name:    gitlab.Ptr(tag),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return provider.CreatedRelease{}, translateErr(err, repo)
	}
	projectID, err := a.resolveProjectID(ctx, repo)
	if err != nil {
		return provider.CreatedRelease{}, err
	}
	return provider.CreatedRelease{
		UploadURL: fmt.Sprintf("%s/api/v4/projects/%d/uploads", a.baseURL, projectID),
	}, nil
}

func (a *Adapter) GetAssetURL() string {
	return a.baseURL + "/api/v4/projects/<PROJECT_ID>/uploads"
}

func (a *Adapter) GetLauncherLatestRelease(ctx context.Context, owner, project string) (provider.ReleaseGit, error) {
	path := owner + "/" + project
	rel, _, err := a.client_().Releases.GetLatestRelease(path, gitlab.WithContext(ctx))
	if err != nil {
		return provider.ReleaseGit{}, translateErr(err, path)
	}
	out := provider.ReleaseGit{Name: rel.Name, Version: rel.TagName}
	for _, link := range rel.Assets.Links {
		out.Assets = append(out.Assets, provider.ReleaseAsset{
			Name:         link.Name,
			Platform:     platformFromAssetName(link.Name),
			DownloadLink: link.DirectAssetURL,
		})
	}
	return out, nil
}

// GetMainRelease walks name's project tree and keeps only blobs named
// "game.7z*".
func (a *Adapter) GetMainRelease(ctx context.Context, name string) ([]provider.TreeItem, error) {
	shards, err := a.GetReleaseReposByName(ctx, name)
	if err != nil {
		return nil, err
	}
	var out []provider.TreeItem
	for _, shard := range shards {
		items, err := a.GetFullTree(ctx, shard.Slug)
		if err != nil {
			continue
		}
		for _, it := range items {
			if it.Type != provider.TreeItemBlob || !strings.HasPrefix(it.Name, "game.7z") {
				continue
			}
			out = append(out, it)
		}
	}
	if len(out) == 0 {
		return nil, &provider.ErrNoShards{Release: name}
	}
	return out, nil
}

// resolveGroupID caches root/subgroup full-path -> numeric id lookups.
func (a *Adapter) resolveGroupID(ctx context.Context, fullPath string) (int, error) {
	if v, ok := a.groupIDs.Load(fullPath); ok {
		return v.(int), nil
	}
	g, _, err := a.client_().Groups.GetGroup(fullPath, nil, gitlab.WithContext(ctx))
	if err != nil {
		return 0, translateErr(err, fullPath)
	}
	a.groupIDs.Store(fullPath, g.ID)
	return g.ID, nil
}

// GetReleases enumerates direct subgroups of RootID: each subgroup is a
// release.
func (a *Adapter) GetReleases(ctx context.Context, cached bool) ([]provider.ReleaseSummary, error) {
	root := a.rootID()
	groupID, err := a.resolveGroupID(ctx, root)
	if err != nil {
		return nil, err
	}
	var out []provider.ReleaseSummary
	opts := &gitlab.ListSubGroupsOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}
	for {
		groups, resp, err := a.client_().Groups.ListSubGroups(groupID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, translateErr(err, root)
		}
		for _, g := range groups {
			out = append(out, provider.ReleaseSummary{
				ID:   int64(g.ID),
				Name: g.Name,
				Slug: g.Path,
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
	groupID, err := a.resolveGroupID(ctx, a.rootID()+"/"+nameOrSlug)
	if err != nil {
		return err
	}
	visibility := gitlab.PrivateVisibility
	if public {
		visibility = gitlab.PublicVisibility
	}
	_, _, err = a.client_().Groups.UpdateGroup(groupID, &gitlab.UpdateGroupOptions{
		Visibility: &visibility,
	}, gitlab.WithContext(ctx))
	return translateErr(err, nameOrSlug)
}

func (a *Adapter) projectsInSubgroup(ctx context.Context, name, kind string) ([]provider.ShardDescriptor, error) {
	groupPath := a.rootID() + "/" + name
	groupID, err := a.resolveGroupID(ctx, groupPath)
	if err != nil {
		return nil, &provider.ErrNoShards{Release: name}
	}
	var out []provider.ShardDescriptor
	opts := &gitlab.ListGroupProjectsOptions{ListOptions: gitlab.ListOptions{PerPage: 100}}
	prefix := name + "_" + kind + "_"
	for {
		projects, resp, err := a.client_().Groups.ListGroupProjects(groupID, opts, gitlab.WithContext(ctx))
		if err != nil {
			return nil, translateErr(err, groupPath)
		}
		for _, p := range projects {
			if !strings.HasPrefix(p.Name, prefix) {
				continue
			}
			out = append(out, provider.ShardDescriptor{
				ID:           int64(p.ID),
				Name:         p.Name,
				Slug:         p.PathWithNamespace,
				SSHRemoteURL: p.SSHURLToRepo,
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
	return a.projectsInSubgroup(ctx, name, "main")
}

func (a *Adapter) GetUpdatesReposByName(ctx context.Context, name string) ([]provider.ShardDescriptor, error) {
	return a.projectsInSubgroup(ctx, name, "updates")
}

func (a *Adapter) CreateGroup(ctx context.Context, name, parent string) (provider.ShardDescriptor, error) {
	parentID, err := a.resolveGroupID(ctx, parent)
	if err != nil {
		return provider.ShardDescriptor{}, err
	}
	g, _, err := a.client_().Groups.CreateGroup(&gitlab.CreateGroupOptions{
		Name:     gitlab.Ptr(name),
		Path:     gitlab.Ptr(name),
		ParentID: gitlab.Ptr(parentID),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return provider.ShardDescriptor{}, translateErr(err, name)
	}
	a.groupIDs.Store(g.FullPath, g.ID)
	return provider.ShardDescriptor{ID: int64(g.ID), Name: g.Name, Slug: g.FullPath}, nil
}

func (a *Adapter) CreateRepo(ctx context.Context, name, description, parent string) (provider.ShardDescriptor, error) {
	groupID, err := a.resolveGroupID(ctx, parent)
	if err != nil {
		return provider.ShardDescriptor{}, err
	}
	p, _, err := a.client_().Projects.CreateProject(&gitlab.CreateProjectOptions{
		Name:        gitlab.Ptr(name),
		NamespaceID: gitlab.Ptr(groupID),
		Description: gitlab.Ptr(description),
		Visibility:  gitlab.Ptr(gitlab.PrivateVisibility),
	}, gitlab.WithContext(ctx))
	if err != nil {
		return provider.ShardDescriptor{}, translateErr(err, name)
	}
	a.projectIDs.Store(p.PathWithNamespace, p.ID)
	return provider.ShardDescriptor{
		ID:           int64(p.ID),
		Name:         p.Name,
		Slug:         p.PathWithNamespace,
		SSHRemoteURL: p.SSHURLToRepo,
	}, nil
}

func (a *Adapter) CloneBox() provider.Adapter {
	a.mu.RLock()
	defer a.mu.RUnlock()
	clone := &Adapter{
		baseURL:     a.baseURL,
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
	if glErr, ok := err.(*gitlab.ErrorResponse); ok {
		status := 0
		if glErr.Response != nil {
			status = glErr.Response.StatusCode
		}
		return &provider.APIError{Status: status, Body: glErr.Message, URL: url}
	}
	return &provider.TransportError{Op: "gitlab api", Err: err}
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
