// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package providertest implements an in-memory provider.Adapter for use
// in tests across internal/provider, internal/download, internal/upload,
// internal/manifest, and internal/selfupdate, without each of those
// packages re-inventing a fake backend.
package providertest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/rivershard/launcher/internal/provider"
)

// Fake is a minimal, in-memory Adapter. Tests populate its exported
// fields/maps directly to script its behavior.
type Fake struct {
	mu sync.Mutex

	id        string
	healthURL string
	token     string
	subgroups bool

	Manifest      provider.BootstrapManifest
	ManifestFound bool

	// Blobs maps "repo/ref/path" -> full content. GetBlobStream honors
	// the requested seek offset against this slice.
	Blobs map[string][]byte

	// Trees maps repo -> full tree listing.
	Trees map[string][]provider.TreeItem

	// Issues maps repo -> issues found there (ignoring IssueParams).
	Issues map[string][]provider.Issue

	// Releases is the list returned by GetReleases.
	Releases []provider.ReleaseSummary

	// ShardsByRelease maps release name -> main shards;
	// UpdatesByRelease maps release name -> updates shards.
	ShardsByRelease  map[string][]provider.ShardDescriptor
	UpdatesByRelease map[string][]provider.ShardDescriptor

	// MainReleaseItems maps release name -> items GetMainRelease returns.
	MainReleaseItems map[string][]provider.TreeItem

	LatestRelease provider.ReleaseGit

	// AddedFiles records AddFileToRepo calls for assertions.
	AddedFiles []AddedFile

	// UploadedAssets records UploadReleaseFile calls.
	UploadedAssets []UploadedAsset

	VisibilityCalls []VisibilityCall

	httpc *http.Client
}

// AddedFile records one AddFileToRepo invocation.
type AddedFile struct {
	Repo, Name, Message, Branch string
	Content                     []byte
}

// UploadedAsset records one UploadReleaseFile invocation.
type UploadedAsset struct {
	URL  string
	Size int64
	Data []byte
}

// VisibilityCall records one SetReleaseVisibility invocation.
type VisibilityCall struct {
	NameOrSlug string
	Public     bool
}

// NewFake returns a Fake adapter with the given id and health URL.
func NewFake(id, healthURL string) *Fake {
	return &Fake{
		id:               id,
		healthURL:        healthURL,
		Blobs:            map[string][]byte{},
		Trees:            map[string][]provider.TreeItem{},
		Issues:           map[string][]provider.Issue{},
		ShardsByRelease:  map[string][]provider.ShardDescriptor{},
		UpdatesByRelease: map[string][]provider.ShardDescriptor{},
		MainReleaseItems: map[string][]provider.TreeItem{},
		httpc:            http.DefaultClient,
	}
}

func (f *Fake) ID() string          { return f.id }
func (f *Fake) HealthURL() string   { return f.healthURL }
func (f *Fake) SupportsSubgroups() bool {
	return f.subgroups
}

// WithSubgroups marks the fake as a hierarchical-style adapter.
func (f *Fake) WithSubgroups() *Fake {
	f.subgroups = true
	return f
}

func (f *Fake) SetToken(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
}

func (f *Fake) Token() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token
}

func (f *Fake) LoadManifest(ctx context.Context) (provider.BootstrapManifest, error) {
	if !f.ManifestFound {
		return provider.BootstrapManifest{}, provider.ErrManifestMissing
	}
	return f.Manifest, nil
}

func (f *Fake) GetManifest() (provider.BootstrapManifest, bool) {
	return f.Manifest, f.ManifestFound
}

func (f *Fake) GetLauncherBackground(ctx context.Context) ([]byte, error) { return nil, nil }

func (f *Fake) blobKey(repo, ref, path string) string {
	return repo + "/" + ref + "/" + path
}

func (f *Fake) GetFileRaw(ctx context.Context, repo, path string) ([]byte, error) {
	b, ok := f.Blobs[f.blobKey(repo, "main", path)]
	if !ok {
		return nil, &provider.APIError{Status: 404, URL: path}
	}
	return b, nil
}

func (f *Fake) GetBlobStream(ctx context.Context, repo, ref string, seek int64) (io.ReadCloser, error) {
	b, ok := f.Blobs[f.blobKey(repo, ref, "")]
	if !ok {
		return nil, &provider.APIError{Status: 404, URL: ref}
	}
	if seek > int64(len(b)) {
		seek = int64(len(b))
	}
	return io.NopCloser(bytes.NewReader(b[seek:])), nil
}

func (f *Fake) GetBlobByURLStream(ctx context.Context, url string, seek int64) (io.ReadCloser, error) {
	b, ok := f.Blobs[url]
	if !ok {
		return nil, &provider.APIError{Status: 404, URL: url}
	}
	if seek > int64(len(b)) {
		seek = int64(len(b))
	}
	return io.NopCloser(bytes.NewReader(b[seek:])), nil
}

func (f *Fake) GetBlobDirectURL(ctx context.Context, repo, ref string) (string, error) {
	return f.blobKey(repo, ref, ""), nil
}

func (f *Fake) GetFileContentSize(ctx context.Context, url string) (int64, error) {
	b, ok := f.Blobs[url]
	if !ok {
		return 0, &provider.APIError{Status: 404, URL: url}
	}
	return int64(len(b)), nil
}

func (f *Fake) Tree(ctx context.Context, repo string, params provider.TreeParams) ([]provider.TreeItem, error) {
	return f.Trees[repo], nil
}

func (f *Fake) GetFullTree(ctx context.Context, repo string) ([]provider.TreeItem, error) {
	return f.Trees[repo], nil
}

func (f *Fake) FindIssue(ctx context.Context, repo string, params provider.IssueParams) ([]provider.Issue, error) {
	var out []provider.Issue
	for _, iss := range f.Issues[repo] {
		if params.Title == "" || iss.Title == params.Title {
			out = append(out, iss)
		}
	}
	return out, nil
}

func (f *Fake) FindUser(ctx context.Context, repo, uuid string) ([]provider.Issue, error) {
	return nil, nil
}

func (f *Fake) AddFileToRepo(ctx context.Context, repo, name string, content []byte, message, branch string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.AddedFiles = append(f.AddedFiles, AddedFile{Repo: repo, Name: name, Content: content, Message: message, Branch: branch})
	return nil
}

func (f *Fake) UploadReleaseFile(ctx context.Context, uploadURL string, size int64, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.UploadedAssets = append(f.UploadedAssets, UploadedAsset{URL: uploadURL, Size: size, Data: b})
	return nil
}

func (f *Fake) CreateTag(ctx context.Context, repo, tag, branch string) error { return nil }

func (f *Fake) CreateRelease(ctx context.Context, repo, tag string, assets []string) (provider.CreatedRelease, error) {
	return provider.CreatedRelease{UploadURL: "https://fake.invalid/upload/<PROJECT_ID>/<NAME_SPACE>/<VERSION>/<FILE_NAME>"}, nil
}

func (f *Fake) GetAssetURL() string { return "https://fake.invalid/asset/<FILE_NAME>" }

func (f *Fake) GetLauncherLatestRelease(ctx context.Context, owner, project string) (provider.ReleaseGit, error) {
	return f.LatestRelease, nil
}

func (f *Fake) GetMainRelease(ctx context.Context, name string) ([]provider.TreeItem, error) {
	items, ok := f.MainReleaseItems[name]
	if !ok {
		return nil, &provider.ErrNoShards{Release: name}
	}
	return items, nil
}

func (f *Fake) GetReleases(ctx context.Context, cached bool) ([]provider.ReleaseSummary, error) {
	return f.Releases, nil
}

func (f *Fake) SetReleaseVisibility(ctx context.Context, nameOrSlug string, public bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.VisibilityCalls = append(f.VisibilityCalls, VisibilityCall{NameOrSlug: nameOrSlug, Public: public})
	return nil
}

func (f *Fake) GetReleaseReposByName(ctx context.Context, name string) ([]provider.ShardDescriptor, error) {
	shards, ok := f.ShardsByRelease[name]
	if !ok || len(shards) == 0 {
		return nil, &provider.ErrNoShards{Release: name}
	}
	return shards, nil
}

func (f *Fake) GetUpdatesReposByName(ctx context.Context, name string) ([]provider.ShardDescriptor, error) {
	return f.UpdatesByRelease[name], nil
}

func (f *Fake) CreateGroup(ctx context.Context, name, parent string) (provider.ShardDescriptor, error) {
	return provider.ShardDescriptor{Name: name, Slug: name}, nil
}

func (f *Fake) CreateRepo(ctx context.Context, name, description, parent string) (provider.ShardDescriptor, error) {
	return provider.ShardDescriptor{Name: name, Slug: name}, nil
}

func (f *Fake) CloneBox() provider.Adapter {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *f
	return &clone
}

var _ provider.Adapter = (*Fake)(nil)

// PutBlob registers full content for a GetBlobStream/GetBlobByURLStream
// lookup and returns the key to use as repo/ref in tests.
func (f *Fake) PutBlob(repo, ref string, content []byte) {
	f.Blobs[f.blobKey(repo, ref, "")] = content
}

// PutBlobURL registers content addressable directly by URL, for
// GetBlobByURLStream-style lookups.
func (f *Fake) PutBlobURL(url string, content []byte) {
	f.Blobs[url] = content
}

// MarshalManifestIssue is a convenience for tests exercising the
// manifest store: it stores a manifest.json-titled issue whose body is
// the JSON encoding of m.
func (f *Fake) MarshalManifestIssue(repo string, m provider.BootstrapManifest) {
	b, _ := json.Marshal(m)
	f.Issues[repo] = append(f.Issues[repo], provider.Issue{Title: "manifest.json", Description: string(b)})
}

func must(err error) {
	if err != nil {
		panic(fmt.Sprintf("providertest: %v", err))
	}
}
