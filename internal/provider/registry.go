// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// pingTimeout is the hard per-probe timeout for health checks.
const pingTimeout = 10 * time.Second

// Registry holds named backend adapters, a selected id, and the latest
// health-probe result per adapter. Reads are lock-free snapshots taken
// under a short RWMutex; mutation (register, select, cache update) takes
// the same mutex briefly.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	current  string
	statuses map[string]Status

	httpc *http.Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		statuses: make(map[string]Status),
		httpc:    &http.Client{Timeout: pingTimeout + time.Second},
	}
}

// Register adds or replaces the adapter under its own ID().
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.ID()] = a
}

// SetCurrent selects the active adapter by id. Idempotent; fails with
// ErrUnknownProvider if id was never registered.
func (r *Registry) SetCurrent(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.adapters[id]; !ok {
		return ErrUnknownProvider
	}
	r.current = id
	return nil
}

// Current returns the selected adapter, or ErrNoProviderSelected.
func (r *Registry) Current() (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == "" {
		return nil, ErrNoProviderSelected
	}
	a, ok := r.adapters[r.current]
	if !ok {
		return nil, ErrNoProviderSelected
	}
	return a, nil
}

// ProbeResult pairs an adapter id with its probe result.
type ProbeResult struct {
	ID     string
	Status Status
}

// PingAll probes every registered adapter in parallel, each bounded by a
// 10s hard timeout, and caches the latest result per adapter. Success is
// any 2xx; any other outcome (timeout, network error, 4xx, 5xx) yields
// Status{Available: false}.
func (r *Registry) PingAll(ctx context.Context) []ProbeResult {
	r.mu.RLock()
	snapshot := make(map[string]Adapter, len(r.adapters))
	for id, a := range r.adapters {
		snapshot[id] = a
	}
	r.mu.RUnlock()

	results := make([]ProbeResult, len(snapshot))
	ids := make([]string, 0, len(snapshot))
	for id := range snapshot {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		i, id := i, id
		a := snapshot[id]
		g.Go(func() error {
			results[i] = ProbeResult{ID: id, Status: r.ping(gctx, a)}
			return nil
		})
	}
	_ = g.Wait() // ping() never returns an error; this only joins goroutines

	r.mu.Lock()
	for _, res := range results {
		r.statuses[res.ID] = res.Status
	}
	r.mu.Unlock()

	return results
}

func (r *Registry) ping(ctx context.Context, a Adapter) Status {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.HealthURL(), nil)
	if err != nil {
		return Status{Available: false}
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return Status{Available: false}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Status{Available: false}
	}
	ms := time.Since(start).Milliseconds()
	return Status{Available: true, LatencyMS: &ms}
}

// FastestAvailable returns the cached statuses for available=true
// adapters only, sorted ascending by latency (an adapter with no
// recorded latency sorts last).
func (r *Registry) FastestAvailable() []ProbeResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ProbeResult, 0, len(r.statuses))
	for id, st := range r.statuses {
		if st.Available {
			out = append(out, ProbeResult{ID: id, Status: st})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		li, lj := latencyOrInf(out[i].Status.LatencyMS), latencyOrInf(out[j].Status.LatencyMS)
		if li != lj {
			return li < lj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func latencyOrInf(ms *int64) int64 {
	if ms == nil {
		return 1<<63 - 1
	}
	return *ms
}

// SetTokens applies a batch of id -> stored-token-value pairs. Each value
// is first base64-of-XOR-decoded via config.DeobfuscateToken (injected as
// decode to avoid an import cycle); a decode failure is never a hard
// error - the stored value is applied as-is, preserving older on-disk
// tokens written before obfuscation existed.
func (r *Registry) SetTokens(tokens map[string]string, decode func(string) string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, stored := range tokens {
		a, ok := r.adapters[id]
		if !ok {
			continue
		}
		plain := stored
		if decode != nil {
			plain = decode(stored)
		}
		a.SetToken(plain)
	}
}
