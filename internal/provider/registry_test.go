// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package provider_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/provider"
	"github.com/rivershard/launcher/internal/provider/providertest"
)

func TestRegistrySetCurrentUnknown(t *testing.T) {
	r := provider.NewRegistry()
	err := r.SetCurrent("nope")
	require.ErrorIs(t, err, provider.ErrUnknownProvider)
}

func TestRegistryCurrentNoneSelected(t *testing.T) {
	r := provider.NewRegistry()
	_, err := r.Current()
	require.ErrorIs(t, err, provider.ErrNoProviderSelected)
}

func TestRegistryPingAllAndFastestAvailable(t *testing.T) {
	fast := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer fast.Close()

	slowDead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Millisecond)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer slowDead.Close()

	reg := provider.NewRegistry()
	reg.Register(providertest.NewFake("alpha", fast.URL))
	reg.Register(providertest.NewFake("beta", slowDead.URL))

	results := reg.PingAll(context.Background())
	require.Len(t, results, 2)

	fastest := reg.FastestAvailable()
	require.Len(t, fastest, 1)
	require.Equal(t, "alpha", fastest[0].ID)
	require.True(t, fastest[0].Status.Available)
}

func TestRegistrySetTokensFallsBackOnDecodeFailure(t *testing.T) {
	reg := provider.NewRegistry()
	fake := providertest.NewFake("alpha", "http://example.invalid")
	reg.Register(fake)

	decode := func(s string) string {
		if s == "bad" {
			return s // simulate a decode that just returns the input unchanged
		}
		return "decoded-" + s
	}
	reg.SetTokens(map[string]string{"alpha": "bad"}, decode)
	require.Equal(t, "bad", fake.Token())

	reg.SetTokens(map[string]string{"alpha": "xyz"}, decode)
	require.Equal(t, "decoded-xyz", fake.Token())
}
