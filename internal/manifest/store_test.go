// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package manifest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rivershard/launcher/internal/manifest"
	"github.com/rivershard/launcher/internal/provider"
	"github.com/rivershard/launcher/internal/provider/providertest"
)

func TestLoadCachesAfterFirstFetch(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	fake.MarshalManifestIssue("bootstrap/repo", provider.BootstrapManifest{RootID: "grp-1", MaxSize: 1 << 30})

	s := manifest.NewStore()
	m, err := s.Load(context.Background(), fake, "bootstrap/repo")
	require.NoError(t, err)
	require.Equal(t, "grp-1", m.RootID)
	require.EqualValues(t, 1<<30, m.MaxSize)

	// Remove the issue; cached lookup must still succeed.
	fake.Issues["bootstrap/repo"] = nil
	m2, err := s.Load(context.Background(), fake, "bootstrap/repo")
	require.NoError(t, err)
	require.Equal(t, m, m2)
}

func TestLoadMissingIsFatal(t *testing.T) {
	fake := providertest.NewFake("flat", "http://example.invalid")
	s := manifest.NewStore()
	_, err := s.Load(context.Background(), fake, "bootstrap/repo")
	require.ErrorIs(t, err, provider.ErrManifestMissing)
}
