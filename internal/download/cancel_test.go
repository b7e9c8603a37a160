// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package download

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCancelRegistryRejectsDuplicateRegistration(t *testing.T) {
	r := newCancelRegistry()
	_, cancel1 := context.WithCancel(context.Background())
	_, cancel2 := context.WithCancel(context.Background())

	require.True(t, r.register("v1", cancel1))
	require.False(t, r.register("v1", cancel2))

	r.unregister("v1")
	require.True(t, r.register("v1", cancel2))
}

func TestCancelRegistryCancelInvokesAndRemoves(t *testing.T) {
	r := newCancelRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	r.register("v1", cancel)

	require.True(t, r.cancel("v1"))
	require.Error(t, ctx.Err())
	require.False(t, r.cancel("v1")) // already removed
}
