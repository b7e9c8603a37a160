// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	plain := "gh_super_secret_token"
	obf := ObfuscateToken(plain)
	require.NotEqual(t, plain, obf)
	require.Equal(t, plain, DeobfuscateToken(obf))
}

func TestTokenDeobfuscateFallsBackToPlaintext(t *testing.T) {
	// Not valid base64 -> treated as an already-plaintext legacy token.
	require.Equal(t, "not-base64-!!!", DeobfuscateToken("not-base64-!!!"))
}
