// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package config

import "encoding/base64"

// tokenXORKey is a fixed, non-secret key. Token obfuscation is a mild
// anti-accidental-disclosure measure, not security - see Design Note on
// token obfuscation. Treat it as part of the on-disk format, nothing more.
var tokenXORKey = []byte("launcher-token-v1")

func xorWith(b []byte, key []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[i] = b[i] ^ key[i%len(key)]
	}
	return out
}

// ObfuscateToken XOR-scrambles then base64-encodes a plaintext token for
// on-disk storage.
func ObfuscateToken(plaintext string) string {
	return base64.StdEncoding.EncodeToString(xorWith([]byte(plaintext), tokenXORKey))
}

// DeobfuscateToken reverses ObfuscateToken. If stored is not valid
// base64, it is treated as an already-plaintext token (older on-disk
// format) and returned unchanged - this path never hard-errors, so a
// token written before obfuscation existed keeps working.
func DeobfuscateToken(stored string) string {
	raw, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		return stored
	}
	return string(xorWith(raw, tokenXORKey))
}
