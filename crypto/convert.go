// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"crypto/ed25519"
	"crypto/sha512"
	"fmt"
)

// ed25519PrivToX25519 converts an Ed25519 private key's seed into the
// clamped X25519 scalar that corresponds to the same key material
// (RFC 8032 §5.1.5), mirroring the convertEd25519PrivToX25519 helper
// in crypto/keys/x25519.go, so the node's single long-term keypair can
// also seed symmetric-key derivation without holding a second on-disk
// secret.
func ed25519PrivToX25519(priv ed25519.PrivateKey) ([]byte, error) {
	if l := len(priv); l != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("bad Ed25519 private key length: %d", l)
	}
	seed := priv.Seed()
	h := sha512.Sum512(seed)
	h[0] &= 248
	h[31] &= 127
	h[31] |= 64

	out := make([]byte, 32)
	copy(out, h[:32])
	return out, nil
}
