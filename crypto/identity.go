// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/pbkdf2"
	"crypto/sha256"
)

// ErrWrongPassphrase is returned when unwrapping a passphrase-protected
// identity key fails authentication. Checked in constant time by the
// underlying AES-GCM tag verification; no early-exit on a partial match.
var ErrWrongPassphrase = errors.New("crypto: wrong passphrase or corrupted identity key")

const (
	identityFileName  = "node_identity.key"
	pbkdf2Iterations  = 100_000
	pbkdf2SaltSize    = 16
	vaultKeyInfo      = "dawn-vault-v1"
)

// NodeID is the canonical on-wire, on-disk identifier for a node:
// lowercase hex of its 32-byte Ed25519 public key.
type NodeID string

// Base58 renders the ID in base58 for human-facing CLI/log output.
// The canonical form on the wire and on disk remains lowercase hex.
func (n NodeID) Base58() string {
	raw, err := hex.DecodeString(string(n))
	if err != nil {
		return string(n)
	}
	return base58.Encode(raw)
}

// NodeIdentity is the node's long-lived Ed25519 keypair.
type NodeIdentity struct {
	private ed25519.PrivateKey
	public  ed25519.PublicKey
	nodeID  NodeID
}

// GenerateIdentity creates a new random identity, independent of any
// on-disk state. Used on first run and by tests.
func GenerateIdentity() (*NodeIdentity, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: generate identity: %w", err)
	}
	return newIdentity(priv, pub), nil
}

func newIdentity(priv ed25519.PrivateKey, pub ed25519.PublicKey) *NodeIdentity {
	return &NodeIdentity{
		private: priv,
		public:  pub,
		nodeID:  NodeID(hex.EncodeToString(pub)),
	}
}

// LoadOrCreateIdentity reads the identity key from
// <dataRoot>/vault/node_identity.key, creating one with owner-only
// permissions if absent. When passphrase is non-empty the file is
// treated as PBKDF2+AES-256-GCM wrapped; an empty passphrase stores
// (and expects) the raw 32-byte seed.
func LoadOrCreateIdentity(dataRoot, passphrase string) (*NodeIdentity, error) {
	vaultDir := filepath.Join(dataRoot, "vault")
	if err := os.MkdirAll(vaultDir, 0700); err != nil {
		return nil, fmt.Errorf("crypto: create vault dir: %w", err)
	}
	path := filepath.Join(vaultDir, identityFileName)

	blob, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		id, genErr := GenerateIdentity()
		if genErr != nil {
			return nil, genErr
		}
		if writeErr := id.persist(path, passphrase); writeErr != nil {
			return nil, writeErr
		}
		return id, nil
	}
	if err != nil {
		return nil, fmt.Errorf("crypto: read identity file: %w", err)
	}

	seed, err := unwrapSeed(blob, passphrase)
	if err != nil {
		return nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return newIdentity(priv, pub), nil
}

func (id *NodeIdentity) persist(path, passphrase string) error {
	blob, err := wrapSeed(id.private.Seed(), passphrase)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, blob, 0600); err != nil {
		return fmt.Errorf("crypto: write identity file: %w", err)
	}
	return nil
}

func wrapSeed(seed []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return seed, nil
	}
	salt, err := RandomBytes(pbkdf2SaltSize)
	if err != nil {
		return nil, err
	}
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
	sealed, err := SealAESGCM(key, seed, salt)
	if err != nil {
		return nil, err
	}
	return append(salt, sealed...), nil
}

func unwrapSeed(blob []byte, passphrase string) ([]byte, error) {
	if passphrase == "" {
		if len(blob) != ed25519.SeedSize {
			return nil, fmt.Errorf("crypto: identity file is not a raw seed and no passphrase was given")
		}
		return blob, nil
	}
	if len(blob) < pbkdf2SaltSize {
		return nil, ErrWrongPassphrase
	}
	salt, sealed := blob[:pbkdf2SaltSize], blob[pbkdf2SaltSize:]
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations, 32, sha256.New)
	seed, err := OpenAESGCM(key, sealed, salt)
	if err != nil {
		return nil, ErrWrongPassphrase
	}
	return seed, nil
}

// NodeID returns the node's canonical identifier: lowercase hex of
// its Ed25519 public key.
func (id *NodeIdentity) NodeID() NodeID {
	return id.nodeID
}

// PublicKey returns the node's Ed25519 public key.
func (id *NodeIdentity) PublicKey() ed25519.PublicKey {
	return id.public
}

// Sign signs message with the node's long-term private key.
func (id *NodeIdentity) Sign(message []byte) []byte {
	return SignEd25519(id.private, message)
}

// VaultKey derives the storage-at-rest encryption key from this
// node's long-term identity: the Ed25519 private key is converted to
// an X25519 scalar (SHA-512 of the seed with RFC8032 clamping) and
// HKDF'd with the node ID as salt and a fixed info string, so
// the key never needs its own separate storage or rotation path.
func (id *NodeIdentity) VaultKey() ([]byte, error) {
	xPriv, err := ed25519PrivToX25519(id.private)
	if err != nil {
		return nil, fmt.Errorf("crypto: derive vault key: %w", err)
	}
	return HKDFSHA256(xPriv, []byte(id.nodeID), []byte(vaultKeyInfo), 32)
}
