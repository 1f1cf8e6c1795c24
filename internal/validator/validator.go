// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package validator enforces the node's connect-accept and
// connect-attempt trust policy: a peer must present a valid signature
// over the handshake transcript with its claimed long-term key, and
// its current trust level must permit a connection at all.
package validator

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/dawn-project/dawnnode/internal/audit"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
	"github.com/dawn-project/dawnnode/internal/trust"
)

// Direction distinguishes which side of a handshake is being
// validated, purely for audit detail — the policy table itself is
// symmetric.
type Direction string

const (
	DirectionAccept  Direction = "connect-accept"
	DirectionAttempt Direction = "connect-attempt"
)

// Validator applies the trust policy table to handshake attempts.
type Validator struct {
	trustMgr      *trust.Manager
	log           *audit.Log
	rejectUnknown bool
}

// New constructs a Validator. rejectUnknown is read fresh on every
// Validate call via SetRejectUnknown so a runtime config change takes
// effect immediately, per the policy's "read once per attempt"
// requirement.
func New(trustMgr *trust.Manager, log *audit.Log, rejectUnknown bool) *Validator {
	return &Validator{trustMgr: trustMgr, log: log, rejectUnknown: rejectUnknown}
}

// SetRejectUnknown updates the reject_unknown policy flag.
func (v *Validator) SetRejectUnknown(reject bool) {
	v.rejectUnknown = reject
}

// Validate checks a claimed public key's signature over transcript
// and, if the signature is valid, applies the trust policy table for
// the claimed node_id. It returns nil only when the connection may
// proceed.
func (v *Validator) Validate(dir Direction, nodeID, claimedPublicKeyHex string, transcript, signature []byte) error {
	pubKey, err := hex.DecodeString(claimedPublicKeyHex)
	if err != nil || len(pubKey) != ed25519.PublicKeySize {
		v.audit(dir, nodeID, false, "malformed public key")
		return dawnerr.New(dawnerr.CodeCrypto, "malformed claimed public key", err)
	}

	if !ed25519.Verify(pubKey, transcript, signature) {
		v.audit(dir, nodeID, false, "signature verification failed")
		return dawnerr.New(dawnerr.CodeCrypto, "signature verification failed", nil).
			WithDetails("node_id", nodeID)
	}

	level := v.trustMgr.Level(nodeID)
	switch level {
	case trust.LevelUntrusted:
		v.audit(dir, nodeID, false, "peer is untrusted")
		return dawnerr.New(dawnerr.CodeTrust, "peer is untrusted", nil).WithDetails("node_id", nodeID)

	case trust.LevelUnknown:
		if v.rejectUnknown {
			v.audit(dir, nodeID, false, "unknown peer rejected by policy")
			return dawnerr.New(dawnerr.CodeTrust, "unknown peer rejected by policy", nil).
				WithDetails("node_id", nodeID)
		}
		if err := v.trustMgr.RecordVerification(nodeID, claimedPublicKeyHex); err != nil {
			v.audit(dir, nodeID, false, "trust promotion failed")
			return err
		}

	case trust.LevelVerified, trust.LevelTrusted, trust.LevelBootstrap:
		if err := v.trustMgr.RecordVerification(nodeID, claimedPublicKeyHex); err != nil {
			v.audit(dir, nodeID, false, "trust refresh failed")
			return err
		}

	default:
		return fmt.Errorf("validator: unknown trust level %q", level)
	}

	v.audit(dir, nodeID, true, "")
	return nil
}

func (v *Validator) audit(dir Direction, nodeID string, success bool, reason string) {
	if v.log == nil {
		return
	}
	details := map[string]interface{}{
		"direction": string(dir),
		"success":   success,
	}
	if reason != "" {
		details["reason"] = reason
	}
	v.log.Append("HANDSHAKE_VALIDATED", nodeID, details)
}
