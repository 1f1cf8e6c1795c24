// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

package trust

import (
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dawn-project/dawnnode/internal/dawnerr"
)

// BootstrapClaims is the payload of an operator-signed bootstrap
// certificate: applying one with ApplyBootstrapCertificate mints a trust
// record for its subject without manual trust.json editing.
type BootstrapClaims struct {
	Subject   string `json:"sub"`
	PublicKey string `json:"pubkey"`
	Level     string `json:"level"`
	jwt.RegisteredClaims
}

// bootstrapLevel returns the certificate's level, or an error unless it
// is TRUSTED or BOOTSTRAP.
func (c BootstrapClaims) bootstrapLevel() (Level, error) {
	switch Level(c.Level) {
	case LevelTrusted, LevelBootstrap:
		return Level(c.Level), nil
	default:
		return "", fmt.Errorf("bootstrap certificate level must be TRUSTED or BOOTSTRAP, got %q", c.Level)
	}
}

// LoadBootstrapVerifyKey reads the raw HMAC key used to verify
// bootstrap certificates from path; the file's bytes are used as-is.
func LoadBootstrapVerifyKey(path string) ([]byte, error) {
	key, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("trust: read bootstrap verify key: %w", err)
	}
	return key, nil
}

// VerifyBootstrapCertificate parses and validates a bootstrap JWT
// against verifyKey (HMAC-SHA256), returning the validated claims.
func VerifyBootstrapCertificate(token string, verifyKey []byte) (*BootstrapClaims, error) {
	claims := &BootstrapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return verifyKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, dawnerr.New(dawnerr.CodeTrust, "bootstrap certificate failed verification", err)
	}
	if _, err := claims.bootstrapLevel(); err != nil {
		return nil, dawnerr.New(dawnerr.CodeTrust, err.Error(), nil)
	}
	if claims.Subject == "" || claims.PublicKey == "" {
		return nil, dawnerr.New(dawnerr.CodeTrust, "bootstrap certificate missing sub or pubkey claim", nil)
	}
	return claims, nil
}

// ApplyBootstrapCertificate verifies token and, on success, seeds the
// bearer's trust record at the level the certificate carries.
func (m *Manager) ApplyBootstrapCertificate(token string, verifyKey []byte) error {
	claims, err := VerifyBootstrapCertificate(token, verifyKey)
	if err != nil {
		return err
	}
	level, _ := claims.bootstrapLevel()
	return m.AddTrustedPeer(claims.Subject, claims.PublicKey, level, "bootstrap certificate")
}

// NewBootstrapCertificate signs a bootstrap certificate for subjectNodeID
// with HMAC-SHA256; the tests use it to issue certificates.
func NewBootstrapCertificate(signKey []byte, subjectNodeID, publicKeyHex string, level Level, ttl time.Duration) (string, error) {
	if level != LevelTrusted && level != LevelBootstrap {
		return "", fmt.Errorf("trust: bootstrap certificate level must be TRUSTED or BOOTSTRAP")
	}
	now := time.Now().UTC()
	claims := BootstrapClaims{
		Subject:   subjectNodeID,
		PublicKey: publicKeyHex,
		Level:     string(level),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(signKey)
}
