// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

// Package crypto provides the node's cryptographic primitives and
// long-lived identity.
//
// This file is intentionally minimal to avoid circular dependencies.
// The implementations live in:
//   - crypto/keys: Ed25519 and X25519 key pair generation
//   - crypto/storage: in-memory KeyStorage used by tests
//   - crypto/primitives.go: HKDF, AEAD and random-byte helpers (C1)
//   - crypto/identity.go: the node's persisted long-term identity (C2)
package crypto
