// SAGE - Secure Agent Guarantee Engine
// Copyright (C) 2025 SAGE-X-project
//
// This file is part of SAGE.
//
// SAGE is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SAGE is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with SAGE. If not, see <https://www.gnu.org/licenses/>.

// Package postgres mirrors audit events to a PostgreSQL table for
// off-box querying. It is an optional, best-effort sink: the local
// append-only audit log remains the durability guarantee.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dawn-project/dawnnode/pkg/storage"
)

// Store implements storage.AuditSink backed by a connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// NewStore opens a connection pool and ensures the mirror table exists.
func NewStore(ctx context.Context, cfg *Config) (*Store, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ensure audit_events table: %w", err)
	}

	return &Store{pool: pool}, nil
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS audit_events (
	seq        BIGINT PRIMARY KEY,
	kind       TEXT NOT NULL,
	node_id    TEXT NOT NULL,
	peer_id    TEXT,
	occurred_at TIMESTAMPTZ NOT NULL,
	details    JSONB
)`

// InsertBatch inserts a batch of audit records keyed by seq; a record
// whose seq is already present is skipped.
func (s *Store) InsertBatch(ctx context.Context, records []storage.AuditRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgxBatch{}
	for _, r := range records {
		details, err := json.Marshal(r.Details)
		if err != nil {
			return fmt.Errorf("marshal details for seq %d: %w", r.Seq, err)
		}
		batch.queue(r, details)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for _, q := range batch.rows {
		if _, err := tx.Exec(ctx, upsertSQL, q.r.Seq, q.r.Kind, q.r.NodeID, q.r.PeerID, q.r.Timestamp, q.details); err != nil {
			return fmt.Errorf("insert seq %d: %w", q.r.Seq, err)
		}
	}

	return tx.Commit(ctx)
}

const upsertSQL = `
INSERT INTO audit_events (seq, kind, node_id, peer_id, occurred_at, details)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (seq) DO NOTHING`

type queuedRow struct {
	r       storage.AuditRecord
	details []byte
}

type pgxBatch struct {
	rows []queuedRow
}

func (b *pgxBatch) queue(r storage.AuditRecord, details []byte) {
	b.rows = append(b.rows, queuedRow{r: r, details: details})
}

// Close closes the database connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
