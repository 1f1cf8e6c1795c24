package storage

import "context"

// AuditSink is an off-box, best-effort mirror of the local audit log.
// Implementations must tolerate being unreachable: the caller treats
// every error as non-fatal and never blocks the local append path on
// it (see internal/audit's background writer).
type AuditSink interface {
	// InsertBatch writes a batch of audit records. Implementations
	// should upsert on Seq so a retried batch after a partial failure
	// is idempotent.
	InsertBatch(ctx context.Context, records []AuditRecord) error

	// Close releases any underlying connection resources.
	Close() error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
