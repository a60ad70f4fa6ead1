package repositories

import (
	"context"
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
)

// OutboxRepositoryFacade defines the relay's view of the outbox. Entries are
// created inside posting transactions (see PostingWriter); the relay is the
// only component that mutates them afterwards, and nothing ever deletes them.
type OutboxRepositoryFacade interface {
	// ClaimPending atomically claims up to limit pending entries in
	// sequence-number order, marking them PROCESSING and stamping the claim
	// time. The claim commits immediately and acts as a lease: per-tenant
	// ordering holds only while a single relay resolves its claims.
	ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEntry, error)

	// MarkDelivered marks a claimed entry delivered, recording the time.
	MarkDelivered(ctx context.Context, sequenceNo int64, at time.Time) error

	// RecordFailure increments the attempt counter and stores the handler
	// error. When terminal is true the entry is moved to FAILED, otherwise it
	// returns to PENDING for the next poll.
	RecordFailure(ctx context.Context, sequenceNo int64, attemptCount int, lastError string, terminal bool) error

	// Release returns a claimed entry to PENDING without counting an attempt,
	// used when no handler is registered for its event type.
	Release(ctx context.Context, sequenceNo int64) error

	// ReclaimStale returns PROCESSING entries claimed before the cutoff to
	// PENDING without counting an attempt, recovering claims stranded by a
	// crashed or interrupted relay. Returns the number of entries reclaimed.
	ReclaimStale(ctx context.Context, before time.Time) (int64, error)

	// RetryFailed resets all FAILED entries of a tenant to PENDING with a
	// zeroed attempt count. Returns the number of entries reset.
	RetryFailed(ctx context.Context, tenantID string) (int64, error)

	// Stats returns per-status entry counts for a tenant.
	Stats(ctx context.Context, tenantID string) (*domain.OutboxStats, error)
}
