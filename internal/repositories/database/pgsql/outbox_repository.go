package pgsql

import (
	"context"
	"sort"
	"time"

	"github.com/atlaserp/ledgercore/internal/apperrors"
	"github.com/atlaserp/ledgercore/internal/core/domain"
	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxOutboxRepository struct {
	BaseRepository
}

// newPgxOutboxRepository creates a new repository for the relay's side of the
// outbox. Inserts happen inside posting transactions, not here.
func newPgxOutboxRepository(pool *pgxpool.Pool) portsrepo.OutboxRepositoryFacade {
	return &PgxOutboxRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.OutboxRepositoryFacade = (*PgxOutboxRepository)(nil)

// ClaimPending claims up to limit pending entries in sequence order. The
// claim commits immediately, so it is a lease rather than a lock: the
// claimed_at stamp lets ReclaimStale recover entries whose claimer died, and
// per-tenant ordering holds only while a single relay resolves its claims.
// SKIP LOCKED keeps the claim from blocking on in-flight posting transactions.
func (r *PgxOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	query := `
		UPDATE outbox_entries
		SET status = 'PROCESSING', claimed_at = NOW()
		WHERE sequence_no IN (
			SELECT sequence_no FROM outbox_entries
			WHERE status = 'PENDING'
			ORDER BY sequence_no
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING sequence_no, entry_id, tenant_id, event_type, correlation_id, causation_id,
		          aggregate_type, aggregate_id, payload, status, attempt_count, last_error, claimed_at, delivered_at, created_at;
	`
	rows, err := r.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to claim pending outbox entries", err)
	}
	defer rows.Close()

	entries := []domain.OutboxEntry{}
	for rows.Next() {
		var e domain.OutboxEntry
		if err := rows.Scan(
			&e.SequenceNo,
			&e.EntryID,
			&e.TenantID,
			&e.EventType,
			&e.CorrelationID,
			&e.CausationID,
			&e.AggregateType,
			&e.AggregateID,
			&e.Payload,
			&e.Status,
			&e.AttemptCount,
			&e.LastError,
			&e.ClaimedAt,
			&e.DeliveredAt,
			&e.CreatedAt,
		); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan outbox entry row", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating outbox entry rows", err)
	}

	// RETURNING order is not guaranteed to match the subquery's.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SequenceNo < entries[j].SequenceNo
	})
	return entries, nil
}

// MarkDelivered marks a claimed entry delivered.
func (r *PgxOutboxRepository) MarkDelivered(ctx context.Context, sequenceNo int64, at time.Time) error {
	query := `
		UPDATE outbox_entries
		SET status = 'DELIVERED', delivered_at = $2, last_error = NULL, claimed_at = NULL
		WHERE sequence_no = $1 AND status = 'PROCESSING';
	`
	cmdTag, err := r.Pool.Exec(ctx, query, sequenceNo, at)
	if err != nil {
		return apperrors.NewAppError(500, "failed to mark outbox entry delivered", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("outbox entry not in PROCESSING for delivery")
	}
	return nil
}

// RecordFailure stores the handler error, moving the entry to FAILED when the
// attempt budget is exhausted and back to PENDING otherwise.
func (r *PgxOutboxRepository) RecordFailure(ctx context.Context, sequenceNo int64, attemptCount int, lastError string, terminal bool) error {
	status := domain.OutboxPending
	if terminal {
		status = domain.OutboxFailed
	}
	query := `
		UPDATE outbox_entries
		SET status = $2, attempt_count = $3, last_error = $4, claimed_at = NULL
		WHERE sequence_no = $1 AND status = 'PROCESSING';
	`
	cmdTag, err := r.Pool.Exec(ctx, query, sequenceNo, status, attemptCount, lastError)
	if err != nil {
		return apperrors.NewAppError(500, "failed to record outbox failure", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("outbox entry not in PROCESSING for failure record")
	}
	return nil
}

// Release returns a claimed entry to PENDING without counting an attempt.
func (r *PgxOutboxRepository) Release(ctx context.Context, sequenceNo int64) error {
	query := `
		UPDATE outbox_entries
		SET status = 'PENDING', claimed_at = NULL
		WHERE sequence_no = $1 AND status = 'PROCESSING';
	`
	if _, err := r.Pool.Exec(ctx, query, sequenceNo); err != nil {
		return apperrors.NewAppError(500, "failed to release outbox entry", err)
	}
	return nil
}

// ReclaimStale returns PROCESSING entries claimed before the cutoff to
// PENDING without counting an attempt. These are leftovers of a relay that
// crashed or was cancelled between claiming a batch and resolving it.
func (r *PgxOutboxRepository) ReclaimStale(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE outbox_entries
		SET status = 'PENDING', claimed_at = NULL
		WHERE status = 'PROCESSING' AND claimed_at < $1;
	`
	cmdTag, err := r.Pool.Exec(ctx, query, before)
	if err != nil {
		return 0, apperrors.NewAppError(500, "failed to reclaim stale outbox entries", err)
	}
	return cmdTag.RowsAffected(), nil
}

// RetryFailed resets all FAILED entries of a tenant to PENDING.
func (r *PgxOutboxRepository) RetryFailed(ctx context.Context, tenantID string) (int64, error) {
	query := `
		UPDATE outbox_entries
		SET status = 'PENDING', attempt_count = 0, last_error = NULL
		WHERE tenant_id = $1 AND status = 'FAILED';
	`
	cmdTag, err := r.Pool.Exec(ctx, query, tenantID)
	if err != nil {
		return 0, apperrors.NewAppError(500, "failed to reset failed outbox entries for tenant "+tenantID, err)
	}
	return cmdTag.RowsAffected(), nil
}

// Stats returns per-status entry counts for a tenant.
func (r *PgxOutboxRepository) Stats(ctx context.Context, tenantID string) (*domain.OutboxStats, error) {
	query := `
		SELECT
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(*) FILTER (WHERE status = 'PROCESSING'),
			COUNT(*) FILTER (WHERE status = 'DELIVERED'),
			COUNT(*) FILTER (WHERE status = 'FAILED')
		FROM outbox_entries
		WHERE tenant_id = $1;
	`
	var stats domain.OutboxStats
	err := r.Pool.QueryRow(ctx, query, tenantID).Scan(
		&stats.Pending,
		&stats.Processing,
		&stats.Delivered,
		&stats.Failed,
	)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to compute outbox stats for tenant "+tenantID, err)
	}
	return &stats, nil
}
