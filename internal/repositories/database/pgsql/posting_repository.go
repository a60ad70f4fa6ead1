package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/atlaserp/ledgercore/internal/apperrors"
	"github.com/atlaserp/ledgercore/internal/core/domain"
	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	"github.com/atlaserp/ledgercore/internal/utils/balance"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgxPostingRepository struct {
	BaseRepository
}

// newPgxPostingRepository creates a new repository for events, postings,
// idempotency records and the transactional outbox insert.
func newPgxPostingRepository(pool *pgxpool.Pool) portsrepo.PostingRepositoryFacade {
	return &PgxPostingRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.PostingRepositoryFacade = (*PgxPostingRepository)(nil)

// checkBalanced runs the balance check against the postings about to be
// written. This runs inside the insert path on purpose: no caller can reach
// the ledger tables without passing it.
func checkBalanced(postings []domain.LedgerPosting) error {
	lines := make([]balance.Line, len(postings))
	for i, p := range postings {
		lines[i] = balance.Line{
			AccountID:    p.AccountID,
			Direction:    p.Direction,
			Amount:       p.Amount,
			CurrencyCode: p.CurrencyCode,
		}
	}
	if err := balance.Check(lines); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	return nil
}

// PersistPosting atomically writes event + postings + document flip +
// idempotency record + outbox entry.
func (r *PgxPostingRepository) PersistPosting(ctx context.Context, params portsrepo.PostingParams) error {
	if err := checkBalanced(params.Postings); err != nil {
		return err
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		return persistPostingTx(ctx, tx, params)
	})
}

func persistPostingTx(ctx context.Context, tx pgx.Tx, params portsrepo.PostingParams) error {
	// 1. Claim the idempotency key first. A concurrent post with the same
	// key collides here before any ledger row exists.
	idempotencyQuery := `
		INSERT INTO idempotency_keys (tenant_id, client_key, document_id, event_id, request_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6);
	`
	_, err := tx.Exec(ctx, idempotencyQuery,
		params.TenantID,
		params.ClientKey,
		params.Document.DocumentID,
		params.Event.EventID,
		params.ReqHash,
		params.Now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: idempotency key %s already claimed", apperrors.ErrDuplicate, params.ClientKey)
		}
		return apperrors.NewAppError(500, "failed to insert idempotency record", err)
	}

	// 2. Flip the document, guarded on the status the engine saw.
	if err := flipDocumentToPosted(ctx, tx, params); err != nil {
		return err
	}

	// 3. Insert the economic event.
	if err := insertEvent(ctx, tx, params.Event); err != nil {
		return err
	}

	// 4. Insert the ledger postings as a batch.
	if err := insertPostings(ctx, tx, params.Postings); err != nil {
		return err
	}

	// 5. Append to the outbox in the same transaction.
	return insertOutboxEntry(ctx, tx, params.TenantID, params.Outbox, params.Now)
}

// flipDocumentToPosted moves the document to POSTED conditional on the status
// the engine read. A lost race surfaces as conflict or immutability.
func flipDocumentToPosted(ctx context.Context, tx pgx.Tx, params portsrepo.PostingParams) error {
	contextJSON, err := json.Marshal(params.Event.Context)
	if err != nil {
		return apperrors.NewAppError(500, "failed to encode document context", err)
	}

	query := `
		UPDATE documents
		SET status = 'POSTED',
		    context = $4,
		    posted_at = $5,
		    posted_by = $6,
		    last_updated_at = $5,
		    last_updated_by = $6
		WHERE tenant_id = $1 AND document_id = $2 AND status = $3` + immutableStatusGuard + `;
	`
	cmdTag, err := tx.Exec(ctx, query,
		params.TenantID,
		params.Document.DocumentID,
		params.Document.Status,
		contextJSON,
		params.Now,
		params.ActorID,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to flip document "+params.Document.DocumentID+" to POSTED", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s changed status concurrently", apperrors.ErrConflict, params.Document.DocumentID)
	}
	return nil
}

func insertEvent(ctx context.Context, tx pgx.Tx, event domain.EconomicEvent) error {
	contextJSON, err := json.Marshal(event.Context)
	if err != nil {
		return apperrors.NewAppError(500, "failed to encode event context", err)
	}

	query := `
		INSERT INTO economic_events (event_id, tenant_id, document_id, event_type, description, amount, currency_code,
		                             event_date, context, is_reversal, reversal_of_event_id, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13);
	`
	_, err = tx.Exec(ctx, query,
		event.EventID,
		event.TenantID,
		event.DocumentID,
		event.EventType,
		event.Description,
		event.Amount,
		event.CurrencyCode,
		event.EventDate,
		contextJSON,
		event.IsReversal,
		event.ReversalOfEventID,
		event.CreatedAt,
		event.CreatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: document %s already has an event", apperrors.ErrDuplicate, event.DocumentID)
		}
		return apperrors.NewAppError(500, "failed to insert event "+event.EventID, err)
	}
	return nil
}

func insertPostings(ctx context.Context, tx pgx.Tx, postings []domain.LedgerPosting) error {
	batch := &pgx.Batch{}
	query := `
		INSERT INTO ledger_postings (posting_id, tenant_id, event_id, account_id, direction, amount, currency_code, created_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9);
	`
	for _, p := range postings {
		batch.Queue(query,
			p.PostingID,
			p.TenantID,
			p.EventID,
			p.AccountID,
			p.Direction,
			p.Amount,
			p.CurrencyCode,
			p.CreatedAt,
			p.CreatedBy,
		)
	}
	br := tx.SendBatch(ctx, batch)
	if err := br.Close(); err != nil {
		return apperrors.NewAppError(500, "failed to execute posting batch", err)
	}
	return nil
}

func insertOutboxEntry(ctx context.Context, tx pgx.Tx, tenantID string, msg portsrepo.OutboxMessage, now time.Time) error {
	query := `
		INSERT INTO outbox_entries (entry_id, tenant_id, event_type, correlation_id, causation_id,
		                            aggregate_type, aggregate_id, payload, status, attempt_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'PENDING', 0, $9);
	`
	_, err := tx.Exec(ctx, query,
		msg.EntryID,
		tenantID,
		msg.EventType,
		msg.CorrelationID,
		msg.CausationID,
		msg.AggregateType,
		msg.AggregateID,
		msg.Payload,
		now,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to insert outbox entry "+msg.EntryID, err)
	}
	return nil
}

// PersistReversal atomically writes the reversing document, its event and
// postings, links the original document and marks it REVERSED.
func (r *PgxPostingRepository) PersistReversal(ctx context.Context, params portsrepo.ReversalParams) error {
	if err := checkBalanced(params.Postings); err != nil {
		return err
	}

	return r.withTx(ctx, func(tx pgx.Tx) error {
		return persistReversalTx(ctx, tx, params)
	})
}

func persistReversalTx(ctx context.Context, tx pgx.Tx, params portsrepo.ReversalParams) error {
	// 1. Insert the reversing document, already POSTED. Its row must exist
	// before the original can point at it: reversed_by_document_id carries a
	// foreign key that is checked per statement, not at commit.
	if err := insertPostedDocument(ctx, tx, params.Reversing); err != nil {
		return err
	}

	// 2. Mark the original REVERSED and link it to the reversing document.
	// This is the single permitted mutation of a posted row, and only while
	// it has not been reversed already. Zero rows means a concurrent reversal
	// won; the rollback takes the inserted document with it.
	linkQuery := `
		UPDATE documents
		SET status = 'REVERSED',
		    reversed_by_document_id = $3,
		    last_updated_at = $4,
		    last_updated_by = $5
		WHERE tenant_id = $1 AND document_id = $2 AND status = 'POSTED' AND reversed_by_document_id IS NULL;
	`
	cmdTag, err := tx.Exec(ctx, linkQuery,
		params.TenantID,
		params.Original.DocumentID,
		params.Reversing.DocumentID,
		params.Now,
		params.ActorID,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to mark document "+params.Original.DocumentID+" reversed", err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: document %s is not reversible (not POSTED or already reversed)", apperrors.ErrConflict, params.Original.DocumentID)
	}

	// 3. Event, postings, outbox.
	if err := insertEvent(ctx, tx, params.Event); err != nil {
		return err
	}
	if err := insertPostings(ctx, tx, params.Postings); err != nil {
		return err
	}
	return insertOutboxEntry(ctx, tx, params.TenantID, params.Outbox, params.Now)
}

func insertPostedDocument(ctx context.Context, tx pgx.Tx, doc domain.Document) error {
	contextJSON, err := json.Marshal(doc.Context)
	if err != nil {
		return apperrors.NewAppError(500, "failed to encode document context", err)
	}
	var dangerZoneJSON []byte
	if doc.DangerZone != nil {
		dangerZoneJSON, err = json.Marshal(doc.DangerZone)
		if err != nil {
			return apperrors.NewAppError(500, "failed to encode danger zone record", err)
		}
	}

	query := `
		INSERT INTO documents (document_id, tenant_id, document_type, document_number, document_date, status, data, context, danger_zone,
		                       reversal_of_document_id, posted_at, posted_by,
		                       created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`
	_, err = tx.Exec(ctx, query,
		doc.DocumentID,
		doc.TenantID,
		doc.DocumentType,
		doc.DocumentNumber,
		doc.DocumentDate,
		doc.Status,
		doc.Data,
		contextJSON,
		dangerZoneJSON,
		doc.ReversalOfDocumentID,
		doc.PostedAt,
		doc.PostedBy,
		doc.CreatedAt,
		doc.CreatedBy,
		doc.LastUpdatedAt,
		doc.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to insert reversing document "+doc.DocumentID, err)
	}
	return nil
}

// FindEventByDocumentID retrieves the economic event a posted document produced.
func (r *PgxPostingRepository) FindEventByDocumentID(ctx context.Context, tenantID string, documentID string) (*domain.EconomicEvent, error) {
	query := `
		SELECT event_id, tenant_id, document_id, event_type, description, amount, currency_code,
		       event_date, context, is_reversal, reversal_of_event_id, created_at, created_by
		FROM economic_events
		WHERE tenant_id = $1 AND document_id = $2;
	`
	var e domain.EconomicEvent
	var contextJSON []byte
	err := r.Pool.QueryRow(ctx, query, tenantID, documentID).Scan(
		&e.EventID,
		&e.TenantID,
		&e.DocumentID,
		&e.EventType,
		&e.Description,
		&e.Amount,
		&e.CurrencyCode,
		&e.EventDate,
		&contextJSON,
		&e.IsReversal,
		&e.ReversalOfEventID,
		&e.CreatedAt,
		&e.CreatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("no event found for document " + documentID)
		}
		return nil, apperrors.NewAppError(500, "failed to find event for document "+documentID, err)
	}
	if err := json.Unmarshal(contextJSON, &e.Context); err != nil {
		return nil, apperrors.NewAppError(500, "failed to decode event context", err)
	}
	return &e, nil
}

// FindPostingsByEventID retrieves all ledger postings of an event.
func (r *PgxPostingRepository) FindPostingsByEventID(ctx context.Context, tenantID string, eventID string) ([]domain.LedgerPosting, error) {
	query := `
		SELECT posting_id, tenant_id, event_id, account_id, direction, amount, currency_code, created_at, created_by
		FROM ledger_postings
		WHERE tenant_id = $1 AND event_id = $2
		ORDER BY posting_id;
	`
	rows, err := r.Pool.Query(ctx, query, tenantID, eventID)
	if err != nil {
		return nil, apperrors.NewAppError(500, "failed to query postings for event "+eventID, err)
	}
	defer rows.Close()

	postings := []domain.LedgerPosting{}
	for rows.Next() {
		var p domain.LedgerPosting
		if err := rows.Scan(
			&p.PostingID,
			&p.TenantID,
			&p.EventID,
			&p.AccountID,
			&p.Direction,
			&p.Amount,
			&p.CurrencyCode,
			&p.CreatedAt,
			&p.CreatedBy,
		); err != nil {
			return nil, apperrors.NewAppError(500, "failed to scan posting row for event "+eventID, err)
		}
		postings = append(postings, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewAppError(500, "error iterating posting rows for event "+eventID, err)
	}
	return postings, nil
}

// FindIdempotencyRecord looks up a prior post by (tenant, client key).
func (r *PgxPostingRepository) FindIdempotencyRecord(ctx context.Context, tenantID string, clientKey string) (*domain.IdempotencyRecord, error) {
	query := `
		SELECT tenant_id, client_key, document_id, event_id, request_hash, created_at
		FROM idempotency_keys
		WHERE tenant_id = $1 AND client_key = $2;
	`
	var rec domain.IdempotencyRecord
	err := r.Pool.QueryRow(ctx, query, tenantID, clientKey).Scan(
		&rec.TenantID,
		&rec.ClientKey,
		&rec.DocumentID,
		&rec.EventID,
		&rec.RequestHash,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewAppError(500, "failed to find idempotency record", err)
	}
	return &rec, nil
}
