package repositories

import (
	"context"
	"encoding/json"
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
)

// PostingParams carries everything a post writes in one transaction: the
// economic event, its ledger postings, the document status flip, the
// idempotency record and the outbox entry.
type PostingParams struct {
	TenantID string
	ActorID  string
	Now      time.Time

	Document  domain.Document // Expected current row; status guard uses Document.Status
	Event     domain.EconomicEvent
	Postings  []domain.LedgerPosting
	ClientKey string
	ReqHash   string
	Outbox    OutboxMessage
}

// ReversalParams carries an atomic reversal: the new reversing document, its
// event and swapped postings, the reversal-link update on the original
// document, and the outbox entry.
type ReversalParams struct {
	TenantID string
	ActorID  string
	Now      time.Time

	Original  domain.Document
	Reversing domain.Document
	Event     domain.EconomicEvent
	Postings  []domain.LedgerPosting
	Outbox    OutboxMessage
}

// OutboxMessage is the outbox entry content written transactionally with a
// domain mutation. The store assigns the sequence number on insert.
type OutboxMessage struct {
	EntryID       string
	EventType     string
	CorrelationID string
	CausationID   string
	AggregateType string
	AggregateID   string
	Payload       json.RawMessage
}

// PostingWriter defines the only insert paths into the truth and math layers.
// Both run the balance check inline before writing, so an unbalanced set of
// postings cannot reach the ledger through any code path.
type PostingWriter interface {
	// PersistPosting atomically writes event + postings + document flip +
	// idempotency record + outbox entry. A unique-key collision on the
	// idempotency record surfaces as apperrors.ErrDuplicate so the engine can
	// re-read and replay the winner's result.
	PersistPosting(ctx context.Context, params PostingParams) error

	// PersistReversal atomically writes the reversing document, its event and
	// postings, links the original document and marks it REVERSED, and writes
	// the outbox entry.
	PersistReversal(ctx context.Context, params ReversalParams) error
}

// PostingReader defines read operations for the immutable layers.
type PostingReader interface {
	// FindEventByDocumentID retrieves the economic event a posted document produced.
	FindEventByDocumentID(ctx context.Context, tenantID string, documentID string) (*domain.EconomicEvent, error)

	// FindPostingsByEventID retrieves all ledger postings of an event.
	FindPostingsByEventID(ctx context.Context, tenantID string, eventID string) ([]domain.LedgerPosting, error)

	// FindIdempotencyRecord looks up a prior post by (tenant, client key).
	// Returns apperrors.ErrNotFound when the key has never been used.
	FindIdempotencyRecord(ctx context.Context, tenantID string, clientKey string) (*domain.IdempotencyRecord, error)
}

// PostingRepositoryFacade combines the posting repository interfaces.
type PostingRepositoryFacade interface {
	PostingReader
	PostingWriter
}
