package services

import (
	"context"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	"github.com/atlaserp/ledgercore/internal/dto"
)

// PostingSvcFacade is the posting engine: document workflow transitions plus
// the atomic post and reverse operations. Every call is tenant-scoped and
// carries the acting user.
type PostingSvcFacade interface {
	// CreateDocument creates a new document in DRAFT.
	CreateDocument(ctx context.Context, tenantID string, req dto.CreateDocumentRequest, actorID string) (*domain.Document, error)

	// UpdateDocument edits a still-mutable document's payload fields.
	UpdateDocument(ctx context.Context, tenantID string, documentID string, req dto.UpdateDocumentRequest, actorID string) (*domain.Document, error)

	// TransitionDocument applies submit, approve or cancel.
	TransitionDocument(ctx context.Context, tenantID string, documentID string, action domain.DocumentAction, req dto.TransitionDocumentRequest, actorID string) (*domain.Document, error)

	// PostDocument converts an approved document into an economic event with
	// balanced ledger postings, exactly once per idempotency key.
	PostDocument(ctx context.Context, tenantID string, documentID string, req dto.PostDocumentRequest, actorID string) (*dto.PostDocumentResponse, error)

	// ReverseDocument creates and posts a new document whose postings are the
	// debit/credit mirror of the original's, linking the two.
	ReverseDocument(ctx context.Context, tenantID string, documentID string, req dto.ReverseDocumentRequest, actorID string) (*dto.ReverseDocumentResponse, error)

	// GetDocumentByID retrieves a document.
	GetDocumentByID(ctx context.Context, tenantID string, documentID string) (*domain.Document, error)

	// GetDocumentLedger retrieves the event and postings of a posted document.
	GetDocumentLedger(ctx context.Context, tenantID string, documentID string) (*domain.EconomicEvent, []domain.LedgerPosting, error)

	// ListDocuments retrieves a paginated list of documents for a tenant.
	ListDocuments(ctx context.Context, tenantID string, params dto.ListDocumentsParams) (*dto.ListDocumentsResponse, error)
}
