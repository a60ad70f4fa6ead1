package repositories

import (
	"context"

	"github.com/atlaserp/ledgercore/internal/core/domain"
)

// DocumentReader defines read operations for document data.
type DocumentReader interface {
	// FindDocumentByID retrieves a specific document by tenant and identifier.
	FindDocumentByID(ctx context.Context, tenantID string, documentID string) (*domain.Document, error)

	// ListDocuments retrieves a paginated list of documents for a tenant using
	// token-based pagination. Returns the documents, a token for the next page,
	// and an error.
	ListDocuments(ctx context.Context, tenantID string, limit int, nextToken *string, includeReversals bool) ([]domain.Document, *string, error)
}

// DocumentWriter defines write operations for the workflow layer of a
// document. The immutability contract is enforced here: every UPDATE is
// guarded so it cannot touch a posted or reversed document, whatever the
// caller believes the current state to be.
type DocumentWriter interface {
	// SaveDocument inserts a new document in its initial state.
	SaveDocument(ctx context.Context, doc domain.Document) error

	// UpdateDocumentDetails updates payload fields of a document that is still
	// mutable. Returns apperrors.ErrImmutable if the document has been posted
	// or reversed, apperrors.ErrNotFound if it does not exist.
	UpdateDocumentDetails(ctx context.Context, doc domain.Document) error

	// TransitionDocumentStatus moves a document from an expected status to the
	// next one, recording the action context. The update is conditional on the
	// current status; a lost race surfaces as apperrors.ErrConflict.
	TransitionDocumentStatus(ctx context.Context, params TransitionParams) error
}

// TransitionParams carries a guarded status transition to the store.
type TransitionParams struct {
	TenantID   string
	DocumentID string
	FromStatus domain.DocumentStatus
	ToStatus   domain.DocumentStatus
	Context    domain.ActionContext
	DangerZone *domain.DangerZone
	ActorID    string
}

// DocumentRepositoryFacade combines the document repository interfaces.
type DocumentRepositoryFacade interface {
	DocumentReader
	DocumentWriter
}
