package pgsql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/atlaserp/ledgercore/internal/apperrors"
	"github.com/atlaserp/ledgercore/internal/core/domain"
	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	"github.com/atlaserp/ledgercore/internal/utils/pagination"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// immutableStatusGuard is appended to every document UPDATE so a posted or
// reversed row can never be touched by the workflow layer, regardless of what
// the caller read before.
const immutableStatusGuard = ` AND status NOT IN ('POSTED', 'REVERSED')`

type PgxDocumentRepository struct {
	BaseRepository
}

// newPgxDocumentRepository creates a new repository for document workflow data.
func newPgxDocumentRepository(pool *pgxpool.Pool) portsrepo.DocumentRepositoryFacade {
	return &PgxDocumentRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.DocumentRepositoryFacade = (*PgxDocumentRepository)(nil)

const documentColumns = `document_id, tenant_id, document_type, document_number, document_date, status, data, context, danger_zone,
       reversal_of_document_id, reversed_by_document_id, posted_at, posted_by,
       created_at, created_by, last_updated_at, last_updated_by`

// scanDocument scans one document row into a domain struct.
func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var contextJSON []byte
	var dangerZoneJSON []byte

	err := row.Scan(
		&d.DocumentID,
		&d.TenantID,
		&d.DocumentType,
		&d.DocumentNumber,
		&d.DocumentDate,
		&d.Status,
		&d.Data,
		&contextJSON,
		&dangerZoneJSON,
		&d.ReversalOfDocumentID,
		&d.ReversedByDocumentID,
		&d.PostedAt,
		&d.PostedBy,
		&d.CreatedAt,
		&d.CreatedBy,
		&d.LastUpdatedAt,
		&d.LastUpdatedBy,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(contextJSON, &d.Context); err != nil {
		return nil, fmt.Errorf("failed to decode document context: %w", err)
	}
	if len(dangerZoneJSON) > 0 {
		var dz domain.DangerZone
		if err := json.Unmarshal(dangerZoneJSON, &dz); err != nil {
			return nil, fmt.Errorf("failed to decode document danger zone: %w", err)
		}
		d.DangerZone = &dz
	}
	return &d, nil
}

// SaveDocument inserts a new document in its initial state.
func (r *PgxDocumentRepository) SaveDocument(ctx context.Context, doc domain.Document) error {
	contextJSON, err := json.Marshal(doc.Context)
	if err != nil {
		return apperrors.NewAppError(500, "failed to encode document context", err)
	}

	query := `
		INSERT INTO documents (document_id, tenant_id, document_type, document_number, document_date, status, data, context,
		                       created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12);
	`
	_, err = r.Pool.Exec(ctx, query,
		doc.DocumentID,
		doc.TenantID,
		doc.DocumentType,
		doc.DocumentNumber,
		doc.DocumentDate,
		doc.Status,
		doc.Data,
		contextJSON,
		doc.CreatedAt,
		doc.CreatedBy,
		doc.LastUpdatedAt,
		doc.LastUpdatedBy,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: document %s already exists", apperrors.ErrDuplicate, doc.DocumentID)
		}
		return apperrors.NewAppError(500, "failed to insert document "+doc.DocumentID, err)
	}
	return nil
}

// FindDocumentByID retrieves a specific document by tenant and identifier.
func (r *PgxDocumentRepository) FindDocumentByID(ctx context.Context, tenantID string, documentID string) (*domain.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE tenant_id = $1 AND document_id = $2;`

	doc, err := scanDocument(r.Pool.QueryRow(ctx, query, tenantID, documentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("document " + documentID + " not found")
		}
		return nil, apperrors.NewAppError(500, "failed to find document by ID "+documentID, err)
	}
	return doc, nil
}

// UpdateDocumentDetails updates payload fields of a still-mutable document.
func (r *PgxDocumentRepository) UpdateDocumentDetails(ctx context.Context, doc domain.Document) error {
	contextJSON, err := json.Marshal(doc.Context)
	if err != nil {
		return apperrors.NewAppError(500, "failed to encode document context", err)
	}

	query := `
		UPDATE documents
		SET document_number = $3,
		    document_date = $4,
		    data = $5,
		    context = $6,
		    last_updated_at = $7,
		    last_updated_by = $8
		WHERE tenant_id = $1 AND document_id = $2 AND status IN ('DRAFT', 'SUBMITTED');
	`
	cmdTag, err := r.Pool.Exec(ctx, query,
		doc.TenantID,
		doc.DocumentID,
		doc.DocumentNumber,
		doc.DocumentDate,
		doc.Data,
		contextJSON,
		doc.LastUpdatedAt,
		doc.LastUpdatedBy,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to update document "+doc.DocumentID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		// Distinguish a missing row from a frozen one.
		current, findErr := r.FindDocumentByID(ctx, doc.TenantID, doc.DocumentID)
		if findErr != nil {
			return findErr
		}
		return fmt.Errorf("%w: document %s is in status %s", apperrors.ErrImmutable, doc.DocumentID, current.Status)
	}
	return nil
}

// TransitionDocumentStatus moves a document between workflow states with the
// current status as an optimistic guard.
func (r *PgxDocumentRepository) TransitionDocumentStatus(ctx context.Context, params portsrepo.TransitionParams) error {
	contextJSON, err := json.Marshal(params.Context)
	if err != nil {
		return apperrors.NewAppError(500, "failed to encode document context", err)
	}
	var dangerZoneJSON []byte
	if params.DangerZone != nil {
		dangerZoneJSON, err = json.Marshal(params.DangerZone)
		if err != nil {
			return apperrors.NewAppError(500, "failed to encode danger zone record", err)
		}
	}

	query := `
		UPDATE documents
		SET status = $4,
		    context = $5,
		    danger_zone = COALESCE($6, danger_zone),
		    last_updated_at = $7,
		    last_updated_by = $8
		WHERE tenant_id = $1 AND document_id = $2 AND status = $3` + immutableStatusGuard + `;
	`
	cmdTag, err := r.Pool.Exec(ctx, query,
		params.TenantID,
		params.DocumentID,
		params.FromStatus,
		params.ToStatus,
		contextJSON,
		dangerZoneJSON,
		params.Context.When,
		params.ActorID,
	)
	if err != nil {
		return apperrors.NewAppError(500, "failed to transition document "+params.DocumentID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		current, findErr := r.FindDocumentByID(ctx, params.TenantID, params.DocumentID)
		if findErr != nil {
			return findErr
		}
		if current.Status == domain.Posted || current.Status == domain.Reversed {
			return fmt.Errorf("%w: document %s is in status %s", apperrors.ErrImmutable, params.DocumentID, current.Status)
		}
		return fmt.Errorf("%w: document %s moved to %s concurrently", apperrors.ErrConflict, params.DocumentID, current.Status)
	}
	return nil
}

// ListDocuments retrieves a paginated list of documents for a tenant using
// token-based pagination.
func (r *PgxDocumentRepository) ListDocuments(ctx context.Context, tenantID string, limit int, nextToken *string, includeReversals bool) ([]domain.Document, *string, error) {
	if limit <= 0 {
		limit = 20
	}
	// Fetch one extra item to determine if there's a next page.
	fetchLimit := limit + 1

	baseQuery := `SELECT ` + documentColumns + ` FROM documents`
	filterClause := `WHERE tenant_id = $1`
	if !includeReversals {
		filterClause += ` AND status != 'REVERSED' AND reversal_of_document_id IS NULL`
	}
	// Ordering must be stable for the cursor to work.
	orderByClause := `ORDER BY document_date DESC, created_at DESC`

	var rows pgx.Rows
	var err error
	args := []interface{}{tenantID}

	if nextToken != nil && *nextToken != "" {
		lastDate, lastCreatedAt, decodeErr := pagination.DecodeToken(*nextToken)
		if decodeErr != nil {
			return nil, nil, fmt.Errorf("%w: invalid nextToken", apperrors.ErrValidation)
		}

		cursorClause := `AND (document_date, created_at) < ($2, $3)`
		args = append(args, lastDate, lastCreatedAt)

		query := baseQuery + " " + filterClause + " " + cursorClause + " " + orderByClause + " LIMIT $" + strconv.Itoa(len(args)+1) + ";"
		args = append(args, fetchLimit)
		rows, err = r.Pool.Query(ctx, query, args...)
	} else {
		query := baseQuery + " " + filterClause + " " + orderByClause + " LIMIT $" + strconv.Itoa(len(args)+1) + ";"
		args = append(args, fetchLimit)
		rows, err = r.Pool.Query(ctx, query, args...)
	}

	if err != nil {
		return nil, nil, apperrors.NewAppError(500, "failed to query documents for tenant "+tenantID, err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, fetchLimit)
	for rows.Next() {
		doc, scanErr := scanDocument(rows)
		if scanErr != nil {
			return nil, nil, apperrors.NewAppError(500, "failed to scan document row for tenant "+tenantID, scanErr)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, apperrors.NewAppError(500, "error iterating document rows for tenant "+tenantID, err)
	}

	var nextTokenVal *string
	results := docs
	if len(docs) > limit {
		last := docs[limit-1]
		token := pagination.EncodeToken(last.DocumentDate, last.CreatedAt)
		nextTokenVal = &token
		results = docs[:limit]
	}

	return results, nextTokenVal, nil
}
