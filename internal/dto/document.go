package dto

import (
	"encoding/json"
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
)

// ActionContextRequest carries the caller-supplied part of the 6W1H record.
// Who is taken from the authenticated actor header and When is server-set, so
// neither can be spoofed by the request body.
type ActionContextRequest struct {
	What  string `json:"what"`
	Where string `json:"where"`
	Why   string `json:"why" binding:"required"`
	How   string `json:"how" binding:"required"`
}

// ToDomain builds the full 6W1H context from the request plus server-known facts.
func (r ActionContextRequest) ToDomain(actorID string, now time.Time) domain.ActionContext {
	where := r.Where
	if where == "" {
		where = "api"
	}
	return domain.ActionContext{
		Who:   actorID,
		What:  r.What,
		When:  now,
		Where: where,
		Why:   r.Why,
		How:   r.How,
	}
}

// DangerZoneRequest carries the explicit override for sensitive operations.
type DangerZoneRequest struct {
	Justification string `json:"justification" binding:"required"`
	ApprovedBy    string `json:"approvedBy" binding:"required"`
}

// ToDomain converts an optional danger-zone request to the domain record.
func (r *DangerZoneRequest) ToDomain() *domain.DangerZone {
	if r == nil {
		return nil
	}
	return &domain.DangerZone{Justification: r.Justification, ApprovedBy: r.ApprovedBy}
}

// CreateDocumentRequest defines the payload for creating a draft document.
type CreateDocumentRequest struct {
	DocumentType   string               `json:"documentType" binding:"required"`
	DocumentNumber string               `json:"documentNumber"`
	DocumentDate   time.Time            `json:"documentDate" binding:"required"`
	Data           json.RawMessage      `json:"data"`
	Context        ActionContextRequest `json:"context" binding:"required"`
}

// UpdateDocumentRequest defines the payload for editing a still-mutable document.
type UpdateDocumentRequest struct {
	DocumentNumber *string              `json:"documentNumber,omitempty"`
	DocumentDate   *time.Time           `json:"documentDate,omitempty"`
	Data           json.RawMessage      `json:"data,omitempty"`
	Context        ActionContextRequest `json:"context" binding:"required"`
}

// TransitionDocumentRequest defines the payload for submit/approve/cancel.
type TransitionDocumentRequest struct {
	Context    ActionContextRequest `json:"context" binding:"required"`
	DangerZone *DangerZoneRequest   `json:"dangerZone,omitempty"`
}

// ListDocumentsParams holds query parameters for listing documents.
type ListDocumentsParams struct {
	Limit            int     `form:"limit"`
	NextToken        *string `form:"nextToken"`
	IncludeReversals bool    `form:"includeReversals"`
}

// DocumentResponse defines the data returned for a document.
type DocumentResponse struct {
	DocumentID           string          `json:"documentID"`
	DocumentType         string          `json:"documentType"`
	DocumentNumber       string          `json:"documentNumber"`
	DocumentDate         time.Time       `json:"documentDate"`
	Status               string          `json:"status"`
	Data                 json.RawMessage `json:"data,omitempty"`
	ReversalOfDocumentID *string         `json:"reversalOfDocumentID,omitempty"`
	ReversedByDocumentID *string         `json:"reversedByDocumentID,omitempty"`
	PostedAt             *time.Time      `json:"postedAt,omitempty"`
	PostedBy             *string         `json:"postedBy,omitempty"`
	CreatedAt            time.Time       `json:"createdAt"`
	CreatedBy            string          `json:"createdBy"`
}

// ToDocumentResponse converts a domain.Document to DocumentResponse DTO.
func ToDocumentResponse(d *domain.Document) DocumentResponse {
	return DocumentResponse{
		DocumentID:           d.DocumentID,
		DocumentType:         d.DocumentType,
		DocumentNumber:       d.DocumentNumber,
		DocumentDate:         d.DocumentDate,
		Status:               string(d.Status),
		Data:                 d.Data,
		ReversalOfDocumentID: d.ReversalOfDocumentID,
		ReversedByDocumentID: d.ReversedByDocumentID,
		PostedAt:             d.PostedAt,
		PostedBy:             d.PostedBy,
		CreatedAt:            d.CreatedAt,
		CreatedBy:            d.CreatedBy,
	}
}

// ListDocumentsResponse is the paginated document list payload.
type ListDocumentsResponse struct {
	Documents []DocumentResponse `json:"documents"`
	NextToken *string            `json:"nextToken,omitempty"`
}
