package domain

import (
	"encoding/json"
	"time"
)

// DocumentStatus indicates where a document sits in its workflow.
type DocumentStatus string

const (
	Draft     DocumentStatus = "DRAFT"
	Submitted DocumentStatus = "SUBMITTED"
	Approved  DocumentStatus = "APPROVED"
	Posted    DocumentStatus = "POSTED"
	Reversed  DocumentStatus = "REVERSED"
	Cancelled DocumentStatus = "CANCELLED"
)

// allowedTransitions is the full forward-only workflow. Posting and reversal
// are listed here for completeness but always go through the posting engine,
// which performs the ledger writes that accompany them.
var allowedTransitions = map[DocumentStatus][]DocumentStatus{
	Draft:     {Submitted, Cancelled, Posted},
	Submitted: {Approved, Cancelled},
	Approved:  {Posted, Cancelled},
	Posted:    {Reversed},
	Reversed:  {},
	Cancelled: {},
}

// CanTransitionTo reports whether the workflow permits moving from the
// current status to next. The Draft -> Posted edge is only usable when the
// direct-post policy is enabled; the engine checks that separately.
func (s DocumentStatus) CanTransitionTo(next DocumentStatus) bool {
	for _, allowed := range allowedTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsMutable reports whether the document payload may still be edited.
// Once posted or reversed the document is immutable; cancelled documents are
// terminal and frozen as well.
func (s DocumentStatus) IsMutable() bool {
	return s == Draft || s == Submitted
}

// IsTerminal reports whether no further transition is possible.
func (s DocumentStatus) IsTerminal() bool {
	return len(allowedTransitions[s]) == 0
}

// DocumentAction names a state-changing operation on a document. Action names
// are what the danger-zone configuration matches against.
type DocumentAction string

const (
	ActionSubmit  DocumentAction = "submit"
	ActionApprove DocumentAction = "approve"
	ActionCancel  DocumentAction = "cancel"
	ActionPost    DocumentAction = "post"
	ActionReverse DocumentAction = "reverse"
)

// TargetStatus returns the status a plain workflow action moves a document
// into. Post and reverse are not plain transitions and return false.
func (a DocumentAction) TargetStatus() (DocumentStatus, bool) {
	switch a {
	case ActionSubmit:
		return Submitted, true
	case ActionApprove:
		return Approved, true
	case ActionCancel:
		return Cancelled, true
	default:
		return "", false
	}
}

// Document is the mutable workflow envelope that, once posted, anchors an
// immutable economic event and its ledger postings.
type Document struct {
	DocumentID     string          `json:"documentID"`   // Primary Key (UUID)
	TenantID       string          `json:"tenantID"`     // Partition key (Not Null)
	DocumentType   string          `json:"documentType"` // e.g. INVOICE, PAYMENT, MANUAL_JOURNAL
	DocumentNumber string          `json:"documentNumber"`
	DocumentDate   time.Time       `json:"documentDate"`
	Status         DocumentStatus  `json:"status"`
	Data           json.RawMessage `json:"data"` // Free-form payload, minimum shape checked per document type
	Context        ActionContext   `json:"context"`
	DangerZone     *DangerZone     `json:"dangerZone,omitempty"`

	// Reversal linkage. ReversalOfDocumentID is set on the reversing
	// document; ReversedByDocumentID is the single permitted mutation on a
	// posted document.
	ReversalOfDocumentID *string `json:"reversalOfDocumentID,omitempty"`
	ReversedByDocumentID *string `json:"reversedByDocumentID,omitempty"`

	PostedAt *time.Time `json:"postedAt,omitempty"`
	PostedBy *string    `json:"postedBy,omitempty"`
	AuditFields
}

// IsReversal reports whether this document was created to reverse another.
func (d *Document) IsReversal() bool {
	return d.ReversalOfDocumentID != nil
}
