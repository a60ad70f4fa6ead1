package dto

import (
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	"github.com/atlaserp/ledgercore/internal/utils/balance"
	"github.com/shopspring/decimal"
)

// PostingLineRequest is one side of the balanced entry a post carries.
type PostingLineRequest struct {
	AccountID    string          `json:"accountID" binding:"required"`
	Direction    string          `json:"direction" binding:"required,oneof=DEBIT CREDIT"`
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	CurrencyCode string          `json:"currencyCode" binding:"required,len=3"`
}

// PostDocumentRequest defines the payload for posting a document to the ledger.
type PostDocumentRequest struct {
	IdempotencyKey string               `json:"idempotencyKey" binding:"required"`
	EventType      string               `json:"eventType" binding:"required"`
	Description    string               `json:"description"`
	EventDate      *time.Time           `json:"eventDate,omitempty"`
	Lines          []PostingLineRequest `json:"lines" binding:"required,min=2,dive"`
	Context        ActionContextRequest `json:"context" binding:"required"`
	DangerZone     *DangerZoneRequest   `json:"dangerZone,omitempty"`
}

// BalanceLines converts the request lines into the validator's shape.
func (r PostDocumentRequest) BalanceLines() []balance.Line {
	lines := make([]balance.Line, len(r.Lines))
	for i, l := range r.Lines {
		lines[i] = balance.Line{
			AccountID:    l.AccountID,
			Direction:    domain.PostingDirection(l.Direction),
			Amount:       l.Amount,
			CurrencyCode: l.CurrencyCode,
		}
	}
	return lines
}

// ReverseDocumentRequest defines the payload for reversing a posted document.
type ReverseDocumentRequest struct {
	Reason     string               `json:"reason" binding:"required"`
	Context    ActionContextRequest `json:"context" binding:"required"`
	DangerZone *DangerZoneRequest   `json:"dangerZone,omitempty"`
}

// PostingResponse defines the data returned for one ledger posting.
type PostingResponse struct {
	PostingID    string          `json:"postingID"`
	AccountID    string          `json:"accountID"`
	Direction    string          `json:"direction"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currencyCode"`
}

// ToPostingResponses converts domain postings to DTOs.
func ToPostingResponses(postings []domain.LedgerPosting) []PostingResponse {
	responses := make([]PostingResponse, len(postings))
	for i, p := range postings {
		responses[i] = PostingResponse{
			PostingID:    p.PostingID,
			AccountID:    p.AccountID,
			Direction:    string(p.Direction),
			Amount:       p.Amount,
			CurrencyCode: p.CurrencyCode,
		}
	}
	return responses
}

// PostDocumentResponse is the result of a post, identical for the first call
// and any idempotent replay of it.
type PostDocumentResponse struct {
	DocumentID string            `json:"documentID"`
	EventID    string            `json:"eventID"`
	Status     string            `json:"status"`
	Postings   []PostingResponse `json:"postings"`
	Replayed   bool              `json:"replayed"`
}

// ReverseDocumentResponse describes both halves of a completed reversal.
type ReverseDocumentResponse struct {
	OriginalDocumentID  string            `json:"originalDocumentID"`
	ReversingDocumentID string            `json:"reversingDocumentID"`
	EventID             string            `json:"eventID"`
	Postings            []PostingResponse `json:"postings"`
}
