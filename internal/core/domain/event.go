package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EconomicEvent is the immutable truth-layer record created exactly once when
// a document is posted. It is never updated or deleted; a correction is a new
// event marked as a reversal and linked back to the original.
type EconomicEvent struct {
	EventID           string          `json:"eventID"`    // Primary Key (UUID)
	TenantID          string          `json:"tenantID"`   // Partition key (Not Null)
	DocumentID        string          `json:"documentID"` // FK -> Document (Not Null)
	EventType         string          `json:"eventType"`
	Description       string          `json:"description"`
	Amount            decimal.Decimal `json:"amount"` // Total debit-side value of the balanced entry
	CurrencyCode      string          `json:"currencyCode"`
	EventDate         time.Time       `json:"eventDate"`
	Context           ActionContext   `json:"context"`
	IsReversal        bool            `json:"isReversal"`
	ReversalOfEventID *string         `json:"reversalOfEventID,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	CreatedBy         string          `json:"createdBy"`
}
