package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PostingDirection indicates whether a ledger posting is a debit or a credit.
type PostingDirection string

const (
	Debit  PostingDirection = "DEBIT"
	Credit PostingDirection = "CREDIT"
)

// Opposite returns the swapped direction, used when building reversals.
func (d PostingDirection) Opposite() PostingDirection {
	if d == Debit {
		return Credit
	}
	return Debit
}

// LedgerPosting is one side (debit or credit) of a balanced entry, linked to
// exactly one economic event and one account. Postings are never updated or
// deleted after insert; for any event, debits equal credits per currency.
type LedgerPosting struct {
	PostingID    string           `json:"postingID"` // Primary Key (UUID)
	TenantID     string           `json:"tenantID"`  // Partition key (Not Null)
	EventID      string           `json:"eventID"`   // FK -> EconomicEvent (Not Null)
	AccountID    string           `json:"accountID"` // FK -> Account (Not Null)
	Direction    PostingDirection `json:"direction"`
	Amount       decimal.Decimal  `json:"amount"` // Positive value; precise decimal type
	CurrencyCode string           `json:"currencyCode"`
	CreatedAt    time.Time        `json:"createdAt"`
	CreatedBy    string           `json:"createdBy"`
}

// IdempotencyRecord maps a (tenant, client-supplied key) pair to the document
// and event a prior post produced, plus a fingerprint of the request so a
// replay with a different payload can be detected as a conflict.
type IdempotencyRecord struct {
	TenantID    string    `json:"tenantID"`
	ClientKey   string    `json:"clientKey"`
	DocumentID  string    `json:"documentID"`
	EventID     string    `json:"eventID"`
	RequestHash string    `json:"requestHash"`
	CreatedAt   time.Time `json:"createdAt"`
}
