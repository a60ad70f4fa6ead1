package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus tracks the delivery state of an outbox entry.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "PENDING"
	OutboxProcessing OutboxStatus = "PROCESSING"
	OutboxDelivered  OutboxStatus = "DELIVERED"
	OutboxFailed     OutboxStatus = "FAILED"
)

// OutboxEntry is a queued cross-domain notification written in the same
// transaction as the domain mutation it describes. Entries are created by the
// posting transaction, mutated only by the relay and never deleted.
type OutboxEntry struct {
	SequenceNo    int64           `json:"sequenceNo"` // Strictly increasing ordering key
	EntryID       string          `json:"entryID"`    // Unique event ID (UUID)
	TenantID      string          `json:"tenantID"`
	EventType     string          `json:"eventType"`
	CorrelationID string          `json:"correlationID"`
	CausationID   string          `json:"causationID"`
	AggregateType string          `json:"aggregateType"` // e.g. document
	AggregateID   string          `json:"aggregateID"`
	Payload       json.RawMessage `json:"payload"`
	Status        OutboxStatus    `json:"status"`
	AttemptCount  int             `json:"attemptCount"`
	LastError     *string         `json:"lastError,omitempty"`
	ClaimedAt     *time.Time      `json:"claimedAt,omitempty"`
	DeliveredAt   *time.Time      `json:"deliveredAt,omitempty"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// OutboxStats holds per-status entry counts for the admin surface.
type OutboxStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Delivered  int64 `json:"delivered"`
	Failed     int64 `json:"failed"`
}
