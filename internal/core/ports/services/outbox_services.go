package services

import (
	"context"

	"github.com/atlaserp/ledgercore/internal/core/domain"
)

// OutboxHandler consumes one outbox entry. Handlers must be idempotent:
// delivery is at-least-once and a transient failure leads to redelivery.
type OutboxHandler func(ctx context.Context, entry domain.OutboxEntry) error

// OutboxRelaySvcFacade drains pending outbox entries to registered handlers,
// independent of the posting transactions that created them.
type OutboxRelaySvcFacade interface {
	// RegisterHandler binds a handler to an event type. Entries with no
	// registered handler are left pending, not failed.
	RegisterHandler(eventType string, handler OutboxHandler)

	// ProcessOnce claims and dispatches one batch. Returns the number of
	// entries delivered.
	ProcessOnce(ctx context.Context) (int, error)

	// Start launches the polling loop in its own goroutine; Stop halts it and
	// waits for the in-flight batch to finish.
	Start(ctx context.Context)
	Stop()

	// RetryFailedEvents re-queues all FAILED entries of a tenant.
	RetryFailedEvents(ctx context.Context, tenantID string) (int64, error)

	// Stats reports entry counts by status for a tenant.
	Stats(ctx context.Context, tenantID string) (*domain.OutboxStats, error)
}
