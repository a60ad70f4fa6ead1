package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
)

// RelayConfig controls the outbox polling loop.
type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// ReclaimAfter is how long a claimed entry may sit in PROCESSING before
	// the sweep returns it to PENDING.
	ReclaimAfter time.Duration
}

// outboxRelay drains pending outbox entries to registered handlers. Entries
// are delivered at least once, in sequence-number order per tenant: after a
// failure the rest of that tenant's batch is released untouched so a later
// entry never overtakes an earlier one.
type outboxRelay struct {
	outboxRepo portsrepo.OutboxRepositoryFacade
	cfg        RelayConfig
	logger     *slog.Logger

	mu       sync.RWMutex
	handlers map[string]portssvc.OutboxHandler

	stopCh   chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewOutboxRelay creates a new relay. Call Start to begin polling.
func NewOutboxRelay(outboxRepo portsrepo.OutboxRepositoryFacade, cfg RelayConfig, logger *slog.Logger) portssvc.OutboxRelaySvcFacade {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 10 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.ReclaimAfter <= 0 {
		cfg.ReclaimAfter = 5 * time.Minute
	}
	return &outboxRelay{
		outboxRepo: outboxRepo,
		cfg:        cfg,
		logger:     logger,
		handlers:   make(map[string]portssvc.OutboxHandler),
		stopCh:     make(chan struct{}),
	}
}

var _ portssvc.OutboxRelaySvcFacade = (*outboxRelay)(nil)

func (r *outboxRelay) RegisterHandler(eventType string, handler portssvc.OutboxHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[eventType] = handler
}

func (r *outboxRelay) handler(eventType string) (portssvc.OutboxHandler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[eventType]
	return h, ok
}

// Start launches the polling loop in its own goroutine.
func (r *outboxRelay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.logger.Info("Outbox relay started",
			slog.Duration("poll_interval", r.cfg.PollInterval),
			slog.Int("batch_size", r.cfg.BatchSize),
		)
		// Claims commit immediately and only this relay resolves them, so
		// anything still PROCESSING at boot was stranded by an interrupted
		// run and goes straight back to PENDING.
		r.reclaim(ctx, time.Now().UTC())
		ticker := time.NewTicker(r.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				r.logger.Info("Outbox relay stopping: context cancelled")
				return
			case <-r.stopCh:
				r.logger.Info("Outbox relay stopped")
				return
			case <-ticker.C:
				if _, err := r.ProcessOnce(ctx); err != nil {
					r.logger.Error("Outbox batch failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop halts the polling loop and waits for the in-flight batch to finish.
func (r *outboxRelay) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
}

// reclaim sweeps PROCESSING entries claimed before the cutoff back to
// PENDING so an entry whose resolution never landed is retried instead of
// stranded.
func (r *outboxRelay) reclaim(ctx context.Context, before time.Time) {
	reclaimed, err := r.outboxRepo.ReclaimStale(ctx, before)
	if err != nil {
		r.logger.Error("Failed to reclaim stale outbox entries", slog.String("error", err.Error()))
		return
	}
	if reclaimed > 0 {
		r.logger.Warn("Stale outbox claims returned to pending", slog.Int64("reclaimed", reclaimed))
	}
}

// ProcessOnce claims and dispatches one batch of pending entries. Returns the
// number of entries delivered.
func (r *outboxRelay) ProcessOnce(ctx context.Context) (int, error) {
	r.reclaim(ctx, time.Now().UTC().Add(-r.cfg.ReclaimAfter))

	entries, err := r.outboxRepo.ClaimPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(entries) == 0 {
		return 0, nil
	}

	delivered := 0
	// A tenant lands here after a failed or skipped entry so its later
	// entries in this batch are released, preserving per-tenant order.
	blocked := make(map[string]struct{})

	for _, entry := range entries {
		if _, isBlocked := blocked[entry.TenantID]; isBlocked {
			if err := r.outboxRepo.Release(ctx, entry.SequenceNo); err != nil {
				r.logger.Error("Failed to release outbox entry", slog.Int64("sequence_no", entry.SequenceNo), slog.String("error", err.Error()))
			}
			continue
		}

		handler, ok := r.handler(entry.EventType)
		if !ok {
			r.logger.Warn("No handler registered for event type, leaving entry pending",
				slog.String("event_type", entry.EventType), slog.Int64("sequence_no", entry.SequenceNo))
			blocked[entry.TenantID] = struct{}{}
			if err := r.outboxRepo.Release(ctx, entry.SequenceNo); err != nil {
				r.logger.Error("Failed to release outbox entry", slog.Int64("sequence_no", entry.SequenceNo), slog.String("error", err.Error()))
			}
			continue
		}

		if err := handler(ctx, entry); err != nil {
			attempt := entry.AttemptCount + 1
			terminal := attempt >= r.cfg.MaxAttempts
			r.logger.Warn("Outbox delivery failed",
				slog.Int64("sequence_no", entry.SequenceNo),
				slog.String("event_type", entry.EventType),
				slog.Int("attempt", attempt),
				slog.Bool("terminal", terminal),
				slog.String("error", err.Error()),
			)
			blocked[entry.TenantID] = struct{}{}
			if err := r.outboxRepo.RecordFailure(ctx, entry.SequenceNo, attempt, err.Error(), terminal); err != nil {
				r.logger.Error("Failed to record outbox failure", slog.Int64("sequence_no", entry.SequenceNo), slog.String("error", err.Error()))
			}
			continue
		}

		if err := r.outboxRepo.MarkDelivered(ctx, entry.SequenceNo, time.Now().UTC()); err != nil {
			r.logger.Error("Failed to mark outbox entry delivered", slog.Int64("sequence_no", entry.SequenceNo), slog.String("error", err.Error()))
			blocked[entry.TenantID] = struct{}{}
			continue
		}
		delivered++
	}

	if delivered > 0 {
		r.logger.Info("Outbox batch processed", slog.Int("claimed", len(entries)), slog.Int("delivered", delivered))
	}
	return delivered, nil
}

// RetryFailedEvents re-queues all FAILED entries of a tenant.
func (r *outboxRelay) RetryFailedEvents(ctx context.Context, tenantID string) (int64, error) {
	reset, err := r.outboxRepo.RetryFailed(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	if reset > 0 {
		r.logger.Info("Failed outbox entries reset", slog.String("tenant_id", tenantID), slog.Int64("reset", reset))
	}
	return reset, nil
}

// Stats reports entry counts by status for a tenant.
func (r *outboxRelay) Stats(ctx context.Context, tenantID string) (*domain.OutboxStats, error) {
	return r.outboxRepo.Stats(ctx, tenantID)
}
