package services_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
	"github.com/atlaserp/ledgercore/internal/core/services"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Mock OutboxRepository ---
type MockOutboxRepository struct {
	mock.Mock
}

var _ portsrepo.OutboxRepositoryFacade = (*MockOutboxRepository)(nil)

func (m *MockOutboxRepository) ClaimPending(ctx context.Context, limit int) ([]domain.OutboxEntry, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.OutboxEntry), args.Error(1)
}

func (m *MockOutboxRepository) MarkDelivered(ctx context.Context, sequenceNo int64, at time.Time) error {
	args := m.Called(ctx, sequenceNo, at)
	return args.Error(0)
}

func (m *MockOutboxRepository) RecordFailure(ctx context.Context, sequenceNo int64, attemptCount int, lastError string, terminal bool) error {
	args := m.Called(ctx, sequenceNo, attemptCount, lastError, terminal)
	return args.Error(0)
}

func (m *MockOutboxRepository) Release(ctx context.Context, sequenceNo int64) error {
	args := m.Called(ctx, sequenceNo)
	return args.Error(0)
}

func (m *MockOutboxRepository) ReclaimStale(ctx context.Context, before time.Time) (int64, error) {
	args := m.Called(ctx, before)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) RetryFailed(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxRepository) Stats(ctx context.Context, tenantID string) (*domain.OutboxStats, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxStats), args.Error(1)
}

// --- Test Suite Setup ---
type OutboxRelayTestSuite struct {
	suite.Suite
	mockOutboxRepo *MockOutboxRepository
	relay          portssvc.OutboxRelaySvcFacade
	tenantID       string
}

func (suite *OutboxRelayTestSuite) SetupTest() {
	suite.mockOutboxRepo = new(MockOutboxRepository)
	suite.relay = services.NewOutboxRelay(suite.mockOutboxRepo, services.RelayConfig{
		PollInterval: time.Minute,
		BatchSize:    10,
		MaxAttempts:  3,
	}, slog.Default())
	suite.tenantID = uuid.NewString()
}

// expectNoStaleClaims satisfies the sweep every batch runs before claiming.
func (suite *OutboxRelayTestSuite) expectNoStaleClaims(ctx context.Context) {
	suite.mockOutboxRepo.On("ReclaimStale", ctx, mock.AnythingOfType("time.Time")).Return(int64(0), nil).Once()
}

func (suite *OutboxRelayTestSuite) entry(seq int64, tenantID, eventType string, attempts int) domain.OutboxEntry {
	return domain.OutboxEntry{
		SequenceNo:   seq,
		EntryID:      uuid.NewString(),
		TenantID:     tenantID,
		EventType:    eventType,
		Payload:      []byte(`{}`),
		Status:       domain.OutboxProcessing,
		AttemptCount: attempts,
	}
}

func (suite *OutboxRelayTestSuite) TestProcessOnce_DeliversInOrder() {
	ctx := context.Background()
	entries := []domain.OutboxEntry{
		suite.entry(1, suite.tenantID, "document.posted", 0),
		suite.entry(2, suite.tenantID, "document.posted", 0),
	}

	var seen []int64
	suite.relay.RegisterHandler("document.posted", func(ctx context.Context, e domain.OutboxEntry) error {
		seen = append(seen, e.SequenceNo)
		return nil
	})

	suite.expectNoStaleClaims(ctx)
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return(entries, nil).Once()
	suite.mockOutboxRepo.On("MarkDelivered", ctx, int64(1), mock.AnythingOfType("time.Time")).Return(nil).Once()
	suite.mockOutboxRepo.On("MarkDelivered", ctx, int64(2), mock.AnythingOfType("time.Time")).Return(nil).Once()

	delivered, err := suite.relay.ProcessOnce(ctx)

	suite.Require().NoError(err)
	suite.Equal(2, delivered)
	suite.Equal([]int64{1, 2}, seen)
	suite.mockOutboxRepo.AssertExpectations(suite.T())
}

func (suite *OutboxRelayTestSuite) TestProcessOnce_FailureBlocksLaterEntriesOfTenant() {
	ctx := context.Background()
	otherTenant := uuid.NewString()
	entries := []domain.OutboxEntry{
		suite.entry(1, suite.tenantID, "document.posted", 0),
		suite.entry(2, suite.tenantID, "document.posted", 0),
		suite.entry(3, otherTenant, "document.posted", 0),
	}

	handlerErr := errors.New("broker unavailable")
	suite.relay.RegisterHandler("document.posted", func(ctx context.Context, e domain.OutboxEntry) error {
		if e.SequenceNo == 1 {
			return handlerErr
		}
		return nil
	})

	suite.expectNoStaleClaims(ctx)
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return(entries, nil).Once()
	suite.mockOutboxRepo.On("RecordFailure", ctx, int64(1), 1, handlerErr.Error(), false).Return(nil).Once()
	// Entry 2 shares the tenant and must be released, not attempted.
	suite.mockOutboxRepo.On("Release", ctx, int64(2)).Return(nil).Once()
	// The other tenant is unaffected.
	suite.mockOutboxRepo.On("MarkDelivered", ctx, int64(3), mock.AnythingOfType("time.Time")).Return(nil).Once()

	delivered, err := suite.relay.ProcessOnce(ctx)

	suite.Require().NoError(err)
	suite.Equal(1, delivered)
	suite.mockOutboxRepo.AssertExpectations(suite.T())
}

func (suite *OutboxRelayTestSuite) TestProcessOnce_ExhaustedAttemptsAreTerminal() {
	ctx := context.Background()
	// Two prior attempts on a budget of three: this failure is the last.
	entries := []domain.OutboxEntry{suite.entry(7, suite.tenantID, "document.posted", 2)}

	handlerErr := errors.New("still broken")
	suite.relay.RegisterHandler("document.posted", func(ctx context.Context, e domain.OutboxEntry) error {
		return handlerErr
	})

	suite.expectNoStaleClaims(ctx)
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return(entries, nil).Once()
	suite.mockOutboxRepo.On("RecordFailure", ctx, int64(7), 3, handlerErr.Error(), true).Return(nil).Once()

	delivered, err := suite.relay.ProcessOnce(ctx)

	suite.Require().NoError(err)
	suite.Equal(0, delivered)
	suite.mockOutboxRepo.AssertExpectations(suite.T())
}

func (suite *OutboxRelayTestSuite) TestProcessOnce_NoHandlerReleasesEntry() {
	ctx := context.Background()
	entries := []domain.OutboxEntry{suite.entry(4, suite.tenantID, "document.archived", 0)}

	suite.expectNoStaleClaims(ctx)
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return(entries, nil).Once()
	suite.mockOutboxRepo.On("Release", ctx, int64(4)).Return(nil).Once()

	delivered, err := suite.relay.ProcessOnce(ctx)

	suite.Require().NoError(err)
	suite.Equal(0, delivered)
	suite.mockOutboxRepo.AssertNotCalled(suite.T(), "RecordFailure")
	suite.mockOutboxRepo.AssertExpectations(suite.T())
}

func (suite *OutboxRelayTestSuite) TestProcessOnce_EmptyBatch() {
	ctx := context.Background()

	suite.expectNoStaleClaims(ctx)
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return([]domain.OutboxEntry{}, nil).Once()

	delivered, err := suite.relay.ProcessOnce(ctx)

	suite.Require().NoError(err)
	suite.Equal(0, delivered)
}

func (suite *OutboxRelayTestSuite) TestProcessOnce_SweepsStaleClaimsBeforeNewBatch() {
	ctx := context.Background()
	reclaimed := suite.entry(9, suite.tenantID, "document.posted", 0)

	suite.relay.RegisterHandler("document.posted", func(ctx context.Context, e domain.OutboxEntry) error {
		return nil
	})

	// A claim stranded by a crashed run is swept back to pending and picked
	// up by the very next batch.
	suite.mockOutboxRepo.On("ReclaimStale", ctx, mock.AnythingOfType("time.Time")).Return(int64(1), nil).Once()
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return([]domain.OutboxEntry{reclaimed}, nil).Once()
	suite.mockOutboxRepo.On("MarkDelivered", ctx, int64(9), mock.AnythingOfType("time.Time")).Return(nil).Once()

	delivered, err := suite.relay.ProcessOnce(ctx)

	suite.Require().NoError(err)
	suite.Equal(1, delivered)
	suite.mockOutboxRepo.AssertExpectations(suite.T())
}

func (suite *OutboxRelayTestSuite) TestProcessOnce_UnresolvedClaimIsRedeliveredAfterSweep() {
	ctx := context.Background()
	stuck := suite.entry(5, suite.tenantID, "document.posted", 0)

	attempts := 0
	suite.relay.RegisterHandler("document.posted", func(ctx context.Context, e domain.OutboxEntry) error {
		attempts++
		return nil
	})

	// First pass: the handler delivers but recording the delivery fails, so
	// the entry stays claimed. No attempt is counted and nothing is released.
	suite.expectNoStaleClaims(ctx)
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return([]domain.OutboxEntry{stuck}, nil).Once()
	suite.mockOutboxRepo.On("MarkDelivered", ctx, int64(5), mock.AnythingOfType("time.Time")).Return(errors.New("connection reset")).Once()

	delivered, err := suite.relay.ProcessOnce(ctx)
	suite.Require().NoError(err)
	suite.Equal(0, delivered)
	suite.mockOutboxRepo.AssertNotCalled(suite.T(), "RecordFailure")
	suite.mockOutboxRepo.AssertNotCalled(suite.T(), "Release")

	// Second pass: the sweep reclaims the stuck entry and it is delivered
	// again, this time resolving cleanly.
	suite.mockOutboxRepo.On("ReclaimStale", ctx, mock.AnythingOfType("time.Time")).Return(int64(1), nil).Once()
	suite.mockOutboxRepo.On("ClaimPending", ctx, 10).Return([]domain.OutboxEntry{stuck}, nil).Once()
	suite.mockOutboxRepo.On("MarkDelivered", ctx, int64(5), mock.AnythingOfType("time.Time")).Return(nil).Once()

	delivered, err = suite.relay.ProcessOnce(ctx)
	suite.Require().NoError(err)
	suite.Equal(1, delivered)
	suite.Equal(2, attempts)
	suite.mockOutboxRepo.AssertExpectations(suite.T())
}

func (suite *OutboxRelayTestSuite) TestStartReclaimsInterruptedClaims() {
	relay := services.NewOutboxRelay(suite.mockOutboxRepo, services.RelayConfig{
		PollInterval: time.Minute,
		BatchSize:    10,
		MaxAttempts:  3,
	}, slog.Default())

	swept := make(chan struct{}, 1)
	suite.mockOutboxRepo.On("ReclaimStale", mock.Anything, mock.AnythingOfType("time.Time")).Run(func(args mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	}).Return(int64(2), nil)

	relay.Start(context.Background())

	select {
	case <-swept:
	case <-time.After(time.Second):
		suite.FailNow("relay never swept stranded claims at start")
	}

	relay.Stop()
}

func (suite *OutboxRelayTestSuite) TestRetryFailedEvents() {
	ctx := context.Background()

	suite.mockOutboxRepo.On("RetryFailed", ctx, suite.tenantID).Return(int64(3), nil).Once()

	reset, err := suite.relay.RetryFailedEvents(ctx, suite.tenantID)

	suite.Require().NoError(err)
	suite.Equal(int64(3), reset)
}

func (suite *OutboxRelayTestSuite) TestStats() {
	ctx := context.Background()
	stats := &domain.OutboxStats{Pending: 5, Delivered: 100, Failed: 1}

	suite.mockOutboxRepo.On("Stats", ctx, suite.tenantID).Return(stats, nil).Once()

	got, err := suite.relay.Stats(ctx, suite.tenantID)

	suite.Require().NoError(err)
	suite.Equal(stats, got)
}

func (suite *OutboxRelayTestSuite) TestStartStop() {
	relay := services.NewOutboxRelay(suite.mockOutboxRepo, services.RelayConfig{
		PollInterval: 5 * time.Millisecond,
		BatchSize:    10,
		MaxAttempts:  3,
	}, slog.Default())

	claimed := make(chan struct{}, 1)
	suite.mockOutboxRepo.On("ReclaimStale", mock.Anything, mock.AnythingOfType("time.Time")).Return(int64(0), nil)
	suite.mockOutboxRepo.On("ClaimPending", mock.Anything, 10).Run(func(args mock.Arguments) {
		select {
		case claimed <- struct{}{}:
		default:
		}
	}).Return([]domain.OutboxEntry{}, nil)

	relay.Start(context.Background())

	select {
	case <-claimed:
	case <-time.After(time.Second):
		suite.FailNow("relay never polled")
	}

	relay.Stop()
}

// --- Run Test Suite ---
func TestOutboxRelay(t *testing.T) {
	suite.Run(t, new(OutboxRelayTestSuite))
}
