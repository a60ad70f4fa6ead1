package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlaserp/ledgercore/internal/apperrors"
	"github.com/atlaserp/ledgercore/internal/core/domain"
	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
	"github.com/atlaserp/ledgercore/internal/dto"
	"github.com/atlaserp/ledgercore/internal/middleware"
	"github.com/atlaserp/ledgercore/internal/utils/balance"
	"github.com/atlaserp/ledgercore/internal/utils/idempotency"
)

var (
	ErrInvalidTransition  = errors.New("invalid document state transition")
	ErrAlreadyReversed    = errors.New("document has already been reversed")
	ErrReversalOfReversal = errors.New("cannot reverse a reversal document")
	ErrAccountNotFound    = errors.New("account not found")
	ErrAccountInactive    = errors.New("account is inactive")
	ErrCurrencyMismatch   = errors.New("account currency does not match posting line currency")
	ErrKeyPayloadMismatch = errors.New("idempotency key was already used with a different payload")
)

// PostingPolicy carries the configurable behavior of the engine.
type PostingPolicy struct {
	// AllowDirectPost permits posting straight from DRAFT without approval.
	AllowDirectPost bool
	// DangerZoneActions names the actions requiring an explicit override record.
	DangerZoneActions map[string]bool
}

// IsDangerZone reports whether an action needs a danger-zone override.
func (p PostingPolicy) IsDangerZone(action domain.DocumentAction) bool {
	return p.DangerZoneActions[string(action)]
}

// postingService orchestrates the document state machine and the atomic
// conversion of documents into economic events with balanced ledger postings.
type postingService struct {
	documentRepo portsrepo.DocumentRepositoryFacade
	postingRepo  portsrepo.PostingRepositoryFacade
	accountSvc   portssvc.AccountSvcFacade
	policy       PostingPolicy
}

// NewPostingService creates a new posting engine.
func NewPostingService(documentRepo portsrepo.DocumentRepositoryFacade, postingRepo portsrepo.PostingRepositoryFacade, accountSvc portssvc.AccountSvcFacade, policy PostingPolicy) portssvc.PostingSvcFacade {
	return &postingService{
		documentRepo: documentRepo,
		postingRepo:  postingRepo,
		accountSvc:   accountSvc,
		policy:       policy,
	}
}

var _ portssvc.PostingSvcFacade = (*postingService)(nil)

// validateDocumentData enforces the minimum shape of the opaque document
// payload: valid JSON with an object at the top level. The content itself is
// owned by the upstream module that issued the document.
func validateDocumentData(data json.RawMessage) error {
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(data, &payload); err != nil {
		return errors.New("document data must be a JSON object")
	}
	return nil
}

// CreateDocument creates a new document in DRAFT.
func (s *postingService) CreateDocument(ctx context.Context, tenantID string, req dto.CreateDocumentRequest, actorID string) (*domain.Document, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	now := time.Now().UTC()
	actionCtx := req.Context.ToDomain(actorID, now)
	if err := actionCtx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	data := req.Data
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	if err := validateDocumentData(data); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	documentID := uuid.NewString()
	documentNumber := req.DocumentNumber
	if documentNumber == "" {
		documentNumber = fmt.Sprintf("%s-%s", req.DocumentType, documentID[:8])
	}

	doc := domain.Document{
		DocumentID:     documentID,
		TenantID:       tenantID,
		DocumentType:   req.DocumentType,
		DocumentNumber: documentNumber,
		DocumentDate:   req.DocumentDate,
		Status:         domain.Draft,
		Data:           data,
		Context:        actionCtx,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actorID,
			LastUpdatedAt: now,
			LastUpdatedBy: actorID,
		},
	}

	if err := s.documentRepo.SaveDocument(ctx, doc); err != nil {
		logger.Error("Failed to save document", slog.String("error", err.Error()), slog.String("tenant_id", tenantID))
		return nil, fmt.Errorf("failed to save document: %w", err)
	}

	logger.Info("Document created", slog.String("document_id", doc.DocumentID), slog.String("tenant_id", tenantID))
	return &doc, nil
}

// UpdateDocument edits a still-mutable document's payload fields.
func (s *postingService) UpdateDocument(ctx context.Context, tenantID string, documentID string, req dto.UpdateDocumentRequest, actorID string) (*domain.Document, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	now := time.Now().UTC()
	actionCtx := req.Context.ToDomain(actorID, now)
	if err := actionCtx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	doc, err := s.documentRepo.FindDocumentByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	if !doc.Status.IsMutable() {
		logger.Warn("Attempted to edit an immutable document", slog.String("document_id", documentID), slog.String("status", string(doc.Status)))
		return nil, fmt.Errorf("%w: document is in status %s", apperrors.ErrImmutable, doc.Status)
	}

	updated := false
	if req.DocumentNumber != nil {
		doc.DocumentNumber = *req.DocumentNumber
		updated = true
	}
	if req.DocumentDate != nil {
		doc.DocumentDate = *req.DocumentDate
		updated = true
	}
	if len(req.Data) > 0 {
		if err := validateDocumentData(req.Data); err != nil {
			return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
		}
		doc.Data = req.Data
		updated = true
	}

	if !updated {
		return doc, nil
	}

	doc.Context = actionCtx
	doc.LastUpdatedAt = now
	doc.LastUpdatedBy = actorID

	if err := s.documentRepo.UpdateDocumentDetails(ctx, *doc); err != nil {
		logger.Error("Failed to update document", slog.String("error", err.Error()), slog.String("document_id", documentID))
		return nil, fmt.Errorf("failed to update document: %w", err)
	}

	logger.Info("Document updated", slog.String("document_id", documentID))
	return doc, nil
}

// TransitionDocument applies submit, approve or cancel.
func (s *postingService) TransitionDocument(ctx context.Context, tenantID string, documentID string, action domain.DocumentAction, req dto.TransitionDocumentRequest, actorID string) (*domain.Document, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	target, ok := action.TargetStatus()
	if !ok {
		return nil, fmt.Errorf("%w: unknown workflow action %q", apperrors.ErrValidation, action)
	}

	now := time.Now().UTC()
	actionCtx := req.Context.ToDomain(actorID, now)
	if err := actionCtx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	dangerZone := req.DangerZone.ToDomain()
	if s.policy.IsDangerZone(action) {
		if err := dangerZone.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %s requires a danger-zone override: %s", apperrors.ErrValidation, action, err.Error())
		}
	}

	doc, err := s.documentRepo.FindDocumentByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	if doc.Status == domain.Posted || doc.Status == domain.Reversed {
		return nil, fmt.Errorf("%w: document is in status %s", apperrors.ErrImmutable, doc.Status)
	}
	if !doc.Status.CanTransitionTo(target) {
		return nil, fmt.Errorf("%w: %s from %s: %s", apperrors.ErrValidation, action, doc.Status, ErrInvalidTransition.Error())
	}

	err = s.documentRepo.TransitionDocumentStatus(ctx, portsrepo.TransitionParams{
		TenantID:   tenantID,
		DocumentID: documentID,
		FromStatus: doc.Status,
		ToStatus:   target,
		Context:    actionCtx,
		DangerZone: dangerZone,
		ActorID:    actorID,
	})
	if err != nil {
		logger.Warn("Document transition failed", slog.String("document_id", documentID), slog.String("action", string(action)), slog.String("error", err.Error()))
		return nil, err
	}

	doc.Status = target
	doc.Context = actionCtx
	doc.DangerZone = dangerZone
	doc.LastUpdatedAt = now
	doc.LastUpdatedBy = actorID

	logger.Info("Document transitioned", slog.String("document_id", documentID), slog.String("action", string(action)), slog.String("status", string(target)))
	return doc, nil
}

// postable reports whether the document's current status admits posting.
func (s *postingService) postable(status domain.DocumentStatus) bool {
	if status == domain.Approved {
		return true
	}
	return status == domain.Draft && s.policy.AllowDirectPost
}

// PostDocument converts an approved document into an economic event with
// balanced ledger postings, exactly once per idempotency key. Event,
// postings, document flip, idempotency record and outbox entry are written in
// a single transaction; on any failure nothing is persisted.
func (s *postingService) PostDocument(ctx context.Context, tenantID string, documentID string, req dto.PostDocumentRequest, actorID string) (*dto.PostDocumentResponse, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	now := time.Now().UTC()
	actionCtx := req.Context.ToDomain(actorID, now)
	if err := actionCtx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	if s.policy.IsDangerZone(domain.ActionPost) {
		if err := req.DangerZone.ToDomain().Validate(); err != nil {
			return nil, fmt.Errorf("%w: post requires a danger-zone override: %s", apperrors.ErrValidation, err.Error())
		}
	}

	lines := req.BalanceLines()
	reqHash := idempotency.Fingerprint(documentID, lines)

	// Idempotency short-circuit: a key already used with the same payload
	// replays the original result; a different payload is a conflict.
	record, err := s.postingRepo.FindIdempotencyRecord(ctx, tenantID, req.IdempotencyKey)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	if record != nil {
		return s.replayPostResult(ctx, tenantID, record, reqHash)
	}

	doc, err := s.documentRepo.FindDocumentByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}
	if doc.Status == domain.Posted || doc.Status == domain.Reversed {
		return nil, fmt.Errorf("%w: document is in status %s", apperrors.ErrImmutable, doc.Status)
	}
	if !s.postable(doc.Status) {
		return nil, fmt.Errorf("%w: cannot post from status %s", apperrors.ErrValidation, doc.Status)
	}

	if err := balance.Check(lines); err != nil {
		logger.Warn("Unbalanced postings rejected", slog.String("document_id", documentID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}

	if err := s.checkAccounts(ctx, tenantID, lines); err != nil {
		return nil, err
	}

	eventDate := doc.DocumentDate
	if req.EventDate != nil {
		eventDate = *req.EventDate
	}

	event := domain.EconomicEvent{
		EventID:      uuid.NewString(),
		TenantID:     tenantID,
		DocumentID:   documentID,
		EventType:    req.EventType,
		Description:  req.Description,
		// The event carries a single-currency headline figure: the debit
		// total in the first line's currency. Mixed-currency documents keep
		// their full per-currency truth in the postings.
		Amount:       balance.DebitTotal(lines, lines[0].CurrencyCode),
		CurrencyCode: lines[0].CurrencyCode,
		EventDate:    eventDate,
		Context:      actionCtx,
		IsReversal:   false,
		CreatedAt:    now,
		CreatedBy:    actorID,
	}

	postings := make([]domain.LedgerPosting, len(lines))
	for i, line := range lines {
		postings[i] = domain.LedgerPosting{
			PostingID:    uuid.NewString(),
			TenantID:     tenantID,
			EventID:      event.EventID,
			AccountID:    line.AccountID,
			Direction:    line.Direction,
			Amount:       line.Amount.Round(balance.Scale),
			CurrencyCode: line.CurrencyCode,
			CreatedAt:    now,
			CreatedBy:    actorID,
		}
	}

	outbox, err := s.buildOutboxMessage("document.posted", doc, event)
	if err != nil {
		return nil, fmt.Errorf("failed to build outbox payload: %w", err)
	}

	params := portsrepo.PostingParams{
		TenantID:  tenantID,
		ActorID:   actorID,
		Now:       now,
		Document:  *doc,
		Event:     event,
		Postings:  postings,
		ClientKey: req.IdempotencyKey,
		ReqHash:   reqHash,
		Outbox:    outbox,
	}

	if err := s.postingRepo.PersistPosting(ctx, params); err != nil {
		if errors.Is(err, apperrors.ErrDuplicate) {
			// Lost the insert race on the idempotency key: the winner's result
			// is authoritative, so re-read and replay it.
			record, readErr := s.postingRepo.FindIdempotencyRecord(ctx, tenantID, req.IdempotencyKey)
			if readErr != nil {
				return nil, fmt.Errorf("failed to re-read idempotency record after race: %w", readErr)
			}
			return s.replayPostResult(ctx, tenantID, record, reqHash)
		}
		logger.Error("Failed to persist posting", slog.String("error", err.Error()), slog.String("document_id", documentID))
		return nil, err
	}

	logger.Info("Document posted",
		slog.String("document_id", documentID),
		slog.String("event_id", event.EventID),
		slog.String("tenant_id", tenantID),
		slog.Int("posting_count", len(postings)),
	)

	return &dto.PostDocumentResponse{
		DocumentID: documentID,
		EventID:    event.EventID,
		Status:     string(domain.Posted),
		Postings:   dto.ToPostingResponses(postings),
		Replayed:   false,
	}, nil
}

// replayPostResult rebuilds the original post result for an idempotent retry.
func (s *postingService) replayPostResult(ctx context.Context, tenantID string, record *domain.IdempotencyRecord, reqHash string) (*dto.PostDocumentResponse, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if record.RequestHash != reqHash {
		logger.Warn("Idempotency key reused with different payload",
			slog.String("tenant_id", tenantID), slog.String("client_key", record.ClientKey))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConflict, ErrKeyPayloadMismatch.Error())
	}

	postings, err := s.postingRepo.FindPostingsByEventID(ctx, tenantID, record.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load postings for replay: %w", err)
	}

	logger.Info("Idempotent post replayed",
		slog.String("document_id", record.DocumentID), slog.String("event_id", record.EventID))

	return &dto.PostDocumentResponse{
		DocumentID: record.DocumentID,
		EventID:    record.EventID,
		Status:     string(domain.Posted),
		Postings:   dto.ToPostingResponses(postings),
		Replayed:   true,
	}, nil
}

// checkAccounts verifies every referenced account exists, is active and
// matches the line currency.
func (s *postingService) checkAccounts(ctx context.Context, tenantID string, lines []balance.Line) error {
	accountIDs := make([]string, 0, len(lines))
	seen := make(map[string]struct{}, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; !ok {
			seen[line.AccountID] = struct{}{}
			accountIDs = append(accountIDs, line.AccountID)
		}
	}

	accounts, err := s.accountSvc.GetAccountsByIDs(ctx, tenantID, accountIDs)
	if err != nil {
		return fmt.Errorf("failed to fetch accounts: %w", err)
	}

	for _, line := range lines {
		acc, found := accounts[line.AccountID]
		if !found {
			return fmt.Errorf("%w: %s: ID %s", apperrors.ErrValidation, ErrAccountNotFound.Error(), line.AccountID)
		}
		if !acc.IsActive {
			return fmt.Errorf("%w: %s: ID %s", apperrors.ErrValidation, ErrAccountInactive.Error(), line.AccountID)
		}
		if acc.CurrencyCode != line.CurrencyCode {
			return fmt.Errorf("%w: %s: account %s is %s, line is %s",
				apperrors.ErrValidation, ErrCurrencyMismatch.Error(), line.AccountID, acc.CurrencyCode, line.CurrencyCode)
		}
	}
	return nil
}

// ReverseDocument creates and posts a new document whose postings are the
// debit/credit mirror of the original's, linking the two atomically.
func (s *postingService) ReverseDocument(ctx context.Context, tenantID string, documentID string, req dto.ReverseDocumentRequest, actorID string) (*dto.ReverseDocumentResponse, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	now := time.Now().UTC()
	actionCtx := req.Context.ToDomain(actorID, now)
	if err := actionCtx.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrValidation, err.Error())
	}
	dangerZone := req.DangerZone.ToDomain()
	if s.policy.IsDangerZone(domain.ActionReverse) {
		if err := dangerZone.Validate(); err != nil {
			return nil, fmt.Errorf("%w: reverse requires a danger-zone override: %s", apperrors.ErrValidation, err.Error())
		}
	}

	original, err := s.documentRepo.FindDocumentByID(ctx, tenantID, documentID)
	if err != nil {
		return nil, err
	}

	if original.Status != domain.Posted {
		return nil, fmt.Errorf("%w: document status is %s, expected POSTED", apperrors.ErrConflict, original.Status)
	}
	if original.ReversedByDocumentID != nil {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConflict, ErrAlreadyReversed.Error())
	}
	if original.IsReversal() {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrConflict, ErrReversalOfReversal.Error())
	}

	originalEvent, err := s.postingRepo.FindEventByDocumentID(ctx, tenantID, documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original event: %w", err)
	}
	originalPostings, err := s.postingRepo.FindPostingsByEventID(ctx, tenantID, originalEvent.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load original postings: %w", err)
	}

	reversingID := uuid.NewString()
	reversing := domain.Document{
		DocumentID:           reversingID,
		TenantID:             tenantID,
		DocumentType:         original.DocumentType,
		DocumentNumber:       original.DocumentNumber + "-REV",
		DocumentDate:         original.DocumentDate,
		Status:               domain.Posted,
		Data:                 original.Data,
		Context:              actionCtx,
		DangerZone:           dangerZone,
		ReversalOfDocumentID: &original.DocumentID,
		PostedAt:             &now,
		PostedBy:             &actorID,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     actorID,
			LastUpdatedAt: now,
			LastUpdatedBy: actorID,
		},
	}

	event := domain.EconomicEvent{
		EventID:           uuid.NewString(),
		TenantID:          tenantID,
		DocumentID:        reversingID,
		EventType:         originalEvent.EventType,
		Description:       fmt.Sprintf("Reversal of %s: %s", original.DocumentNumber, req.Reason),
		Amount:            originalEvent.Amount,
		CurrencyCode:      originalEvent.CurrencyCode,
		EventDate:         originalEvent.EventDate,
		Context:           actionCtx,
		IsReversal:        true,
		ReversalOfEventID: &originalEvent.EventID,
		CreatedAt:         now,
		CreatedBy:         actorID,
	}

	postings := make([]domain.LedgerPosting, len(originalPostings))
	for i, orig := range originalPostings {
		postings[i] = domain.LedgerPosting{
			PostingID:    uuid.NewString(),
			TenantID:     tenantID,
			EventID:      event.EventID,
			AccountID:    orig.AccountID,
			Direction:    orig.Direction.Opposite(),
			Amount:       orig.Amount,
			CurrencyCode: orig.CurrencyCode,
			CreatedAt:    now,
			CreatedBy:    actorID,
		}
	}

	outbox, err := s.buildOutboxMessage("document.reversed", &reversing, event)
	if err != nil {
		return nil, fmt.Errorf("failed to build outbox payload: %w", err)
	}

	params := portsrepo.ReversalParams{
		TenantID:  tenantID,
		ActorID:   actorID,
		Now:       now,
		Original:  *original,
		Reversing: reversing,
		Event:     event,
		Postings:  postings,
		Outbox:    outbox,
	}

	if err := s.postingRepo.PersistReversal(ctx, params); err != nil {
		logger.Error("Failed to persist reversal", slog.String("error", err.Error()), slog.String("document_id", documentID))
		return nil, err
	}

	logger.Info("Document reversed",
		slog.String("original_document_id", documentID),
		slog.String("reversing_document_id", reversingID),
		slog.String("event_id", event.EventID),
	)

	return &dto.ReverseDocumentResponse{
		OriginalDocumentID:  documentID,
		ReversingDocumentID: reversingID,
		EventID:             event.EventID,
		Postings:            dto.ToPostingResponses(postings),
	}, nil
}

// buildOutboxMessage assembles the cross-domain notification written in the
// same transaction as the ledger rows.
func (s *postingService) buildOutboxMessage(eventType string, doc *domain.Document, event domain.EconomicEvent) (portsrepo.OutboxMessage, error) {
	payload, err := json.Marshal(map[string]any{
		"documentID":   doc.DocumentID,
		"documentType": doc.DocumentType,
		"eventID":      event.EventID,
		"eventType":    event.EventType,
		"amount":       event.Amount,
		"currencyCode": event.CurrencyCode,
		"isReversal":   event.IsReversal,
	})
	if err != nil {
		return portsrepo.OutboxMessage{}, err
	}
	return portsrepo.OutboxMessage{
		EntryID:       uuid.NewString(),
		EventType:     eventType,
		CorrelationID: doc.DocumentID,
		CausationID:   event.EventID,
		AggregateType: "document",
		AggregateID:   doc.DocumentID,
		Payload:       payload,
	}, nil
}

// GetDocumentByID retrieves a document.
func (s *postingService) GetDocumentByID(ctx context.Context, tenantID string, documentID string) (*domain.Document, error) {
	return s.documentRepo.FindDocumentByID(ctx, tenantID, documentID)
}

// GetDocumentLedger retrieves the event and postings of a posted document.
func (s *postingService) GetDocumentLedger(ctx context.Context, tenantID string, documentID string) (*domain.EconomicEvent, []domain.LedgerPosting, error) {
	event, err := s.postingRepo.FindEventByDocumentID(ctx, tenantID, documentID)
	if err != nil {
		return nil, nil, err
	}
	postings, err := s.postingRepo.FindPostingsByEventID(ctx, tenantID, event.EventID)
	if err != nil {
		return nil, nil, err
	}
	return event, postings, nil
}

// ListDocuments retrieves a paginated list of documents for a tenant.
func (s *postingService) ListDocuments(ctx context.Context, tenantID string, params dto.ListDocumentsParams) (*dto.ListDocumentsResponse, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	limit := params.Limit
	if limit <= 0 {
		limit = 20
	}

	docs, nextToken, err := s.documentRepo.ListDocuments(ctx, tenantID, limit, params.NextToken, params.IncludeReversals)
	if err != nil {
		logger.Error("Failed to list documents", slog.String("error", err.Error()), slog.String("tenant_id", tenantID))
		return nil, fmt.Errorf("failed to retrieve documents: %w", err)
	}

	responses := make([]dto.DocumentResponse, len(docs))
	for i := range docs {
		responses[i] = dto.ToDocumentResponse(&docs[i])
	}

	return &dto.ListDocumentsResponse{Documents: responses, NextToken: nextToken}, nil
}
