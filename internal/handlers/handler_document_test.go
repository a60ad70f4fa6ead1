package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atlaserp/ledgercore/internal/apperrors"
	"github.com/atlaserp/ledgercore/internal/core/domain"
	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
	"github.com/atlaserp/ledgercore/internal/dto"
	"github.com/atlaserp/ledgercore/internal/handlers"
	"github.com/atlaserp/ledgercore/internal/platform/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

// --- Mock PostingService ---
type MockPostingService struct {
	mock.Mock
}

var _ portssvc.PostingSvcFacade = (*MockPostingService)(nil)

func (m *MockPostingService) CreateDocument(ctx context.Context, tenantID string, req dto.CreateDocumentRequest, actorID string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockPostingService) UpdateDocument(ctx context.Context, tenantID string, documentID string, req dto.UpdateDocumentRequest, actorID string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, documentID, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockPostingService) TransitionDocument(ctx context.Context, tenantID string, documentID string, action domain.DocumentAction, req dto.TransitionDocumentRequest, actorID string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, documentID, action, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockPostingService) PostDocument(ctx context.Context, tenantID string, documentID string, req dto.PostDocumentRequest, actorID string) (*dto.PostDocumentResponse, error) {
	args := m.Called(ctx, tenantID, documentID, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.PostDocumentResponse), args.Error(1)
}

func (m *MockPostingService) ReverseDocument(ctx context.Context, tenantID string, documentID string, req dto.ReverseDocumentRequest, actorID string) (*dto.ReverseDocumentResponse, error) {
	args := m.Called(ctx, tenantID, documentID, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ReverseDocumentResponse), args.Error(1)
}

func (m *MockPostingService) GetDocumentByID(ctx context.Context, tenantID string, documentID string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockPostingService) GetDocumentLedger(ctx context.Context, tenantID string, documentID string) (*domain.EconomicEvent, []domain.LedgerPosting, error) {
	args := m.Called(ctx, tenantID, documentID)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*domain.EconomicEvent), args.Get(1).([]domain.LedgerPosting), args.Error(2)
}

func (m *MockPostingService) ListDocuments(ctx context.Context, tenantID string, params dto.ListDocumentsParams) (*dto.ListDocumentsResponse, error) {
	args := m.Called(ctx, tenantID, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ListDocumentsResponse), args.Error(1)
}

// --- Mock AccountService (routes only) ---
type MockAccountSvc struct {
	mock.Mock
}

var _ portssvc.AccountSvcFacade = (*MockAccountSvc)(nil)

func (m *MockAccountSvc) CreateAccount(ctx context.Context, tenantID string, req dto.CreateAccountRequest, actorID string) (*domain.Account, error) {
	args := m.Called(ctx, tenantID, req, actorID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountSvc) GetAccountByID(ctx context.Context, tenantID string, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, tenantID, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountSvc) GetAccountsByIDs(ctx context.Context, tenantID string, accountIDs []string) (map[string]domain.Account, error) {
	args := m.Called(ctx, tenantID, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Account), args.Error(1)
}

func (m *MockAccountSvc) ListAccounts(ctx context.Context, tenantID string) ([]domain.Account, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountSvc) DeactivateAccount(ctx context.Context, tenantID string, accountID string, actorID string) error {
	args := m.Called(ctx, tenantID, accountID, actorID)
	return args.Error(0)
}

// --- Mock OutboxService (routes only) ---
type MockOutboxService struct {
	mock.Mock
}

var _ portssvc.OutboxRelaySvcFacade = (*MockOutboxService)(nil)

func (m *MockOutboxService) RegisterHandler(eventType string, handler portssvc.OutboxHandler) {
	m.Called(eventType, handler)
}

func (m *MockOutboxService) ProcessOnce(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockOutboxService) Start(ctx context.Context) { m.Called(ctx) }
func (m *MockOutboxService) Stop()                     { m.Called() }

func (m *MockOutboxService) RetryFailedEvents(ctx context.Context, tenantID string) (int64, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOutboxService) Stats(ctx context.Context, tenantID string) (*domain.OutboxStats, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.OutboxStats), args.Error(1)
}

// --- Test Suite Setup ---
type DocumentHandlerTestSuite struct {
	suite.Suite
	router         *gin.Engine
	mockPostingSvc *MockPostingService
	mockAccountSvc *MockAccountSvc
	mockOutboxSvc  *MockOutboxService
	tenantID       string
	actorID        string
}

func (suite *DocumentHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.mockPostingSvc = new(MockPostingService)
	suite.mockAccountSvc = new(MockAccountSvc)
	suite.mockOutboxSvc = new(MockOutboxService)
	suite.tenantID = uuid.NewString()
	suite.actorID = uuid.NewString()

	suite.router = gin.New()
	handlers.RegisterRoutes(suite.router, &config.Config{}, &portssvc.ServiceContainer{
		Posting: suite.mockPostingSvc,
		Account: suite.mockAccountSvc,
		Outbox:  suite.mockOutboxSvc,
	})
}

func (suite *DocumentHandlerTestSuite) request(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		suite.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-ID", suite.tenantID)
	req.Header.Set("X-Actor-ID", suite.actorID)

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *DocumentHandlerTestSuite) contextReq() dto.ActionContextRequest {
	return dto.ActionContextRequest{Why: "entry", How: "manual"}
}

// --- Test Cases ---

func (suite *DocumentHandlerTestSuite) TestCreateDocument_Created() {
	doc := &domain.Document{
		DocumentID:   uuid.NewString(),
		TenantID:     suite.tenantID,
		DocumentType: "INVOICE",
		Status:       domain.Draft,
	}
	suite.mockPostingSvc.On("CreateDocument", mock.Anything, suite.tenantID, mock.AnythingOfType("dto.CreateDocumentRequest"), suite.actorID).
		Return(doc, nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/documents", gin.H{
		"documentType": "INVOICE",
		"documentDate": time.Now().UTC(),
		"context":      suite.contextReq(),
	})

	suite.Equal(http.StatusCreated, w.Code)
	var resp dto.DocumentResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal(doc.DocumentID, resp.DocumentID)
	suite.mockPostingSvc.AssertExpectations(suite.T())
}

func (suite *DocumentHandlerTestSuite) TestMissingTenantHeader() {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/documents", nil)
	req.Header.Set("X-Actor-ID", suite.actorID)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockPostingSvc.AssertNotCalled(suite.T(), "ListDocuments")
}

func (suite *DocumentHandlerTestSuite) TestGetDocument_NotFound() {
	documentID := uuid.NewString()
	suite.mockPostingSvc.On("GetDocumentByID", mock.Anything, suite.tenantID, documentID).
		Return(nil, apperrors.NewNotFoundError("document "+documentID+" not found")).Once()

	w := suite.request(http.MethodGet, "/api/v1/documents/"+documentID, nil)

	suite.Equal(http.StatusNotFound, w.Code)
}

func (suite *DocumentHandlerTestSuite) TestUpdateDocument_ImmutableConflict() {
	documentID := uuid.NewString()
	suite.mockPostingSvc.On("UpdateDocument", mock.Anything, suite.tenantID, documentID, mock.Anything, suite.actorID).
		Return(nil, fmt.Errorf("%w: document is in status POSTED", apperrors.ErrImmutable)).Once()

	w := suite.request(http.MethodPut, "/api/v1/documents/"+documentID, gin.H{
		"documentNumber": "INV-2",
		"context":        suite.contextReq(),
	})

	suite.Equal(http.StatusConflict, w.Code)
}

func (suite *DocumentHandlerTestSuite) TestPostDocument_CreatedAndReplayed() {
	documentID := uuid.NewString()
	body := gin.H{
		"idempotencyKey": uuid.NewString(),
		"eventType":      "revenue.recognized",
		"lines": []gin.H{
			{"accountID": "a1", "direction": "DEBIT", "amount": "10.00", "currencyCode": "USD"},
			{"accountID": "a2", "direction": "CREDIT", "amount": "10.00", "currencyCode": "USD"},
		},
		"context": suite.contextReq(),
	}

	first := &dto.PostDocumentResponse{DocumentID: documentID, EventID: uuid.NewString(), Status: "POSTED"}
	suite.mockPostingSvc.On("PostDocument", mock.Anything, suite.tenantID, documentID, mock.Anything, suite.actorID).
		Return(first, nil).Once()
	w := suite.request(http.MethodPost, "/api/v1/documents/"+documentID+"/post", body)
	suite.Equal(http.StatusCreated, w.Code)

	replayed := &dto.PostDocumentResponse{DocumentID: documentID, EventID: first.EventID, Status: "POSTED", Replayed: true}
	suite.mockPostingSvc.On("PostDocument", mock.Anything, suite.tenantID, documentID, mock.Anything, suite.actorID).
		Return(replayed, nil).Once()
	w = suite.request(http.MethodPost, "/api/v1/documents/"+documentID+"/post", body)
	suite.Equal(http.StatusOK, w.Code)
}

func (suite *DocumentHandlerTestSuite) TestPostDocument_UnbalancedRejected() {
	documentID := uuid.NewString()
	suite.mockPostingSvc.On("PostDocument", mock.Anything, suite.tenantID, documentID, mock.Anything, suite.actorID).
		Return(nil, fmt.Errorf("%w: debits and credits do not balance", apperrors.ErrValidation)).Once()

	w := suite.request(http.MethodPost, "/api/v1/documents/"+documentID+"/post", gin.H{
		"idempotencyKey": uuid.NewString(),
		"eventType":      "revenue.recognized",
		"lines": []gin.H{
			{"accountID": "a1", "direction": "DEBIT", "amount": "10.00", "currencyCode": "USD"},
			{"accountID": "a2", "direction": "CREDIT", "amount": "9.99", "currencyCode": "USD"},
		},
		"context": suite.contextReq(),
	})

	suite.Equal(http.StatusBadRequest, w.Code)
}

func (suite *DocumentHandlerTestSuite) TestSubmitTransitionRoute() {
	documentID := uuid.NewString()
	doc := &domain.Document{DocumentID: documentID, Status: domain.Submitted}
	suite.mockPostingSvc.On("TransitionDocument", mock.Anything, suite.tenantID, documentID, domain.ActionSubmit, mock.Anything, suite.actorID).
		Return(doc, nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/documents/"+documentID+"/submit", gin.H{
		"context": suite.contextReq(),
	})

	suite.Equal(http.StatusOK, w.Code)
	suite.mockPostingSvc.AssertExpectations(suite.T())
}

func (suite *DocumentHandlerTestSuite) TestOutboxStatsRoute() {
	suite.mockOutboxSvc.On("Stats", mock.Anything, suite.tenantID).
		Return(&domain.OutboxStats{Pending: 2, Delivered: 40}, nil).Once()

	w := suite.request(http.MethodGet, "/api/v1/outbox/stats", nil)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.OutboxStatsResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal(int64(2), resp.Pending)
	suite.Equal(int64(40), resp.Delivered)
}

func (suite *DocumentHandlerTestSuite) TestOutboxRetryFailedRoute() {
	suite.mockOutboxSvc.On("RetryFailedEvents", mock.Anything, suite.tenantID).
		Return(int64(4), nil).Once()

	w := suite.request(http.MethodPost, "/api/v1/outbox/retry-failed", nil)

	suite.Equal(http.StatusOK, w.Code)
	var resp dto.RetryFailedResponse
	suite.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal(int64(4), resp.Reset)
}

// --- Run Test Suite ---
func TestDocumentHandler(t *testing.T) {
	suite.Run(t, new(DocumentHandlerTestSuite))
}
