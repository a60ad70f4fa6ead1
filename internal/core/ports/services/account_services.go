package services

import (
	"context"

	"github.com/atlaserp/ledgercore/internal/core/domain"
	"github.com/atlaserp/ledgercore/internal/dto"
)

// AccountSvcFacade manages the chart of accounts.
type AccountSvcFacade interface {
	// CreateAccount creates a new account for the tenant.
	CreateAccount(ctx context.Context, tenantID string, req dto.CreateAccountRequest, actorID string) (*domain.Account, error)

	// GetAccountByID retrieves a specific account.
	GetAccountByID(ctx context.Context, tenantID string, accountID string) (*domain.Account, error)

	// GetAccountsByIDs retrieves multiple accounts keyed by ID, as the posting
	// engine needs them for existence/currency/active checks.
	GetAccountsByIDs(ctx context.Context, tenantID string, accountIDs []string) (map[string]domain.Account, error)

	// ListAccounts retrieves all accounts for a tenant.
	ListAccounts(ctx context.Context, tenantID string) ([]domain.Account, error)

	// DeactivateAccount marks an account inactive. Accounts referenced by
	// ledger postings are never deleted, only deactivated.
	DeactivateAccount(ctx context.Context, tenantID string, accountID string, actorID string) error
}
