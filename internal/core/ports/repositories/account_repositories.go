package repositories

import (
	"context"
	"time"

	"github.com/atlaserp/ledgercore/internal/core/domain"
)

// AccountReader defines read operations for chart-of-accounts data.
type AccountReader interface {
	// FindAccountByID retrieves a specific account by tenant and identifier.
	FindAccountByID(ctx context.Context, tenantID string, accountID string) (*domain.Account, error)

	// FindAccountsByIDs retrieves multiple accounts, keyed by account ID.
	// Missing IDs are simply absent from the map.
	FindAccountsByIDs(ctx context.Context, tenantID string, accountIDs []string) (map[string]domain.Account, error)

	// ListAccounts retrieves all accounts for a tenant.
	ListAccounts(ctx context.Context, tenantID string) ([]domain.Account, error)

}

// AccountWriter defines write operations for chart-of-accounts data.
// Accounts are never deleted, only deactivated.
type AccountWriter interface {
	// SaveAccount inserts a new account. A duplicate (tenant, code) pair
	// surfaces as apperrors.ErrDuplicate.
	SaveAccount(ctx context.Context, account domain.Account) error

	// DeactivateAccount marks an account inactive.
	DeactivateAccount(ctx context.Context, tenantID string, accountID string, actorID string, at time.Time) error
}

// AccountRepositoryFacade combines the account repository interfaces.
type AccountRepositoryFacade interface {
	AccountReader
	AccountWriter
}
