package domain

// AccountType defines the fundamental accounting type of an account.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Revenue   AccountType = "REVENUE"
	Expense   AccountType = "EXPENSE"
)

// Account is a chart-of-accounts node. Accounts are tenant-scoped, read-mostly
// rows; once referenced by a ledger posting an account is never deleted, only
// deactivated.
type Account struct {
	AccountID    string      `json:"accountID"` // Primary Key (UUID)
	TenantID     string      `json:"tenantID"`  // Partition key (Not Null)
	Code         string      `json:"code"`      // Unique per tenant
	Name         string      `json:"name"`
	AccountType  AccountType `json:"accountType"`
	CurrencyCode string      `json:"currencyCode"`
	Description  string      `json:"description"`
	IsActive     bool        `json:"isActive"`
	AuditFields
}
