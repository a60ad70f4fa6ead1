package services

import (
	"log/slog"

	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	portssvc "github.com/atlaserp/ledgercore/internal/core/ports/services"
)

// NewServiceContainer wires all application services on top of the provided
// repositories.
func NewServiceContainer(repos portsrepo.RepositoryProvider, policy PostingPolicy, relayCfg RelayConfig, logger *slog.Logger) *portssvc.ServiceContainer {
	accountSvc := NewAccountService(repos.AccountRepo)
	postingSvc := NewPostingService(repos.DocumentRepo, repos.PostingRepo, accountSvc, policy)
	outboxSvc := NewOutboxRelay(repos.OutboxRepo, relayCfg, logger)

	return &portssvc.ServiceContainer{
		Posting: postingSvc,
		Account: accountSvc,
		Outbox:  outboxSvc,
	}
}
