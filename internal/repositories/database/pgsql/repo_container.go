package pgsql

import (
	portsrepo "github.com/atlaserp/ledgercore/internal/core/ports/repositories"
	"github.com/jackc/pgx/v5/pgxpool"
)

func NewRepositoryProvider(dbPool *pgxpool.Pool) portsrepo.RepositoryProvider {
	documentRepo := newPgxDocumentRepository(dbPool)
	postingRepo := newPgxPostingRepository(dbPool)
	accountRepo := newPgxAccountRepository(dbPool)
	outboxRepo := newPgxOutboxRepository(dbPool)

	return portsrepo.RepositoryProvider{
		DocumentRepo: documentRepo,
		PostingRepo:  postingRepo,
		AccountRepo:  accountRepo,
		OutboxRepo:   outboxRepo,
	}
}
