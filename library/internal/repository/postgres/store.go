package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/repository"
)

const (
	booksTableName        = `books`
	itemsTableName        = `inventory_items`
	itemTxnsTableName     = `inventory_transactions`
	requestsTableName     = `book_requests`
	loansTableName        = `loans`
	finesTableName        = `fines`
	fineRulesTableName    = `fine_rules`
	usersTableName        = `users`
	walletTxnsTableName   = `wallet_transactions`
	notifyTriggersTable   = `notification_triggers`
)

var qb = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

type store struct {
	db  *sqlx.DB // nil when tx-bound
	q   sqlx.ExtContext
	log *zap.Logger
}

func NewStore(db *sqlx.DB, log *zap.Logger) (*store, error) {
	return &store{
		db:  db,
		q:   db,
		log: log.Named("repo"),
	}, nil
}

var _ repository.Store = (*store)(nil)

func (s *store) Books() repository.BookRepo               { return &bookRepo{s} }
func (s *store) Inventory() repository.InventoryRepo      { return &inventoryRepo{s} }
func (s *store) Requests() repository.RequestRepo         { return &requestRepo{s} }
func (s *store) Loans() repository.LoanRepo               { return &loanRepo{s} }
func (s *store) Fines() repository.FineRepo               { return &fineRepo{s} }
func (s *store) FineRules() repository.FineRuleRepo       { return &fineRuleRepo{s} }
func (s *store) Wallets() repository.WalletRepo           { return &walletRepo{s} }
func (s *store) Notifications() repository.NotificationRepo { return &notificationRepo{s} }

func (s *store) WithinTx(ctx context.Context, fn func(ctx context.Context, s repository.Store) error) error {
	if s.db == nil {
		// already tx-bound, join the surrounding unit
		return fn(ctx, s)
	}
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin tx")
	}
	txStore := &store{q: tx, log: s.log}
	if err := fn(ctx, txStore); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.log.Error("tx rollback", zap.Error(rbErr))
		}
		return err
	}
	return errors.Wrap(tx.Commit(), "commit tx")
}

// translate maps driver errors to the sentinel taxonomy.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return errs.ErrConflict
	}
	return err
}
