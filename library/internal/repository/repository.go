// Package repository defines narrow per-entity repositories behind a
// transactional Store so the state-machine and fine logic can run
// against postgres in production and an in-memory fake in tests.
package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Astemirdum/library-system/library/internal/model"
)

type Store interface {
	Books() BookRepo
	Inventory() InventoryRepo
	Requests() RequestRepo
	Loans() LoanRepo
	Fines() FineRepo
	FineRules() FineRuleRepo
	Wallets() WalletRepo
	Notifications() NotificationRepo

	// WithinTx runs fn against a transaction-bound Store. An error from fn
	// rolls the whole unit back, leaving no partial writes.
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Store) error) error
}

type BookRepo interface {
	Create(ctx context.Context, book model.Book) (model.Book, error)
	Get(ctx context.Context, id int) (model.Book, error)
	List(ctx context.Context, page, size int) (model.ListBooks, error)
	// AvailableCount is the live count of AVAILABLE inventory items,
	// the source of truth for stock gates.
	AvailableCount(ctx context.Context, bookID int) (int, error)
	// RecomputeAvailability refreshes the derived copies/is_available
	// caches from live inventory state.
	RecomputeAvailability(ctx context.Context, bookID int) error
}

type InventoryRepo interface {
	Add(ctx context.Context, item model.InventoryItem) (model.InventoryItem, error)
	Get(ctx context.Context, id int) (model.InventoryItem, error)
	// ReserveOneAvailable atomically flips exactly one AVAILABLE item of the
	// book to RESERVED. Returns errs.ErrNoCopies when the stock is exhausted
	// and errs.ErrConflict when the caller lost a race for the last items.
	ReserveOneAvailable(ctx context.Context, bookID int) (model.InventoryItem, error)
	UpdateStatus(ctx context.Context, itemID int, status model.InventoryStatus) error
	FindOneByStatus(ctx context.Context, bookID int, status model.InventoryStatus) (model.InventoryItem, error)
	AppendTxn(ctx context.Context, txn model.InventoryTransaction) error
	ListTxns(ctx context.Context, itemID int) ([]model.InventoryTransaction, error)
}

type RequestRepo interface {
	Create(ctx context.Context, req model.BookRequest) (model.BookRequest, error)
	Get(ctx context.Context, requestUid string) (model.BookRequest, error)
	// GetForUpdate locks the row for the duration of the surrounding tx.
	GetForUpdate(ctx context.Context, requestUid string) (model.BookRequest, error)
	Update(ctx context.Context, req model.BookRequest) error
	ListByUser(ctx context.Context, username string) ([]model.BookRequest, error)
}

type LoanRepo interface {
	Create(ctx context.Context, loan model.Loan) (model.Loan, error)
	Get(ctx context.Context, id int) (model.Loan, error)
	GetForUpdate(ctx context.Context, id int) (model.Loan, error)
	Update(ctx context.Context, loan model.Loan) error
	ListActiveByUser(ctx context.Context, username string) ([]model.Loan, error)
	// ListActiveDueBefore returns ACTIVE loans with due_date before t.
	ListActiveDueBefore(ctx context.Context, t time.Time) ([]model.Loan, error)
}

type FineRepo interface {
	Create(ctx context.Context, fine model.Fine) (model.Fine, error)
	Get(ctx context.Context, id int) (model.Fine, error)
	GetForUpdate(ctx context.Context, id int) (model.Fine, error)
	Update(ctx context.Context, fine model.Fine) error
	ListByUser(ctx context.Context, username string) ([]model.Fine, error)
}

type FineRuleRepo interface {
	GetByRole(ctx context.Context, role string) (model.FineRule, error)
	Upsert(ctx context.Context, rule model.FineRule) error
}

type WalletRepo interface {
	GetUser(ctx context.Context, username string) (model.User, error)
	Credit(ctx context.Context, username string, amount decimal.Decimal) error
	// DebitIfSufficient decrements the balance only when it covers amount,
	// as a single guarded update. False means insufficient funds.
	DebitIfSufficient(ctx context.Context, username string, amount decimal.Decimal) (bool, error)
	AppendTxn(ctx context.Context, txn model.Transaction) (model.Transaction, error)
	ListTxns(ctx context.Context, username string) ([]model.Transaction, error)
	// Revenue sums absolute values of RENTAL and FINE_PAYMENT entries.
	Revenue(ctx context.Context) (model.RevenueReport, error)
}

type NotificationRepo interface {
	// InsertTrigger records (loanID, trigger) once; false means the trigger
	// was already recorded by an earlier scan.
	InsertTrigger(ctx context.Context, loanID int, trigger model.NotificationTrigger) (bool, error)
}
