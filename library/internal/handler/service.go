package handler

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/service/circulation"
	"github.com/Astemirdum/library-system/library/internal/service/inventory"
	"github.com/Astemirdum/library-system/library/internal/service/request"
	"github.com/Astemirdum/library-system/library/internal/service/wallet"
)

//go:generate go run github.com/golang/mock/mockgen -source=service.go -destination=mocks/mock.go

type InventoryService interface {
	AddBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error)
	GetBook(ctx context.Context, id int) (model.Book, error)
	ListBooks(ctx context.Context, page, size int) (model.ListBooks, error)
	AddCopy(ctx context.Context, bookID int, req model.AddCopyRequest, performedBy string) (model.InventoryItem, error)
	SetStatus(ctx context.Context, itemID int, newStatus model.InventoryStatus, reason, performedBy string) (model.InventoryItem, error)
	CheckAvailability(ctx context.Context, bookID int) (model.Book, error)
	ItemHistory(ctx context.Context, itemID int) ([]model.InventoryTransaction, error)
}

var _ InventoryService = (*inventory.Service)(nil)

type RequestService interface {
	Create(ctx context.Context, username string, in model.PlaceRequestRequest) (model.BookRequest, error)
	Approve(ctx context.Context, requestUid, performedBy string) (model.BookRequest, error)
	Reject(ctx context.Context, requestUid, reason string) (model.BookRequest, error)
	Dispatch(ctx context.Context, requestUid string) (model.BookRequest, error)
	Collect(ctx context.Context, requestUid, performedBy string) (model.Loan, error)
	ConfirmDelivery(ctx context.Context, requestUid, performedBy string) (model.Loan, error)
	FailDelivery(ctx context.Context, requestUid, reason, performedBy string) (model.BookRequest, error)
	ListByUser(ctx context.Context, username string) ([]model.BookRequest, error)
}

var _ RequestService = (*request.Service)(nil)

type CirculationService interface {
	CheckOut(ctx context.Context, username string, bookID int, performedBy string) (model.Loan, error)
	CheckIn(ctx context.Context, loanID int, performedBy string) (model.Loan, *model.Fine, error)
	ReportLost(ctx context.Context, loanID int, username, performedBy string) (model.Fine, error)
	PayFine(ctx context.Context, fineID int, username string) (model.Fine, error)
	ActiveLoans(ctx context.Context, username string) ([]model.Loan, error)
	ListFines(ctx context.Context, username string) ([]model.Fine, error)
	UpsertFineRule(ctx context.Context, in model.UpsertFineRuleRequest) error
}

var _ CirculationService = (*circulation.Service)(nil)

type WalletService interface {
	Balance(ctx context.Context, username string) (decimal.Decimal, error)
	AddFunds(ctx context.Context, username string, amount decimal.Decimal) (model.Transaction, error)
	History(ctx context.Context, username string) ([]model.Transaction, error)
	Revenue(ctx context.Context) (model.RevenueReport, error)
}

var _ WalletService = (*wallet.Service)(nil)
