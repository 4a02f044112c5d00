package circulation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/repository/memstore"
	"github.com/Astemirdum/library-system/library/internal/service/circulation"
	"github.com/Astemirdum/library-system/library/internal/service/inventory"
)

type fixture struct {
	st  *memstore.Store
	svc *circulation.Service
	inv *inventory.Service
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	st := memstore.New()
	log := zap.NewNop()
	return fixture{
		st:  st,
		svc: circulation.NewService(st, circulation.Config{LoanDurationDays: 14}, log),
		inv: inventory.NewService(st, log),
	}
}

func (f fixture) addBook(t *testing.T, price, rentalPrice int64, copies int) model.Book {
	t.Helper()
	ctx := context.Background()
	book, err := f.inv.AddBook(ctx, model.CreateBookRequest{
		Title:       "Neuromancer",
		ISBN:        "978-0441569595",
		Price:       decimal.NewFromInt(price),
		RentalPrice: decimal.NewFromInt(rentalPrice),
	})
	require.NoError(t, err)
	for i := 0; i < copies; i++ {
		_, err := f.inv.AddCopy(ctx, book.ID, model.AddCopyRequest{}, "carol")
		require.NoError(t, err)
	}
	return book
}

func (f fixture) seedRule(t *testing.T, grace int, rate int64, maxFine *decimal.Decimal, lostFee int64) {
	t.Helper()
	require.NoError(t, f.svc.UpsertFineRule(context.Background(), model.UpsertFineRuleRequest{
		Role:              "MEMBER",
		GracePeriodDays:   grace,
		DailyRate:         decimal.NewFromInt(rate),
		MaxFine:           maxFine,
		LostProcessingFee: decimal.NewFromInt(lostFee),
	}))
}

func TestService_CheckOut(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(10))
	book := f.addBook(t, 20, 3, 1)
	ctx := context.Background()

	start := time.Now()
	loan, err := f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.NoError(t, err)
	require.Equal(t, "bob", loan.Username)
	require.NotNil(t, loan.ItemID)
	require.WithinDuration(t, start.AddDate(0, 0, 14), loan.DueDate, time.Minute)

	// rental price was debited
	user, err := f.st.Wallets().GetUser(ctx, "bob")
	require.NoError(t, err)
	require.True(t, user.Balance.Equal(decimal.NewFromInt(7)))

	item, err := f.st.Inventory().Get(ctx, *loan.ItemID)
	require.NoError(t, err)
	require.Equal(t, model.ItemIssued, item.Status)

	// the only copy is out
	_, err = f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.ErrorIs(t, err, errs.ErrNoCopies)
}

func TestService_CheckOut_InsufficientFunds(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(1))
	book := f.addBook(t, 20, 3, 1)
	ctx := context.Background()

	_, err := f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	// the failed unit left no partial writes: copy still available, no loan
	available, err := f.st.Books().AvailableCount(ctx, book.ID)
	require.NoError(t, err)
	require.Equal(t, 1, available)
	loans, err := f.svc.ActiveLoans(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, loans)
	user, err := f.st.Wallets().GetUser(ctx, "bob")
	require.NoError(t, err)
	require.True(t, user.Balance.Equal(decimal.NewFromInt(1)))
}

func username(i int) string {
	return fmt.Sprintf("member-%d", i)
}

func TestService_CheckOut_Concurrent(t *testing.T) {
	t.Parallel()
	const (
		copies  = 3
		callers = 10
	)
	f := newFixture(t)
	book := f.addBook(t, 20, 0, copies)
	for i := 0; i < callers; i++ {
		f.st.SeedUser(username(i), "MEMBER", decimal.NewFromInt(100))
	}
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		issued   int
		noCopies int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.CheckOut(ctx, username(i), book.ID, "carol")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				issued++
			case errors.Is(err, errs.ErrNoCopies):
				noCopies++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	require.Equal(t, copies, issued, "each copy issued exactly once")
	require.Equal(t, callers-copies, noCopies)

	available, err := f.st.Books().AvailableCount(ctx, book.ID)
	require.NoError(t, err)
	require.Equal(t, 0, available)
}

func TestService_CheckIn(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(100))
	f.seedRule(t, 3, 2, nil, 10)
	book := f.addBook(t, 20, 0, 1)
	ctx := context.Background()

	loan, err := f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.NoError(t, err)

	returned, fine, err := f.svc.CheckIn(ctx, loan.ID, "carol")
	require.NoError(t, err)
	require.Equal(t, model.LoanReturned, returned.Status)
	require.NotNil(t, returned.ReturnedAt)
	require.Nil(t, fine, "on-time return charges nothing")

	// the copy is back in rotation
	available, err := f.st.Books().AvailableCount(ctx, book.ID)
	require.NoError(t, err)
	require.Equal(t, 1, available)

	_, _, err = f.svc.CheckIn(ctx, loan.ID, "carol")
	require.ErrorIs(t, err, errs.ErrAlreadyReturned)

	_, _, err = f.svc.CheckIn(ctx, 999, "carol")
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_CheckIn_OverdueFine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(100))
	f.seedRule(t, 3, 2, nil, 10)
	book := f.addBook(t, 20, 0, 1)
	ctx := context.Background()

	loan, err := f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.NoError(t, err)

	// backdate the due date so the return is five days late
	loan.DueDate = time.Now().Add(-119 * time.Hour)
	require.NoError(t, f.st.Loans().Update(ctx, loan))

	_, fine, err := f.svc.CheckIn(ctx, loan.ID, "carol")
	require.NoError(t, err)
	require.NotNil(t, fine)
	require.Equal(t, model.FineOverdue, fine.Type)
	// 5 days late, 3 days grace, 2 per day
	require.True(t, fine.Amount.Equal(decimal.NewFromInt(4)), fine.Amount.String())
	require.False(t, fine.Paid)
}

func TestService_CheckIn_NoRuleNoFine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(100))
	book := f.addBook(t, 20, 0, 1)
	ctx := context.Background()

	loan, err := f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.NoError(t, err)
	loan.DueDate = time.Now().AddDate(0, 0, -30)
	require.NoError(t, f.st.Loans().Update(ctx, loan))

	_, fine, err := f.svc.CheckIn(ctx, loan.ID, "carol")
	require.NoError(t, err)
	require.Nil(t, fine, "no configured rule means no fine")
}

func TestService_ReportLost(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(100))
	f.seedRule(t, 3, 2, nil, 10)
	book := f.addBook(t, 20, 0, 1)
	ctx := context.Background()

	loan, err := f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.NoError(t, err)

	// someone else's loan reads as missing
	_, err = f.svc.ReportLost(ctx, loan.ID, "mallory", "mallory")
	require.ErrorIs(t, err, errs.ErrNotFound)

	fine, err := f.svc.ReportLost(ctx, loan.ID, "bob", "bob")
	require.NoError(t, err)
	require.Equal(t, model.FineLost, fine.Type)
	// replacement price 20 plus processing fee 10
	require.True(t, fine.Amount.Equal(decimal.NewFromInt(30)), fine.Amount.String())

	item, err := f.st.Inventory().Get(ctx, *loan.ItemID)
	require.NoError(t, err)
	require.Equal(t, model.ItemLost, item.Status)

	// a lost copy never counts as stock
	got, err := f.inv.GetBook(ctx, book.ID)
	require.NoError(t, err)
	require.Equal(t, 0, got.Copies)
	require.False(t, got.IsAvailable)

	_, err = f.svc.ReportLost(ctx, loan.ID, "bob", "bob")
	require.ErrorIs(t, err, errs.ErrAlreadyReturned)
}

func TestService_PayFine(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(25))
	f.seedRule(t, 3, 2, nil, 10)
	book := f.addBook(t, 20, 0, 1)
	ctx := context.Background()

	loan, err := f.svc.CheckOut(ctx, "bob", book.ID, "carol")
	require.NoError(t, err)
	fine, err := f.svc.ReportLost(ctx, loan.ID, "bob", "bob")
	require.NoError(t, err)

	// 30 owed, 25 on hand
	_, err = f.svc.PayFine(ctx, fine.ID, "bob")
	require.ErrorIs(t, err, errs.ErrInsufficientFunds)

	f.st.SeedUser("bob", "MEMBER", decimal.NewFromInt(30))
	paid, err := f.svc.PayFine(ctx, fine.ID, "bob")
	require.NoError(t, err)
	require.True(t, paid.Paid)
	require.NotNil(t, paid.PaidAt)

	user, err := f.st.Wallets().GetUser(ctx, "bob")
	require.NoError(t, err)
	require.True(t, user.Balance.IsZero())

	_, err = f.svc.PayFine(ctx, fine.ID, "bob")
	require.ErrorIs(t, err, errs.ErrAlreadyPaid)

	_, err = f.svc.PayFine(ctx, fine.ID, "mallory")
	require.ErrorIs(t, err, errs.ErrNotFound)
}
