package request_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/repository/memstore"
	"github.com/Astemirdum/library-system/library/internal/service/inventory"
	"github.com/Astemirdum/library-system/library/internal/service/request"
)

type fixture struct {
	st  *memstore.Store
	svc *request.Service
	inv *inventory.Service
}

func newFixture(t *testing.T, copies int) (fixture, model.Book) {
	t.Helper()
	st := memstore.New()
	st.SeedUser("alice", "MEMBER", decimal.NewFromInt(100))
	log := zap.NewNop()
	f := fixture{
		st:  st,
		svc: request.NewService(st, request.Config{LoanDurationDays: 14}, log),
		inv: inventory.NewService(st, log),
	}
	ctx := context.Background()
	book, err := f.inv.AddBook(ctx, model.CreateBookRequest{Title: "Dune", ISBN: "978-0441172719"})
	require.NoError(t, err)
	for i := 0; i < copies; i++ {
		_, err := f.inv.AddCopy(ctx, book.ID, model.AddCopyRequest{}, "carol")
		require.NoError(t, err)
	}
	return f, book
}

func TestService_Create(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 1)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.NoError(t, err)
	require.Equal(t, model.RequestPending, req.Status)
	require.NotEmpty(t, req.RequestUid)

	// one open request per user and book
	_, err = f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.ErrorIs(t, err, errs.ErrConflict)

	_, err = f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: 999, Type: model.RequestPickup})
	require.ErrorIs(t, err, errs.ErrNotFound)

	_, err = f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestDelivery})
	require.ErrorIs(t, err, errs.ErrAddressRequired)
}

func TestService_Create_NoCopies(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 0)
	_, err := f.svc.Create(context.Background(), "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.ErrorIs(t, err, errs.ErrNoCopies)
}

func TestService_PickupLifecycle(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 1)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.NoError(t, err)

	// collecting before approval is rejected
	_, err = f.svc.Collect(ctx, req.RequestUid, "carol")
	require.ErrorIs(t, err, errs.ErrInvalidState)

	approved, err := f.svc.Approve(ctx, req.RequestUid, "carol")
	require.NoError(t, err)
	require.Equal(t, model.RequestApproved, approved.Status)
	require.NotNil(t, approved.ItemID)

	item, err := f.st.Inventory().Get(ctx, *approved.ItemID)
	require.NoError(t, err)
	require.Equal(t, model.ItemReserved, item.Status)

	// the only copy is reserved, so a fresh request finds no stock
	_, err = f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.ErrorIs(t, err, errs.ErrNoCopies)

	// approving twice is rejected
	_, err = f.svc.Approve(ctx, req.RequestUid, "carol")
	require.ErrorIs(t, err, errs.ErrInvalidState)

	start := time.Now()
	loan, err := f.svc.Collect(ctx, req.RequestUid, "carol")
	require.NoError(t, err)
	require.Equal(t, "alice", loan.Username)
	require.Equal(t, model.LoanActive, loan.Status)
	require.Equal(t, *approved.ItemID, *loan.ItemID)
	require.WithinDuration(t, start.AddDate(0, 0, 14), loan.DueDate, time.Minute)

	item, err = f.st.Inventory().Get(ctx, *approved.ItemID)
	require.NoError(t, err)
	require.Equal(t, model.ItemIssued, item.Status)

	got, err := f.st.Requests().Get(ctx, req.RequestUid)
	require.NoError(t, err)
	require.Equal(t, model.RequestFulfilled, got.Status)
}

func TestService_Approve_NoCopies(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 1)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.NoError(t, err)

	// stock vanishes between request and approval
	item, err := f.st.Inventory().FindOneByStatus(ctx, book.ID, model.ItemAvailable)
	require.NoError(t, err)
	require.NoError(t, f.st.Inventory().UpdateStatus(ctx, item.ID, model.ItemDamaged))

	_, err = f.svc.Approve(ctx, req.RequestUid, "carol")
	require.ErrorIs(t, err, errs.ErrNoCopies)

	// the failed approval left the request PENDING
	got, err := f.st.Requests().Get(ctx, req.RequestUid)
	require.NoError(t, err)
	require.Equal(t, model.RequestPending, got.Status)
}

func TestService_Reject(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 1)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.NoError(t, err)

	rejected, err := f.svc.Reject(ctx, req.RequestUid, "book is on hold for an event")
	require.NoError(t, err)
	require.Equal(t, model.RequestRejected, rejected.Status)
	require.Equal(t, "book is on hold for an event", rejected.RejectionReason)

	_, err = f.svc.Reject(ctx, req.RequestUid, "again")
	require.ErrorIs(t, err, errs.ErrInvalidState)
	_, err = f.svc.Approve(ctx, req.RequestUid, "carol")
	require.ErrorIs(t, err, errs.ErrInvalidState)
}

func TestService_DeliveryLifecycle(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 1)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", model.PlaceRequestRequest{
		BookID:  book.ID,
		Type:    model.RequestDelivery,
		Address: "42 Baker St",
	})
	require.NoError(t, err)

	// dispatch requires approval first
	_, err = f.svc.Dispatch(ctx, req.RequestUid)
	require.ErrorIs(t, err, errs.ErrInvalidState)

	approved, err := f.svc.Approve(ctx, req.RequestUid, "carol")
	require.NoError(t, err)

	// a DELIVERY request cannot be collected over the counter
	_, err = f.svc.Collect(ctx, req.RequestUid, "carol")
	require.ErrorIs(t, err, errs.ErrInvalidState)

	out, err := f.svc.Dispatch(ctx, req.RequestUid)
	require.NoError(t, err)
	require.Equal(t, model.RequestOutForDelivery, out.Status)

	loan, err := f.svc.ConfirmDelivery(ctx, req.RequestUid, "courier")
	require.NoError(t, err)
	require.Equal(t, model.LoanActive, loan.Status)

	item, err := f.st.Inventory().Get(ctx, *approved.ItemID)
	require.NoError(t, err)
	require.Equal(t, model.ItemIssued, item.Status)
}

func TestService_FailDelivery(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 1)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, "alice", model.PlaceRequestRequest{
		BookID:  book.ID,
		Type:    model.RequestDelivery,
		Address: "42 Baker St",
	})
	require.NoError(t, err)
	approved, err := f.svc.Approve(ctx, req.RequestUid, "carol")
	require.NoError(t, err)
	_, err = f.svc.Dispatch(ctx, req.RequestUid)
	require.NoError(t, err)

	failed, err := f.svc.FailDelivery(ctx, req.RequestUid, "nobody home", "courier")
	require.NoError(t, err)
	require.Equal(t, model.RequestDeliveryFailed, failed.Status)
	require.Equal(t, "nobody home", failed.RejectionReason)

	// the reservation is released, the copy can serve the next request
	item, err := f.st.Inventory().Get(ctx, *approved.ItemID)
	require.NoError(t, err)
	require.Equal(t, model.ItemAvailable, item.Status)

	available, err := f.st.Books().AvailableCount(ctx, book.ID)
	require.NoError(t, err)
	require.Equal(t, 1, available)
}

func TestService_ListByUser(t *testing.T) {
	t.Parallel()
	f, book := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, "alice", model.PlaceRequestRequest{BookID: book.ID, Type: model.RequestPickup})
	require.NoError(t, err)

	reqs, err := f.svc.ListByUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, reqs, 1)

	reqs, err = f.svc.ListByUser(ctx, "bob")
	require.NoError(t, err)
	require.Empty(t, reqs)
}
