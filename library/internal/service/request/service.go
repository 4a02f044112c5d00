// Package request implements the fulfillment workflow for member book
// requests:
//
//	PENDING -> APPROVED -> OUT_FOR_DELIVERY -> FULFILLED
//	        \-> REJECTED              \-> DELIVERY_FAILED
//
// PICKUP requests go APPROVED -> FULFILLED directly via Collect. Every
// transition runs as one transactional unit covering the request row, the
// inventory flip and, on fulfillment, the loan row.
package request

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/repository"
)

const DefaultLoanDurationDays = 14

type Config struct {
	LoanDurationDays int `envconfig:"LOAN_DURATION_DAYS" default:"14"`
}

type Service struct {
	log   *zap.Logger
	store repository.Store
	cfg   Config
}

func NewService(store repository.Store, cfg Config, log *zap.Logger) *Service {
	if cfg.LoanDurationDays <= 0 {
		cfg.LoanDurationDays = DefaultLoanDurationDays
	}
	return &Service{
		log:   log,
		store: store,
		cfg:   cfg,
	}
}

// Create persists a PENDING request. Stock is only checked, not reserved:
// reservation happens at approval time.
func (s *Service) Create(ctx context.Context, username string, in model.PlaceRequestRequest) (model.BookRequest, error) {
	if in.Type == model.RequestDelivery && in.Address == "" {
		return model.BookRequest{}, errs.ErrAddressRequired
	}
	var req model.BookRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		if _, err := st.Books().Get(ctx, in.BookID); err != nil {
			return errors.Wrap(err, "book")
		}
		available, err := st.Books().AvailableCount(ctx, in.BookID)
		if err != nil {
			return err
		}
		if available == 0 {
			return errs.ErrNoCopies
		}
		req, err = st.Requests().Create(ctx, model.BookRequest{
			Username: username,
			BookID:   in.BookID,
			Type:     in.Type,
			Address:  in.Address,
		})
		return err
	})
	if err != nil {
		return model.BookRequest{}, err
	}
	return req, nil
}

// Approve reserves one available copy and links it to the request. Stock may
// have run out since the request was created; that surfaces as ErrNoCopies.
func (s *Service) Approve(ctx context.Context, requestUid, performedBy string) (model.BookRequest, error) {
	var req model.BookRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		req, err = st.Requests().GetForUpdate(ctx, requestUid)
		if err != nil {
			return err
		}
		if req.Status != model.RequestPending {
			return errs.ErrInvalidState
		}
		item, err := st.Inventory().ReserveOneAvailable(ctx, req.BookID)
		if err != nil {
			return err
		}
		if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
			ItemID:      item.ID,
			Action:      model.ActionStatusChange,
			FromStatus:  model.ItemAvailable,
			ToStatus:    model.ItemReserved,
			PerformedBy: performedBy,
			Reason:      "request approved",
		}); err != nil {
			return err
		}
		if err := st.Books().RecomputeAvailability(ctx, req.BookID); err != nil {
			return err
		}
		req.ItemID = &item.ID
		req.Status = model.RequestApproved
		return st.Requests().Update(ctx, req)
	})
	if err != nil {
		return model.BookRequest{}, err
	}
	return req, nil
}

// Reject closes a PENDING request. No inventory was reserved yet, so only the
// request row changes.
func (s *Service) Reject(ctx context.Context, requestUid, reason string) (model.BookRequest, error) {
	var req model.BookRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		req, err = st.Requests().GetForUpdate(ctx, requestUid)
		if err != nil {
			return err
		}
		if req.Status != model.RequestPending {
			return errs.ErrInvalidState
		}
		req.Status = model.RequestRejected
		req.RejectionReason = reason
		return st.Requests().Update(ctx, req)
	})
	if err != nil {
		return model.BookRequest{}, err
	}
	return req, nil
}

func (s *Service) Dispatch(ctx context.Context, requestUid string) (model.BookRequest, error) {
	var req model.BookRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		req, err = st.Requests().GetForUpdate(ctx, requestUid)
		if err != nil {
			return err
		}
		if req.Status != model.RequestApproved || req.Type != model.RequestDelivery {
			return errs.ErrInvalidState
		}
		req.Status = model.RequestOutForDelivery
		return st.Requests().Update(ctx, req)
	})
	if err != nil {
		return model.BookRequest{}, err
	}
	return req, nil
}

// Collect hands a PICKUP request over the counter: loan created, item ISSUED,
// request FULFILLED. The due-date clock starts now, not at approval.
func (s *Service) Collect(ctx context.Context, requestUid, performedBy string) (model.Loan, error) {
	return s.fulfill(ctx, requestUid, performedBy, model.RequestApproved, model.RequestPickup)
}

// ConfirmDelivery is the DELIVERY counterpart of Collect; the clock starts at
// delivery confirmation, not at dispatch.
func (s *Service) ConfirmDelivery(ctx context.Context, requestUid, performedBy string) (model.Loan, error) {
	return s.fulfill(ctx, requestUid, performedBy, model.RequestOutForDelivery, model.RequestDelivery)
}

func (s *Service) fulfill(ctx context.Context, requestUid, performedBy string, wantStatus model.RequestStatus, wantType model.RequestType) (model.Loan, error) {
	var loan model.Loan
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		req, err := st.Requests().GetForUpdate(ctx, requestUid)
		if err != nil {
			return err
		}
		if req.Status != wantStatus || req.Type != wantType || req.ItemID == nil {
			return errs.ErrInvalidState
		}
		now := time.Now()
		loan, err = st.Loans().Create(ctx, model.Loan{
			Username:   req.Username,
			BookID:     req.BookID,
			ItemID:     req.ItemID,
			BorrowedAt: now,
			DueDate:    now.AddDate(0, 0, s.cfg.LoanDurationDays),
		})
		if err != nil {
			return err
		}
		if err := st.Inventory().UpdateStatus(ctx, *req.ItemID, model.ItemIssued); err != nil {
			return err
		}
		if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
			ItemID:      *req.ItemID,
			Action:      model.ActionStatusChange,
			FromStatus:  model.ItemReserved,
			ToStatus:    model.ItemIssued,
			PerformedBy: performedBy,
			Reason:      "request fulfilled",
		}); err != nil {
			return err
		}
		if err := st.Books().RecomputeAvailability(ctx, req.BookID); err != nil {
			return err
		}
		req.Status = model.RequestFulfilled
		return st.Requests().Update(ctx, req)
	})
	if err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

// FailDelivery marks the request DELIVERY_FAILED and releases the reserved
// item back to AVAILABLE so it is not stranded.
func (s *Service) FailDelivery(ctx context.Context, requestUid, reason, performedBy string) (model.BookRequest, error) {
	var req model.BookRequest
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		req, err = st.Requests().GetForUpdate(ctx, requestUid)
		if err != nil {
			return err
		}
		if req.Status != model.RequestOutForDelivery {
			return errs.ErrInvalidState
		}
		if req.ItemID != nil {
			if err := st.Inventory().UpdateStatus(ctx, *req.ItemID, model.ItemAvailable); err != nil {
				return err
			}
			if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
				ItemID:      *req.ItemID,
				Action:      model.ActionStatusChange,
				FromStatus:  model.ItemReserved,
				ToStatus:    model.ItemAvailable,
				PerformedBy: performedBy,
				Reason:      "delivery failed, reservation released",
			}); err != nil {
				return err
			}
			if err := st.Books().RecomputeAvailability(ctx, req.BookID); err != nil {
				return err
			}
		}
		req.Status = model.RequestDeliveryFailed
		req.RejectionReason = reason
		return st.Requests().Update(ctx, req)
	})
	if err != nil {
		return model.BookRequest{}, err
	}
	return req, nil
}

func (s *Service) ListByUser(ctx context.Context, username string) ([]model.BookRequest, error) {
	return s.store.Requests().ListByUser(ctx, username)
}
