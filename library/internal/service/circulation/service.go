// Package circulation is the librarian-initiated checkout/checkin path that
// bypasses the request workflow, plus loss reporting and fine settlement.
package circulation

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/fineengine"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/repository"
	"github.com/Astemirdum/library-system/library/internal/service/wallet"
)

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
		cfg.LoanDurationDays = 14
	}
	return &Service{
		log:   log,
		store: store,
		cfg:   cfg,
	}
}

// CheckOut issues a copy directly: the live inventory is the stock gate (the
// denormalized copies count is only a cache), the rental price is debited
// when set, and the loan records the exact item it covers.
func (s *Service) CheckOut(ctx context.Context, username string, bookID int, performedBy string) (model.Loan, error) {
	var loan model.Loan
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		book, err := st.Books().Get(ctx, bookID)
		if err != nil {
			return errors.Wrap(err, "book")
		}
		item, err := st.Inventory().ReserveOneAvailable(ctx, bookID)
		if err != nil {
			return err
		}
		if err := st.Inventory().UpdateStatus(ctx, item.ID, model.ItemIssued); err != nil {
			return err
		}
		if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
			ItemID:      item.ID,
			Action:      model.ActionStatusChange,
			FromStatus:  model.ItemAvailable,
			ToStatus:    model.ItemIssued,
			PerformedBy: performedBy,
			Reason:      "direct checkout",
		}); err != nil {
			return err
		}
		if err := st.Books().RecomputeAvailability(ctx, bookID); err != nil {
			return err
		}
		if book.RentalPrice.IsPositive() {
			if _, err := wallet.DebitTx(ctx, st, username, book.RentalPrice, model.TxnRental); err != nil {
				return err
			}
		}
		now := time.Now()
		loan, err = st.Loans().Create(ctx, model.Loan{
			Username:   username,
			BookID:     bookID,
			ItemID:     &item.ID,
			BorrowedAt: now,
			DueDate:    now.AddDate(0, 0, s.cfg.LoanDurationDays),
		})
		return err
	})
	if err != nil {
		return model.Loan{}, err
	}
	return loan, nil
}

// CheckIn marks the loan RETURNED, releases the item and creates an OVERDUE
// fine when the role's rule says so. Returns the fine when one was charged.
func (s *Service) CheckIn(ctx context.Context, loanID int, performedBy string) (model.Loan, *model.Fine, error) {
	var (
		loan model.Loan
		fine *model.Fine
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		loan, err = st.Loans().GetForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Status == model.LoanReturned {
			return errs.ErrAlreadyReturned
		}
		now := time.Now()
		loan.ReturnedAt = &now
		loan.Status = model.LoanReturned
		if err := st.Loans().Update(ctx, loan); err != nil {
			return err
		}
		if loan.ItemID != nil {
			if err := s.releaseItem(ctx, st, *loan.ItemID, loan.BookID, performedBy); err != nil {
				return err
			}
		}
		rule, err := ruleForUser(ctx, st, loan.Username)
		if err != nil {
			return err
		}
		amount := fineengine.OverdueFine(loan.DueDate, now, rule.GracePeriodDays, rule.DailyRate, rule.MaxFine)
		if amount.IsPositive() {
			created, err := st.Fines().Create(ctx, model.Fine{
				LoanID:   loan.ID,
				Username: loan.Username,
				Amount:   amount,
				Type:     model.FineOverdue,
			})
			if err != nil {
				return err
			}
			fine = &created
		}
		return nil
	})
	if err != nil {
		return model.Loan{}, nil, err
	}
	return loan, fine, nil
}

func (s *Service) releaseItem(ctx context.Context, st repository.Store, itemID, bookID int, performedBy string) error {
	if err := st.Inventory().UpdateStatus(ctx, itemID, model.ItemAvailable); err != nil {
		return err
	}
	if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
		ItemID:      itemID,
		Action:      model.ActionStatusChange,
		FromStatus:  model.ItemIssued,
		ToStatus:    model.ItemAvailable,
		PerformedBy: performedBy,
		Reason:      "checkin",
	}); err != nil {
		return err
	}
	return st.Books().RecomputeAvailability(ctx, bookID)
}

// ReportLost closes the loan and flips its copy to LOST. Loans created from
// fulfilled requests or direct checkout carry the exact item; without a link
// the best-effort match is any ISSUED copy of the book.
func (s *Service) ReportLost(ctx context.Context, loanID int, username, performedBy string) (model.Fine, error) {
	var fine model.Fine
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		loan, err := st.Loans().GetForUpdate(ctx, loanID)
		if err != nil {
			return err
		}
		if loan.Username != username {
			return errs.ErrNotFound
		}
		if loan.Status == model.LoanReturned {
			return errs.ErrAlreadyReturned
		}
		now := time.Now()
		loan.ReturnedAt = &now
		loan.Status = model.LoanReturned
		if err := st.Loans().Update(ctx, loan); err != nil {
			return err
		}

		itemID := 0
		if loan.ItemID != nil {
			itemID = *loan.ItemID
		} else if item, err := st.Inventory().FindOneByStatus(ctx, loan.BookID, model.ItemIssued); err == nil {
			itemID = item.ID
		}
		if itemID != 0 {
			if err := st.Inventory().UpdateStatus(ctx, itemID, model.ItemLost); err != nil {
				return err
			}
			if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
				ItemID:      itemID,
				Action:      model.ActionStatusChange,
				FromStatus:  model.ItemIssued,
				ToStatus:    model.ItemLost,
				PerformedBy: performedBy,
				Reason:      "reported lost",
			}); err != nil {
				return err
			}
			if err := st.Books().RecomputeAvailability(ctx, loan.BookID); err != nil {
				return err
			}
		}

		book, err := st.Books().Get(ctx, loan.BookID)
		if err != nil {
			return err
		}
		rule, err := ruleForUser(ctx, st, username)
		if err != nil {
			return err
		}
		fine, err = st.Fines().Create(ctx, model.Fine{
			LoanID:   loan.ID,
			Username: username,
			Amount:   fineengine.LostFee(book.Price, rule.LostProcessingFee),
			Type:     model.FineLost,
		})
		return err
	})
	if err != nil {
		return model.Fine{}, err
	}
	return fine, nil
}

// PayFine settles a fine from the wallet: debit, FINE_PAYMENT entry and the
// paid flag all in one unit.
func (s *Service) PayFine(ctx context.Context, fineID int, username string) (model.Fine, error) {
	var fine model.Fine
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		fine, err = st.Fines().GetForUpdate(ctx, fineID)
		if err != nil {
			return err
		}
		if fine.Username != username {
			return errs.ErrNotFound
		}
		if fine.Paid {
			return errs.ErrAlreadyPaid
		}
		if _, err := wallet.DebitTx(ctx, st, username, fine.Amount, model.TxnFinePayment); err != nil {
			return err
		}
		now := time.Now()
		fine.Paid = true
		fine.PaidAt = &now
		return st.Fines().Update(ctx, fine)
	})
	if err != nil {
		return model.Fine{}, err
	}
	return fine, nil
}

func (s *Service) ActiveLoans(ctx context.Context, username string) ([]model.Loan, error) {
	return s.store.Loans().ListActiveByUser(ctx, username)
}

func (s *Service) ListFines(ctx context.Context, username string) ([]model.Fine, error) {
	return s.store.Fines().ListByUser(ctx, username)
}

func (s *Service) UpsertFineRule(ctx context.Context, in model.UpsertFineRuleRequest) error {
	return s.store.FineRules().Upsert(ctx, model.FineRule{
		Role:              in.Role,
		GracePeriodDays:   in.GracePeriodDays,
		DailyRate:         in.DailyRate,
		MaxFine:           in.MaxFine,
		LostProcessingFee: in.LostProcessingFee,
	})
}

// ruleForUser resolves the fine policy for the user's role, falling back to
// an all-zero rule when none is configured so a missing policy never charges.
func ruleForUser(ctx context.Context, st repository.Store, username string) (model.FineRule, error) {
	user, err := st.Wallets().GetUser(ctx, username)
	if err != nil {
		return model.FineRule{}, errors.Wrap(err, "user")
	}
	rule, err := st.FineRules().GetByRole(ctx, user.Role)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return model.FineRule{Role: user.Role}, nil
		}
		return model.FineRule{}, err
	}
	return rule, nil
}
