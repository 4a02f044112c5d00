package wallet

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/repository"
)

type Service struct {
	log   *zap.Logger
	store repository.Store
}

func NewService(store repository.Store, log *zap.Logger) *Service {
	return &Service{
		log:   log,
		store: store,
	}
}

func (s *Service) Balance(ctx context.Context, username string) (decimal.Decimal, error) {
	user, err := s.store.Wallets().GetUser(ctx, username)
	if err != nil {
		return decimal.Zero, err
	}
	return user.Balance, nil
}

// AddFunds credits the wallet and records a DEPOSIT entry in one unit.
func (s *Service) AddFunds(ctx context.Context, username string, amount decimal.Decimal) (model.Transaction, error) {
	if !amount.IsPositive() {
		return model.Transaction{}, errs.ErrInvalidAmount
	}
	var txn model.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		if err := st.Wallets().Credit(ctx, username, amount); err != nil {
			return err
		}
		var err error
		txn, err = st.Wallets().AppendTxn(ctx, model.Transaction{
			Username: username,
			Type:     model.TxnDeposit,
			Amount:   amount,
		})
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return txn, nil
}

// Debit spends from the wallet and records the entry in one unit.
func (s *Service) Debit(ctx context.Context, username string, amount decimal.Decimal, txnType model.TxnType) (model.Transaction, error) {
	var txn model.Transaction
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		txn, err = DebitTx(ctx, st, username, amount, txnType)
		return err
	})
	if err != nil {
		return model.Transaction{}, err
	}
	return txn, nil
}

// DebitTx runs the debit inside the caller's transaction so checkout and fine
// settlement can combine it with their own writes. The entry is recorded with
// a negative amount, the user-perspective sign convention. The sufficiency
// check and the decrement ride the same guarded update.
func DebitTx(ctx context.Context, st repository.Store, username string, amount decimal.Decimal, txnType model.TxnType) (model.Transaction, error) {
	if amount.IsNegative() {
		return model.Transaction{}, errs.ErrInvalidAmount
	}
	ok, err := st.Wallets().DebitIfSufficient(ctx, username, amount)
	if err != nil {
		return model.Transaction{}, err
	}
	if !ok {
		return model.Transaction{}, errs.ErrInsufficientFunds
	}
	return st.Wallets().AppendTxn(ctx, model.Transaction{
		Username: username,
		Type:     txnType,
		Amount:   amount.Neg(),
	})
}

func (s *Service) History(ctx context.Context, username string) ([]model.Transaction, error) {
	if _, err := s.store.Wallets().GetUser(ctx, username); err != nil {
		return nil, err
	}
	return s.store.Wallets().ListTxns(ctx, username)
}

func (s *Service) Revenue(ctx context.Context) (model.RevenueReport, error) {
	return s.store.Wallets().Revenue(ctx)
}
