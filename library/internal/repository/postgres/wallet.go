package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/model"
)

type walletRepo struct {
	*store
}

func (r *walletRepo) GetUser(ctx context.Context, username string) (model.User, error) {
	q, args, err := qb.Select("id", "username", "role", "balance").
		From(usersTableName).
		Where(sq.Eq{"username": username}).
		ToSql()
	if err != nil {
		return model.User{}, err
	}
	var user model.User
	if err := sqlx.GetContext(ctx, r.q, &user, q, args...); err != nil {
		return model.User{}, translate(err)
	}
	return user, nil
}

func (r *walletRepo) Credit(ctx context.Context, username string, amount decimal.Decimal) error {
	q := `
update users set balance = balance + $2
where username = $1`
	res, err := r.q.ExecContext(ctx, q, username, amount)
	if err != nil {
		return err
	}
	return affectedOrNotFound(res)
}

// DebitIfSufficient is a single guarded update: the sufficiency check and the
// decrement happen in one statement, so two concurrent debits cannot both pass
// against a stale balance.
func (r *walletRepo) DebitIfSufficient(ctx context.Context, username string, amount decimal.Decimal) (bool, error) {
	q := `
update users set balance = balance - $2
where username = $1 and balance >= $2`
	res, err := r.q.ExecContext(ctx, q, username, amount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *walletRepo) AppendTxn(ctx context.Context, txn model.Transaction) (model.Transaction, error) {
	q, args, err := qb.Insert(walletTxnsTableName).
		Columns("txn_uid", "username", "type", "amount").
		Values(uuid.New(), txn.Username, txn.Type, txn.Amount).
		Suffix("returning id, txn_uid, username, type, amount, created_at").
		ToSql()
	if err != nil {
		return model.Transaction{}, err
	}
	var res model.Transaction
	if err := sqlx.GetContext(ctx, r.q, &res, q, args...); err != nil {
		r.log.Error("AppendWalletTxn", zap.String("q", q), zap.Any("args", args))
		return model.Transaction{}, translate(err)
	}
	return res, nil
}

func (r *walletRepo) ListTxns(ctx context.Context, username string) ([]model.Transaction, error) {
	q, args, err := qb.Select("id", "txn_uid", "username", "type", "amount", "created_at").
		From(walletTxnsTableName).
		Where(sq.Eq{"username": username}).
		OrderBy("id desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	var txns []model.Transaction
	if err := sqlx.SelectContext(ctx, r.q, &txns, q, args...); err != nil {
		return nil, err
	}
	return txns, nil
}

// Revenue sums absolute values: spend entries are stored negative from the
// user's perspective, raw signed sums would cancel revenue out.
func (r *walletRepo) Revenue(ctx context.Context) (model.RevenueReport, error) {
	q := `
	select coalesce(sum(abs(amount)) filter (where type = 'RENTAL'), 0) as rental,
	       coalesce(sum(abs(amount)) filter (where type = 'FINE_PAYMENT'), 0) as fine_payment,
	       coalesce(sum(abs(amount)) filter (where type in ('RENTAL', 'FINE_PAYMENT')), 0) as total
	from wallet_transactions
`
	var rep model.RevenueReport
	if err := sqlx.GetContext(ctx, r.q, &rep, q); err != nil {
		return model.RevenueReport{}, err
	}
	return rep, nil
}
