package postgres

import (
	"context"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/model"
)

type loanRepo struct {
	*store
}

const loanColumns = `id, username, book_id, item_id, borrowed_at, due_date, returned_at, status`

func (r *loanRepo) Create(ctx context.Context, loan model.Loan) (model.Loan, error) {
	q, args, err := qb.Insert(loansTableName).
		Columns("username", "book_id", "item_id", "borrowed_at", "due_date", "status").
		Values(loan.Username, loan.BookID, loan.ItemID, loan.BorrowedAt, loan.DueDate, model.LoanActive).
		Suffix("returning " + loanColumns).
		ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	var res model.Loan
	if err := sqlx.GetContext(ctx, r.q, &res, q, args...); err != nil {
		r.log.Error("CreateLoan", zap.String("q", q), zap.Any("args", args))
		return model.Loan{}, translate(err)
	}
	return res, nil
}

func (r *loanRepo) Get(ctx context.Context, id int) (model.Loan, error) {
	return r.get(ctx, id, false)
}

func (r *loanRepo) GetForUpdate(ctx context.Context, id int) (model.Loan, error) {
	return r.get(ctx, id, true)
}

func (r *loanRepo) get(ctx context.Context, id int, lock bool) (model.Loan, error) {
	q := qb.Select(loanColumns).
		From(loansTableName).
		Where(sq.Eq{"id": id})
	if lock {
		q = q.Suffix("for update")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Loan{}, err
	}
	var loan model.Loan
	if err := sqlx.GetContext(ctx, r.q, &loan, query, args...); err != nil {
		return model.Loan{}, translate(err)
	}
	return loan, nil
}

func (r *loanRepo) Update(ctx context.Context, loan model.Loan) error {
	q, args, err := qb.Update(loansTableName).
		Set("returned_at", loan.ReturnedAt).
		Set("status", loan.Status).
		Where(sq.Eq{"id": loan.ID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, q, args...)
	return translate(err)
}

func (r *loanRepo) ListActiveByUser(ctx context.Context, username string) ([]model.Loan, error) {
	q, args, err := qb.Select(loanColumns).
		From(loansTableName).
		Where(sq.Eq{"username": username, "status": model.LoanActive}).
		OrderBy("due_date").
		ToSql()
	if err != nil {
		return nil, err
	}
	var loans []model.Loan
	if err := sqlx.SelectContext(ctx, r.q, &loans, q, args...); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *loanRepo) ListActiveDueBefore(ctx context.Context, t time.Time) ([]model.Loan, error) {
	q, args, err := qb.Select(loanColumns).
		From(loansTableName).
		Where(sq.Eq{"status": model.LoanActive}).
		Where(sq.Lt{"due_date": t}).
		OrderBy("due_date").
		ToSql()
	if err != nil {
		return nil, err
	}
	var loans []model.Loan
	if err := sqlx.SelectContext(ctx, r.q, &loans, q, args...); err != nil {
		return nil, err
	}
	return loans, nil
}
