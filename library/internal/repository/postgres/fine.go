package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/model"
)

type fineRepo struct {
	*store
}

const fineColumns = `id, loan_id, username, amount, type, paid, paid_at, created_at`

func (r *fineRepo) Create(ctx context.Context, fine model.Fine) (model.Fine, error) {
	q, args, err := qb.Insert(finesTableName).
		Columns("loan_id", "username", "amount", "type").
		Values(fine.LoanID, fine.Username, fine.Amount, fine.Type).
		Suffix("returning " + fineColumns).
		ToSql()
	if err != nil {
		return model.Fine{}, err
	}
	var res model.Fine
	if err := sqlx.GetContext(ctx, r.q, &res, q, args...); err != nil {
		r.log.Error("CreateFine", zap.String("q", q), zap.Any("args", args))
		return model.Fine{}, translate(err)
	}
	return res, nil
}

func (r *fineRepo) Get(ctx context.Context, id int) (model.Fine, error) {
	return r.get(ctx, id, false)
}

func (r *fineRepo) GetForUpdate(ctx context.Context, id int) (model.Fine, error) {
	return r.get(ctx, id, true)
}

func (r *fineRepo) get(ctx context.Context, id int, lock bool) (model.Fine, error) {
	q := qb.Select(fineColumns).
		From(finesTableName).
		Where(sq.Eq{"id": id})
	if lock {
		q = q.Suffix("for update")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.Fine{}, err
	}
	var fine model.Fine
	if err := sqlx.GetContext(ctx, r.q, &fine, query, args...); err != nil {
		return model.Fine{}, translate(err)
	}
	return fine, nil
}

// Update only touches payment settlement fields; fines are never deleted.
func (r *fineRepo) Update(ctx context.Context, fine model.Fine) error {
	q, args, err := qb.Update(finesTableName).
		Set("paid", fine.Paid).
		Set("paid_at", fine.PaidAt).
		Where(sq.Eq{"id": fine.ID}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, q, args...)
	return translate(err)
}

func (r *fineRepo) ListByUser(ctx context.Context, username string) ([]model.Fine, error) {
	q, args, err := qb.Select(fineColumns).
		From(finesTableName).
		Where(sq.Eq{"username": username}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	var fines []model.Fine
	if err := sqlx.SelectContext(ctx, r.q, &fines, q, args...); err != nil {
		return nil, err
	}
	return fines, nil
}

type fineRuleRepo struct {
	*store
}

func (r *fineRuleRepo) GetByRole(ctx context.Context, role string) (model.FineRule, error) {
	q, args, err := qb.Select("role", "grace_period_days", "daily_rate", "max_fine", "lost_processing_fee").
		From(fineRulesTableName).
		Where(sq.Eq{"role": role}).
		ToSql()
	if err != nil {
		return model.FineRule{}, err
	}
	var rule model.FineRule
	if err := sqlx.GetContext(ctx, r.q, &rule, q, args...); err != nil {
		return model.FineRule{}, translate(err)
	}
	return rule, nil
}

func (r *fineRuleRepo) Upsert(ctx context.Context, rule model.FineRule) error {
	q, args, err := qb.Insert(fineRulesTableName).
		Columns("role", "grace_period_days", "daily_rate", "max_fine", "lost_processing_fee").
		Values(rule.Role, rule.GracePeriodDays, rule.DailyRate, rule.MaxFine, rule.LostProcessingFee).
		Suffix(`on conflict (role) do update set
			grace_period_days = excluded.grace_period_days,
			daily_rate = excluded.daily_rate,
			max_fine = excluded.max_fine,
			lost_processing_fee = excluded.lost_processing_fee`).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, q, args...)
	return err
}
