package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/model"
)

type requestRepo struct {
	*store
}

const requestColumns = `id, request_uid, username, book_id, item_id, type, status, address, rejection_reason, created_at, updated_at`

// Create relies on the partial unique index over (username, book_id) where
// status = 'PENDING'; a second outstanding request surfaces as ErrConflict.
func (r *requestRepo) Create(ctx context.Context, req model.BookRequest) (model.BookRequest, error) {
	q, args, err := qb.Insert(requestsTableName).
		Columns("request_uid", "username", "book_id", "type", "status", "address").
		Values(uuid.New(), req.Username, req.BookID, req.Type, model.RequestPending, req.Address).
		Suffix("returning " + requestColumns).
		ToSql()
	if err != nil {
		return model.BookRequest{}, err
	}
	var res model.BookRequest
	if err := sqlx.GetContext(ctx, r.q, &res, q, args...); err != nil {
		r.log.Error("CreateRequest", zap.String("q", q), zap.Any("args", args))
		return model.BookRequest{}, translate(err)
	}
	return res, nil
}

func (r *requestRepo) Get(ctx context.Context, requestUid string) (model.BookRequest, error) {
	return r.get(ctx, requestUid, false)
}

func (r *requestRepo) GetForUpdate(ctx context.Context, requestUid string) (model.BookRequest, error) {
	return r.get(ctx, requestUid, true)
}

func (r *requestRepo) get(ctx context.Context, requestUid string, lock bool) (model.BookRequest, error) {
	q := qb.Select(requestColumns).
		From(requestsTableName).
		Where(sq.Eq{"request_uid": requestUid})
	if lock {
		q = q.Suffix("for update")
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.BookRequest{}, err
	}
	var req model.BookRequest
	if err := sqlx.GetContext(ctx, r.q, &req, query, args...); err != nil {
		return model.BookRequest{}, translate(err)
	}
	return req, nil
}

func (r *requestRepo) Update(ctx context.Context, req model.BookRequest) error {
	q, args, err := qb.Update(requestsTableName).
		Set("item_id", req.ItemID).
		Set("status", req.Status).
		Set("rejection_reason", req.RejectionReason).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"request_uid": req.RequestUid}).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, q, args...)
	return translate(err)
}

func (r *requestRepo) ListByUser(ctx context.Context, username string) ([]model.BookRequest, error) {
	q, args, err := qb.Select(requestColumns).
		From(requestsTableName).
		Where(sq.Eq{"username": username}).
		OrderBy("created_at desc").
		ToSql()
	if err != nil {
		return nil, err
	}
	var reqs []model.BookRequest
	if err := sqlx.SelectContext(ctx, r.q, &reqs, q, args...); err != nil {
		return nil, err
	}
	return reqs, nil
}
