package postgres

import (
	"context"
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/model"
)

type inventoryRepo struct {
	*store
}

func (r *inventoryRepo) Add(ctx context.Context, item model.InventoryItem) (model.InventoryItem, error) {
	q, args, err := qb.Insert(itemsTableName).
		Columns("book_id", "barcode", "status", "location").
		Values(item.BookID, item.Barcode, model.ItemAvailable, item.Location).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.InventoryItem{}, err
	}
	var res model.InventoryItem
	if err := sqlx.GetContext(ctx, r.q, &res, q, args...); err != nil {
		r.log.Error("AddItem", zap.String("q", q), zap.Any("args", args))
		return model.InventoryItem{}, translate(err)
	}
	return res, nil
}

func (r *inventoryRepo) Get(ctx context.Context, id int) (model.InventoryItem, error) {
	q, args, err := qb.Select("id", "book_id", "barcode", "status", "location", "created_at").
		From(itemsTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.InventoryItem{}, err
	}
	var item model.InventoryItem
	if err := sqlx.GetContext(ctx, r.q, &item, q, args...); err != nil {
		return model.InventoryItem{}, translate(err)
	}
	return item, nil
}

// ReserveOneAvailable is a single conditional update: the status flip and the
// row selection happen in one statement, so two concurrent callers can never
// reserve the same item. skip locked keeps losers from blocking on the winner.
func (r *inventoryRepo) ReserveOneAvailable(ctx context.Context, bookID int) (model.InventoryItem, error) {
	q := `
update inventory_items
    set status = 'RESERVED'
where id = (
    select id from inventory_items
    where book_id = $1 and status = 'AVAILABLE'
    order by id
    limit 1
    for update skip locked
)
returning id, book_id, barcode, status, location, created_at`

	var item model.InventoryItem
	err := sqlx.GetContext(ctx, r.q, &item, q, bookID)
	if err == nil {
		return item, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return model.InventoryItem{}, err
	}

	// Zero rows: either genuine stock-out or we lost the race for the last
	// copies to a concurrent, not-yet-committed reservation.
	var available int
	if err := r.q.QueryRowxContext(ctx,
		`select count(*) from inventory_items where book_id = $1 and status = 'AVAILABLE'`,
		bookID).Scan(&available); err != nil {
		return model.InventoryItem{}, err
	}
	if available > 0 {
		return model.InventoryItem{}, errs.ErrConflict
	}
	return model.InventoryItem{}, errs.ErrNoCopies
}

func (r *inventoryRepo) UpdateStatus(ctx context.Context, itemID int, status model.InventoryStatus) error {
	q, args, err := qb.Update(itemsTableName).
		Set("status", status).
		Where(sq.Eq{"id": itemID}).
		ToSql()
	if err != nil {
		return err
	}
	res, err := r.q.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errs.ErrNotFound
	}
	return nil
}

func (r *inventoryRepo) FindOneByStatus(ctx context.Context, bookID int, status model.InventoryStatus) (model.InventoryItem, error) {
	q, args, err := qb.Select("id", "book_id", "barcode", "status", "location", "created_at").
		From(itemsTableName).
		Where(sq.Eq{"book_id": bookID, "status": status}).
		OrderBy("id").
		Limit(1).
		Suffix("for update skip locked").
		ToSql()
	if err != nil {
		return model.InventoryItem{}, err
	}
	var item model.InventoryItem
	if err := sqlx.GetContext(ctx, r.q, &item, q, args...); err != nil {
		return model.InventoryItem{}, translate(err)
	}
	return item, nil
}

func (r *inventoryRepo) AppendTxn(ctx context.Context, txn model.InventoryTransaction) error {
	q, args, err := qb.Insert(itemTxnsTableName).
		Columns("item_id", "action", "from_status", "to_status", "performed_by", "reason").
		Values(txn.ItemID, txn.Action, txn.FromStatus, txn.ToStatus, txn.PerformedBy, txn.Reason).
		ToSql()
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, q, args...)
	return err
}

func (r *inventoryRepo) ListTxns(ctx context.Context, itemID int) ([]model.InventoryTransaction, error) {
	q, args, err := qb.Select("id", "item_id", "action", "from_status", "to_status", "performed_by", "reason", "created_at").
		From(itemTxnsTableName).
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}
	var txns []model.InventoryTransaction
	if err := sqlx.SelectContext(ctx, r.q, &txns, q, args...); err != nil {
		return nil, err
	}
	return txns, nil
}
