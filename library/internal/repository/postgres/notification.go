package postgres

import (
	"context"
	"database/sql"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/model"
)

type notificationRepo struct {
	*store
}

func (r *notificationRepo) InsertTrigger(ctx context.Context, loanID int, trigger model.NotificationTrigger) (bool, error) {
	q := `
insert into notification_triggers (loan_id, trigger_type)
values ($1, $2)
on conflict (loan_id, trigger_type) do nothing`
	res, err := r.q.ExecContext(ctx, q, loanID, trigger)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func affectedOrNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return errs.ErrNotFound
	}
	return nil
}
