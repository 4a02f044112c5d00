package postgres

import (
	"context"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/model"
)

type bookRepo struct {
	*store
}

func (r *bookRepo) Create(ctx context.Context, book model.Book) (model.Book, error) {
	q, args, err := qb.Insert(booksTableName).
		Columns("title", "isbn", "author_id", "category_id", "price", "rental_price").
		Values(book.Title, book.ISBN, book.AuthorID, book.CategoryID, book.Price, book.RentalPrice).
		Suffix("returning *").
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var res model.Book
	if err := sqlx.GetContext(ctx, r.q, &res, q, args...); err != nil {
		r.log.Error("CreateBook", zap.String("q", q), zap.Any("args", args))
		return model.Book{}, translate(err)
	}
	return res, nil
}

func (r *bookRepo) Get(ctx context.Context, id int) (model.Book, error) {
	q, args, err := qb.Select("id", "title", "isbn", "author_id", "category_id",
		"price", "rental_price", "copies", "is_available", "created_at").
		From(booksTableName).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return model.Book{}, err
	}
	var book model.Book
	if err := sqlx.GetContext(ctx, r.q, &book, q, args...); err != nil {
		return model.Book{}, translate(err)
	}
	return book, nil
}

func (r *bookRepo) List(ctx context.Context, page, size int) (model.ListBooks, error) {
	q := qb.Select("id", "title", "isbn", "author_id", "category_id",
		"price", "rental_price", "copies", "is_available", "created_at").
		From(booksTableName).
		OrderBy("id")

	if page != 0 && size != 0 {
		q = q.Limit(uint64(size)).Offset(uint64((page - 1) * size))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return model.ListBooks{}, err
	}
	var books []model.Book
	if err := sqlx.SelectContext(ctx, r.q, &books, query, args...); err != nil {
		return model.ListBooks{}, err
	}
	return model.ListBooks{
		Paging: model.Paging{
			Page:          page,
			PageSize:      size,
			TotalElements: len(books),
		},
		Items: books,
	}, nil
}

func (r *bookRepo) AvailableCount(ctx context.Context, bookID int) (int, error) {
	q := `
	select count(*) from inventory_items
	where book_id = $1 and status = 'AVAILABLE'
`
	var count int
	if err := r.q.QueryRowxContext(ctx, q, bookID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *bookRepo) RecomputeAvailability(ctx context.Context, bookID int) error {
	q := `
update books set
    copies = (select count(*) from inventory_items i
              where i.book_id = books.id and i.status not in ('LOST', 'DAMAGED')),
    is_available = exists (select 1 from inventory_items i
                           where i.book_id = books.id and i.status = 'AVAILABLE')
where id = $1`
	_, err := r.q.ExecContext(ctx, q, bookID)
	return err
}
