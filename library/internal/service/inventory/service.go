package inventory

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

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

func (s *Service) AddBook(ctx context.Context, req model.CreateBookRequest) (model.Book, error) {
	return s.store.Books().Create(ctx, model.Book{
		Title:       req.Title,
		ISBN:        req.ISBN,
		AuthorID:    req.AuthorID,
		CategoryID:  req.CategoryID,
		Price:       req.Price,
		RentalPrice: req.RentalPrice,
	})
}

func (s *Service) GetBook(ctx context.Context, id int) (model.Book, error) {
	return s.store.Books().Get(ctx, id)
}

func (s *Service) ListBooks(ctx context.Context, page, size int) (model.ListBooks, error) {
	return s.store.Books().List(ctx, page, size)
}

// AddCopy registers one physical copy: AVAILABLE item, ADD audit row and the
// refreshed book caches, all in one unit.
func (s *Service) AddCopy(ctx context.Context, bookID int, req model.AddCopyRequest, performedBy string) (model.InventoryItem, error) {
	barcode := req.Barcode
	if barcode == "" {
		barcode = uuid.NewString()
	}
	var item model.InventoryItem
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		if _, err := st.Books().Get(ctx, bookID); err != nil {
			return err
		}
		var err error
		item, err = st.Inventory().Add(ctx, model.InventoryItem{
			BookID:   bookID,
			Barcode:  barcode,
			Location: req.Location,
		})
		if err != nil {
			return err
		}
		if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
			ItemID:      item.ID,
			Action:      model.ActionAdd,
			ToStatus:    model.ItemAvailable,
			PerformedBy: performedBy,
			Reason:      "copy added",
		}); err != nil {
			return err
		}
		return st.Books().RecomputeAvailability(ctx, bookID)
	})
	if err != nil {
		return model.InventoryItem{}, err
	}
	return item, nil
}

// SetStatus is a no-op when the status is unchanged; otherwise it appends a
// STATUS_CHANGE row and refreshes the book caches in the same unit.
func (s *Service) SetStatus(ctx context.Context, itemID int, newStatus model.InventoryStatus, reason, performedBy string) (model.InventoryItem, error) {
	var item model.InventoryItem
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		var err error
		item, err = st.Inventory().Get(ctx, itemID)
		if err != nil {
			return err
		}
		if item.Status == newStatus {
			return nil
		}
		if err := st.Inventory().UpdateStatus(ctx, itemID, newStatus); err != nil {
			return err
		}
		if err := st.Inventory().AppendTxn(ctx, model.InventoryTransaction{
			ItemID:      itemID,
			Action:      model.ActionStatusChange,
			FromStatus:  item.Status,
			ToStatus:    newStatus,
			PerformedBy: performedBy,
			Reason:      reason,
		}); err != nil {
			return err
		}
		item.Status = newStatus
		return st.Books().RecomputeAvailability(ctx, item.BookID)
	})
	if err != nil {
		return model.InventoryItem{}, err
	}
	return item, nil
}

// CheckAvailability recomputes and persists the book's derived availability
// caches and reports the fresh state.
func (s *Service) CheckAvailability(ctx context.Context, bookID int) (model.Book, error) {
	var book model.Book
	err := s.store.WithinTx(ctx, func(ctx context.Context, st repository.Store) error {
		if err := st.Books().RecomputeAvailability(ctx, bookID); err != nil {
			return err
		}
		var err error
		book, err = st.Books().Get(ctx, bookID)
		return err
	})
	if err != nil {
		return model.Book{}, err
	}
	return book, nil
}

func (s *Service) ItemHistory(ctx context.Context, itemID int) ([]model.InventoryTransaction, error) {
	if _, err := s.store.Inventory().Get(ctx, itemID); err != nil {
		return nil, err
	}
	return s.store.Inventory().ListTxns(ctx, itemID)
}
