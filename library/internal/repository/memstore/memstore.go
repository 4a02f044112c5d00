// Package memstore is an in-memory repository.Store used by service tests.
// Transactions are serialized under one mutex and rolled back by snapshot,
// which mirrors the atomicity the postgres store gets from real transactions.
package memstore

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/library/internal/repository"
)

type data struct {
	seq        int
	books      map[int]model.Book
	items      map[int]model.InventoryItem
	itemTxns   []model.InventoryTransaction
	requests   map[string]model.BookRequest
	loans      map[int]model.Loan
	fines      map[int]model.Fine
	rules      map[string]model.FineRule
	users      map[string]model.User
	walletTxns []model.Transaction
	triggers   map[string]struct{}
}

func newData() *data {
	return &data{
		books:    make(map[int]model.Book),
		items:    make(map[int]model.InventoryItem),
		requests: make(map[string]model.BookRequest),
		loans:    make(map[int]model.Loan),
		fines:    make(map[int]model.Fine),
		rules:    make(map[string]model.FineRule),
		users:    make(map[string]model.User),
		triggers: make(map[string]struct{}),
	}
}

func (d *data) nextID() int {
	d.seq++
	return d.seq
}

func (d *data) clone() *data {
	cp := newData()
	cp.seq = d.seq
	for k, v := range d.books {
		cp.books[k] = v
	}
	for k, v := range d.items {
		cp.items[k] = v
	}
	for k, v := range d.requests {
		cp.requests[k] = v
	}
	for k, v := range d.loans {
		cp.loans[k] = v
	}
	for k, v := range d.fines {
		cp.fines[k] = v
	}
	for k, v := range d.rules {
		cp.rules[k] = v
	}
	for k, v := range d.users {
		cp.users[k] = v
	}
	for k := range d.triggers {
		cp.triggers[k] = struct{}{}
	}
	cp.itemTxns = append(cp.itemTxns, d.itemTxns...)
	cp.walletTxns = append(cp.walletTxns, d.walletTxns...)
	return cp
}

type Store struct {
	mu sync.Mutex
	d  *data
}

func New() *Store {
	return &Store{d: newData()}
}

var _ repository.Store = (*Store)(nil)

func (s *Store) Books() repository.BookRepo                 { return bookRepo{s.d, &s.mu} }
func (s *Store) Inventory() repository.InventoryRepo        { return inventoryRepo{s.d, &s.mu} }
func (s *Store) Requests() repository.RequestRepo           { return requestRepo{s.d, &s.mu} }
func (s *Store) Loans() repository.LoanRepo                 { return loanRepo{s.d, &s.mu} }
func (s *Store) Fines() repository.FineRepo                 { return fineRepo{s.d, &s.mu} }
func (s *Store) FineRules() repository.FineRuleRepo         { return fineRuleRepo{s.d, &s.mu} }
func (s *Store) Wallets() repository.WalletRepo             { return walletRepo{s.d, &s.mu} }
func (s *Store) Notifications() repository.NotificationRepo { return notificationRepo{s.d, &s.mu} }

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.d.clone()
	if err := fn(ctx, &txView{s.d}); err != nil {
		*s.d = *snapshot
		return err
	}
	return nil
}

// SeedUser registers a user so wallet and auth lookups resolve in tests.
func (s *Store) SeedUser(username, role string, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.d.users[username] = model.User{
		ID:       s.d.nextID(),
		Username: username,
		Role:     role,
		Balance:  balance,
	}
}

// txView is the transaction-bound store: the surrounding WithinTx already
// holds the lock, so repos run unlocked.
type txView struct {
	d *data
}

var _ repository.Store = (*txView)(nil)

func (v *txView) Books() repository.BookRepo                 { return bookRepo{v.d, nil} }
func (v *txView) Inventory() repository.InventoryRepo        { return inventoryRepo{v.d, nil} }
func (v *txView) Requests() repository.RequestRepo           { return requestRepo{v.d, nil} }
func (v *txView) Loans() repository.LoanRepo                 { return loanRepo{v.d, nil} }
func (v *txView) Fines() repository.FineRepo                 { return fineRepo{v.d, nil} }
func (v *txView) FineRules() repository.FineRuleRepo         { return fineRuleRepo{v.d, nil} }
func (v *txView) Wallets() repository.WalletRepo             { return walletRepo{v.d, nil} }
func (v *txView) Notifications() repository.NotificationRepo { return notificationRepo{v.d, nil} }

func (v *txView) WithinTx(ctx context.Context, fn func(ctx context.Context, st repository.Store) error) error {
	return fn(ctx, v)
}

func lock(mu *sync.Mutex) func() {
	if mu == nil {
		return func() {}
	}
	mu.Lock()
	return mu.Unlock
}

type bookRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r bookRepo) Create(_ context.Context, book model.Book) (model.Book, error) {
	defer lock(r.mu)()
	for _, b := range r.d.books {
		if b.ISBN == book.ISBN {
			return model.Book{}, errs.ErrConflict
		}
	}
	book.ID = r.d.nextID()
	book.CreatedAt = time.Now()
	r.d.books[book.ID] = book
	return book, nil
}

func (r bookRepo) Get(_ context.Context, id int) (model.Book, error) {
	defer lock(r.mu)()
	book, ok := r.d.books[id]
	if !ok {
		return model.Book{}, errs.ErrNotFound
	}
	return book, nil
}

func (r bookRepo) List(_ context.Context, page, size int) (model.ListBooks, error) {
	defer lock(r.mu)()
	var books []model.Book
	for _, b := range r.d.books {
		books = append(books, b)
	}
	sort.Slice(books, func(i, j int) bool { return books[i].ID < books[j].ID })
	if page != 0 && size != 0 {
		off := (page - 1) * size
		if off > len(books) {
			off = len(books)
		}
		end := off + size
		if end > len(books) {
			end = len(books)
		}
		books = books[off:end]
	}
	return model.ListBooks{
		Paging: model.Paging{Page: page, PageSize: size, TotalElements: len(books)},
		Items:  books,
	}, nil
}

func (r bookRepo) AvailableCount(_ context.Context, bookID int) (int, error) {
	defer lock(r.mu)()
	return r.d.countByStatus(bookID, model.ItemAvailable), nil
}

func (r bookRepo) RecomputeAvailability(_ context.Context, bookID int) error {
	defer lock(r.mu)()
	book, ok := r.d.books[bookID]
	if !ok {
		return errs.ErrNotFound
	}
	copies := 0
	available := 0
	for _, it := range r.d.items {
		if it.BookID != bookID {
			continue
		}
		if it.Status != model.ItemLost && it.Status != model.ItemDamaged {
			copies++
		}
		if it.Status == model.ItemAvailable {
			available++
		}
	}
	book.Copies = copies
	book.IsAvailable = available > 0
	r.d.books[bookID] = book
	return nil
}

func (d *data) countByStatus(bookID int, status model.InventoryStatus) int {
	n := 0
	for _, it := range d.items {
		if it.BookID == bookID && it.Status == status {
			n++
		}
	}
	return n
}

type inventoryRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r inventoryRepo) Add(_ context.Context, item model.InventoryItem) (model.InventoryItem, error) {
	defer lock(r.mu)()
	for _, it := range r.d.items {
		if it.Barcode == item.Barcode {
			return model.InventoryItem{}, errs.ErrConflict
		}
	}
	item.ID = r.d.nextID()
	item.Status = model.ItemAvailable
	item.CreatedAt = time.Now()
	r.d.items[item.ID] = item
	return item, nil
}

func (r inventoryRepo) Get(_ context.Context, id int) (model.InventoryItem, error) {
	defer lock(r.mu)()
	item, ok := r.d.items[id]
	if !ok {
		return model.InventoryItem{}, errs.ErrNotFound
	}
	return item, nil
}

func (r inventoryRepo) ReserveOneAvailable(_ context.Context, bookID int) (model.InventoryItem, error) {
	defer lock(r.mu)()
	item, ok := r.d.findByStatus(bookID, model.ItemAvailable)
	if !ok {
		return model.InventoryItem{}, errs.ErrNoCopies
	}
	item.Status = model.ItemReserved
	r.d.items[item.ID] = item
	return item, nil
}

func (r inventoryRepo) UpdateStatus(_ context.Context, itemID int, status model.InventoryStatus) error {
	defer lock(r.mu)()
	item, ok := r.d.items[itemID]
	if !ok {
		return errs.ErrNotFound
	}
	item.Status = status
	r.d.items[itemID] = item
	return nil
}

func (r inventoryRepo) FindOneByStatus(_ context.Context, bookID int, status model.InventoryStatus) (model.InventoryItem, error) {
	defer lock(r.mu)()
	item, ok := r.d.findByStatus(bookID, status)
	if !ok {
		return model.InventoryItem{}, errs.ErrNotFound
	}
	return item, nil
}

func (d *data) findByStatus(bookID int, status model.InventoryStatus) (model.InventoryItem, bool) {
	var found model.InventoryItem
	ok := false
	for _, it := range d.items {
		if it.BookID != bookID || it.Status != status {
			continue
		}
		if !ok || it.ID < found.ID {
			found = it
			ok = true
		}
	}
	return found, ok
}

func (r inventoryRepo) AppendTxn(_ context.Context, txn model.InventoryTransaction) error {
	defer lock(r.mu)()
	txn.ID = r.d.nextID()
	txn.CreatedAt = time.Now()
	r.d.itemTxns = append(r.d.itemTxns, txn)
	return nil
}

func (r inventoryRepo) ListTxns(_ context.Context, itemID int) ([]model.InventoryTransaction, error) {
	defer lock(r.mu)()
	var txns []model.InventoryTransaction
	for _, t := range r.d.itemTxns {
		if t.ItemID == itemID {
			txns = append(txns, t)
		}
	}
	return txns, nil
}

type requestRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r requestRepo) Create(_ context.Context, req model.BookRequest) (model.BookRequest, error) {
	defer lock(r.mu)()
	for _, existing := range r.d.requests {
		if existing.Username == req.Username && existing.BookID == req.BookID &&
			existing.Status == model.RequestPending {
			return model.BookRequest{}, errs.ErrConflict
		}
	}
	req.ID = r.d.nextID()
	req.RequestUid = uuid.NewString()
	req.Status = model.RequestPending
	req.CreatedAt = time.Now()
	req.UpdatedAt = req.CreatedAt
	r.d.requests[req.RequestUid] = req
	return req, nil
}

func (r requestRepo) Get(_ context.Context, requestUid string) (model.BookRequest, error) {
	defer lock(r.mu)()
	req, ok := r.d.requests[requestUid]
	if !ok {
		return model.BookRequest{}, errs.ErrNotFound
	}
	return req, nil
}

func (r requestRepo) GetForUpdate(ctx context.Context, requestUid string) (model.BookRequest, error) {
	return r.Get(ctx, requestUid)
}

func (r requestRepo) Update(_ context.Context, req model.BookRequest) error {
	defer lock(r.mu)()
	if _, ok := r.d.requests[req.RequestUid]; !ok {
		return errs.ErrNotFound
	}
	req.UpdatedAt = time.Now()
	r.d.requests[req.RequestUid] = req
	return nil
}

func (r requestRepo) ListByUser(_ context.Context, username string) ([]model.BookRequest, error) {
	defer lock(r.mu)()
	var reqs []model.BookRequest
	for _, req := range r.d.requests {
		if req.Username == username {
			reqs = append(reqs, req)
		}
	}
	sort.Slice(reqs, func(i, j int) bool { return reqs[i].ID > reqs[j].ID })
	return reqs, nil
}

type loanRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r loanRepo) Create(_ context.Context, loan model.Loan) (model.Loan, error) {
	defer lock(r.mu)()
	loan.ID = r.d.nextID()
	loan.Status = model.LoanActive
	r.d.loans[loan.ID] = loan
	return loan, nil
}

func (r loanRepo) Get(_ context.Context, id int) (model.Loan, error) {
	defer lock(r.mu)()
	loan, ok := r.d.loans[id]
	if !ok {
		return model.Loan{}, errs.ErrNotFound
	}
	return loan, nil
}

func (r loanRepo) GetForUpdate(ctx context.Context, id int) (model.Loan, error) {
	return r.Get(ctx, id)
}

func (r loanRepo) Update(_ context.Context, loan model.Loan) error {
	defer lock(r.mu)()
	if _, ok := r.d.loans[loan.ID]; !ok {
		return errs.ErrNotFound
	}
	r.d.loans[loan.ID] = loan
	return nil
}

func (r loanRepo) ListActiveByUser(_ context.Context, username string) ([]model.Loan, error) {
	defer lock(r.mu)()
	var loans []model.Loan
	for _, l := range r.d.loans {
		if l.Username == username && l.Status == model.LoanActive {
			loans = append(loans, l)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].DueDate.Before(loans[j].DueDate) })
	return loans, nil
}

func (r loanRepo) ListActiveDueBefore(_ context.Context, t time.Time) ([]model.Loan, error) {
	defer lock(r.mu)()
	var loans []model.Loan
	for _, l := range r.d.loans {
		if l.Status == model.LoanActive && l.DueDate.Before(t) {
			loans = append(loans, l)
		}
	}
	sort.Slice(loans, func(i, j int) bool { return loans[i].DueDate.Before(loans[j].DueDate) })
	return loans, nil
}

type fineRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r fineRepo) Create(_ context.Context, fine model.Fine) (model.Fine, error) {
	defer lock(r.mu)()
	fine.ID = r.d.nextID()
	fine.CreatedAt = time.Now()
	r.d.fines[fine.ID] = fine
	return fine, nil
}

func (r fineRepo) Get(_ context.Context, id int) (model.Fine, error) {
	defer lock(r.mu)()
	fine, ok := r.d.fines[id]
	if !ok {
		return model.Fine{}, errs.ErrNotFound
	}
	return fine, nil
}

func (r fineRepo) GetForUpdate(ctx context.Context, id int) (model.Fine, error) {
	return r.Get(ctx, id)
}

func (r fineRepo) Update(_ context.Context, fine model.Fine) error {
	defer lock(r.mu)()
	if _, ok := r.d.fines[fine.ID]; !ok {
		return errs.ErrNotFound
	}
	r.d.fines[fine.ID] = fine
	return nil
}

func (r fineRepo) ListByUser(_ context.Context, username string) ([]model.Fine, error) {
	defer lock(r.mu)()
	var fines []model.Fine
	for _, f := range r.d.fines {
		if f.Username == username {
			fines = append(fines, f)
		}
	}
	sort.Slice(fines, func(i, j int) bool { return fines[i].ID > fines[j].ID })
	return fines, nil
}

type fineRuleRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r fineRuleRepo) GetByRole(_ context.Context, role string) (model.FineRule, error) {
	defer lock(r.mu)()
	rule, ok := r.d.rules[role]
	if !ok {
		return model.FineRule{}, errs.ErrNotFound
	}
	return rule, nil
}

func (r fineRuleRepo) Upsert(_ context.Context, rule model.FineRule) error {
	defer lock(r.mu)()
	r.d.rules[rule.Role] = rule
	return nil
}

type walletRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r walletRepo) GetUser(_ context.Context, username string) (model.User, error) {
	defer lock(r.mu)()
	user, ok := r.d.users[username]
	if !ok {
		return model.User{}, errs.ErrNotFound
	}
	return user, nil
}

func (r walletRepo) Credit(_ context.Context, username string, amount decimal.Decimal) error {
	defer lock(r.mu)()
	user, ok := r.d.users[username]
	if !ok {
		return errs.ErrNotFound
	}
	user.Balance = user.Balance.Add(amount)
	r.d.users[username] = user
	return nil
}

func (r walletRepo) DebitIfSufficient(_ context.Context, username string, amount decimal.Decimal) (bool, error) {
	defer lock(r.mu)()
	user, ok := r.d.users[username]
	if !ok {
		return false, errs.ErrNotFound
	}
	if user.Balance.LessThan(amount) {
		return false, nil
	}
	user.Balance = user.Balance.Sub(amount)
	r.d.users[username] = user
	return true, nil
}

func (r walletRepo) AppendTxn(_ context.Context, txn model.Transaction) (model.Transaction, error) {
	defer lock(r.mu)()
	txn.ID = r.d.nextID()
	txn.TxnUid = uuid.NewString()
	txn.CreatedAt = time.Now()
	r.d.walletTxns = append(r.d.walletTxns, txn)
	return txn, nil
}

func (r walletRepo) ListTxns(_ context.Context, username string) ([]model.Transaction, error) {
	defer lock(r.mu)()
	var txns []model.Transaction
	for _, t := range r.d.walletTxns {
		if t.Username == username {
			txns = append(txns, t)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].ID > txns[j].ID })
	return txns, nil
}

func (r walletRepo) Revenue(_ context.Context) (model.RevenueReport, error) {
	defer lock(r.mu)()
	rep := model.RevenueReport{
		Rental:      decimal.Zero,
		FinePayment: decimal.Zero,
		Total:       decimal.Zero,
	}
	for _, t := range r.d.walletTxns {
		switch t.Type {
		case model.TxnRental:
			rep.Rental = rep.Rental.Add(t.Amount.Abs())
		case model.TxnFinePayment:
			rep.FinePayment = rep.FinePayment.Add(t.Amount.Abs())
		default:
			continue
		}
		rep.Total = rep.Total.Add(t.Amount.Abs())
	}
	return rep, nil
}

type notificationRepo struct {
	d  *data
	mu *sync.Mutex
}

func (r notificationRepo) InsertTrigger(_ context.Context, loanID int, trigger model.NotificationTrigger) (bool, error) {
	defer lock(r.mu)()
	key := string(trigger) + "/" + strconv.Itoa(loanID)
	if _, ok := r.d.triggers[key]; ok {
		return false, nil
	}
	r.d.triggers[key] = struct{}{}
	return true, nil
}
