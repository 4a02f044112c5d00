package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type InventoryStatus string

const (
	ItemAvailable InventoryStatus = "AVAILABLE"
	ItemReserved  InventoryStatus = "RESERVED"
	ItemIssued    InventoryStatus = "ISSUED"
	ItemLost      InventoryStatus = "LOST"
	ItemDamaged   InventoryStatus = "DAMAGED"
)

type InventoryAction string

const (
	ActionAdd          InventoryAction = "ADD"
	ActionStatusChange InventoryAction = "STATUS_CHANGE"
)

type RequestType string

const (
	RequestPickup   RequestType = "PICKUP"
	RequestDelivery RequestType = "DELIVERY"
)

type RequestStatus string

const (
	RequestPending        RequestStatus = "PENDING"
	RequestApproved       RequestStatus = "APPROVED"
	RequestOutForDelivery RequestStatus = "OUT_FOR_DELIVERY"
	RequestDeliveryFailed RequestStatus = "DELIVERY_FAILED"
	RequestRejected       RequestStatus = "REJECTED"
	RequestFulfilled      RequestStatus = "FULFILLED"
	RequestCancelled      RequestStatus = "CANCELLED"
)

type LoanStatus string

const (
	LoanActive   LoanStatus = "ACTIVE"
	LoanReturned LoanStatus = "RETURNED"
)

type FineType string

const (
	FineOverdue FineType = "OVERDUE"
	FineLost    FineType = "LOST"
)

type TxnType string

const (
	TxnDeposit     TxnType = "DEPOSIT"
	TxnRental      TxnType = "RENTAL"
	TxnFinePayment TxnType = "FINE_PAYMENT"
)

type User struct {
	ID       int             `json:"-" db:"id"`
	Username string          `json:"username" db:"username"`
	Role     string          `json:"role" db:"role"`
	Balance  decimal.Decimal `json:"balance" db:"balance"`
}

type Book struct {
	ID          int             `json:"id" db:"id"`
	Title       string          `json:"title" db:"title"`
	ISBN        string          `json:"isbn" db:"isbn"`
	AuthorID    int             `json:"authorId" db:"author_id"`
	CategoryID  int             `json:"categoryId" db:"category_id"`
	Price       decimal.Decimal `json:"price" db:"price"`
	RentalPrice decimal.Decimal `json:"rentalPrice" db:"rental_price"`
	Copies      int             `json:"copies" db:"copies"`
	IsAvailable bool            `json:"isAvailable" db:"is_available"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

type InventoryItem struct {
	ID        int             `json:"id" db:"id"`
	BookID    int             `json:"bookId" db:"book_id"`
	Barcode   string          `json:"barcode" db:"barcode"`
	Status    InventoryStatus `json:"status" db:"status"`
	Location  string          `json:"location" db:"location"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// InventoryTransaction rows are append-only, never updated or deleted.
type InventoryTransaction struct {
	ID          int             `json:"id" db:"id"`
	ItemID      int             `json:"itemId" db:"item_id"`
	Action      InventoryAction `json:"action" db:"action"`
	FromStatus  InventoryStatus `json:"fromStatus" db:"from_status"`
	ToStatus    InventoryStatus `json:"toStatus" db:"to_status"`
	PerformedBy string          `json:"performedBy" db:"performed_by"`
	Reason      string          `json:"reason" db:"reason"`
	CreatedAt   time.Time       `json:"createdAt" db:"created_at"`
}

type BookRequest struct {
	ID              int           `json:"-" db:"id"`
	RequestUid      string        `json:"requestUid" db:"request_uid"`
	Username        string        `json:"username" db:"username"`
	BookID          int           `json:"bookId" db:"book_id"`
	ItemID          *int          `json:"itemId,omitempty" db:"item_id"`
	Type            RequestType   `json:"type" db:"type"`
	Status          RequestStatus `json:"status" db:"status"`
	Address         string        `json:"address,omitempty" db:"address"`
	RejectionReason string        `json:"rejectionReason,omitempty" db:"rejection_reason"`
	CreatedAt       time.Time     `json:"createdAt" db:"created_at"`
	UpdatedAt       time.Time     `json:"updatedAt" db:"updated_at"`
}

type Loan struct {
	ID         int        `json:"id" db:"id"`
	Username   string     `json:"username" db:"username"`
	BookID     int        `json:"bookId" db:"book_id"`
	ItemID     *int       `json:"itemId,omitempty" db:"item_id"`
	BorrowedAt time.Time  `json:"borrowedAt" db:"borrowed_at"`
	DueDate    time.Time  `json:"dueDate" db:"due_date"`
	ReturnedAt *time.Time `json:"returnedAt,omitempty" db:"returned_at"`
	Status     LoanStatus `json:"status" db:"status"`
}

type Fine struct {
	ID        int             `json:"id" db:"id"`
	LoanID    int             `json:"loanId" db:"loan_id"`
	Username  string          `json:"username" db:"username"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	Type      FineType        `json:"type" db:"type"`
	Paid      bool            `json:"paid" db:"paid"`
	PaidAt    *time.Time      `json:"paidAt,omitempty" db:"paid_at"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

// FineRule is the fine policy for a role. A missing rule means no fine
// is ever charged for that role.
type FineRule struct {
	Role              string           `json:"role" db:"role"`
	GracePeriodDays   int              `json:"gracePeriodDays" db:"grace_period_days"`
	DailyRate         decimal.Decimal  `json:"dailyRate" db:"daily_rate"`
	MaxFine           *decimal.Decimal `json:"maxFine,omitempty" db:"max_fine"`
	LostProcessingFee decimal.Decimal  `json:"lostProcessingFee" db:"lost_processing_fee"`
}

// Transaction is a wallet ledger entry. Amounts are signed from the
// user's perspective: DEPOSIT positive, RENTAL/FINE_PAYMENT negative.
type Transaction struct {
	ID        int             `json:"id" db:"id"`
	TxnUid    string          `json:"txnUid" db:"txn_uid"`
	Username  string          `json:"username" db:"username"`
	Type      TxnType         `json:"type" db:"type"`
	Amount    decimal.Decimal `json:"amount" db:"amount"`
	CreatedAt time.Time       `json:"createdAt" db:"created_at"`
}

type NotificationTrigger string

const (
	TriggerDueSoon NotificationTrigger = "DUE_SOON"
	TriggerOverdue NotificationTrigger = "OVERDUE"
)

type CreateBookRequest struct {
	Title       string          `json:"title" validate:"required"`
	ISBN        string          `json:"isbn" validate:"required"`
	AuthorID    int             `json:"authorId"`
	CategoryID  int             `json:"categoryId"`
	Price       decimal.Decimal `json:"price"`
	RentalPrice decimal.Decimal `json:"rentalPrice"`
}

type AddCopyRequest struct {
	Barcode  string `json:"barcode"`
	Location string `json:"location"`
}

type SetItemStatusRequest struct {
	Status InventoryStatus `json:"status" validate:"required,oneof=AVAILABLE RESERVED ISSUED LOST DAMAGED"`
	Reason string          `json:"reason"`
}

type PlaceRequestRequest struct {
	BookID  int         `json:"bookId" validate:"required"`
	Type    RequestType `json:"type" validate:"required,oneof=PICKUP DELIVERY"`
	Address string      `json:"address"`
}

type RejectRequestRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type FailDeliveryRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type CheckOutRequest struct {
	Username string `json:"username" validate:"required"`
	BookID   int    `json:"bookId" validate:"required"`
}

type DepositRequest struct {
	Amount decimal.Decimal `json:"amount" validate:"required"`
}

type UpsertFineRuleRequest struct {
	Role              string           `json:"role" validate:"required"`
	GracePeriodDays   int              `json:"gracePeriodDays" validate:"gte=0"`
	DailyRate         decimal.Decimal  `json:"dailyRate"`
	MaxFine           *decimal.Decimal `json:"maxFine,omitempty"`
	LostProcessingFee decimal.Decimal  `json:"lostProcessingFee"`
}

type RevenueReport struct {
	Rental      decimal.Decimal `json:"rental" db:"rental"`
	FinePayment decimal.Decimal `json:"finePayment" db:"fine_payment"`
	Total       decimal.Decimal `json:"total" db:"total"`
}

type Paging struct {
	Page          int `json:"page"`
	PageSize      int `json:"pageSize"`
	TotalElements int `json:"totalElements"`
}

type ListBooks struct {
	Paging
	Items []Book `json:"items"`
}
