package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/events"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/pkg/auth"
	mw "github.com/Astemirdum/library-system/pkg/middleware"
	"github.com/Astemirdum/library-system/pkg/validate"
)

type Handler struct {
	inventorySvc   InventoryService
	requestSvc     RequestService
	circulationSvc CirculationService
	walletSvc      WalletService
	audit          events.Publisher
	log            *zap.Logger
}

func New(inv InventoryService, req RequestService, circ CirculationService, wal WalletService, audit events.Publisher, log *zap.Logger) *Handler {
	return &Handler{
		inventorySvc:   inv,
		requestSvc:     req,
		circulationSvc: circ,
		walletSvc:      wal,
		audit:          audit,
		log:            log,
	}
}

func (h *Handler) NewRouter() *echo.Echo {
	e := echo.New()
	const (
		baseRPS = 10
		apiRPS  = 100
	)
	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		StackSize: 4 << 10, // 4 KB
	}))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodOptions, http.MethodHead, http.MethodPut, http.MethodPatch, http.MethodPost, http.MethodDelete},
		AllowCredentials: true,
	}))

	base := e.Group("", mw.NewRateLimiter(baseRPS))
	base.GET("/manage/health", h.Health)

	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1",
		echomw.RequestLoggerWithConfig(mw.RequestLoggerConfig()),
		echomw.RequestID(),
		mw.NewRateLimiter(apiRPS),
		mw.AuthContext,
	)

	api.GET("/books", h.ListBooks)
	api.GET("/books/:id", h.GetBook)
	api.POST("/books", h.CreateBook, mw.RequireStaff)
	api.POST("/books/:id/copies", h.AddCopy, mw.RequireStaff)
	api.POST("/books/:id/availability", h.CheckAvailability, mw.RequireStaff)
	api.PATCH("/items/:id/status", h.SetItemStatus, mw.RequireStaff)
	api.GET("/items/:id/history", h.ItemHistory, mw.RequireStaff)

	api.POST("/requests", h.PlaceRequest)
	api.GET("/requests", h.ListRequests)
	api.POST("/requests/:requestUid/approve", h.ApproveRequest, mw.RequireStaff)
	api.POST("/requests/:requestUid/reject", h.RejectRequest, mw.RequireStaff)
	api.POST("/requests/:requestUid/dispatch", h.DispatchRequest, mw.RequireStaff)
	api.POST("/requests/:requestUid/collect", h.CollectRequest, mw.RequireStaff)
	api.POST("/requests/:requestUid/confirm-delivery", h.ConfirmDelivery, mw.RequireStaff)
	api.POST("/requests/:requestUid/fail-delivery", h.FailDelivery, mw.RequireStaff)

	api.POST("/loans/checkout", h.CheckOut, mw.RequireStaff)
	api.POST("/loans/:id/checkin", h.CheckIn, mw.RequireStaff)
	api.POST("/loans/:id/report-lost", h.ReportLost)
	api.GET("/loans", h.ActiveLoans)

	api.GET("/wallet", h.Balance)
	api.POST("/wallet/deposit", h.Deposit)
	api.GET("/wallet/history", h.WalletHistory)

	api.GET("/fines", h.ListFines)
	api.POST("/fines/:id/pay", h.PayFine)
	api.PUT("/fine-rules", h.UpsertFineRule, mw.RequireStaff)
	api.GET("/reports/revenue", h.Revenue, mw.RequireStaff)

	return e
}

func (h *Handler) Health(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

// httpError maps the sentinel taxonomy to stable status codes; unexpected
// errors surface as a generic 500 without internal detail.
func (h *Handler) httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, errs.ErrNotFound.Error())
	case errors.Is(err, errs.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, errs.ErrConflict.Error())
	case errors.Is(err, errs.ErrInvalidState):
		return echo.NewHTTPError(http.StatusConflict, errs.ErrInvalidState.Error())
	case errors.Is(err, errs.ErrInsufficientFunds):
		return echo.NewHTTPError(http.StatusPaymentRequired, errs.ErrInsufficientFunds.Error())
	case errors.Is(err, errs.ErrNoCopies):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, errs.ErrNoCopies.Error())
	case errors.Is(err, errs.ErrAlreadyReturned),
		errors.Is(err, errs.ErrAlreadyPaid),
		errors.Is(err, errs.ErrInvalidAmount),
		errors.Is(err, errs.ErrAddressRequired):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		h.log.Error("internal", zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

func profile(c echo.Context) (auth.Profile, error) {
	return auth.FromContext(c.Request().Context())
}

func pathID(c echo.Context) (int, error) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	return id, nil
}

func (h *Handler) CreateBook(c echo.Context) error {
	var req model.CreateBookRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	p, _ := profile(c)
	book, err := h.inventorySvc.AddBook(c.Request().Context(), req)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "BOOK_CREATED",
		EntityType:  "book",
		EntityID:    strconv.Itoa(book.ID),
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusCreated, book)
}

func (h *Handler) GetBook(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.inventorySvc.GetBook(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) ListBooks(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	size, _ := strconv.Atoi(c.QueryParam("size"))
	books, err := h.inventorySvc.ListBooks(c.Request().Context(), page, size)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, books)
}

func (h *Handler) AddCopy(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.AddCopyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, _ := profile(c)
	item, err := h.inventorySvc.AddCopy(c.Request().Context(), id, req, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "COPY_ADDED",
		EntityType:  "inventory_item",
		EntityID:    strconv.Itoa(item.ID),
		PerformedBy: p.Username,
		Details:     item.Barcode,
	})
	return c.JSON(http.StatusCreated, item)
}

func (h *Handler) CheckAvailability(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	book, err := h.inventorySvc.CheckAvailability(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, book)
}

func (h *Handler) SetItemStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var req model.SetItemStatusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	p, _ := profile(c)
	item, err := h.inventorySvc.SetStatus(c.Request().Context(), id, req.Status, req.Reason, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "ITEM_STATUS_CHANGED",
		EntityType:  "inventory_item",
		EntityID:    strconv.Itoa(item.ID),
		PerformedBy: p.Username,
		Details:     string(req.Status),
	})
	return c.JSON(http.StatusOK, item)
}

func (h *Handler) ItemHistory(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	txns, err := h.inventorySvc.ItemHistory(c.Request().Context(), id)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, txns)
}

func (h *Handler) PlaceRequest(c echo.Context) error {
	var req model.PlaceRequestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	created, err := h.requestSvc.Create(c.Request().Context(), p.Username, req)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "REQUEST_CREATED",
		EntityType:  "book_request",
		EntityID:    created.RequestUid,
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusCreated, created)
}

func (h *Handler) ListRequests(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	reqs, err := h.requestSvc.ListByUser(c.Request().Context(), p.Username)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, reqs)
}

func (h *Handler) ApproveRequest(c echo.Context) error {
	uid := c.Param("requestUid")
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	p, _ := profile(c)
	req, err := h.requestSvc.Approve(c.Request().Context(), uid, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "REQUEST_APPROVED",
		EntityType:  "book_request",
		EntityID:    uid,
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) RejectRequest(c echo.Context) error {
	uid := c.Param("requestUid")
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	var body model.RejectRequestRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(body); err != nil {
		return err
	}
	p, _ := profile(c)
	req, err := h.requestSvc.Reject(c.Request().Context(), uid, body.Reason)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "REQUEST_REJECTED",
		EntityType:  "book_request",
		EntityID:    uid,
		PerformedBy: p.Username,
		Details:     body.Reason,
	})
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) DispatchRequest(c echo.Context) error {
	uid := c.Param("requestUid")
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	p, _ := profile(c)
	req, err := h.requestSvc.Dispatch(c.Request().Context(), uid)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "REQUEST_DISPATCHED",
		EntityType:  "book_request",
		EntityID:    uid,
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) CollectRequest(c echo.Context) error {
	uid := c.Param("requestUid")
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	p, _ := profile(c)
	loan, err := h.requestSvc.Collect(c.Request().Context(), uid, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "REQUEST_COLLECTED",
		EntityType:  "loan",
		EntityID:    strconv.Itoa(loan.ID),
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusOK, loan)
}

func (h *Handler) ConfirmDelivery(c echo.Context) error {
	uid := c.Param("requestUid")
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	p, _ := profile(c)
	loan, err := h.requestSvc.ConfirmDelivery(c.Request().Context(), uid, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "DELIVERY_CONFIRMED",
		EntityType:  "loan",
		EntityID:    strconv.Itoa(loan.ID),
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusOK, loan)
}

func (h *Handler) FailDelivery(c echo.Context) error {
	uid := c.Param("requestUid")
	if uid == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "requestUid is empty")
	}
	var body model.FailDeliveryRequest
	if err := c.Bind(&body); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(body); err != nil {
		return err
	}
	p, _ := profile(c)
	req, err := h.requestSvc.FailDelivery(c.Request().Context(), uid, body.Reason, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "DELIVERY_FAILED",
		EntityType:  "book_request",
		EntityID:    uid,
		PerformedBy: p.Username,
		Details:     body.Reason,
	})
	return c.JSON(http.StatusOK, req)
}

func (h *Handler) CheckOut(c echo.Context) error {
	var req model.CheckOutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	p, _ := profile(c)
	loan, err := h.circulationSvc.CheckOut(c.Request().Context(), req.Username, req.BookID, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "LOAN_CHECKED_OUT",
		EntityType:  "loan",
		EntityID:    strconv.Itoa(loan.ID),
		PerformedBy: p.Username,
		Details:     req.Username,
	})
	return c.JSON(http.StatusCreated, loan)
}

func (h *Handler) CheckIn(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, _ := profile(c)
	loan, fine, err := h.circulationSvc.CheckIn(c.Request().Context(), id, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "LOAN_CHECKED_IN",
		EntityType:  "loan",
		EntityID:    strconv.Itoa(loan.ID),
		PerformedBy: p.Username,
	})
	type resp struct {
		Loan model.Loan  `json:"loan"`
		Fine *model.Fine `json:"fine,omitempty"`
	}
	return c.JSON(http.StatusOK, resp{Loan: loan, Fine: fine})
}

func (h *Handler) ReportLost(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	fine, err := h.circulationSvc.ReportLost(c.Request().Context(), id, p.Username, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "LOAN_REPORTED_LOST",
		EntityType:  "fine",
		EntityID:    strconv.Itoa(fine.ID),
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusOK, fine)
}

func (h *Handler) ActiveLoans(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	loans, err := h.circulationSvc.ActiveLoans(c.Request().Context(), p.Username)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, loans)
}

func (h *Handler) Balance(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	balance, err := h.walletSvc.Balance(c.Request().Context(), p.Username)
	if err != nil {
		return h.httpError(err)
	}
	type resp struct {
		Username string `json:"username"`
		Balance  string `json:"balance"`
	}
	return c.JSON(http.StatusOK, resp{Username: p.Username, Balance: balance.String()})
}

func (h *Handler) Deposit(c echo.Context) error {
	var req model.DepositRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	txn, err := h.walletSvc.AddFunds(c.Request().Context(), p.Username, req.Amount)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "WALLET_DEPOSIT",
		EntityType:  "transaction",
		EntityID:    txn.TxnUid,
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusCreated, txn)
}

func (h *Handler) WalletHistory(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	txns, err := h.walletSvc.History(c.Request().Context(), p.Username)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, txns)
}

func (h *Handler) ListFines(c echo.Context) error {
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	fines, err := h.circulationSvc.ListFines(c.Request().Context(), p.Username)
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, fines)
}

func (h *Handler) PayFine(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	p, err := profile(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	fine, err := h.circulationSvc.PayFine(c.Request().Context(), id, p.Username)
	if err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "FINE_PAID",
		EntityType:  "fine",
		EntityID:    strconv.Itoa(fine.ID),
		PerformedBy: p.Username,
	})
	return c.JSON(http.StatusOK, fine)
}

func (h *Handler) UpsertFineRule(c echo.Context) error {
	var req model.UpsertFineRuleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	p, _ := profile(c)
	if err := h.circulationSvc.UpsertFineRule(c.Request().Context(), req); err != nil {
		return h.httpError(err)
	}
	h.audit.Audit(events.AuditEvent{
		Action:      "FINE_RULE_UPSERTED",
		EntityType:  "fine_rule",
		EntityID:    req.Role,
		PerformedBy: p.Username,
	})
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Revenue(c echo.Context) error {
	rep, err := h.walletSvc.Revenue(c.Request().Context())
	if err != nil {
		return h.httpError(err)
	}
	return c.JSON(http.StatusOK, rep)
}
