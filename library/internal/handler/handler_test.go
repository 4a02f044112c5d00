package handler_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Astemirdum/library-system/library/internal/errs"
	"github.com/Astemirdum/library-system/library/internal/events"
	"github.com/Astemirdum/library-system/library/internal/handler"
	"github.com/Astemirdum/library-system/library/internal/model"
	"github.com/Astemirdum/library-system/pkg/auth"
	mw "github.com/Astemirdum/library-system/pkg/middleware"
	"github.com/Astemirdum/library-system/pkg/validate"

	service_mocks "github.com/Astemirdum/library-system/library/internal/handler/mocks"
)

type mocks struct {
	inventory   *service_mocks.MockInventoryService
	request     *service_mocks.MockRequestService
	circulation *service_mocks.MockCirculationService
	wallet      *service_mocks.MockWalletService
}

func newTestRouter(t *testing.T) (*echo.Echo, mocks) {
	t.Helper()
	c := gomock.NewController(t)
	t.Cleanup(c.Finish)
	m := mocks{
		inventory:   service_mocks.NewMockInventoryService(c),
		request:     service_mocks.NewMockRequestService(c),
		circulation: service_mocks.NewMockCirculationService(c),
		wallet:      service_mocks.NewMockWalletService(c),
	}
	log := zap.NewExample().Named("test")
	h := handler.New(m.inventory, m.request, m.circulation, m.wallet, events.NopPublisher{}, log)

	e := echo.New()
	e.Validator = validate.NewCustomValidator()
	api := e.Group("/api/v1", mw.AuthContext)
	api.POST("/requests", h.PlaceRequest)
	api.POST("/loans/checkout", h.CheckOut, mw.RequireStaff)
	api.POST("/fines/:id/pay", h.PayFine)
	api.POST("/wallet/deposit", h.Deposit)
	api.GET("/books/:id", h.GetBook)
	return e, m
}

func doJSON(e *echo.Echo, method, target, body, username, role string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if username != "" {
		r.Header.Set(auth.XUserNameHeader, username)
		r.Header.Set(auth.XUserRoleHeader, role)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, r)
	return w
}

func TestHandler_PlaceRequest(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	var tests = []struct {
		name         string
		body         string
		mockBehavior func(m mocks)
		response     response
	}{
		{
			name: "ok",
			body: `{"bookId":1,"type":"PICKUP"}`,
			mockBehavior: func(m mocks) {
				m.request.EXPECT().
					Create(gomock.Any(), "alice", model.PlaceRequestRequest{BookID: 1, Type: model.RequestPickup}).
					Return(model.BookRequest{
						RequestUid: "be4bd5a5-1df8-4425-bbaa-fa2db4a75557",
						Username:   "alice",
						BookID:     1,
						Type:       model.RequestPickup,
						Status:     model.RequestPending,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"requestUid":"be4bd5a5-1df8-4425-bbaa-fa2db4a75557","username":"alice","bookId":1,"type":"PICKUP","status":"PENDING","createdAt":"0001-01-01T00:00:00Z","updatedAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name: "err. no copies",
			body: `{"bookId":1,"type":"PICKUP"}`,
			mockBehavior: func(m mocks) {
				m.request.EXPECT().
					Create(gomock.Any(), "alice", gomock.Any()).
					Return(model.BookRequest{}, errs.ErrNoCopies)
			},
			response: response{
				expectedCode: http.StatusUnprocessableEntity,
				expectedBody: `{"message":"no copies available"}`,
			},
		},
		{
			name: "err. duplicate pending request",
			body: `{"bookId":1,"type":"PICKUP"}`,
			mockBehavior: func(m mocks) {
				m.request.EXPECT().
					Create(gomock.Any(), "alice", gomock.Any()).
					Return(model.BookRequest{}, errs.ErrConflict)
			},
			response: response{
				expectedCode: http.StatusConflict,
				expectedBody: `{"message":"conflict"}`,
			},
		},
		{
			name: "err. delivery without address",
			body: `{"bookId":1,"type":"DELIVERY"}`,
			mockBehavior: func(m mocks) {
				m.request.EXPECT().
					Create(gomock.Any(), "alice", model.PlaceRequestRequest{BookID: 1, Type: model.RequestDelivery}).
					Return(model.BookRequest{}, errs.ErrAddressRequired)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"address is required for delivery"}`,
			},
		},
		{
			name:         "err. invalid type",
			body:         `{"bookId":1,"type":"CARRIER_PIGEON"}`,
			mockBehavior: func(m mocks) {},
			response: response{
				expectedCode: http.StatusBadRequest,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, m := newTestRouter(t)
			tt.mockBehavior(m)

			w := doJSON(e, http.MethodPost, "/api/v1/requests", tt.body, "alice", auth.RoleMember)

			require.Equal(t, tt.response.expectedCode, w.Code)
			if tt.response.expectedBody != "" {
				require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
			}
		})
	}
}

func TestHandler_PlaceRequest_NoIdentity(t *testing.T) {
	t.Parallel()
	e, _ := newTestRouter(t)
	w := doJSON(e, http.MethodPost, "/api/v1/requests", `{"bookId":1,"type":"PICKUP"}`, "", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandler_CheckOut(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	var tests = []struct {
		name         string
		body         string
		role         string
		mockBehavior func(m mocks)
		response     response
	}{
		{
			name: "ok",
			body: `{"username":"bob","bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().
					CheckOut(gomock.Any(), "bob", 2, "carol").
					Return(model.Loan{
						ID:       1,
						Username: "bob",
						BookID:   2,
						Status:   model.LoanActive,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusCreated,
				expectedBody: `{"id":1,"username":"bob","bookId":2,"borrowedAt":"0001-01-01T00:00:00Z","dueDate":"0001-01-01T00:00:00Z","status":"ACTIVE"}`,
			},
		},
		{
			name: "err. insufficient funds",
			body: `{"username":"bob","bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().
					CheckOut(gomock.Any(), "bob", 2, "carol").
					Return(model.Loan{}, errs.ErrInsufficientFunds)
			},
			response: response{
				expectedCode: http.StatusPaymentRequired,
				expectedBody: `{"message":"insufficient funds"}`,
			},
		},
		{
			name: "err. stock exhausted",
			body: `{"username":"bob","bookId":2}`,
			role: auth.RoleLibrarian,
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().
					CheckOut(gomock.Any(), "bob", 2, "carol").
					Return(model.Loan{}, errs.ErrNoCopies)
			},
			response: response{
				expectedCode: http.StatusUnprocessableEntity,
				expectedBody: `{"message":"no copies available"}`,
			},
		},
		{
			name:         "err. member forbidden",
			body:         `{"username":"bob","bookId":2}`,
			role:         auth.RoleMember,
			mockBehavior: func(m mocks) {},
			response: response{
				expectedCode: http.StatusForbidden,
				expectedBody: `{"message":"librarian role required"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, m := newTestRouter(t)
			tt.mockBehavior(m)

			w := doJSON(e, http.MethodPost, "/api/v1/loans/checkout", tt.body, "carol", tt.role)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_PayFine(t *testing.T) {
	t.Parallel()
	type response struct {
		expectedCode int
		expectedBody string
	}
	var tests = []struct {
		name         string
		target       string
		mockBehavior func(m mocks)
		response     response
	}{
		{
			name:   "ok",
			target: "/api/v1/fines/5/pay",
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().
					PayFine(gomock.Any(), 5, "bob").
					Return(model.Fine{
						ID:       5,
						LoanID:   1,
						Username: "bob",
						Amount:   decimal.NewFromInt(4),
						Type:     model.FineOverdue,
						Paid:     true,
					}, nil)
			},
			response: response{
				expectedCode: http.StatusOK,
				expectedBody: `{"id":5,"loanId":1,"username":"bob","amount":"4","type":"OVERDUE","paid":true,"createdAt":"0001-01-01T00:00:00Z"}`,
			},
		},
		{
			name:   "err. already paid",
			target: "/api/v1/fines/5/pay",
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().
					PayFine(gomock.Any(), 5, "bob").
					Return(model.Fine{}, errs.ErrAlreadyPaid)
			},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"fine already paid"}`,
			},
		},
		{
			name:   "err. someone else's fine",
			target: "/api/v1/fines/7/pay",
			mockBehavior: func(m mocks) {
				m.circulation.EXPECT().
					PayFine(gomock.Any(), 7, "bob").
					Return(model.Fine{}, errs.ErrNotFound)
			},
			response: response{
				expectedCode: http.StatusNotFound,
				expectedBody: `{"message":"not found"}`,
			},
		},
		{
			name:         "err. invalid id",
			target:       "/api/v1/fines/abc/pay",
			mockBehavior: func(m mocks) {},
			response: response{
				expectedCode: http.StatusBadRequest,
				expectedBody: `{"message":"invalid id"}`,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, m := newTestRouter(t)
			tt.mockBehavior(m)

			w := doJSON(e, http.MethodPost, tt.target, "", "bob", auth.RoleMember)

			require.Equal(t, tt.response.expectedCode, w.Code)
			require.Equal(t, tt.response.expectedBody, strings.Trim(w.Body.String(), "\n"))
		})
	}
}

func TestHandler_Deposit(t *testing.T) {
	t.Parallel()
	e, m := newTestRouter(t)
	m.wallet.EXPECT().
		AddFunds(gomock.Any(), "alice", decimal.NewFromInt(50)).
		Return(model.Transaction{
			ID:       1,
			TxnUid:   "0cba2bbb-5ff2-47ee-b073-b1f1a417ff5c",
			Username: "alice",
			Type:     model.TxnDeposit,
			Amount:   decimal.NewFromInt(50),
		}, nil)

	w := doJSON(e, http.MethodPost, "/api/v1/wallet/deposit", `{"amount":"50"}`, "alice", auth.RoleMember)

	require.Equal(t, http.StatusCreated, w.Code)
	require.Equal(t,
		`{"id":1,"txnUid":"0cba2bbb-5ff2-47ee-b073-b1f1a417ff5c","username":"alice","type":"DEPOSIT","amount":"50","createdAt":"0001-01-01T00:00:00Z"}`,
		strings.Trim(w.Body.String(), "\n"))
}

func TestHandler_GetBook_Internal(t *testing.T) {
	t.Parallel()
	e, m := newTestRouter(t)
	m.inventory.EXPECT().
		GetBook(gomock.Any(), 3).
		Return(model.Book{}, errors.New("db internal"))

	w := doJSON(e, http.MethodGet, "/api/v1/books/3", "", "alice", auth.RoleMember)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, `{"message":"internal error"}`, strings.Trim(w.Body.String(), "\n"))
}
