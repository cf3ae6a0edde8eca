package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/delivery"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/httpapi"
	"github.com/nikolayk812/booksettle/internal/memstore"
	"github.com/nikolayk812/booksettle/internal/reconcile"
	"github.com/nikolayk812/booksettle/internal/settlement"
	"github.com/nikolayk812/booksettle/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/currency"
)

var (
	sessionSecret = []byte("session-secret-session-secret-00")
	contentSecret = []byte("content-secret-content-secret-00")
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatewayFunc reports a completed payment for every transaction.
type gatewayFunc func(ctx context.Context, providerTransactionID string) (domain.GatewayStatus, error)

func (f gatewayFunc) QueryStatus(ctx context.Context, providerTransactionID string) (domain.GatewayStatus, error) {
	return f(ctx, providerTransactionID)
}

type fixture struct {
	handler  http.Handler
	store    *memstore.Store
	physical domain.Listing
	digital  domain.Listing
	calls    *atomic.Int32
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := t.Context()

	store := memstore.New()
	recorder := &memstore.EventRecorder{}

	calls := &atomic.Int32{}
	gw := gatewayFunc(func(_ context.Context, txID string) (domain.GatewayStatus, error) {
		calls.Add(1)
		orderID, _ := store.OrderIDByTransaction(txID)
		return domain.GatewayStatus{
			TransactionID: txID,
			OrderID:       orderID.String(),
			Status:        domain.PaymentStatusCompleted,
			RawStatus:     "settlement",
			GrossAmount:   decimal.NewNullDecimal(decimal.RequireFromString("25.00")),
		}, nil
	})

	settler, err := settlement.NewSettler(store, store, store, store, nil)
	require.NoError(t, err)

	intake, err := settlement.NewIntake(store, store, store, store, settler, recorder, nil)
	require.NoError(t, err)

	reconciler, err := reconcile.New(store, store, gw, settler, recorder, nil)
	require.NoError(t, err)

	signer, err := storage.NewSigner("http://books.test/content", contentSecret, nil)
	require.NoError(t, err)

	gate, err := delivery.NewGate(store, store, signer, time.Hour, nil)
	require.NoError(t, err)

	sessions, err := httpapi.NewSessionVerifier(sessionSecret, nil)
	require.NoError(t, err)

	files := fstest.MapFS{"books/neuromancer.epub": {Data: []byte("epub-bytes")}}

	handler, err := httpapi.NewRouter(httpapi.Config{
		Orders:   intake,
		Payments: reconciler,
		Library:  gate,
		Sessions: sessions,
		Content:  storage.ContentHandler(signer, files),
	})
	require.NoError(t, err)

	usd := func(amount string) domain.Money {
		return domain.Money{Amount: decimal.RequireFromString(amount), Currency: currency.USD}
	}

	physical := domain.Listing{SellerID: "seller", Kind: domain.ListingKindPhysical, Price: usd("10.00"), Stock: 5}
	physical.ID, err = store.InsertListing(ctx, physical)
	require.NoError(t, err)

	digital := domain.Listing{SellerID: "seller", Kind: domain.ListingKindDigital, Price: usd("5.00"), FilePath: "books/neuromancer.epub"}
	digital.ID, err = store.InsertListing(ctx, digital)
	require.NoError(t, err)

	return fixture{
		handler:  handler,
		store:    store,
		physical: physical,
		digital:  digital,
		calls:    calls,
	}
}

func sessionToken(t *testing.T, secret []byte, buyerID, email string, expiresAt time.Time) string {
	t.Helper()

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   buyerID,
		"email": email,
		"exp":   expiresAt.Unix(),
	})

	signed, err := token.SignedString(secret)
	require.NoError(t, err)
	return signed
}

func (f fixture) do(t *testing.T, method, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&payload).Encode(body))
	}

	req := httptest.NewRequest(method, target, &payload)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (f fixture) cart() map[string]any {
	return map[string]any{
		"items": []map[string]any{
			{"listing_id": f.physical.ID, "quantity": 2, "price": map[string]string{"amount": "10.00", "currency": "USD"}},
			{"listing_id": f.digital.ID, "quantity": 1, "price": map[string]string{"amount": "5.00", "currency": "USD"}},
		},
		"total":          map[string]string{"amount": "25.00", "currency": "USD"},
		"payment_method": "gateway",
	}
}

func TestSessionRequired(t *testing.T) {
	f := newFixture(t)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token"},
		{name: "garbage token", token: "not-a-jwt"},
		{name: "foreign secret", token: sessionToken(t, []byte("another-secret-another-secret-00"), "buyer", "", future)},
		{name: "expired", token: sessionToken(t, sessionSecret, "buyer", "", time.Now().Add(-time.Minute))},
		{name: "no subject", token: sessionToken(t, sessionSecret, "", "", future)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, http.MethodGet, "/v1/library", tt.token, nil)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)

			body := decode[errorResponse](t, rec)
			assert.Equal(t, "UNAUTHORIZED", body.Error.Code)
		})
	}
}

func TestCheckoutToReading(t *testing.T) {
	f := newFixture(t)

	buyer := sessionToken(t, sessionSecret, "buyer-1", "case@example.com", time.Now().Add(time.Hour))
	stranger := sessionToken(t, sessionSecret, "buyer-2", "molly@example.com", time.Now().Add(time.Hour))

	rec := f.do(t, http.MethodPost, "/v1/orders", buyer, f.cart())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	submitted := decode[struct {
		OrderID     uuid.UUID `json:"order_id"`
		Status      string    `json:"status"`
		Settlements []struct {
			Kind  string `json:"kind"`
			State string `json:"state"`
		} `json:"settlements"`
	}](t, rec)

	assert.Equal(t, "pending", submitted.Status)
	require.Len(t, submitted.Settlements, 2)
	assert.Equal(t, "settled", submitted.Settlements[0].State)
	assert.Equal(t, "deferred", submitted.Settlements[1].State)

	orderPath := "/v1/orders/" + submitted.OrderID.String()

	// no transaction yet: pending without a gateway call
	rec = f.do(t, http.MethodGet, orderPath+"/payment-status", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"success": false, "status": "pending", "message": "awaiting payment"}, decode[map[string]any](t, rec))
	assert.Equal(t, int32(0), f.calls.Load())

	rec = f.do(t, http.MethodGet, orderPath+"/payment-status", stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodPost, orderPath+"/payments", buyer, map[string]string{"transaction_id": "tx-1"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, map[string]any{"success": true, "status": "completed", "message": "payment confirmed"}, decode[map[string]any](t, rec))

	// paid orders short-circuit
	rec = f.do(t, http.MethodGet, orderPath+"/payment-status", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(1), f.calls.Load())

	rec = f.do(t, http.MethodGet, orderPath+"/settlements", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	states := decode[[]struct {
		State string `json:"state"`
	}](t, rec)
	require.Len(t, states, 2)
	assert.Equal(t, "settled", states[0].State)
	assert.Equal(t, "settled", states[1].State)

	rec = f.do(t, http.MethodGet, "/v1/orders?status=paid", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]map[string]any](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/v1/library", buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	library := decode[[]struct {
		ListingID uuid.UUID `json:"listing_id"`
	}](t, rec)
	require.Len(t, library, 1)
	assert.Equal(t, f.digital.ID, library[0].ListingID)

	readPath := "/v1/library/" + f.digital.ID.String() + "/read-url"

	rec = f.do(t, http.MethodGet, readPath, stranger, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "access denied", decode[errorResponse](t, rec).Error.Message)

	rec = f.do(t, http.MethodGet, readPath, buyer, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	handle := decode[struct {
		URL       string    `json:"url"`
		ExpiresAt time.Time `json:"expires_at"`
		Viewer    string    `json:"viewer"`
	}](t, rec)
	assert.Equal(t, "case@example.com", handle.Viewer)
	assert.WithinDuration(t, time.Now().Add(time.Hour), handle.ExpiresAt, time.Minute)

	signed, err := url.Parse(handle.URL)
	require.NoError(t, err)
	assert.Equal(t, "books.test", signed.Host)

	rec = f.do(t, http.MethodGet, signed.RequestURI(), "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "epub-bytes", rec.Body.String())

	rec = f.do(t, http.MethodGet, signed.Path+"?token=forged", "", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	progressPath := "/v1/library/" + f.digital.ID.String() + "/progress"

	rec = f.do(t, http.MethodPut, progressPath, buyer, map[string]int{"last_page_read": 42})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 42, decode[map[string]any](t, rec)["last_page_read"])

	rec = f.do(t, http.MethodPut, progressPath, stranger, map[string]int{"last_page_read": 1})
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, 1, f.store.LibrarySize())
}

func TestRequestErrors(t *testing.T) {
	f := newFixture(t)
	buyer := sessionToken(t, sessionSecret, "buyer-1", "", time.Now().Add(time.Hour))

	overpriced := f.cart()
	overpriced["total"] = map[string]string{"amount": "99.00", "currency": "USD"}

	tests := []struct {
		name     string
		method   string
		target   string
		body     any
		wantCode int
		wantErr  string
		wantMsg  string
	}{
		{
			name:     "unknown order",
			method:   http.MethodGet,
			target:   "/v1/orders/" + uuid.NewString() + "/payment-status",
			wantCode: http.StatusNotFound,
			wantErr:  "NOT_FOUND",
		},
		{
			name:     "malformed order id",
			method:   http.MethodGet,
			target:   "/v1/orders/nope/settlements",
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION",
		},
		{
			name:     "unknown status filter",
			method:   http.MethodGet,
			target:   "/v1/orders?status=shipped",
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION",
			wantMsg:  "status[shipped] is not valid, allowed: cancelled, paid, pending, refunded",
		},
		{
			name:     "total mismatch",
			method:   http.MethodPost,
			target:   "/v1/orders",
			body:     overpriced,
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION",
		},
		{
			name:     "unknown body field",
			method:   http.MethodPost,
			target:   "/v1/orders",
			body:     map[string]any{"buyer_id": "someone-else"},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION",
		},
		{
			name:     "progress without page",
			method:   http.MethodPut,
			target:   "/v1/library/" + f.digital.ID.String() + "/progress",
			body:     map[string]any{},
			wantCode: http.StatusBadRequest,
			wantErr:  "VALIDATION",
		},
		{
			name:     "read url for physical listing without grant",
			method:   http.MethodGet,
			target:   "/v1/library/" + f.physical.ID.String() + "/read-url",
			wantCode: http.StatusForbidden,
			wantErr:  "ACCESS_DENIED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := f.do(t, tt.method, tt.target, buyer, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())

			got := decode[errorResponse](t, rec)
			assert.Equal(t, tt.wantErr, got.Error.Code)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, got.Error.Message)
			}
		})
	}
}
