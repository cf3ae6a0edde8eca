package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/apperrors"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/memstore"
	"github.com/nikolayk812/booksettle/internal/reconcile"
	"github.com/nikolayk812/booksettle/internal/settlement"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/text/currency"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeGateway replays scripted responses, repeating the last one. Responses without
// a transaction or order reference echo the stored binding.
type fakeGateway struct {
	store *memstore.Store

	mu        sync.Mutex
	responses []gatewayResponse
	calls     int
}

type gatewayResponse struct {
	status domain.GatewayStatus
	err    error
}

func (g *fakeGateway) QueryStatus(_ context.Context, providerTransactionID string) (domain.GatewayStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.calls++

	if len(g.responses) == 0 {
		return domain.GatewayStatus{}, errors.New("no scripted response")
	}

	resp := g.responses[0]
	if len(g.responses) > 1 {
		g.responses = g.responses[1:]
	}

	if resp.status.TransactionID == "" {
		resp.status.TransactionID = providerTransactionID
	}
	if resp.status.OrderID == "" {
		if orderID, ok := g.store.OrderIDByTransaction(providerTransactionID); ok {
			resp.status.OrderID = orderID.String()
		}
	}
	return resp.status, resp.err
}

func (g *fakeGateway) script(responses ...gatewayResponse) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.responses = responses
}

func (g *fakeGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func reported(status domain.PaymentStatus, amount string) gatewayResponse {
	gs := domain.GatewayStatus{Status: status, RawStatus: string(status)}
	if amount != "" {
		gs.GrossAmount = decimal.NewNullDecimal(decimal.RequireFromString(amount))
	}
	return gatewayResponse{status: gs}
}

type fixture struct {
	store      *memstore.Store
	gateway    *fakeGateway
	recorder   *memstore.EventRecorder
	intake     *settlement.Intake
	reconciler *reconcile.Reconciler
	physical   domain.Listing
	digital    domain.Listing
	buyerID    string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := t.Context()

	store := memstore.New()
	gw := &fakeGateway{store: store}
	recorder := &memstore.EventRecorder{}

	settler, err := settlement.NewSettler(store, store, store, store, nil)
	require.NoError(t, err)

	intake, err := settlement.NewIntake(store, store, store, store, settler, recorder, nil)
	require.NoError(t, err)

	reconciler, err := reconcile.New(store, store, gw, settler, recorder, nil)
	require.NoError(t, err)

	bookID, err := store.InsertBook(ctx, domain.Book{Title: "Solaris", Author: "Stanisław Lem"})
	require.NoError(t, err)

	physical := domain.Listing{BookID: bookID, SellerID: "seller", Kind: domain.ListingKindPhysical, Price: usd("10.00"), Stock: 3}
	physical.ID, err = store.InsertListing(ctx, physical)
	require.NoError(t, err)

	digital := domain.Listing{BookID: bookID, SellerID: "seller", Kind: domain.ListingKindDigital, Price: usd("5.00"), FilePath: "books/solaris.epub"}
	digital.ID, err = store.InsertListing(ctx, digital)
	require.NoError(t, err)

	return fixture{
		store:      store,
		gateway:    gw,
		recorder:   recorder,
		intake:     intake,
		reconciler: reconciler,
		physical:   physical,
		digital:    digital,
		buyerID:    uuid.NewString(),
	}
}

// submit places a gateway order for 2 physical + 1 digital, total 25.00 USD.
func (f fixture) submit(t *testing.T, method domain.PaymentMethod) uuid.UUID {
	t.Helper()

	result, err := f.intake.Submit(t.Context(), settlement.SubmitInput{
		BuyerID: f.buyerID,
		Items: []settlement.SubmitItem{
			{ListingID: f.physical.ID, Quantity: 2, Price: f.physical.Price},
			{ListingID: f.digital.ID, Quantity: 1, Price: f.digital.Price},
		},
		Total:         usd("25.00"),
		PaymentMethod: method,
	})
	require.NoError(t, err)

	return result.OrderID
}

func (f fixture) orderStatus(t *testing.T, orderID uuid.UUID) domain.OrderStatus {
	t.Helper()

	order, err := f.store.GetOrder(t.Context(), orderID)
	require.NoError(t, err)
	return order.Status
}

func (f fixture) stock(t *testing.T) int {
	t.Helper()

	listing, err := f.store.GetListing(t.Context(), f.physical.ID)
	require.NoError(t, err)
	return listing.Stock
}

func TestVerifyPaidOrderShortCircuits(t *testing.T) {
	f := newFixture(t)

	orderID := f.submit(t, domain.PaymentMethodBalance)

	result, err := f.reconciler.Verify(t.Context(), f.buyerID, orderID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Success: true, Status: domain.PaymentStatusCompleted, Message: "payment confirmed"}, result)
	assert.Equal(t, 0, f.gateway.Calls())
}

func TestVerifyPendingWithoutGatewayCall(t *testing.T) {
	f := newFixture(t)

	orderID := f.submit(t, domain.PaymentMethodGateway)

	result, err := f.reconciler.Verify(t.Context(), f.buyerID, orderID)
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Status: domain.PaymentStatusPending, Message: "awaiting payment"}, result)
	assert.Equal(t, 0, f.gateway.Calls())
}

func TestVerifyAccess(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)

	_, err := f.reconciler.Verify(ctx, "intruder", orderID)
	require.ErrorIs(t, err, apperrors.ErrForbidden)

	_, err = f.reconciler.Verify(ctx, f.buyerID, uuid.New())
	require.ErrorIs(t, err, apperrors.ErrNotFound)

	_, err = f.reconciler.Verify(ctx, "", orderID)
	require.ErrorIs(t, err, apperrors.ErrUnauthorized)

	assert.Equal(t, 0, f.gateway.Calls())
}

func TestRecordTransactionCompletes(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)
	assert.Equal(t, 1, f.stock(t))
	assert.Equal(t, 0, f.store.LibrarySize())

	f.gateway.script(reported(domain.PaymentStatusCompleted, "25.00"))

	result, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Success: true, Status: domain.PaymentStatusCompleted, Message: "payment confirmed"}, result)

	assert.Equal(t, domain.OrderStatusPaid, f.orderStatus(t, orderID))
	assert.Equal(t, 1, f.store.LibrarySize())
	assert.Equal(t, 1, f.stock(t))

	settlements, err := f.intake.Settlements(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.True(t, domain.SettlementComplete(settlements))

	published := f.recorder.Events()
	require.Len(t, published, 2)
	assert.Equal(t, domain.EventPaymentStatusChanged, published[1].Type)
	assert.Equal(t, domain.PaymentStatusCompleted, published[1].PaymentStatus)

	// paid orders never reach the gateway again
	_, err = f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.gateway.Calls())
}

func TestVerifyRepeatedProcessingHasNoSideEffects(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)
	f.gateway.script(
		reported(domain.PaymentStatusProcessing, ""),
		reported(domain.PaymentStatusProcessing, ""),
		reported(domain.PaymentStatusCompleted, "25.00"),
	)

	for range 2 {
		result, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
		require.NoError(t, err)
		assert.Equal(t, domain.PaymentStatusProcessing, result.Status)
		assert.False(t, result.Success)
	}

	assert.Equal(t, domain.OrderStatusPending, f.orderStatus(t, orderID))
	assert.Equal(t, 0, f.store.LibrarySize())

	payments, err := f.store.ListPayments(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, domain.PaymentStatusProcessing, payments[0].Status)

	result, err := f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.True(t, result.Success)

	grants := f.store.GrantCalls()
	decrements := f.store.DecrementCalls()

	_, err = f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)

	assert.Equal(t, grants, f.store.GrantCalls())
	assert.Equal(t, decrements, f.store.DecrementCalls())
	assert.Equal(t, 1, f.store.LibrarySize())
	assert.Equal(t, 3, f.gateway.Calls())
}

func TestVerifyGatewayErrorKeepsNonTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)
	f.gateway.script(gatewayResponse{err: apperrors.Wrap(apperrors.CodeUpstream, "payment gateway unavailable", errors.New("timeout"))})

	result, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Status: domain.PaymentStatusProcessing, Message: "payment being processed"}, result)
	assert.Equal(t, domain.OrderStatusPending, f.orderStatus(t, orderID))
}

func TestVerifyAmountMismatchNotPaid(t *testing.T) {
	tests := []struct {
		name   string
		amount string
	}{
		{name: "lower amount", amount: "1.00"},
		{name: "missing amount", amount: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			orderID := f.submit(t, domain.PaymentMethodGateway)
			f.gateway.script(reported(domain.PaymentStatusCompleted, tt.amount))

			result, err := f.reconciler.RecordTransaction(t.Context(), f.buyerID, orderID, "tx-1")
			require.NoError(t, err)
			assert.False(t, result.Success)
			assert.Equal(t, domain.PaymentStatusProcessing, result.Status)
			assert.Equal(t, domain.OrderStatusPending, f.orderStatus(t, orderID))
			assert.Equal(t, 0, f.store.LibrarySize())
		})
	}
}

func TestVerifyFailureReleasesStock(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)
	require.Equal(t, 1, f.stock(t))

	f.gateway.script(reported(domain.PaymentStatusFailed, ""))

	result, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, reconcile.Result{Status: domain.PaymentStatusFailed, Message: "payment failed"}, result)

	assert.Equal(t, domain.OrderStatusCancelled, f.orderStatus(t, orderID))
	assert.Equal(t, 3, f.stock(t))
	assert.Equal(t, 0, f.store.LibrarySize())

	// a late success never overwrites the terminal status
	f.gateway.script(reported(domain.PaymentStatusCompleted, "25.00"))

	result, err = f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusFailed, result.Status)
	assert.Equal(t, 1, f.gateway.Calls())
	assert.Equal(t, 3, f.stock(t))
}

func TestRecordTransactionRejectsClosedOrder(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)
	f.gateway.script(reported(domain.PaymentStatusFailed, ""))

	result, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusFailed, result.Status)
	require.Equal(t, domain.OrderStatusCancelled, f.orderStatus(t, orderID))

	// a retry with a new transaction after cancellation
	f.gateway.script(reported(domain.PaymentStatusCompleted, "25.00"))

	_, err = f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-2")
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConflict, apperrors.CodeOf(err))
	assert.EqualError(t, err, "order is cancelled")

	assert.Equal(t, domain.OrderStatusCancelled, f.orderStatus(t, orderID))
	assert.Equal(t, 0, f.store.LibrarySize())
	assert.Equal(t, 3, f.stock(t))
	assert.Equal(t, 1, f.gateway.Calls())

	payments, err := f.store.ListPayments(ctx, orderID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, "tx-1", payments[0].ProviderTransactionID)
}

func TestVerifyCaptureOnClosedOrderRequiresRefund(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)
	f.gateway.script(reported(domain.PaymentStatusFailed, ""))

	_, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, f.orderStatus(t, orderID))

	// tx-2 passed the pending check before the cancellation landed
	_, err = f.store.AttachTransaction(ctx, orderID, "tx-2")
	require.NoError(t, err)

	f.gateway.script(reported(domain.PaymentStatusCompleted, "25.00"))

	want := reconcile.Result{
		Status:         domain.PaymentStatusCompleted,
		Message:        "payment captured on a closed order, refund pending",
		RefundRequired: true,
	}

	result, err := f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.Equal(t, want, result)

	assert.Equal(t, domain.OrderStatusCancelled, f.orderStatus(t, orderID))
	assert.Equal(t, 0, f.store.LibrarySize())
	assert.Equal(t, 3, f.stock(t))

	published := f.recorder.Events()
	require.GreaterOrEqual(t, len(published), 2)
	last := published[len(published)-2:]
	assert.Equal(t, domain.EventPaymentStatusChanged, last[0].Type)
	assert.Equal(t, domain.EventRefundRequired, last[1].Type)
	assert.Equal(t, orderID, last[1].OrderID)

	// the completed payment is reported the same way without another gateway call
	result, err = f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.Equal(t, want, result)
	assert.Equal(t, 2, f.gateway.Calls())
	assert.Len(t, f.recorder.Events(), len(published))
}

func TestVerifyIgnoresReportForOtherOrder(t *testing.T) {
	tests := []struct {
		name     string
		override func(gs *domain.GatewayStatus)
	}{
		{
			name:     "other order id",
			override: func(gs *domain.GatewayStatus) { gs.OrderID = uuid.NewString() },
		},
		{
			name:     "other transaction id",
			override: func(gs *domain.GatewayStatus) { gs.TransactionID = "tx-other" },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			ctx := t.Context()

			orderID := f.submit(t, domain.PaymentMethodGateway)

			resp := reported(domain.PaymentStatusCompleted, "25.00")
			tt.override(&resp.status)
			f.gateway.script(resp)

			result, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
			require.NoError(t, err)
			assert.Equal(t, reconcile.Result{Status: domain.PaymentStatusProcessing, Message: "payment being processed"}, result)
			assert.Equal(t, domain.OrderStatusPending, f.orderStatus(t, orderID))
			assert.Equal(t, 0, f.store.LibrarySize())

			payments, err := f.store.ListPayments(ctx, orderID)
			require.NoError(t, err)
			require.Len(t, payments, 1)
			assert.Equal(t, domain.PaymentStatusProcessing, payments[0].Status)
		})
	}
}

func TestVerifyUnknownVocabularyIsUpstream(t *testing.T) {
	f := newFixture(t)

	orderID := f.submit(t, domain.PaymentMethodGateway)
	f.gateway.script(gatewayResponse{err: apperrors.New(apperrors.CodeUpstream, `unknown gateway status "chargeback"`)})

	result, err := f.reconciler.RecordTransaction(t.Context(), f.buyerID, orderID, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusProcessing, result.Status)
}

func TestVerifyHealsTerminalPayment(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)

	// payment completed, process died before the order write
	payment, err := f.store.AttachTransaction(ctx, orderID, "tx-1")
	require.NoError(t, err)
	_, advanced, err := f.store.AdvanceStatus(ctx, payment.ID, domain.PaymentStatusCompleted)
	require.NoError(t, err)
	require.True(t, advanced)

	result, err := f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 0, f.gateway.Calls())
	assert.Equal(t, domain.OrderStatusPaid, f.orderStatus(t, orderID))
	assert.Equal(t, 1, f.store.LibrarySize())
}

func TestVerifyCompletedPaymentWins(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)

	first, err := f.store.AttachTransaction(ctx, orderID, "tx-1")
	require.NoError(t, err)
	_, _, err = f.store.AdvanceStatus(ctx, first.ID, domain.PaymentStatusCompleted)
	require.NoError(t, err)

	// newer failed retry
	second, err := f.store.AttachTransaction(ctx, orderID, "tx-2")
	require.NoError(t, err)
	_, _, err = f.store.AdvanceStatus(ctx, second.ID, domain.PaymentStatusFailed)
	require.NoError(t, err)

	result, err := f.reconciler.Verify(ctx, f.buyerID, orderID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusCompleted, result.Status)
	assert.Equal(t, domain.OrderStatusPaid, f.orderStatus(t, orderID))
}

func TestRecordTransactionErrors(t *testing.T) {
	f := newFixture(t)
	ctx := t.Context()

	orderID := f.submit(t, domain.PaymentMethodGateway)
	otherID := f.submit(t, domain.PaymentMethodGateway)

	_, err := f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))

	f.gateway.script(reported(domain.PaymentStatusProcessing, ""))
	_, err = f.reconciler.RecordTransaction(ctx, f.buyerID, orderID, "tx-1")
	require.NoError(t, err)

	_, err = f.reconciler.RecordTransaction(ctx, f.buyerID, otherID, "tx-1")
	assert.Equal(t, apperrors.CodeValidation, apperrors.CodeOf(err))
	require.ErrorIs(t, err, domain.ErrTransactionTaken)

	_, err = f.reconciler.RecordTransaction(ctx, "intruder", orderID, "tx-9")
	require.ErrorIs(t, err, apperrors.ErrForbidden)
}

func usd(amount string) domain.Money {
	return domain.Money{Amount: decimal.RequireFromString(amount), Currency: currency.USD}
}
