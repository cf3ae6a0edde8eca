// Package reconcile converges order and payment state with the payment gateway.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/apperrors"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("github.com/nikolayk812/booksettle/internal/reconcile")

const refundMessage = "payment captured on a closed order, refund pending"

type Result struct {
	Success bool
	Status  domain.PaymentStatus
	Message string
	// RefundRequired marks a captured payment whose order was already closed.
	RefundRequired bool
}

func resultFor(status domain.PaymentStatus) Result {
	return Result{
		Success: status == domain.PaymentStatusCompleted,
		Status:  status,
		Message: status.Message(),
	}
}

// Settler resumes or releases item settlement once an order leaves pending.
type Settler interface {
	Resume(ctx context.Context, order domain.Order) ([]domain.ItemSettlement, error)
	Release(ctx context.Context, order domain.Order) ([]domain.ItemSettlement, error)
}

type Reconciler struct {
	orders    port.OrderRepository
	payments  port.PaymentRepository
	gateway   port.PaymentGateway
	settler   Settler
	publisher port.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func New(
	orders port.OrderRepository,
	payments port.PaymentRepository,
	gateway port.PaymentGateway,
	settler Settler,
	publisher port.EventPublisher,
	logger *slog.Logger,
) (*Reconciler, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders is nil")
	}
	if payments == nil {
		return nil, fmt.Errorf("payments is nil")
	}
	if gateway == nil {
		return nil, fmt.Errorf("gateway is nil")
	}
	if settler == nil {
		return nil, fmt.Errorf("settler is nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{
		orders:    orders,
		payments:  payments,
		gateway:   gateway,
		settler:   settler,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Verify reports the payment status of the buyer's order, querying the gateway
// only while a payment is processing. Gateway trouble never produces a terminal status.
func (r *Reconciler) Verify(ctx context.Context, buyerID string, orderID uuid.UUID) (Result, error) {
	ctx, span := tracer.Start(ctx, "Reconciler.Verify")
	defer span.End()

	span.SetAttributes(attribute.String("order.id", orderID.String()))

	order, err := r.ownedOrder(ctx, buyerID, orderID)
	if err != nil {
		return Result{}, err
	}

	if order.Status == domain.OrderStatusPaid {
		return resultFor(domain.PaymentStatusCompleted), nil
	}

	payment, ok, err := r.currentPayment(ctx, orderID)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return resultFor(domain.PaymentStatusPending), nil
	}

	span.SetAttributes(attribute.String("payment.status", string(payment.Status)))

	switch {
	case payment.Status == domain.PaymentStatusPending:
		return resultFor(domain.PaymentStatusPending), nil
	case payment.Status.IsTerminal():
		// heals a crash between the payment write and the order write
		orderStatus, err := r.applyOrderTransition(ctx, order, payment.Status)
		if err != nil {
			return Result{}, err
		}
		return r.settledResult(order, payment.Status, orderStatus), nil
	default:
		return r.queryGateway(ctx, order, payment)
	}
}

// RecordTransaction binds the provider transaction returned by checkout to the order
// and verifies it immediately.
func (r *Reconciler) RecordTransaction(ctx context.Context, buyerID string, orderID uuid.UUID, providerTransactionID string) (Result, error) {
	ctx, span := tracer.Start(ctx, "Reconciler.RecordTransaction")
	defer span.End()

	if providerTransactionID == "" {
		return Result{}, apperrors.New(apperrors.CodeValidation, "transaction id is empty")
	}

	order, err := r.ownedOrder(ctx, buyerID, orderID)
	if err != nil {
		return Result{}, err
	}

	switch order.Status {
	case domain.OrderStatusPaid:
		return resultFor(domain.PaymentStatusCompleted), nil
	case domain.OrderStatusPending:
	default:
		return Result{}, apperrors.WithMetadata(apperrors.CodeConflict, fmt.Sprintf("order is %s", order.Status),
			map[string]string{"order_id": orderID.String(), "transaction_id": providerTransactionID})
	}

	payment, err := r.payments.AttachTransaction(ctx, orderID, providerTransactionID)
	if err != nil {
		if errors.Is(err, domain.ErrTransactionTaken) {
			return Result{}, apperrors.Wrap(apperrors.CodeValidation, "transaction belongs to another order", err)
		}
		return Result{}, fmt.Errorf("payments.AttachTransaction: %w", err)
	}

	r.logger.Info("transaction attached", "method", "RecordTransaction", "order_id", orderID,
		"payment_id", payment.ID, "status", payment.Status)

	return r.Verify(ctx, buyerID, orderID)
}

func (r *Reconciler) ownedOrder(ctx context.Context, buyerID string, orderID uuid.UUID) (domain.Order, error) {
	if buyerID == "" {
		return domain.Order{}, apperrors.ErrUnauthorized
	}

	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Order{}, apperrors.Wrap(apperrors.CodeNotFound, "order not found", err)
		}
		return domain.Order{}, fmt.Errorf("orders.GetOrder: %w", err)
	}

	if order.BuyerID != buyerID {
		return domain.Order{}, apperrors.ErrForbidden
	}

	return order, nil
}

// currentPayment picks a completed payment if there is one, otherwise the newest.
func (r *Reconciler) currentPayment(ctx context.Context, orderID uuid.UUID) (domain.Payment, bool, error) {
	payments, err := r.payments.ListPayments(ctx, orderID)
	if err != nil {
		return domain.Payment{}, false, fmt.Errorf("payments.ListPayments: %w", err)
	}

	if len(payments) == 0 {
		return domain.Payment{}, false, nil
	}

	for _, payment := range payments {
		if payment.Status == domain.PaymentStatusCompleted {
			return payment, true, nil
		}
	}

	return payments[0], true, nil
}

func (r *Reconciler) queryGateway(ctx context.Context, order domain.Order, payment domain.Payment) (Result, error) {
	if payment.ProviderTransactionID == "" {
		return resultFor(payment.Status), nil
	}

	gs, err := r.gateway.QueryStatus(ctx, payment.ProviderTransactionID)
	if err != nil {
		r.logger.Error("gateway query failed", "method", "queryGateway", "order_id", order.ID,
			"payment_id", payment.ID, "error", err)
		return resultFor(payment.Status), nil
	}

	if gs.TransactionID != payment.ProviderTransactionID || gs.OrderID != order.ID.String() {
		r.logger.Error("gateway transaction does not belong to order", "method", "queryGateway",
			"order_id", order.ID, "payment_id", payment.ID, "transaction_id", payment.ProviderTransactionID,
			"reported_transaction_id", gs.TransactionID, "reported_order_id", gs.OrderID)
		return resultFor(payment.Status), nil
	}

	if gs.Status == domain.PaymentStatusCompleted && !amountMatches(gs, order.Total) {
		r.logger.Error("gateway amount does not match order total", "method", "queryGateway",
			"order_id", order.ID, "payment_id", payment.ID, "total", order.Total.String(),
			"gross_amount", gs.GrossAmount.Decimal.String(), "reported", gs.GrossAmount.Valid)
		return resultFor(payment.Status), nil
	}

	updated, advanced, err := r.payments.AdvanceStatus(ctx, payment.ID, gs.Status)
	if err != nil {
		return Result{}, fmt.Errorf("payments.AdvanceStatus: %w", err)
	}

	if !advanced && updated.Status != gs.Status {
		r.logger.Info("stale gateway status ignored", "method", "queryGateway", "order_id", order.ID,
			"payment_id", payment.ID, "stored", updated.Status, "reported", gs.RawStatus)
	}

	result := resultFor(updated.Status)
	if updated.Status.IsTerminal() {
		orderStatus, err := r.applyOrderTransition(ctx, order, updated.Status)
		if err != nil {
			return Result{}, err
		}
		result = r.settledResult(order, updated.Status, orderStatus)
	}

	if advanced {
		r.publish(ctx, order, domain.EventPaymentStatusChanged, updated.Status)
		if result.RefundRequired {
			r.publish(ctx, order, domain.EventRefundRequired, updated.Status)
		}
	}

	return result, nil
}

// settledResult reports a terminal payment against the order status it produced.
// A completed payment only succeeds when the order actually became paid.
func (r *Reconciler) settledResult(order domain.Order, status domain.PaymentStatus, orderStatus domain.OrderStatus) Result {
	if status != domain.PaymentStatusCompleted || orderStatus == domain.OrderStatusPaid {
		return resultFor(status)
	}

	r.logger.Error("payment captured on a closed order, refund required", "method", "settledResult",
		"order_id", order.ID, "order_status", orderStatus)

	return Result{
		Success:        false,
		Status:         status,
		Message:        refundMessage,
		RefundRequired: true,
	}
}

// applyOrderTransition moves a pending order to paid or cancelled and returns the
// order status that holds afterwards. Only the caller that wins the conditional
// update resumes or releases item settlement.
func (r *Reconciler) applyOrderTransition(ctx context.Context, order domain.Order, status domain.PaymentStatus) (domain.OrderStatus, error) {
	to := domain.OrderStatusCancelled
	if status == domain.PaymentStatusCompleted {
		to = domain.OrderStatusPaid
	}

	err := r.orders.UpdateOrderStatus(ctx, order.ID, domain.OrderStatusPending, to)
	if errors.Is(err, domain.ErrStatusConflict) {
		current, err := r.orders.GetOrder(ctx, order.ID)
		if err != nil {
			return "", fmt.Errorf("orders.GetOrder: %w", err)
		}
		return current.Status, nil
	}
	if err != nil {
		return "", fmt.Errorf("orders.UpdateOrderStatus: %w", err)
	}

	order.Status = to

	r.logger.Info("order status changed", "method", "applyOrderTransition", "order_id", order.ID,
		"status", to, "payment_status", status)

	if to == domain.OrderStatusPaid {
		if _, err := r.settler.Resume(ctx, order); err != nil {
			r.logger.Error("failed to resume settlement", "method", "applyOrderTransition", "order_id", order.ID, "error", err)
		}
		return to, nil
	}

	if _, err := r.settler.Release(ctx, order); err != nil {
		r.logger.Error("failed to release settlement", "method", "applyOrderTransition", "order_id", order.ID, "error", err)
	}

	return to, nil
}

func (r *Reconciler) publish(ctx context.Context, order domain.Order, eventType domain.EventType, status domain.PaymentStatus) {
	event := domain.Event{
		Type:          eventType,
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		PaymentStatus: status,
		OccurredAt:    r.now().UTC(),
	}

	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("failed to publish event", "method", "publish", "type", event.Type,
			"order_id", order.ID, "error", err)
	}
}

func amountMatches(gs domain.GatewayStatus, total domain.Money) bool {
	return gs.GrossAmount.Valid && gs.GrossAmount.Decimal.Equal(total.Amount)
}
