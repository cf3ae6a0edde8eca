package settlement

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
	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/nikolayk812/booksettle/internal/settlement")

type SubmitItem struct {
	ListingID uuid.UUID
	Quantity  int
	Price     domain.Money
}

type SubmitInput struct {
	BuyerID       string
	Items         []SubmitItem
	Total         domain.Money
	PaymentMethod domain.PaymentMethod
}

type SubmitResult struct {
	OrderID     uuid.UUID
	Status      domain.OrderStatus
	Settlements []domain.ItemSettlement
}

// Intake turns a checked-out cart into a durable order and settles its items.
type Intake struct {
	orders      port.OrderRepository
	listings    port.ListingReader
	payments    port.PaymentRepository
	settlements port.SettlementRepository
	settler     *Settler
	publisher   port.EventPublisher
	logger      *slog.Logger
	now         func() time.Time
}

func NewIntake(
	orders port.OrderRepository,
	listings port.ListingReader,
	payments port.PaymentRepository,
	settlements port.SettlementRepository,
	settler *Settler,
	publisher port.EventPublisher,
	logger *slog.Logger,
) (*Intake, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders is nil")
	}
	if listings == nil {
		return nil, fmt.Errorf("listings is nil")
	}
	if payments == nil {
		return nil, fmt.Errorf("payments is nil")
	}
	if settlements == nil {
		return nil, fmt.Errorf("settlements is nil")
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

	return &Intake{
		orders:      orders,
		listings:    listings,
		payments:    payments,
		settlements: settlements,
		settler:     settler,
		publisher:   publisher,
		logger:      logger,
		now:         time.Now,
	}, nil
}

// Submit validates the cart, persists the order with its items in one transaction,
// then settles every item. Item failures are recorded, not returned.
func (i *Intake) Submit(ctx context.Context, in SubmitInput) (SubmitResult, error) {
	ctx, span := tracer.Start(ctx, "Intake.Submit")
	defer span.End()

	if in.BuyerID == "" {
		return SubmitResult{}, apperrors.ErrUnauthorized
	}

	order, err := i.buildOrder(ctx, in)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return SubmitResult{}, err
	}

	order, err = i.orders.InsertOrder(ctx, order)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrNotFound) {
			return SubmitResult{}, apperrors.Wrap(apperrors.CodeValidation, "listing not found", err)
		}
		return SubmitResult{}, fmt.Errorf("orders.InsertOrder: %w", err)
	}

	span.SetAttributes(attribute.String("order.id", order.ID.String()))

	paymentStatus := domain.PaymentStatusPending
	if order.Status == domain.OrderStatusPaid {
		paymentStatus = domain.PaymentStatusCompleted
	}

	// the order is already durable; the reconciler treats a missing payment as pending
	if _, err := i.payments.InsertPayment(ctx, domain.Payment{OrderID: order.ID, Status: paymentStatus}); err != nil {
		i.logger.Error("failed to open payment", "method", "Submit", "order_id", order.ID, "error", err)
	}

	settlements := i.settler.Settle(ctx, order)

	i.publish(ctx, domain.Event{
		Type:          domain.EventOrderSubmitted,
		OrderID:       order.ID,
		BuyerID:       order.BuyerID,
		OrderStatus:   order.Status,
		PaymentStatus: paymentStatus,
		OccurredAt:    i.now().UTC(),
	})

	i.logger.Info("order submitted", "method", "Submit", "order_id", order.ID, "buyer_id", order.BuyerID,
		"status", order.Status, "items", len(order.Items))

	return SubmitResult{
		OrderID:     order.ID,
		Status:      order.Status,
		Settlements: settlements,
	}, nil
}

// Settlements returns per-item outcomes of the buyer's own order.
func (i *Intake) Settlements(ctx context.Context, buyerID string, orderID uuid.UUID) ([]domain.ItemSettlement, error) {
	if buyerID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	order, err := i.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "order not found", err)
		}
		return nil, fmt.Errorf("orders.GetOrder: %w", err)
	}

	if order.BuyerID != buyerID {
		return nil, apperrors.ErrForbidden
	}

	settlements, err := i.settlements.ListSettlements(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("settlements.ListSettlements: %w", err)
	}

	// a crash between the paid transition and the resume leaves digital items behind
	if order.Status == domain.OrderStatusPaid && hasResumable(order, settlements) {
		resumed, err := i.settler.Resume(ctx, order)
		if err != nil {
			return nil, fmt.Errorf("settler.Resume: %w", err)
		}

		i.logger.Info("settlement resumed", "method", "Settlements", "order_id", order.ID)
		return resumed, nil
	}

	return settlements, nil
}

func hasResumable(order domain.Order, settlements []domain.ItemSettlement) bool {
	items := itemsByID(order)

	return lo.ContainsBy(settlements, func(settlement domain.ItemSettlement) bool {
		item, ok := items[settlement.OrderItemID]
		return ok && item.Kind == domain.ListingKindDigital && resumable(settlement.State)
	})
}

func (i *Intake) ListOrders(ctx context.Context, buyerID string, statuses []domain.OrderStatus) ([]domain.Order, error) {
	if buyerID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	filter := domain.OrderFilter{
		BuyerIDs: []string{buyerID},
		Statuses: statuses,
	}

	if err := filter.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}

	orders, err := i.orders.SearchOrders(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("orders.SearchOrders: %w", err)
	}

	return orders, nil
}

func (i *Intake) buildOrder(ctx context.Context, in SubmitInput) (domain.Order, error) {
	method, err := domain.ToPaymentMethod(string(in.PaymentMethod))
	if err != nil {
		return domain.Order{}, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}

	order := domain.Order{
		BuyerID:       in.BuyerID,
		Total:         in.Total,
		Status:        domain.OrderStatusPending,
		PaymentMethod: method,
		Items:         make([]domain.OrderItem, 0, len(in.Items)),
	}

	if method.CapturedUpFront() {
		order.Status = domain.OrderStatusPaid
	}

	for _, item := range in.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ListingID: item.ListingID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	if err := order.Validate(); err != nil {
		return domain.Order{}, apperrors.Wrap(apperrors.CodeValidation, err.Error(), err)
	}

	// kind is snapshotted from the live listing, price is not
	for idx, item := range order.Items {
		listing, err := i.listings.GetListing(ctx, item.ListingID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.Order{}, apperrors.WithMetadata(apperrors.CodeValidation,
					fmt.Sprintf("item[%d]: listing not found", idx),
					map[string]string{"listing_id": item.ListingID.String()})
			}
			return domain.Order{}, fmt.Errorf("listings.GetListing: %w", err)
		}

		order.Items[idx].Kind = listing.Kind
	}

	return order, nil
}

func (i *Intake) publish(ctx context.Context, event domain.Event) {
	if err := i.publisher.Publish(ctx, event); err != nil {
		i.logger.Warn("failed to publish event", "method", "publish", "type", event.Type,
			"order_id", event.OrderID, "error", err)
	}
}
