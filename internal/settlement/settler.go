package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	"github.com/samber/lo"
)

const reasonInsufficientStock = "insufficient stock"

// settleFunc applies the side effect of one order item and reports the resulting state.
type settleFunc func(ctx context.Context, order domain.Order, item domain.OrderItem) (domain.SettlementState, error)

// Settler applies per-item side effects of an order and records each outcome.
// One failing item never stops the others.
type Settler struct {
	ledger      port.InventoryLedger
	granter     port.AccessGranter
	settlements port.SettlementRepository
	invalidator port.ListingInvalidator
	logger      *slog.Logger

	strategies map[domain.ListingKind]settleFunc
}

func NewSettler(
	ledger port.InventoryLedger,
	granter port.AccessGranter,
	settlements port.SettlementRepository,
	invalidator port.ListingInvalidator,
	logger *slog.Logger,
) (*Settler, error) {
	if ledger == nil {
		return nil, fmt.Errorf("ledger is nil")
	}
	if granter == nil {
		return nil, fmt.Errorf("granter is nil")
	}
	if settlements == nil {
		return nil, fmt.Errorf("settlements is nil")
	}
	if invalidator == nil {
		return nil, fmt.Errorf("invalidator is nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Settler{
		ledger:      ledger,
		granter:     granter,
		settlements: settlements,
		invalidator: invalidator,
		logger:      logger,
	}

	s.strategies = map[domain.ListingKind]settleFunc{
		domain.ListingKindPhysical: s.settlePhysical,
		domain.ListingKindDigital:  s.settleDigital,
	}

	return s, nil
}

// Settle runs every item of a freshly inserted order through its strategy.
func (s *Settler) Settle(ctx context.Context, order domain.Order) []domain.ItemSettlement {
	results := make([]domain.ItemSettlement, 0, len(order.Items))

	for _, item := range order.Items {
		settle, ok := s.strategies[item.Kind]
		if !ok {
			results = append(results, s.record(ctx, order, item, domain.SettlementStateFailed,
				fmt.Errorf("no settlement strategy for kind %q", item.Kind)))
			continue
		}

		state, err := settle(ctx, order, item)
		results = append(results, s.record(ctx, order, item, state, err))
	}

	return results
}

// Resume grants the digital items of a paid order that were deferred or failed earlier.
// Physical items are never touched, so a resume cannot decrement stock twice.
func (s *Settler) Resume(ctx context.Context, order domain.Order) ([]domain.ItemSettlement, error) {
	if order.Status != domain.OrderStatusPaid {
		return nil, fmt.Errorf("order[%s] is %s, not paid", order.ID, order.Status)
	}

	current, err := s.settlements.ListSettlements(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("settlements.ListSettlements: %w", err)
	}

	items := itemsByID(order)

	results := make([]domain.ItemSettlement, 0, len(current))
	for _, settlement := range current {
		item, ok := items[settlement.OrderItemID]
		if !ok || item.Kind != domain.ListingKindDigital || !resumable(settlement.State) {
			results = append(results, settlement)
			continue
		}

		state, err := s.settleDigital(ctx, order, item)
		results = append(results, s.record(ctx, order, item, state, err))
	}

	return results, nil
}

// Release returns reserved stock of a cancelled order and closes its deferred grants.
func (s *Settler) Release(ctx context.Context, order domain.Order) ([]domain.ItemSettlement, error) {
	current, err := s.settlements.ListSettlements(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("settlements.ListSettlements: %w", err)
	}

	items := itemsByID(order)

	results := make([]domain.ItemSettlement, 0, len(current))
	for _, settlement := range current {
		item, ok := items[settlement.OrderItemID]
		if !ok {
			results = append(results, settlement)
			continue
		}

		switch {
		case item.Kind == domain.ListingKindPhysical && settlement.State == domain.SettlementStateSettled:
			if _, err := s.ledger.Restock(ctx, item.ListingID, item.Quantity); err != nil {
				s.logger.Error("failed to restock", "method", "Release", "order_id", order.ID,
					"listing_id", item.ListingID, "error", err)
				results = append(results, settlement)
				continue
			}
			s.invalidate(ctx, item)
			results = append(results, s.record(ctx, order, item, domain.SettlementStateReleased, nil))
		case item.Kind == domain.ListingKindDigital && settlement.State == domain.SettlementStateDeferred:
			results = append(results, s.record(ctx, order, item, domain.SettlementStateReleased, nil))
		default:
			results = append(results, settlement)
		}
	}

	return results, nil
}

func (s *Settler) settlePhysical(ctx context.Context, _ domain.Order, item domain.OrderItem) (domain.SettlementState, error) {
	stock, err := s.ledger.Decrement(ctx, item.ListingID, item.Quantity)
	if err != nil {
		return domain.SettlementStateFailed, fmt.Errorf("ledger.Decrement: %w", err)
	}

	s.logger.Debug("stock reserved", "method", "settlePhysical", "listing_id", item.ListingID,
		"quantity", item.Quantity, "stock", stock)
	s.invalidate(ctx, item)

	return domain.SettlementStateSettled, nil
}

func (s *Settler) settleDigital(ctx context.Context, order domain.Order, item domain.OrderItem) (domain.SettlementState, error) {
	if order.Status != domain.OrderStatusPaid {
		return domain.SettlementStateDeferred, nil
	}

	_, granted, err := s.granter.Grant(ctx, order.BuyerID, item.ListingID)
	if err != nil {
		return domain.SettlementStateFailed, fmt.Errorf("granter.Grant: %w", err)
	}

	if !granted {
		s.logger.Debug("access already granted", "method", "settleDigital", "buyer_id", order.BuyerID,
			"listing_id", item.ListingID)
	}

	return domain.SettlementStateSettled, nil
}

func (s *Settler) record(ctx context.Context, order domain.Order, item domain.OrderItem, state domain.SettlementState, cause error) domain.ItemSettlement {
	settlement := domain.ItemSettlement{
		OrderItemID: item.ID,
		OrderID:     order.ID,
		ListingID:   item.ListingID,
		Kind:        item.Kind,
		Quantity:    item.Quantity,
		State:       state,
	}

	if cause != nil {
		settlement.LastError = failureReason(cause)
		s.logger.Error("item settlement failed", "method", "record", "order_id", order.ID,
			"order_item_id", item.ID, "listing_id", item.ListingID, "error", cause)
	}

	if err := s.settlements.RecordSettlement(ctx, settlement); err != nil {
		s.logger.Error("failed to record settlement", "method", "record", "order_id", order.ID,
			"order_item_id", item.ID, "state", state, "error", err)
	}

	return settlement
}

func (s *Settler) invalidate(ctx context.Context, item domain.OrderItem) {
	if err := s.invalidator.Invalidate(ctx, item.ListingID); err != nil {
		s.logger.Warn("failed to invalidate listing", "method", "invalidate", "listing_id", item.ListingID, "error", err)
	}
}

func resumable(state domain.SettlementState) bool {
	return state == domain.SettlementStateDeferred || state == domain.SettlementStateFailed
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInsufficientStock):
		return reasonInsufficientStock
	case errors.Is(err, domain.ErrNotFound):
		return "listing not found"
	case errors.Is(err, domain.ErrKindMismatch):
		return "listing kind mismatch"
	default:
		return err.Error()
	}
}

func itemsByID(order domain.Order) map[uuid.UUID]domain.OrderItem {
	return lo.KeyBy(order.Items, func(item domain.OrderItem) uuid.UUID {
		return item.ID
	})
}
