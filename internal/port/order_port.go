package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/domain"
)

type OrderRepository interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error)

	SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error)

	// InsertOrder persists the order and its items atomically and returns it with IDs assigned.
	InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error)

	// UpdateOrderStatus moves the order from one status to another, failing with
	// ErrStatusConflict when the order is no longer in the from status.
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error
}

type SettlementRepository interface {
	RecordSettlement(ctx context.Context, settlement domain.ItemSettlement) error
	ListSettlements(ctx context.Context, orderID uuid.UUID) ([]domain.ItemSettlement, error)
}
