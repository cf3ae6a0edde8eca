package repository

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/booksettle/internal/db"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	"github.com/samber/lo"
)

type orderRepository struct {
	q  *db.Queries
	db db.DBTX
}

func NewOrder(pool *pgxpool.Pool) port.OrderRepository {
	return &orderRepository{
		q:  db.New(pool),
		db: pool,
	}
}

func NewOrderWithTx(tx pgx.Tx) port.OrderRepository {
	return &orderRepository{
		q:  db.New(tx),
		db: tx, // use provided transaction instead
	}
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	var o domain.Order

	order, err := withTx(ctx, r.db, func(q *db.Queries) (domain.Order, error) {
		dbOrder, err := q.GetOrder(ctx, orderID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return o, fmt.Errorf("q.GetOrder: %w", domain.ErrNotFound)
			}
			return o, fmt.Errorf("q.GetOrder: %w", err)
		}

		dbOrderItems, err := q.GetOrderItems(ctx, []uuid.UUID{orderID})
		if err != nil {
			return o, fmt.Errorf("q.GetOrderItems: %w", err)
		}

		domainOrder, err := mapDBOrderToDomain(dbOrder, dbOrderItems)
		if err != nil {
			return o, fmt.Errorf("mapDBOrderToDomain: %w", err)
		}

		return domainOrder, nil
	})
	if err != nil {
		return o, fmt.Errorf("withTx: %w", err)
	}

	return order, nil
}

func (r *orderRepository) InsertOrder(ctx context.Context, order domain.Order) (domain.Order, error) {
	if len(order.Items) == 0 {
		return domain.Order{}, errors.New("no items in order")
	}

	for idx, item := range order.Items {
		if err := item.Validate(); err != nil {
			return domain.Order{}, fmt.Errorf("item[%d]: %w", idx, err)
		}
	}

	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = domain.PaymentMethodGateway
	}
	order.Items = slices.Clone(order.Items)

	inserted, err := withTx(ctx, r.db, func(q *db.Queries) (domain.Order, error) {
		// the order row goes first, every item references it
		row, err := q.InsertOrder(ctx, db.InsertOrderParams{
			BuyerID:       order.BuyerID,
			TotalAmount:   order.Total.Amount,
			TotalCurrency: order.Total.Currency.String(),
			Status:        string(order.Status),
			PaymentMethod: string(order.PaymentMethod),
		})
		if err != nil {
			return domain.Order{}, fmt.Errorf("q.InsertOrder: %w", err)
		}

		order.ID = row.ID
		order.CreatedAt = row.CreatedAt
		order.UpdatedAt = row.CreatedAt

		// TODO: batch insert items with pgx.Batch once carts grow beyond a handful of lines
		for idx, item := range order.Items {
			itemID, err := q.InsertOrderItem(ctx, db.InsertOrderItemParams{
				OrderID:       row.ID,
				LineNo:        int32(idx + 1),
				ListingID:     item.ListingID,
				Kind:          string(item.Kind),
				Quantity:      int32(item.Quantity),
				PriceAmount:   item.Price.Amount,
				PriceCurrency: item.Price.Currency.String(),
			})
			if err != nil {
				if isForeignKeyViolation(err) {
					return domain.Order{}, fmt.Errorf("q.InsertOrderItem[%s]: %w", item.ListingID, domain.ErrNotFound)
				}
				return domain.Order{}, fmt.Errorf("q.InsertOrderItem: %w", err)
			}

			order.Items[idx].ID = itemID
			order.Items[idx].CreatedAt = row.CreatedAt
		}

		return order, nil
	})
	if err != nil {
		return domain.Order{}, fmt.Errorf("withTx: %w", err)
	}

	return inserted, nil
}

func mapDomainOrderFilterToDBFilter(filter domain.OrderFilter) db.SearchOrdersParams {
	statuses := lo.Map(filter.Statuses, func(s domain.OrderStatus, _ int) string {
		return string(s)
	})

	var createdAfter, createdBefore *time.Time

	if filter.CreatedAt != nil {
		createdAfter = filter.CreatedAt.After
		createdBefore = filter.CreatedAt.Before
	}

	return db.SearchOrdersParams{
		Ids:           nilSliceIfEmpty(filter.IDs),
		BuyerIds:      nilSliceIfEmpty(filter.BuyerIDs),
		Statuses:      nilSliceIfEmpty(statuses),
		CreatedAfter:  createdAfter,
		CreatedBefore: createdBefore,
	}
}

func (r *orderRepository) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	dbOrders, err := r.q.SearchOrders(ctx, mapDomainOrderFilterToDBFilter(filter))
	if err != nil {
		return nil, fmt.Errorf("q.SearchOrders: %w", err)
	}

	if len(dbOrders) == 0 {
		return nil, nil
	}

	orderIDs := lo.Map(dbOrders, func(o db.Order, _ int) uuid.UUID {
		return o.ID
	})

	dbItems, err := r.q.GetOrderItems(ctx, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("q.GetOrderItems: %w", err)
	}

	itemsByOrder := lo.GroupBy(dbItems, func(item db.OrderItem) uuid.UUID {
		return item.OrderID
	})

	orders := make([]domain.Order, 0, len(dbOrders))
	for _, dbOrder := range dbOrders {
		order, err := mapDBOrderToDomain(dbOrder, itemsByOrder[dbOrder.ID])
		if err != nil {
			return nil, fmt.Errorf("mapDBOrderToDomain: %w", err)
		}
		orders = append(orders, order)
	}

	return orders, nil
}

func (r *orderRepository) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	if orderID == uuid.Nil {
		return errors.New("orderID is empty")
	}

	if to == "" {
		return errors.New("status is empty")
	}

	if !from.CanTransitionTo(to) {
		return fmt.Errorf("transition %s -> %s is not allowed", from, to)
	}

	cmdTag, err := r.q.UpdateOrderStatus(ctx, db.UpdateOrderStatusParams{
		ToStatus:   string(to),
		ID:         orderID,
		FromStatus: string(from),
	})
	if err != nil {
		return fmt.Errorf("q.UpdateOrderStatus: %w", err)
	}

	if cmdTag.RowsAffected() > 0 {
		return nil
	}

	// distinguish a missing order from one that already moved on
	if _, err := r.q.GetOrder(ctx, orderID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("q.UpdateOrderStatus: %w", domain.ErrNotFound)
		}
		return fmt.Errorf("q.GetOrder: %w", err)
	}

	return fmt.Errorf("q.UpdateOrderStatus: %w", domain.ErrStatusConflict)
}

func mapDBOrderItemToDomain(row db.OrderItem) (domain.OrderItem, error) {
	price, err := toMoney(row.PriceAmount, row.PriceCurrency)
	if err != nil {
		return domain.OrderItem{}, err
	}

	kind, err := domain.ToListingKind(row.Kind)
	if err != nil {
		return domain.OrderItem{}, fmt.Errorf("domain.ToListingKind[%s]: %w", row.Kind, err)
	}

	return domain.OrderItem{
		ID:        row.ID,
		ListingID: row.ListingID,
		Kind:      kind,
		Quantity:  int(row.Quantity),
		Price:     price,
		CreatedAt: row.CreatedAt,
	}, nil
}

func mapDBOrderToDomain(dbOrder db.Order, dbOrderItems []db.OrderItem) (domain.Order, error) {
	var o domain.Order

	items := make([]domain.OrderItem, 0, len(dbOrderItems))
	for _, row := range dbOrderItems {
		item, err := mapDBOrderItemToDomain(row)
		if err != nil {
			return o, fmt.Errorf("mapDBOrderItemToDomain: %w", err)
		}
		items = append(items, item)
	}

	total, err := toMoney(dbOrder.TotalAmount, dbOrder.TotalCurrency)
	if err != nil {
		return o, err
	}

	status, err := domain.ToOrderStatus(dbOrder.Status)
	if err != nil {
		return o, fmt.Errorf("domain.ToOrderStatus[%s]: %w", dbOrder.Status, err)
	}

	method, err := domain.ToPaymentMethod(dbOrder.PaymentMethod)
	if err != nil {
		return o, fmt.Errorf("domain.ToPaymentMethod[%s]: %w", dbOrder.PaymentMethod, err)
	}

	return domain.Order{
		ID:            dbOrder.ID,
		BuyerID:       dbOrder.BuyerID,
		Total:         total,
		Status:        status,
		PaymentMethod: method,
		Items:         items,
		CreatedAt:     dbOrder.CreatedAt,
		UpdatedAt:     dbOrder.UpdatedAt,
	}, nil
}
