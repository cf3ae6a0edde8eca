package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/booksettle/internal/db"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	"github.com/samber/lo"
)

const settlementNotRecorded = "settlement not recorded"

type settlementRepository struct {
	q *db.Queries
}

func NewSettlement(pool *pgxpool.Pool) port.SettlementRepository {
	return &settlementRepository{q: db.New(pool)}
}

func NewSettlementWithTx(tx pgx.Tx) port.SettlementRepository {
	return &settlementRepository{q: db.New(tx)}
}

func (r *settlementRepository) RecordSettlement(ctx context.Context, settlement domain.ItemSettlement) error {
	if settlement.OrderItemID == uuid.Nil {
		return errors.New("orderItemID is empty")
	}

	if _, err := domain.ToSettlementState(string(settlement.State)); err != nil {
		return fmt.Errorf("state[%s]: %w", settlement.State, err)
	}

	if err := r.q.UpsertItemSettlement(ctx, db.UpsertItemSettlementParams{
		OrderItemID: settlement.OrderItemID,
		OrderID:     settlement.OrderID,
		State:       string(settlement.State),
		LastError:   settlement.LastError,
	}); err != nil {
		return fmt.Errorf("q.UpsertItemSettlement: %w", err)
	}

	return nil
}

// ListSettlements returns one entry per order item; items whose outcome was
// never written are reported as failed.
func (r *settlementRepository) ListSettlements(ctx context.Context, orderID uuid.UUID) ([]domain.ItemSettlement, error) {
	rows, err := r.q.GetItemSettlements(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("q.GetItemSettlements: %w", err)
	}

	result := make([]domain.ItemSettlement, 0, len(rows))
	for _, row := range rows {
		settlement, err := mapGetItemSettlementsRowToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("mapGetItemSettlementsRowToDomain: %w", err)
		}
		result = append(result, settlement)
	}

	return result, nil
}

func mapGetItemSettlementsRowToDomain(row db.GetItemSettlementsRow) (domain.ItemSettlement, error) {
	kind, err := domain.ToListingKind(row.Kind)
	if err != nil {
		return domain.ItemSettlement{}, fmt.Errorf("domain.ToListingKind[%s]: %w", row.Kind, err)
	}

	settlement := domain.ItemSettlement{
		OrderItemID: row.OrderItemID,
		OrderID:     row.OrderID,
		ListingID:   row.ListingID,
		Kind:        kind,
		Quantity:    int(row.Quantity),
		Attempts:    int(lo.FromPtr(row.Attempts)),
		LastError:   lo.FromPtr(row.LastError),
		UpdatedAt:   lo.FromPtr(row.UpdatedAt),
	}

	if row.State == nil {
		settlement.State = domain.SettlementStateFailed
		settlement.LastError = settlementNotRecorded
		return settlement, nil
	}

	settlement.State, err = domain.ToSettlementState(*row.State)
	if err != nil {
		return domain.ItemSettlement{}, fmt.Errorf("domain.ToSettlementState[%s]: %w", *row.State, err)
	}

	return settlement, nil
}
