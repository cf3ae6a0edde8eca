package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type SettlementState string

const (
	SettlementStateSettled  SettlementState = "settled"
	SettlementStateFailed   SettlementState = "failed"
	SettlementStateDeferred SettlementState = "deferred"
	// SettlementStateReleased marks a physical reservation returned to stock.
	SettlementStateReleased SettlementState = "released"
)

func ToSettlementState(s string) (SettlementState, error) {
	switch state := SettlementState(s); state {
	case SettlementStateSettled, SettlementStateFailed, SettlementStateDeferred, SettlementStateReleased:
		return state, nil
	default:
		return "", errors.New("invalid settlement state")
	}
}

// ItemSettlement is the outcome of applying one order item's side effect.
type ItemSettlement struct {
	OrderItemID uuid.UUID
	OrderID     uuid.UUID
	ListingID   uuid.UUID
	Kind        ListingKind
	Quantity    int
	State       SettlementState
	Attempts    int
	LastError   string

	UpdatedAt time.Time
}

// SettlementComplete reports whether every item reached a final state.
func SettlementComplete(items []ItemSettlement) bool {
	for _, item := range items {
		if item.State != SettlementStateSettled && item.State != SettlementStateReleased {
			return false
		}
	}
	return len(items) > 0
}
