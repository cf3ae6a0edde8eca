package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusCancelled  PaymentStatus = "cancelled"
)

// paymentStatusRanks orders statuses on the monotonic lattice:
// pending < processing < {completed, failed, cancelled}.
var paymentStatusRanks = map[PaymentStatus]int{
	PaymentStatusPending:    0,
	PaymentStatusProcessing: 1,
	PaymentStatusCompleted:  2,
	PaymentStatusFailed:     2,
	PaymentStatusCancelled:  2,
}

var paymentStatusMessages = map[PaymentStatus]string{
	PaymentStatusPending:    "awaiting payment",
	PaymentStatusProcessing: "payment being processed",
	PaymentStatusCompleted:  "payment confirmed",
	PaymentStatusFailed:     "payment failed",
	PaymentStatusCancelled:  "payment cancelled",
}

func ToPaymentStatus(s string) (PaymentStatus, error) {
	status := PaymentStatus(s)
	if _, ok := paymentStatusRanks[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid payment status")
}

func (s PaymentStatus) IsTerminal() bool {
	rank, ok := paymentStatusRanks[s]
	return ok && rank == paymentStatusRanks[PaymentStatusCompleted]
}

// CanAdvanceTo reports whether next is strictly above s on the lattice.
// Terminal statuses never advance.
func (s PaymentStatus) CanAdvanceTo(next PaymentStatus) bool {
	from, ok := paymentStatusRanks[s]
	if !ok {
		return false
	}
	to, ok := paymentStatusRanks[next]
	if !ok {
		return false
	}
	return to > from
}

// Predecessors returns every status that may advance to s.
func (s PaymentStatus) Predecessors() []PaymentStatus {
	var result []PaymentStatus
	for _, status := range []PaymentStatus{PaymentStatusPending, PaymentStatusProcessing} {
		if status.CanAdvanceTo(s) {
			result = append(result, status)
		}
	}
	return result
}

// Message is the buyer-facing description of s.
func (s PaymentStatus) Message() string {
	if msg, ok := paymentStatusMessages[s]; ok {
		return msg
	}
	return "unknown status"
}

type PaymentMethod string

const (
	// PaymentMethodGateway is captured asynchronously by the external gateway.
	PaymentMethodGateway PaymentMethod = "gateway"
	// PaymentMethodBalance is captured by the caller before the order is submitted.
	PaymentMethodBalance PaymentMethod = "balance"
)

func ToPaymentMethod(s string) (PaymentMethod, error) {
	switch method := PaymentMethod(s); method {
	case PaymentMethodGateway, PaymentMethodBalance:
		return method, nil
	case "":
		return PaymentMethodGateway, nil
	default:
		return "", errors.New("invalid payment method")
	}
}

func (m PaymentMethod) CapturedUpFront() bool {
	return m == PaymentMethodBalance
}

type Payment struct {
	ID                    uuid.UUID
	OrderID               uuid.UUID
	ProviderTransactionID string
	Status                PaymentStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// GatewayStatus is the gateway's authoritative view of a transaction,
// already mapped onto the local vocabulary.
type GatewayStatus struct {
	TransactionID string
	// OrderID is the merchant order reference the gateway holds for the transaction.
	OrderID   string
	Status    PaymentStatus
	RawStatus string
	// GrossAmount is invalid when the gateway did not report an amount.
	GrossAmount decimal.NullDecimal
}
