package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/domain"
)

type PaymentRepository interface {
	InsertPayment(ctx context.Context, payment domain.Payment) (domain.Payment, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error)

	// AttachTransaction binds a provider transaction to the order's pending payment,
	// moving it to processing, or inserts a replacement processing payment.
	AttachTransaction(ctx context.Context, orderID uuid.UUID, providerTransactionID string) (domain.Payment, error)

	// AdvanceStatus applies a monotonic transition. When the stored status is already
	// at or above status, the stored payment is returned with advanced=false.
	AdvanceStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) (domain.Payment, bool, error)
}

type PaymentGateway interface {
	QueryStatus(ctx context.Context, providerTransactionID string) (domain.GatewayStatus, error)
}
