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

type paymentRepository struct {
	q  *db.Queries
	db db.DBTX
}

func NewPayment(pool *pgxpool.Pool) port.PaymentRepository {
	return &paymentRepository{
		q:  db.New(pool),
		db: pool,
	}
}

func NewPaymentWithTx(tx pgx.Tx) port.PaymentRepository {
	return &paymentRepository{
		q:  db.New(tx),
		db: tx,
	}
}

func (r *paymentRepository) InsertPayment(ctx context.Context, payment domain.Payment) (domain.Payment, error) {
	if payment.OrderID == uuid.Nil {
		return domain.Payment{}, errors.New("orderID is empty")
	}

	if payment.Status == "" {
		payment.Status = domain.PaymentStatusPending
	}

	if _, err := domain.ToPaymentStatus(string(payment.Status)); err != nil {
		return domain.Payment{}, fmt.Errorf("status[%s]: %w", payment.Status, err)
	}

	row, err := r.q.InsertPayment(ctx, db.InsertPaymentParams{
		OrderID:               payment.OrderID,
		ProviderTransactionID: lo.EmptyableToPtr(payment.ProviderTransactionID),
		Status:                string(payment.Status),
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.Payment{}, fmt.Errorf("q.InsertPayment: %w", domain.ErrNotFound)
		}
		return domain.Payment{}, fmt.Errorf("q.InsertPayment: %w", err)
	}

	return mapDBPaymentToDomain(row)
}

func (r *paymentRepository) ListPayments(ctx context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	rows, err := r.q.ListPaymentsByOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("q.ListPaymentsByOrder: %w", err)
	}

	payments := make([]domain.Payment, 0, len(rows))
	for _, row := range rows {
		payment, err := mapDBPaymentToDomain(row)
		if err != nil {
			return nil, err
		}
		payments = append(payments, payment)
	}

	return payments, nil
}

func (r *paymentRepository) AttachTransaction(ctx context.Context, orderID uuid.UUID, providerTransactionID string) (domain.Payment, error) {
	if orderID == uuid.Nil {
		return domain.Payment{}, errors.New("orderID is empty")
	}

	if providerTransactionID == "" {
		return domain.Payment{}, errors.New("providerTransactionID is empty")
	}

	row, err := withTx(ctx, r.db, func(q *db.Queries) (db.Payment, error) {
		// a repeated checkout return for the same transaction is a no-op
		existing, err := q.GetPaymentByProviderTransaction(ctx, &providerTransactionID)
		if err == nil {
			return attachedTo(existing, orderID)
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return db.Payment{}, fmt.Errorf("q.GetPaymentByProviderTransaction: %w", err)
		}

		pending, err := q.GetPendingPaymentForUpdate(ctx, orderID)
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return db.Payment{}, fmt.Errorf("q.GetPendingPaymentForUpdate: %w", err)
		}

		if err == nil {
			attached, err := q.AttachPaymentTransaction(ctx, db.AttachPaymentTransactionParams{
				ProviderTransactionID: &providerTransactionID,
				ID:                    pending.ID,
			})
			if err != nil {
				return db.Payment{}, fmt.Errorf("q.AttachPaymentTransaction: %w", err)
			}
			return attached, nil
		}

		// no pending row: a retry after a failed attempt gets a replacement payment
		inserted, err := q.InsertPayment(ctx, db.InsertPaymentParams{
			OrderID:               orderID,
			ProviderTransactionID: &providerTransactionID,
			Status:                string(domain.PaymentStatusProcessing),
		})
		if err != nil {
			if isForeignKeyViolation(err) {
				return db.Payment{}, fmt.Errorf("q.InsertPayment: %w", domain.ErrNotFound)
			}
			return db.Payment{}, fmt.Errorf("q.InsertPayment: %w", err)
		}
		return inserted, nil
	})
	if isUniqueViolation(err) {
		// a concurrent attach of the same transaction committed first
		row, err = r.attachedPayment(ctx, orderID, providerTransactionID)
	}
	if err != nil {
		return domain.Payment{}, fmt.Errorf("withTx: %w", err)
	}

	return mapDBPaymentToDomain(row)
}

func (r *paymentRepository) attachedPayment(ctx context.Context, orderID uuid.UUID, providerTransactionID string) (db.Payment, error) {
	existing, err := r.q.GetPaymentByProviderTransaction(ctx, &providerTransactionID)
	if err != nil {
		return db.Payment{}, fmt.Errorf("q.GetPaymentByProviderTransaction: %w", err)
	}

	return attachedTo(existing, orderID)
}

func attachedTo(payment db.Payment, orderID uuid.UUID) (db.Payment, error) {
	if payment.OrderID != orderID {
		return db.Payment{}, domain.ErrTransactionTaken
	}
	return payment, nil
}

func (r *paymentRepository) AdvanceStatus(ctx context.Context, paymentID uuid.UUID, status domain.PaymentStatus) (domain.Payment, bool, error) {
	if _, err := domain.ToPaymentStatus(string(status)); err != nil {
		return domain.Payment{}, false, fmt.Errorf("status[%s]: %w", status, err)
	}

	from := lo.Map(status.Predecessors(), func(s domain.PaymentStatus, _ int) string {
		return string(s)
	})

	if len(from) > 0 {
		row, err := r.q.AdvancePaymentStatus(ctx, db.AdvancePaymentStatusParams{
			Status:       string(status),
			ID:           paymentID,
			FromStatuses: from,
		})
		if err == nil {
			payment, err := mapDBPaymentToDomain(row)
			return payment, err == nil, err
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, false, fmt.Errorf("q.AdvancePaymentStatus: %w", err)
		}
	}

	// stored status is already at or beyond the requested one
	row, err := r.q.GetPayment(ctx, paymentID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Payment{}, false, fmt.Errorf("q.GetPayment: %w", domain.ErrNotFound)
		}
		return domain.Payment{}, false, fmt.Errorf("q.GetPayment: %w", err)
	}

	payment, err := mapDBPaymentToDomain(row)
	return payment, false, err
}

func mapDBPaymentToDomain(row db.Payment) (domain.Payment, error) {
	status, err := domain.ToPaymentStatus(row.Status)
	if err != nil {
		return domain.Payment{}, fmt.Errorf("domain.ToPaymentStatus[%s]: %w", row.Status, err)
	}

	return domain.Payment{
		ID:                    row.ID,
		OrderID:               row.OrderID,
		ProviderTransactionID: lo.FromPtr(row.ProviderTransactionID),
		Status:                status,
		CreatedAt:             row.CreatedAt,
		UpdatedAt:             row.UpdatedAt,
	}, nil
}
