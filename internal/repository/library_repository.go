package repository

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/booksettle/internal/db"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
)

type libraryRepository struct {
	q *db.Queries
}

func NewLibrary(pool *pgxpool.Pool) port.LibraryRepository {
	return &libraryRepository{q: db.New(pool)}
}

func NewLibraryWithTx(tx pgx.Tx) port.LibraryRepository {
	return &libraryRepository{q: db.New(tx)}
}

// Grant relies on the unique (buyer_id, listing_id) index: a concurrent or
// repeated grant inserts nothing and reads back the existing row.
func (r *libraryRepository) Grant(ctx context.Context, buyerID string, listingID uuid.UUID) (domain.LibraryAccess, bool, error) {
	if buyerID == "" {
		return domain.LibraryAccess{}, false, errors.New("buyerID is empty")
	}

	if listingID == uuid.Nil {
		return domain.LibraryAccess{}, false, errors.New("listingID is empty")
	}

	row, err := r.q.InsertLibraryAccess(ctx, db.InsertLibraryAccessParams{
		BuyerID:   buyerID,
		ListingID: listingID,
	})
	if err == nil {
		return mapDBLibraryAccessToDomain(row), true, nil
	}

	if isForeignKeyViolation(err) {
		return domain.LibraryAccess{}, false, fmt.Errorf("q.InsertLibraryAccess: %w", domain.ErrNotFound)
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return domain.LibraryAccess{}, false, fmt.Errorf("q.InsertLibraryAccess: %w", err)
	}

	existing, err := r.GetAccess(ctx, buyerID, listingID)
	if err != nil {
		return domain.LibraryAccess{}, false, fmt.Errorf("r.GetAccess: %w", err)
	}

	return existing, false, nil
}

func (r *libraryRepository) GetAccess(ctx context.Context, buyerID string, listingID uuid.UUID) (domain.LibraryAccess, error) {
	row, err := r.q.GetLibraryAccess(ctx, db.GetLibraryAccessParams{
		BuyerID:   buyerID,
		ListingID: listingID,
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LibraryAccess{}, fmt.Errorf("q.GetLibraryAccess: %w", domain.ErrNotFound)
		}
		return domain.LibraryAccess{}, fmt.Errorf("q.GetLibraryAccess: %w", err)
	}

	return mapDBLibraryAccessToDomain(row), nil
}

func (r *libraryRepository) ListLibrary(ctx context.Context, buyerID string) ([]domain.LibraryAccess, error) {
	if buyerID == "" {
		return nil, errors.New("buyerID is empty")
	}

	rows, err := r.q.ListLibraryAccess(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("q.ListLibraryAccess: %w", err)
	}

	result := make([]domain.LibraryAccess, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapDBLibraryAccessToDomain(row))
	}

	return result, nil
}

func (r *libraryRepository) UpdateProgress(ctx context.Context, buyerID string, listingID uuid.UUID, lastPageRead int) (domain.LibraryAccess, error) {
	if lastPageRead < 0 {
		return domain.LibraryAccess{}, fmt.Errorf("lastPageRead[%d] is negative", lastPageRead)
	}
	if lastPageRead > math.MaxInt32 {
		return domain.LibraryAccess{}, fmt.Errorf("lastPageRead[%d] must be at most %d", lastPageRead, math.MaxInt32)
	}

	row, err := r.q.UpdateLastPageRead(ctx, db.UpdateLastPageReadParams{
		BuyerID:      buyerID,
		ListingID:    listingID,
		LastPageRead: int32(lastPageRead),
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LibraryAccess{}, fmt.Errorf("q.UpdateLastPageRead: %w", domain.ErrNotFound)
		}
		return domain.LibraryAccess{}, fmt.Errorf("q.UpdateLastPageRead: %w", err)
	}

	return mapDBLibraryAccessToDomain(row), nil
}

func mapDBLibraryAccessToDomain(row db.LibraryAccess) domain.LibraryAccess {
	return domain.LibraryAccess{
		ID:                  row.ID,
		BuyerID:             row.BuyerID,
		ListingID:           row.ListingID,
		LastPageRead:        int(row.LastPageRead),
		CanDownloadSnapshot: row.CanDownloadSnapshot,
		CreatedAt:           row.CreatedAt,
		UpdatedAt:           row.UpdatedAt,
	}
}
