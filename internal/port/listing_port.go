package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/domain"
)

type ListingReader interface {
	GetListing(ctx context.Context, listingID uuid.UUID) (domain.Listing, error)
}

type ListingRepository interface {
	ListingReader

	GetListings(ctx context.Context, listingIDs []uuid.UUID) ([]domain.Listing, error)

	InsertBook(ctx context.Context, book domain.Book) (uuid.UUID, error)
	InsertListing(ctx context.Context, listing domain.Listing) (uuid.UUID, error)
}

// InventoryLedger adjusts finite physical stock.
type InventoryLedger interface {
	// Decrement atomically reserves quantity units and returns the new stock.
	// It never drives stock below zero.
	Decrement(ctx context.Context, listingID uuid.UUID, quantity int) (int, error)
	Restock(ctx context.Context, listingID uuid.UUID, quantity int) (int, error)
}

type ListingInvalidator interface {
	Invalidate(ctx context.Context, listingIDs ...uuid.UUID) error
}
