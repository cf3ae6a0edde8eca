package port

import (
	"context"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/domain"
)

// AccessGranter issues digital-rights grants, at most one per (buyer, listing).
type AccessGranter interface {
	// Grant returns granted=false when the buyer already held the grant.
	Grant(ctx context.Context, buyerID string, listingID uuid.UUID) (domain.LibraryAccess, bool, error)
}

type LibraryRepository interface {
	AccessGranter

	GetAccess(ctx context.Context, buyerID string, listingID uuid.UUID) (domain.LibraryAccess, error)
	ListLibrary(ctx context.Context, buyerID string) ([]domain.LibraryAccess, error)
	UpdateProgress(ctx context.Context, buyerID string, listingID uuid.UUID, lastPageRead int) (domain.LibraryAccess, error)
}
