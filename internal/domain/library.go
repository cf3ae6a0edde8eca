package domain

import (
	"time"

	"github.com/google/uuid"
)

// LibraryAccess is a rights grant binding a buyer to a digital listing.
type LibraryAccess struct {
	ID                  uuid.UUID
	BuyerID             string
	ListingID           uuid.UUID
	LastPageRead        int
	CanDownloadSnapshot bool

	CreatedAt time.Time
	UpdatedAt time.Time
}
