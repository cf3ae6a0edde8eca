package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type ListingKind string

const (
	ListingKindPhysical ListingKind = "physical"
	ListingKindDigital  ListingKind = "digital"
)

func ToListingKind(s string) (ListingKind, error) {
	switch kind := ListingKind(s); kind {
	case ListingKindPhysical, ListingKindDigital:
		return kind, nil
	default:
		return "", errors.New("invalid listing kind")
	}
}

type Book struct {
	ID     uuid.UUID
	Title  string
	Author string

	CreatedAt time.Time
}

// Listing is a seller's offer of a Book. Stock is meaningful for physical
// listings only, FilePath for digital ones only.
type Listing struct {
	ID       uuid.UUID
	BookID   uuid.UUID
	SellerID string
	Kind     ListingKind
	Price    Money
	Stock    int
	FilePath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (l Listing) IsDigital() bool {
	return l.Kind == ListingKindDigital
}
