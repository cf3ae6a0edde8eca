// Package delivery hands out signed read handles for digital books the viewer owns.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/apperrors"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const DefaultTTL = time.Hour

var tracer = otel.Tracer("github.com/nikolayk812/booksettle/internal/delivery")

type Viewer struct {
	BuyerID string
	Email   string
}

type ReadHandle struct {
	URL       string
	ExpiresAt time.Time
	// Viewer is the email rendered as a watermark by the reader.
	Viewer string
}

type Gate struct {
	library  port.LibraryRepository
	listings port.ListingReader
	signer   port.URLSigner
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewGate(library port.LibraryRepository, listings port.ListingReader, signer port.URLSigner, ttl time.Duration, logger *slog.Logger) (*Gate, error) {
	if library == nil {
		return nil, fmt.Errorf("library is nil")
	}
	if listings == nil {
		return nil, fmt.Errorf("listings is nil")
	}
	if signer == nil {
		return nil, fmt.Errorf("signer is nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Gate{
		library:  library,
		listings: listings,
		signer:   signer,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// GetReadURL checks the viewer's grant before touching the listing, so a viewer
// without access learns nothing about whether the listing exists.
func (g *Gate) GetReadURL(ctx context.Context, viewer Viewer, listingID uuid.UUID) (ReadHandle, error) {
	ctx, span := tracer.Start(ctx, "Gate.GetReadURL")
	defer span.End()

	span.SetAttributes(attribute.String("listing.id", listingID.String()))

	if viewer.BuyerID == "" {
		return ReadHandle{}, apperrors.ErrUnauthorized
	}

	if _, err := g.library.GetAccess(ctx, viewer.BuyerID, listingID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			g.logger.Info("read denied", "method", "GetReadURL", "buyer_id", viewer.BuyerID, "listing_id", listingID)
			return ReadHandle{}, apperrors.ErrAccessDenied
		}
		return ReadHandle{}, fmt.Errorf("library.GetAccess: %w", err)
	}

	listing, err := g.listings.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return ReadHandle{}, apperrors.Wrap(apperrors.CodeNotFound, "book not found", err)
		}
		return ReadHandle{}, fmt.Errorf("listings.GetListing: %w", err)
	}

	if !listing.IsDigital() {
		return ReadHandle{}, apperrors.ErrInvalidType
	}

	if listing.FilePath == "" {
		return ReadHandle{}, apperrors.New(apperrors.CodeNotFound, "book file not found")
	}

	expiresAt := g.now().UTC().Add(g.ttl)

	url, err := g.signer.SignURL(ctx, listing.FilePath, g.ttl)
	if err != nil {
		return ReadHandle{}, fmt.Errorf("signer.SignURL: %w", err)
	}

	return ReadHandle{
		URL:       url,
		ExpiresAt: expiresAt,
		Viewer:    viewer.Email,
	}, nil
}

func (g *Gate) ListLibrary(ctx context.Context, buyerID string) ([]domain.LibraryAccess, error) {
	if buyerID == "" {
		return nil, apperrors.ErrUnauthorized
	}

	library, err := g.library.ListLibrary(ctx, buyerID)
	if err != nil {
		return nil, fmt.Errorf("library.ListLibrary: %w", err)
	}

	return library, nil
}

// UpdateProgress records the last page read on the caller's own grant; it never creates one.
func (g *Gate) UpdateProgress(ctx context.Context, buyerID string, listingID uuid.UUID, lastPageRead int) (domain.LibraryAccess, error) {
	if buyerID == "" {
		return domain.LibraryAccess{}, apperrors.ErrUnauthorized
	}

	if lastPageRead < 0 {
		return domain.LibraryAccess{}, apperrors.New(apperrors.CodeValidation, "last page read must not be negative")
	}

	access, err := g.library.UpdateProgress(ctx, buyerID, listingID, lastPageRead)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.LibraryAccess{}, apperrors.ErrAccessDenied
		}
		return domain.LibraryAccess{}, fmt.Errorf("library.UpdateProgress: %w", err)
	}

	return access, nil
}
