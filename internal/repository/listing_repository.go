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
	"github.com/samber/lo"
)

// ListingRepository reads listings and acts as the inventory ledger for physical stock.
type ListingRepository struct {
	q *db.Queries
}

func NewListing(pool *pgxpool.Pool) *ListingRepository {
	return &ListingRepository{q: db.New(pool)}
}

func NewListingWithTx(tx pgx.Tx) *ListingRepository {
	return &ListingRepository{q: db.New(tx)}
}

func (r *ListingRepository) GetListing(ctx context.Context, listingID uuid.UUID) (domain.Listing, error) {
	row, err := r.q.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Listing{}, fmt.Errorf("q.GetListing: %w", domain.ErrNotFound)
		}
		return domain.Listing{}, fmt.Errorf("q.GetListing: %w", err)
	}

	listing, err := mapDBListingToDomain(row)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("mapDBListingToDomain: %w", err)
	}

	return listing, nil
}

func (r *ListingRepository) GetListings(ctx context.Context, listingIDs []uuid.UUID) ([]domain.Listing, error) {
	if len(listingIDs) == 0 {
		return nil, nil
	}

	rows, err := r.q.GetListings(ctx, lo.Uniq(listingIDs))
	if err != nil {
		return nil, fmt.Errorf("q.GetListings: %w", err)
	}

	listings := make([]domain.Listing, 0, len(rows))
	for _, row := range rows {
		listing, err := mapDBListingToDomain(row)
		if err != nil {
			return nil, fmt.Errorf("mapDBListingToDomain: %w", err)
		}
		listings = append(listings, listing)
	}

	return listings, nil
}

func (r *ListingRepository) InsertBook(ctx context.Context, book domain.Book) (uuid.UUID, error) {
	if book.Title == "" {
		return uuid.Nil, errors.New("title is empty")
	}

	id, err := r.q.InsertBook(ctx, db.InsertBookParams{
		Title:  book.Title,
		Author: book.Author,
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("q.InsertBook: %w", err)
	}

	return id, nil
}

func (r *ListingRepository) InsertListing(ctx context.Context, listing domain.Listing) (uuid.UUID, error) {
	if _, err := domain.ToListingKind(string(listing.Kind)); err != nil {
		return uuid.Nil, fmt.Errorf("kind[%s]: %w", listing.Kind, err)
	}

	if err := listing.Price.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("price: %w", err)
	}

	if listing.Stock < 0 {
		return uuid.Nil, errors.New("stock is negative")
	}
	if listing.Stock > math.MaxInt32 {
		return uuid.Nil, fmt.Errorf("stock[%d] must be at most %d", listing.Stock, math.MaxInt32)
	}

	if listing.IsDigital() && listing.FilePath == "" {
		return uuid.Nil, errors.New("digital listing requires a file path")
	}

	id, err := r.q.InsertListing(ctx, db.InsertListingParams{
		BookID:        listing.BookID,
		SellerID:      listing.SellerID,
		Kind:          string(listing.Kind),
		PriceAmount:   listing.Price.Amount,
		PriceCurrency: listing.Price.Currency.String(),
		Stock:         int32(listing.Stock),
		FilePath:      lo.EmptyableToPtr(listing.FilePath),
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return uuid.Nil, fmt.Errorf("q.InsertListing: book: %w", domain.ErrNotFound)
		}
		return uuid.Nil, fmt.Errorf("q.InsertListing: %w", err)
	}

	return id, nil
}

// Decrement reserves quantity units with a single conditional update, so
// concurrent buyers can never reserve more than the stock on hand.
func (r *ListingRepository) Decrement(ctx context.Context, listingID uuid.UUID, quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("quantity[%d] must be at least 1", quantity)
	}
	if quantity > math.MaxInt32 {
		return 0, fmt.Errorf("quantity[%d] must be at most %d", quantity, math.MaxInt32)
	}

	stock, err := r.q.DecrementStock(ctx, db.DecrementStockParams{
		Quantity: int32(quantity),
		ID:       listingID,
	})
	if err == nil {
		return int(stock), nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("q.DecrementStock: %w", err)
	}

	if err := r.explainMiss(ctx, listingID); err != nil {
		return 0, fmt.Errorf("q.DecrementStock: %w", err)
	}

	return 0, fmt.Errorf("q.DecrementStock: %w", domain.ErrInsufficientStock)
}

func (r *ListingRepository) Restock(ctx context.Context, listingID uuid.UUID, quantity int) (int, error) {
	if quantity < 1 {
		return 0, fmt.Errorf("quantity[%d] must be at least 1", quantity)
	}
	if quantity > math.MaxInt32 {
		return 0, fmt.Errorf("quantity[%d] must be at most %d", quantity, math.MaxInt32)
	}

	stock, err := r.q.RestockListing(ctx, db.RestockListingParams{
		Quantity: int32(quantity),
		ID:       listingID,
	})
	if err == nil {
		return int(stock), nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("q.RestockListing: %w", err)
	}

	if err := r.explainMiss(ctx, listingID); err != nil {
		return 0, fmt.Errorf("q.RestockListing: %w", err)
	}

	return 0, fmt.Errorf("q.RestockListing: %w", domain.ErrNotFound)
}

// explainMiss reports why a conditional stock update matched no row:
// the listing is absent or is not physical. nil means the guard on stock failed.
func (r *ListingRepository) explainMiss(ctx context.Context, listingID uuid.UUID) error {
	row, err := r.q.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}

	if row.Kind != string(domain.ListingKindPhysical) {
		return fmt.Errorf("listing[%s] is %s: %w", listingID, row.Kind, domain.ErrKindMismatch)
	}

	return nil
}

func mapDBListingToDomain(row db.Listing) (domain.Listing, error) {
	price, err := toMoney(row.PriceAmount, row.PriceCurrency)
	if err != nil {
		return domain.Listing{}, err
	}

	kind, err := domain.ToListingKind(row.Kind)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("domain.ToListingKind[%s]: %w", row.Kind, err)
	}

	return domain.Listing{
		ID:        row.ID,
		BookID:    row.BookID,
		SellerID:  row.SellerID,
		Kind:      kind,
		Price:     price,
		Stock:     int(row.Stock),
		FilePath:  lo.FromPtr(row.FilePath),
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}
