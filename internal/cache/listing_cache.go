// Package cache is a Redis cache-aside layer in front of listing reads.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/currency"
)

const keyPrefix = "booksettle:listing:"

type cachedListing struct {
	ID            uuid.UUID       `json:"id"`
	BookID        uuid.UUID       `json:"book_id"`
	SellerID      string          `json:"seller_id"`
	Kind          string          `json:"kind"`
	PriceAmount   decimal.Decimal `json:"price_amount"`
	PriceCurrency string          `json:"price_currency"`
	Stock         int             `json:"stock"`
	FilePath      string          `json:"file_path,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ListingCache serves GetListing from Redis and falls through to the store on a miss.
// Concurrent misses for one listing collapse into a single store read.
type ListingCache struct {
	client *redis.Client
	store  port.ListingReader
	ttl    time.Duration
	logger *slog.Logger
	group  singleflight.Group
}

func NewListingCache(client *redis.Client, store port.ListingReader, ttl time.Duration, logger *slog.Logger) (*ListingCache, error) {
	if client == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if store == nil {
		return nil, fmt.Errorf("store is nil")
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl[%s] must be positive", ttl)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ListingCache{
		client: client,
		store:  store,
		ttl:    ttl,
		logger: logger,
	}, nil
}

func (c *ListingCache) GetListing(ctx context.Context, listingID uuid.UUID) (domain.Listing, error) {
	if listing, ok := c.get(ctx, listingID); ok {
		return listing, nil
	}

	value, err, _ := c.group.Do(listingID.String(), func() (interface{}, error) {
		if listing, ok := c.get(ctx, listingID); ok {
			return listing, nil
		}

		listing, err := c.store.GetListing(ctx, listingID)
		if err != nil {
			return domain.Listing{}, err
		}

		c.set(ctx, listing)
		return listing, nil
	})
	if err != nil {
		return domain.Listing{}, fmt.Errorf("store.GetListing: %w", err)
	}

	return value.(domain.Listing), nil
}

// Invalidate drops cached listings whose stock or metadata changed.
func (c *ListingCache) Invalidate(ctx context.Context, listingIDs ...uuid.UUID) error {
	if len(listingIDs) == 0 {
		return nil
	}

	keys := lo.Map(listingIDs, func(id uuid.UUID, _ int) string {
		return cacheKey(id)
	})

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("client.Del: %w", err)
	}

	return nil
}

// get treats every Redis failure as a miss.
func (c *ListingCache) get(ctx context.Context, listingID uuid.UUID) (domain.Listing, bool) {
	value, err := c.client.Get(ctx, cacheKey(listingID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Listing{}, false
	}
	if err != nil {
		c.logger.Warn("cache read failed", "method", "get", "listing_id", listingID, "error", err)
		return domain.Listing{}, false
	}

	var cached cachedListing
	if err := json.Unmarshal([]byte(value), &cached); err != nil {
		c.logger.Warn("cache entry is corrupt", "method", "get", "listing_id", listingID, "error", err)
		return domain.Listing{}, false
	}

	listing, err := fromCached(cached)
	if err != nil {
		c.logger.Warn("cache entry is corrupt", "method", "get", "listing_id", listingID, "error", err)
		return domain.Listing{}, false
	}

	return listing, true
}

func (c *ListingCache) set(ctx context.Context, listing domain.Listing) {
	payload, err := json.Marshal(toCached(listing))
	if err != nil {
		c.logger.Warn("cache encode failed", "method", "set", "listing_id", listing.ID, "error", err)
		return
	}

	if err := c.client.Set(ctx, cacheKey(listing.ID), payload, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", "method", "set", "listing_id", listing.ID, "error", err)
	}
}

func cacheKey(listingID uuid.UUID) string {
	return keyPrefix + listingID.String()
}

func toCached(listing domain.Listing) cachedListing {
	return cachedListing{
		ID:            listing.ID,
		BookID:        listing.BookID,
		SellerID:      listing.SellerID,
		Kind:          string(listing.Kind),
		PriceAmount:   listing.Price.Amount,
		PriceCurrency: listing.Price.Currency.String(),
		Stock:         listing.Stock,
		FilePath:      listing.FilePath,
		CreatedAt:     listing.CreatedAt,
		UpdatedAt:     listing.UpdatedAt,
	}
}

func fromCached(cached cachedListing) (domain.Listing, error) {
	unit, err := currency.ParseISO(cached.PriceCurrency)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("currency[%s] is not valid: %w", cached.PriceCurrency, err)
	}

	kind, err := domain.ToListingKind(cached.Kind)
	if err != nil {
		return domain.Listing{}, fmt.Errorf("domain.ToListingKind[%s]: %w", cached.Kind, err)
	}

	return domain.Listing{
		ID:        cached.ID,
		BookID:    cached.BookID,
		SellerID:  cached.SellerID,
		Kind:      kind,
		Price:     domain.Money{Amount: cached.PriceAmount, Currency: unit},
		Stock:     cached.Stock,
		FilePath:  cached.FilePath,
		CreatedAt: cached.CreatedAt,
		UpdatedAt: cached.UpdatedAt,
	}, nil
}

type noopInvalidator struct{}

// NoopInvalidator is used when listings are read straight from the store.
var NoopInvalidator port.ListingInvalidator = noopInvalidator{}

func (noopInvalidator) Invalidate(context.Context, ...uuid.UUID) error {
	return nil
}
