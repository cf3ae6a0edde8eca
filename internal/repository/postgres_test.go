package repository_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/migrations"
	"github.com/nikolayk812/booksettle/internal/repository"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/text/currency"
)

func startPostgres(ctx context.Context) (testcontainers.Container, string, error) {
	container, err := postgres.Run(ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("booksettle"),
		postgres.WithUsername("booksettle"),
		postgres.WithPassword("booksettle"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("postgres.Run: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return container, "", fmt.Errorf("container.ConnectionString: %w", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return container, "", fmt.Errorf("pgxpool.New: %w", err)
	}
	defer pool.Close()

	if err := migrations.Apply(ctx, pool); err != nil {
		return container, "", fmt.Errorf("migrations.Apply: %w", err)
	}

	return container, connStr, nil
}

func truncateAll(t *testing.T, pool *pgxpool.Pool) {
	_, err := pool.Exec(t.Context(),
		"TRUNCATE TABLE library_access, payments, item_settlements, order_items, orders, listings, books CASCADE")
	require.NoError(t, err)
}

func seedListing(t *testing.T, pool *pgxpool.Pool, kind domain.ListingKind, stock int, price domain.Money) domain.Listing {
	ctx := t.Context()
	repo := repository.NewListing(pool)

	bookID, err := repo.InsertBook(ctx, domain.Book{
		Title:  gofakeit.BookTitle(),
		Author: gofakeit.BookAuthor(),
	})
	require.NoError(t, err)

	listing := domain.Listing{
		BookID:   bookID,
		SellerID: gofakeit.UUID(),
		Kind:     kind,
		Price:    price,
		Stock:    stock,
	}
	if kind == domain.ListingKindDigital {
		listing.Stock = 0
		listing.FilePath = fmt.Sprintf("books/%s.epub", uuid.NewString())
	}

	listing.ID, err = repo.InsertListing(ctx, listing)
	require.NoError(t, err)

	return listing
}

func randomPrice(unit currency.Unit) domain.Money {
	return domain.Money{
		Amount:   decimal.NewFromFloat(gofakeit.Price(1, 100)).Round(2),
		Currency: unit,
	}
}

func randomCurrency() currency.Unit {
	var (
		result currency.Unit
		err    error
	)

	for {
		// tag is not a recognized currency
		result, err = currency.ParseISO(gofakeit.CurrencyShort())
		if err == nil {
			break
		}
	}

	return result
}

var compareOpts = []cmp.Option{
	cmp.Comparer(func(a, b currency.Unit) bool {
		return a.String() == b.String()
	}),
	cmpopts.IgnoreFields(domain.Order{}, "CreatedAt", "UpdatedAt"),
	cmpopts.IgnoreFields(domain.OrderItem{}, "CreatedAt"),
	cmpopts.IgnoreFields(domain.Listing{}, "CreatedAt", "UpdatedAt"),
	cmpopts.IgnoreFields(domain.LibraryAccess{}, "ID", "CreatedAt", "UpdatedAt"),
}
