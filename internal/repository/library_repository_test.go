package repository_test

import (
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/nikolayk812/booksettle/internal/port"
	"github.com/nikolayk812/booksettle/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"go.uber.org/goleak"
)

type libraryRepositorySuite struct {
	suite.Suite

	repo      port.LibraryRepository
	pool      *pgxpool.Pool
	container testcontainers.Container
}

func TestLibraryRepositorySuite(t *testing.T) {
	defer goleak.VerifyNone(t)

	suite.Run(t, new(libraryRepositorySuite))
}

func (suite *libraryRepositorySuite) SetupSuite() {
	ctx := suite.T().Context()

	var (
		connStr string
		err     error
	)

	suite.container, connStr, err = startPostgres(ctx)
	suite.Require().NoError(err)

	suite.pool, err = pgxpool.New(ctx, connStr)
	suite.Require().NoError(err)

	suite.repo = repository.NewLibrary(suite.pool)
}

func (suite *libraryRepositorySuite) TearDownSuite() {
	ctx := suite.T().Context()

	if suite.pool != nil {
		suite.pool.Close()
	}
	if suite.container != nil {
		suite.NoError(suite.container.Terminate(ctx))
	}
}

func (suite *libraryRepositorySuite) TearDownTest() {
	truncateAll(suite.T(), suite.pool)
}

func (suite *libraryRepositorySuite) TestGrant() {
	t := suite.T()
	ctx := t.Context()

	listing := seedListing(t, suite.pool, domain.ListingKindDigital, 0, randomPrice(randomCurrency()))
	buyerID := gofakeit.UUID()

	first, granted, err := suite.repo.Grant(ctx, buyerID, listing.ID)
	require.NoError(t, err)
	assert.True(t, granted)
	assert.Equal(t, 0, first.LastPageRead)
	assert.False(t, first.CanDownloadSnapshot)

	second, granted, err := suite.repo.Grant(ctx, buyerID, listing.ID)
	require.NoError(t, err)
	assert.False(t, granted)
	assert.Equal(t, first.ID, second.ID)

	library, err := suite.repo.ListLibrary(ctx, buyerID)
	require.NoError(t, err)
	assert.Len(t, library, 1)
}

func (suite *libraryRepositorySuite) TestGrantErrors() {
	t := suite.T()
	ctx := t.Context()

	listing := seedListing(t, suite.pool, domain.ListingKindDigital, 0, randomPrice(randomCurrency()))

	_, _, err := suite.repo.Grant(ctx, "", listing.ID)
	require.EqualError(t, err, "buyerID is empty")

	_, _, err = suite.repo.Grant(ctx, gofakeit.UUID(), uuid.Nil)
	require.EqualError(t, err, "listingID is empty")

	_, _, err = suite.repo.Grant(ctx, gofakeit.UUID(), uuid.New())
	require.ErrorIs(t, err, domain.ErrNotFound)
}

func (suite *libraryRepositorySuite) TestGrantConcurrentLeavesOneRow() {
	t := suite.T()
	ctx := t.Context()

	listing := seedListing(t, suite.pool, domain.ListingKindDigital, 0, randomPrice(randomCurrency()))
	buyerID := gofakeit.UUID()

	const attempts = 10

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		granted int
		ids     = map[uuid.UUID]struct{}{}
	)

	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()

			access, ok, err := suite.repo.Grant(ctx, buyerID, listing.ID)
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			defer mu.Unlock()
			if ok {
				granted++
			}
			ids[access.ID] = struct{}{}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, granted)
	assert.Len(t, ids, 1)

	var count int
	err := suite.pool.QueryRow(ctx,
		"SELECT count(*) FROM library_access WHERE buyer_id = $1 AND listing_id = $2", buyerID, listing.ID).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func (suite *libraryRepositorySuite) TestUpdateProgress() {
	t := suite.T()
	ctx := t.Context()

	listing := seedListing(t, suite.pool, domain.ListingKindDigital, 0, randomPrice(randomCurrency()))
	buyerID := gofakeit.UUID()

	_, _, err := suite.repo.Grant(ctx, buyerID, listing.ID)
	require.NoError(t, err)

	tests := []struct {
		name      string
		buyerID   string
		page      int
		wantError string
		wantIs    error
	}{
		{
			name:    "existing grant: ok",
			buyerID: buyerID,
			page:    42,
		},
		{
			name:      "negative page: error",
			buyerID:   buyerID,
			page:      -1,
			wantError: "lastPageRead[-1] is negative",
		},
		{
			name:    "no grant: not found",
			buyerID: gofakeit.UUID(),
			page:    3,
			wantIs:  domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			t := suite.T()

			access, err := suite.repo.UpdateProgress(t.Context(), tt.buyerID, listing.ID, tt.page)
			if tt.wantError != "" {
				require.EqualError(t, err, tt.wantError)
				return
			}
			if tt.wantIs != nil {
				require.ErrorIs(t, err, tt.wantIs)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.page, access.LastPageRead)

			stored, err := suite.repo.GetAccess(t.Context(), tt.buyerID, listing.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.page, stored.LastPageRead)
		})
	}

	// the failed update never created a grant
	_, err = suite.repo.GetAccess(ctx, tests[2].buyerID, listing.ID)
	require.ErrorIs(t, err, domain.ErrNotFound)
}
