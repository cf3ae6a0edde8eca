// Package memstore is an in-memory implementation of the persistence ports,
// used by service and HTTP tests.
package memstore

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nikolayk812/booksettle/internal/domain"
	"github.com/samber/lo"
)

type libraryKey struct {
	buyerID   string
	listingID uuid.UUID
}

// Store keeps every table behind one mutex, mirroring the row-level guards of the
// Postgres repositories: conditional stock updates, unique grants and monotonic payments.
type Store struct {
	mu sync.Mutex

	books       map[uuid.UUID]domain.Book
	listings    map[uuid.UUID]domain.Listing
	orders      map[uuid.UUID]domain.Order
	settlements map[uuid.UUID]domain.ItemSettlement
	payments    map[uuid.UUID]domain.Payment
	library     map[libraryKey]domain.LibraryAccess

	grantCalls     int
	decrementCalls int
	invalidated    []uuid.UUID

	now  func() time.Time
	last time.Time
}

func New() *Store {
	return &Store{
		books:       make(map[uuid.UUID]domain.Book),
		listings:    make(map[uuid.UUID]domain.Listing),
		orders:      make(map[uuid.UUID]domain.Order),
		settlements: make(map[uuid.UUID]domain.ItemSettlement),
		payments:    make(map[uuid.UUID]domain.Payment),
		library:     make(map[libraryKey]domain.LibraryAccess),
		now:         time.Now,
	}
}

// tick returns strictly increasing timestamps so newest-first ordering is stable.
func (s *Store) tick() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

// listings

func (s *Store) InsertBook(_ context.Context, book domain.Book) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if book.Title == "" {
		return uuid.Nil, errors.New("title is empty")
	}

	book.ID = uuid.New()
	s.books[book.ID] = book
	return book.ID, nil
}

func (s *Store) InsertListing(_ context.Context, listing domain.Listing) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[listing.BookID]; !ok && listing.BookID != uuid.Nil {
		return uuid.Nil, fmt.Errorf("book: %w", domain.ErrNotFound)
	}

	listing.ID = uuid.New()
	listing.CreatedAt = s.tick()
	listing.UpdatedAt = listing.CreatedAt
	s.listings[listing.ID] = listing
	return listing.ID, nil
}

func (s *Store) GetListing(_ context.Context, listingID uuid.UUID) (domain.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[listingID]
	if !ok {
		return domain.Listing{}, domain.ErrNotFound
	}
	return listing, nil
}

func (s *Store) GetListings(ctx context.Context, listingIDs []uuid.UUID) ([]domain.Listing, error) {
	var result []domain.Listing
	for _, id := range lo.Uniq(listingIDs) {
		listing, err := s.GetListing(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		result = append(result, listing)
	}
	return result, nil
}

func (s *Store) Decrement(_ context.Context, listingID uuid.UUID, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.decrementCalls++

	if quantity < 1 {
		return 0, fmt.Errorf("quantity[%d] must be at least 1", quantity)
	}

	listing, ok := s.listings[listingID]
	switch {
	case !ok:
		return 0, domain.ErrNotFound
	case listing.Kind != domain.ListingKindPhysical:
		return 0, domain.ErrKindMismatch
	case listing.Stock < quantity:
		return 0, domain.ErrInsufficientStock
	}

	listing.Stock -= quantity
	listing.UpdatedAt = s.tick()
	s.listings[listingID] = listing
	return listing.Stock, nil
}

func (s *Store) Restock(_ context.Context, listingID uuid.UUID, quantity int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[listingID]
	switch {
	case !ok:
		return 0, domain.ErrNotFound
	case listing.Kind != domain.ListingKindPhysical:
		return 0, domain.ErrKindMismatch
	}

	listing.Stock += quantity
	listing.UpdatedAt = s.tick()
	s.listings[listingID] = listing
	return listing.Stock, nil
}

func (s *Store) Invalidate(_ context.Context, listingIDs ...uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.invalidated = append(s.invalidated, listingIDs...)
	return nil
}

// orders

func (s *Store) InsertOrder(_ context.Context, order domain.Order) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(order.Items) == 0 {
		return domain.Order{}, errors.New("no items in order")
	}

	for _, item := range order.Items {
		if _, ok := s.listings[item.ListingID]; !ok {
			return domain.Order{}, fmt.Errorf("listing[%s]: %w", item.ListingID, domain.ErrNotFound)
		}
	}

	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	if order.PaymentMethod == "" {
		order.PaymentMethod = domain.PaymentMethodGateway
	}

	now := s.tick()
	order.ID = uuid.New()
	order.CreatedAt = now
	order.UpdatedAt = now
	order.Items = slices.Clone(order.Items)
	for idx := range order.Items {
		order.Items[idx].ID = uuid.New()
		order.Items[idx].CreatedAt = now
	}

	s.orders[order.ID] = order
	return order, nil
}

func (s *Store) GetOrder(_ context.Context, orderID uuid.UUID) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	return order, nil
}

func (s *Store) SearchOrders(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("filter.Validate: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.Order
	for _, order := range s.orders {
		if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, order.ID) {
			continue
		}
		if len(filter.BuyerIDs) > 0 && !slices.Contains(filter.BuyerIDs, order.BuyerID) {
			continue
		}
		if len(filter.Statuses) > 0 && !slices.Contains(filter.Statuses, order.Status) {
			continue
		}
		if tr := filter.CreatedAt; tr != nil {
			if tr.After != nil && !order.CreatedAt.After(*tr.After) {
				continue
			}
			if tr.Before != nil && !order.CreatedAt.Before(*tr.Before) {
				continue
			}
		}
		result = append(result, order)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, orderID uuid.UUID, from, to domain.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !from.CanTransitionTo(to) {
		return fmt.Errorf("transition %s -> %s is not allowed", from, to)
	}

	order, ok := s.orders[orderID]
	if !ok {
		return domain.ErrNotFound
	}
	if order.Status != from {
		return domain.ErrStatusConflict
	}

	order.Status = to
	order.UpdatedAt = s.tick()
	s.orders[orderID] = order
	return nil
}

// settlements

func (s *Store) RecordSettlement(_ context.Context, settlement domain.ItemSettlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if settlement.OrderItemID == uuid.Nil {
		return errors.New("orderItemID is empty")
	}

	stored, ok := s.settlements[settlement.OrderItemID]
	settlement.Attempts = 1
	if ok {
		settlement.Attempts = stored.Attempts + 1
	}
	settlement.UpdatedAt = s.tick()

	s.settlements[settlement.OrderItemID] = settlement
	return nil
}

func (s *Store) ListSettlements(_ context.Context, orderID uuid.UUID) ([]domain.ItemSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return nil, nil
	}

	result := make([]domain.ItemSettlement, 0, len(order.Items))
	for _, item := range order.Items {
		settlement, ok := s.settlements[item.ID]
		if !ok {
			settlement = domain.ItemSettlement{
				OrderItemID: item.ID,
				OrderID:     orderID,
				State:       domain.SettlementStateFailed,
				LastError:   "settlement not recorded",
			}
		}
		settlement.ListingID = item.ListingID
		settlement.Kind = item.Kind
		settlement.Quantity = item.Quantity
		result = append(result, settlement)
	}

	return result, nil
}

// payments

func (s *Store) InsertPayment(_ context.Context, payment domain.Payment) (domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[payment.OrderID]; !ok {
		return domain.Payment{}, domain.ErrNotFound
	}

	if payment.Status == "" {
		payment.Status = domain.PaymentStatusPending
	}

	now := s.tick()
	payment.ID = uuid.New()
	payment.CreatedAt = now
	payment.UpdatedAt = now
	s.payments[payment.ID] = payment
	return payment, nil
}

// ListPayments returns the order's payments, newest first.
func (s *Store) ListPayments(_ context.Context, orderID uuid.UUID) ([]domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listPayments(orderID), nil
}

func (s *Store) listPayments(orderID uuid.UUID) []domain.Payment {
	var result []domain.Payment
	for _, payment := range s.payments {
		if payment.OrderID == orderID {
			result = append(result, payment)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result
}

// OrderIDByTransaction returns the order a provider transaction is attached to.
func (s *Store) OrderIDByTransaction(providerTransactionID string) (uuid.UUID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, payment := range s.payments {
		if payment.ProviderTransactionID == providerTransactionID {
			return payment.OrderID, true
		}
	}
	return uuid.Nil, false
}

func (s *Store) AttachTransaction(_ context.Context, orderID uuid.UUID, providerTransactionID string) (domain.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[orderID]; !ok {
		return domain.Payment{}, domain.ErrNotFound
	}

	for _, payment := range s.payments {
		if payment.ProviderTransactionID == providerTransactionID {
			if payment.OrderID != orderID {
				return domain.Payment{}, domain.ErrTransactionTaken
			}
			return payment, nil
		}
	}

	now := s.tick()

	for _, payment := range s.listPayments(orderID) {
		if payment.Status == domain.PaymentStatusPending {
			payment.ProviderTransactionID = providerTransactionID
			payment.Status = domain.PaymentStatusProcessing
			payment.UpdatedAt = now
			s.payments[payment.ID] = payment
			return payment, nil
		}
	}

	payment := domain.Payment{
		ID:                    uuid.New(),
		OrderID:               orderID,
		ProviderTransactionID: providerTransactionID,
		Status:                domain.PaymentStatusProcessing,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	s.payments[payment.ID] = payment
	return payment, nil
}

func (s *Store) AdvanceStatus(_ context.Context, paymentID uuid.UUID, status domain.PaymentStatus) (domain.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	payment, ok := s.payments[paymentID]
	if !ok {
		return domain.Payment{}, false, domain.ErrNotFound
	}

	if !payment.Status.CanAdvanceTo(status) {
		return payment, false, nil
	}

	payment.Status = status
	payment.UpdatedAt = s.tick()
	s.payments[paymentID] = payment
	return payment, true, nil
}

// library

func (s *Store) Grant(_ context.Context, buyerID string, listingID uuid.UUID) (domain.LibraryAccess, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grantCalls++

	if buyerID == "" {
		return domain.LibraryAccess{}, false, errors.New("buyerID is empty")
	}
	if _, ok := s.listings[listingID]; !ok {
		return domain.LibraryAccess{}, false, domain.ErrNotFound
	}

	key := libraryKey{buyerID: buyerID, listingID: listingID}
	if existing, ok := s.library[key]; ok {
		return existing, false, nil
	}

	now := s.tick()
	access := domain.LibraryAccess{
		ID:        uuid.New(),
		BuyerID:   buyerID,
		ListingID: listingID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.library[key] = access
	return access, true, nil
}

func (s *Store) GetAccess(_ context.Context, buyerID string, listingID uuid.UUID) (domain.LibraryAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	access, ok := s.library[libraryKey{buyerID: buyerID, listingID: listingID}]
	if !ok {
		return domain.LibraryAccess{}, domain.ErrNotFound
	}
	return access, nil
}

func (s *Store) ListLibrary(_ context.Context, buyerID string) ([]domain.LibraryAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var result []domain.LibraryAccess
	for key, access := range s.library {
		if key.buyerID == buyerID {
			result = append(result, access)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

func (s *Store) UpdateProgress(_ context.Context, buyerID string, listingID uuid.UUID, lastPageRead int) (domain.LibraryAccess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lastPageRead < 0 {
		return domain.LibraryAccess{}, fmt.Errorf("lastPageRead[%d] is negative", lastPageRead)
	}

	key := libraryKey{buyerID: buyerID, listingID: listingID}
	access, ok := s.library[key]
	if !ok {
		return domain.LibraryAccess{}, domain.ErrNotFound
	}

	access.LastPageRead = lastPageRead
	access.UpdatedAt = s.tick()
	s.library[key] = access
	return access, nil
}

// counters for tests

func (s *Store) GrantCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grantCalls
}

func (s *Store) DecrementCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.decrementCalls
}

func (s *Store) Invalidated() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.invalidated)
}

func (s *Store) LibrarySize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.library)
}
