package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

type Order struct {
	ID            uuid.UUID
	BuyerID       string
	Total         Money
	Status        OrderStatus
	PaymentMethod PaymentMethod
	Items         []OrderItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderItem is a price snapshot taken at purchase time; it is never mutated.
type OrderItem struct {
	ID        uuid.UUID
	ListingID uuid.UUID
	Kind      ListingKind
	Quantity  int
	Price     Money

	CreatedAt time.Time
}

func (i OrderItem) Validate() error {
	if i.ListingID == uuid.Nil {
		return errors.New("listingID is empty")
	}

	if i.Quantity < 1 {
		return fmt.Errorf("quantity[%d] must be at least 1", i.Quantity)
	}

	if i.Quantity > math.MaxInt32 {
		return fmt.Errorf("quantity[%d] must be at most %d", i.Quantity, math.MaxInt32)
	}

	if err := i.Price.Validate(); err != nil {
		return fmt.Errorf("price: %w", err)
	}

	return nil
}

// ItemsTotal sums price × quantity over all items.
func (o Order) ItemsTotal() (Money, error) {
	if len(o.Items) == 0 {
		return Money{}, errors.New("no items in order")
	}

	total := ZeroMoney(o.Items[0].Price.Currency)
	for idx, item := range o.Items {
		var err error
		total, err = total.Add(item.Price.Times(item.Quantity))
		if err != nil {
			return Money{}, fmt.Errorf("item[%d]: %w", idx, err)
		}
	}

	return total, nil
}

// Validate checks the order shape and that the declared total matches its items.
func (o Order) Validate() error {
	if o.BuyerID == "" {
		return errors.New("buyerID is empty")
	}

	if len(o.Items) == 0 {
		return errors.New("no items in order")
	}

	for idx, item := range o.Items {
		if err := item.Validate(); err != nil {
			return fmt.Errorf("item[%d]: %w", idx, err)
		}
	}

	if err := o.Total.Validate(); err != nil {
		return fmt.Errorf("total: %w", err)
	}

	itemsTotal, err := o.ItemsTotal()
	if err != nil {
		return err
	}

	if !itemsTotal.Equal(o.Total) {
		return fmt.Errorf("declared total %s does not match items total %s", o.Total, itemsTotal)
	}

	return nil
}
