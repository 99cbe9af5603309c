package order

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrProductRequired = errors.New("order: product reference is required")
	ErrInvalidQuantity = errors.New("order: quantity must be greater than zero")
	ErrInvalidPrice    = errors.New("order: price at purchase must be zero or greater")
)

type Status string

// StatusPlaced is the only status an order has; there are no later transitions.
const StatusPlaced Status = "PLACED"

// Order records a committed purchase. PriceAtPurchase is the product price read in the
// same unit of work that lowered the stock.
type Order struct {
	ID              string
	ProductID       string
	Quantity        int
	PriceAtPurchase float64
	Status          Status
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func New(id, productID string, quantity int, priceAtPurchase float64) (*Order, error) {
	if strings.TrimSpace(productID) == "" {
		return nil, ErrProductRequired
	}
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	if priceAtPurchase < 0 {
		return nil, ErrInvalidPrice
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		ProductID:       productID,
		Quantity:        quantity,
		PriceAtPurchase: priceAtPurchase,
		Status:          StatusPlaced,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Total is the amount charged for the order.
func (o *Order) Total() float64 {
	return o.PriceAtPurchase * float64(o.Quantity)
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	cp := *o
	return &cp
}
