package product

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("product: not found")
	ErrNameRequired = errors.New("product: name is required")
	ErrInvalidPrice = errors.New("product: price must be zero or greater")
	ErrInvalidStock = errors.New("product: stock must be zero or greater")
)

// Product is a sellable item. Stock is only ever lowered through an inventory unit of work.
type Product struct {
	ID        string
	Name      string
	Price     float64
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func New(id, name string, price float64, stock int) (*Product, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if price < 0 {
		return nil, ErrInvalidPrice
	}
	if stock < 0 {
		return nil, ErrInvalidStock
	}

	now := time.Now().UTC()
	return &Product{
		ID:        id,
		Name:      name,
		Price:     price,
		Stock:     stock,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CanSupply reports whether quantity units can be taken without stock going negative.
func (p *Product) CanSupply(quantity int) bool {
	return quantity > 0 && p.Stock >= quantity
}

func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}
