package product

import "context"

type Repository interface {
	Create(ctx context.Context, p *Product) error
	// List returns every product, newest first.
	List(ctx context.Context) ([]*Product, error)
	Get(ctx context.Context, id string) (*Product, error)
}
