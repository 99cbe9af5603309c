package inventory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

// Tx is the write surface available inside a unit of work.
type Tx interface {
	// DeductStock lowers stock by quantity only if the product exists and has at least
	// quantity on hand, returning the post-decrement product. It returns ErrNoMatch otherwise.
	DeductStock(ctx context.Context, productID string, quantity int) (*product.Product, error)
	InsertOrder(ctx context.Context, o *order.Order) error
}

// UnitOfWork runs fn inside one atomic scope. Writes made through tx become visible to
// other readers only if fn returns nil and the commit succeeds; otherwise none of them do.
type UnitOfWork interface {
	Within(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}
