package memory

import (
	"context"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
)

// Orders returns committed orders in insertion order.
func (s *Store) Orders(ctx context.Context) ([]*order.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*order.Order, 0, len(s.orderSeq))
	for _, id := range s.orderSeq {
		out = append(out, s.orders[id].Clone())
	}
	return out, nil
}

// OrdersForProduct filters committed orders by product reference.
func (s *Store) OrdersForProduct(ctx context.Context, productID string) ([]*order.Order, error) {
	all, err := s.Orders(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, o := range all {
		if o.ProductID == productID {
			out = append(out, o)
		}
	}
	return out, nil
}
