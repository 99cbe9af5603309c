package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

// Within serializes units of work on the store lock. Writes are staged on the tx and
// applied only after fn succeeds and ctx is still live.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		store:    s,
		products: make(map[string]*product.Product),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("memory: unit of work expired before commit: %w", err)
	}
	tx.commit()
	return nil
}

type memTx struct {
	store    *Store
	products map[string]*product.Product
	orders   []*order.Order
}

func (t *memTx) DeductStock(ctx context.Context, productID string, quantity int) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}

	current, ok := t.products[productID]
	if !ok {
		stored, found := t.store.products[productID]
		if !found {
			return nil, inventory.ErrNoMatch
		}
		current = stored.Clone()
	}
	if !current.CanSupply(quantity) {
		return nil, inventory.ErrNoMatch
	}

	current.Stock -= quantity
	current.UpdatedAt = time.Now().UTC()
	t.products[productID] = current
	return current.Clone(), nil
}

func (t *memTx) InsertOrder(ctx context.Context, o *order.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if o == nil || o.ID == "" {
		return fmt.Errorf("order repository: id is required")
	}
	if _, exists := t.store.orders[o.ID]; exists {
		return fmt.Errorf("order repository: id %q already exists", o.ID)
	}
	for _, staged := range t.orders {
		if staged.ID == o.ID {
			return fmt.Errorf("order repository: id %q already exists", o.ID)
		}
	}
	t.orders = append(t.orders, o.Clone())
	return nil
}

func (t *memTx) commit() {
	for id, p := range t.products {
		t.store.products[id] = p
	}
	for _, o := range t.orders {
		t.store.orders[o.ID] = o
		t.store.orderSeq = append(t.store.orderSeq, o.ID)
	}
}
