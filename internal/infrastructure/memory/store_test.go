package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

func seed(t *testing.T, s *Store, id string, price float64, stock int) {
	t.Helper()
	p, err := product.New(id, "item-"+id, price, stock)
	require.NoError(t, err)
	require.NoError(t, s.Create(context.Background(), p))
}

func TestWithinCommitsStockAndOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "p1", 10, 5)

	err := s.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
		p, err := tx.DeductStock(ctx, "p1", 2)
		if err != nil {
			return err
		}
		assert.Equal(t, 3, p.Stock)
		o, err := order.New("o1", p.ID, 2, p.Price)
		if err != nil {
			return err
		}
		return tx.InsertOrder(ctx, o)
	})
	require.NoError(t, err)

	p, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)

	orders, err := s.Orders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 10.0, orders[0].PriceAtPurchase)
}

func TestWithinRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "p1", 10, 5)
	boom := errors.New("boom")

	err := s.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
		if _, err := tx.DeductStock(ctx, "p1", 5); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	p, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 5, p.Stock)
	orders, _ := s.Orders(ctx)
	assert.Empty(t, orders)
}

func TestDeductStockNoMatch(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "p1", 1, 1)

	for _, tc := range []struct {
		name string
		id   string
		qty  int
	}{
		{"missing product", "nope", 1},
		{"insufficient stock", "p1", 2},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := s.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
				_, err := tx.DeductStock(ctx, tc.id, tc.qty)
				return err
			})
			assert.ErrorIs(t, err, inventory.ErrNoMatch)
		})
	}
}

func TestWithinExpiredContextDoesNotCommit(t *testing.T) {
	s := NewStore()
	seed(t, s, "p1", 1, 3)
	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)

	err := s.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
		if _, err := tx.DeductStock(ctx, "p1", 1); err != nil {
			return err
		}
		cancel()
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)

	p, err := s.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 3, p.Stock)
}

func TestConcurrentDeductionsNeverOversell(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	const stock, qty, workers = 10, 3, 20
	seed(t, s, "p1", 2, stock)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
				_, err := tx.DeductStock(ctx, "p1", qty)
				return err
			})
			if err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, stock/qty, accepted)
	p, err := s.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, stock-accepted*qty, p.Stock)
}

func TestListNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	seed(t, s, "a", 1, 1)
	seed(t, s, "b", 1, 1)
	seed(t, s, "c", 1, 1)

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"c", "b", "a"}, []string{list[0].ID, list[1].ID, list[2].ID})

	list[0].Stock = 99
	again, _ := s.Get(ctx, "c")
	assert.Equal(t, 1, again.Stock)
}

func TestGetMissing(t *testing.T) {
	_, err := NewStore().Get(context.Background(), "x")
	assert.ErrorIs(t, err, product.ErrNotFound)
}
