//go:build integration

package mongodb

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcmongo "github.com/testcontainers/testcontainers-go/modules/mongodb"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

func startStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcmongo.Run(ctx, "mongo:7", tcmongo.WithReplicaSet("rs0"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	if strings.Contains(uri, "?") {
		uri += "&directConnection=true"
	} else {
		uri += "/?directConnection=true"
	}

	store, err := Connect(ctx, uri, "inventory_test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	require.NoError(t, store.EnsureSchema(ctx))
	return store
}

func TestMongoUnitOfWork(t *testing.T) {
	ctx := context.Background()
	store := startStore(t)
	ids := ObjectIDGenerator{}

	p, err := product.New(ids.NewID(), "Lamp", 20, 5)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, p))

	place := func(qty int) error {
		return store.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
			updated, err := tx.DeductStock(ctx, p.ID, qty)
			if err != nil {
				return err
			}
			o, err := order.New(ids.NewID(), updated.ID, qty, updated.Price)
			if err != nil {
				return err
			}
			return tx.InsertOrder(ctx, o)
		})
	}

	require.NoError(t, place(2))
	require.ErrorIs(t, place(4), inventory.ErrNoMatch)
	require.NoError(t, place(3))

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Stock)

	orders, err := store.OrdersForProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, 20.0, orders[0].PriceAtPurchase)

	err = store.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
		_, err := tx.DeductStock(ctx, "not-hex", 1)
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrNoMatch)
}

func TestMongoConcurrentOrdersNeverOversell(t *testing.T) {
	ctx := context.Background()
	store := startStore(t)
	ids := ObjectIDGenerator{}
	p, err := product.New(ids.NewID(), "Desk", 100, 4)
	require.NoError(t, err)
	require.NoError(t, store.Create(ctx, p))

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 5; attempt++ {
				err := store.Within(ctx, func(ctx context.Context, tx inventory.Tx) error {
					_, err := tx.DeductStock(ctx, p.ID, 1)
					return err
				})
				if errors.Is(err, inventory.ErrConflict) {
					time.Sleep(10 * time.Millisecond)
					continue
				}
				if err == nil {
					mu.Lock()
					accepted++
					mu.Unlock()
				}
				return
			}
		}()
	}
	wg.Wait()

	got, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.LessOrEqual(t, accepted, 4)
	assert.Equal(t, 4-accepted, got.Stock)
}

func TestMongoListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := startStore(t)
	ids := ObjectIDGenerator{}

	for _, name := range []string{"first", "second"} {
		p, err := product.New(ids.NewID(), name, 1, 1)
		require.NoError(t, err)
		require.NoError(t, store.Create(ctx, p))
		time.Sleep(5 * time.Millisecond)
	}

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Name)
}
