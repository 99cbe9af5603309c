package memory

import (
	"sync"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

// Store keeps products and orders in process memory. A single mutex guards both maps so
// a unit of work sees and commits a consistent snapshot.
type Store struct {
	mu       sync.RWMutex
	products map[string]*product.Product
	// insertion order, used to break CreatedAt ties when listing
	productSeq []string
	orders     map[string]*order.Order
	orderSeq   []string
}

func NewStore() *Store {
	return &Store{
		products: make(map[string]*product.Product),
		orders:   make(map[string]*order.Order),
	}
}
