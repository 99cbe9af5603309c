package memory

import (
	"context"
	"fmt"
	"sort"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

func (s *Store) Create(ctx context.Context, p *product.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p == nil || p.ID == "" {
		return fmt.Errorf("product repository: id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return fmt.Errorf("product repository: id %q already exists", p.ID)
	}
	s.products[p.ID] = p.Clone()
	s.productSeq = append(s.productSeq, p.ID)
	return nil
}

func (s *Store) List(ctx context.Context) ([]*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*product.Product, 0, len(s.productSeq))
	for i := len(s.productSeq) - 1; i >= 0; i-- {
		out = append(out, s.products[s.productSeq[i]].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*product.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p.Clone(), nil
}
