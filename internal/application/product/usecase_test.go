package product

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
)

type fixedIDs []string

func (f *fixedIDs) NewID() string {
	id := (*f)[0]
	*f = (*f)[1:]
	return id
}

type brokenRepo struct{ domain.Repository }

func (brokenRepo) List(context.Context) ([]*domain.Product, error) {
	return nil, errors.New("socket closed")
}

func TestCreateThenListNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	ids := &fixedIDs{"a", "b"}
	create := NewCreateProductUseCase(store, ids, observability.Nop())
	list := NewListProductsUseCase(store, observability.Nop())

	first, err := create.Execute(ctx, CreateProductInput{Name: " Lamp ", Price: 20, Stock: 4})
	require.NoError(t, err)
	assert.Equal(t, "Lamp", first.Name)
	_, err = create.Execute(ctx, CreateProductInput{Name: "Desk", Price: 120, Stock: 1})
	require.NoError(t, err)

	got, err := list.Execute(ctx, ListProductsInput{})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestCreateRejectsInvalidProduct(t *testing.T) {
	create := NewCreateProductUseCase(memory.NewStore(), &fixedIDs{"a"}, nil)

	_, err := create.Execute(context.Background(), CreateProductInput{Name: "Lamp", Price: -1, Stock: 1})
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, err, domain.ErrInvalidPrice)
}

func TestListEmptyIsNotNil(t *testing.T) {
	got, err := NewListProductsUseCase(memory.NewStore(), nil).Execute(context.Background(), ListProductsInput{})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestListWrapsRepositoryErrors(t *testing.T) {
	_, err := NewListProductsUseCase(brokenRepo{}, nil).Execute(context.Background(), ListProductsInput{})
	assert.ErrorIs(t, err, ErrRepository)
}
