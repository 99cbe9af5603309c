package product

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTrimsName(t *testing.T) {
	p, err := New("p1", "  Widget  ", 9.99, 3)
	require.NoError(t, err)
	assert.Equal(t, "Widget", p.Name)
	assert.Equal(t, 3, p.Stock)
	assert.False(t, p.CreatedAt.IsZero())
	assert.Equal(t, p.CreatedAt, p.UpdatedAt)
}

func TestNewRejectsInvalidFields(t *testing.T) {
	cases := []struct {
		name  string
		pname string
		price float64
		stock int
		want  error
	}{
		{"blank name", "   ", 1, 1, ErrNameRequired},
		{"negative price", "Widget", -0.01, 1, ErrInvalidPrice},
		{"negative stock", "Widget", 1, -1, ErrInvalidStock},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New("p1", tc.pname, tc.price, tc.stock)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestZeroPriceAndStockAllowed(t *testing.T) {
	p, err := New("p1", "Freebie", 0, 0)
	require.NoError(t, err)
	assert.False(t, p.CanSupply(1))
}

func TestCanSupply(t *testing.T) {
	p := &Product{Stock: 5}
	assert.True(t, p.CanSupply(5))
	assert.False(t, p.CanSupply(6))
	assert.False(t, p.CanSupply(0))
}
