package order

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIsPlaced(t *testing.T) {
	o, err := New("o1", "p1", 2, 12.5)
	require.NoError(t, err)
	assert.Equal(t, StatusPlaced, o.Status)
	assert.InDelta(t, 25.0, o.Total(), 1e-9)
}

func TestNewValidation(t *testing.T) {
	_, err := New("o1", "", 1, 1)
	assert.ErrorIs(t, err, ErrProductRequired)

	_, err = New("o1", "p1", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = New("o1", "p1", 1, -1)
	assert.ErrorIs(t, err, ErrInvalidPrice)
}

func TestCloneIsIndependent(t *testing.T) {
	o, err := New("o1", "p1", 1, 1)
	require.NoError(t, err)
	cp := o.Clone()
	cp.Quantity = 9
	assert.Equal(t, 1, o.Quantity)
}
