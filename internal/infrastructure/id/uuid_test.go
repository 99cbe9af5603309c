package id

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDGeneratorIssuesDistinctUUIDs(t *testing.T) {
	g := NewUUIDGenerator()
	a, b := g.NewID(), g.NewID()
	assert.NotEqual(t, a, b)
	_, err := uuid.Parse(a)
	require.NoError(t, err)
}
