package mongodb

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
)

func TestClassifyMarksTransientErrorsAsConflicts(t *testing.T) {
	transient := mongo.CommandError{Code: 112, Name: "WriteConflict", Labels: []string{labelTransientTransaction}}
	assert.ErrorIs(t, classify(fmt.Errorf("wrapped: %w", transient)), inventory.ErrConflict)

	unknown := mongo.CommandError{Labels: []string{labelUnknownCommitResult}}
	assert.NotErrorIs(t, classify(unknown), inventory.ErrConflict)

	both := mongo.CommandError{Labels: []string{labelTransientTransaction, labelUnknownCommitResult}}
	assert.NotErrorIs(t, classify(both), inventory.ErrConflict)

	plain := errors.New("no reachable servers")
	assert.Equal(t, plain, classify(plain))
	assert.Equal(t, inventory.ErrNoMatch, classify(inventory.ErrNoMatch))
}

func TestOrderDocumentRoundTrip(t *testing.T) {
	gen := ObjectIDGenerator{}
	o, err := order.New(gen.NewID(), gen.NewID(), 3, 4.5)
	require.NoError(t, err)

	doc, err := newOrderDocument(o)
	require.NoError(t, err)
	assert.Equal(t, "PLACED", doc.Status)

	back := doc.toDomain()
	assert.Equal(t, o.ID, back.ID)
	assert.Equal(t, o.ProductID, back.ProductID)
	assert.Equal(t, o.PriceAtPurchase, back.PriceAtPurchase)
}

func TestOrderDocumentRejectsForeignIDs(t *testing.T) {
	o, err := order.New("not-an-object-id", primitive.NewObjectID().Hex(), 1, 1)
	require.NoError(t, err)
	_, err = newOrderDocument(o)
	assert.Error(t, err)
}

func TestCommitRetriesOnlyTheCommitWhileResultUnknown(t *testing.T) {
	unknown := mongo.CommandError{Name: "NetworkTimeout", Labels: []string{labelUnknownCommitResult}}
	calls := 0
	err := commitWithRetry(context.Background(), func(context.Context) error {
		calls++
		if calls < maxCommitAttempts {
			return unknown
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, maxCommitAttempts, calls)
}

func TestCommitStillUnknownIsNotAConflict(t *testing.T) {
	unknown := mongo.CommandError{Labels: []string{labelUnknownCommitResult}}
	calls := 0
	err := commitWithRetry(context.Background(), func(context.Context) error {
		calls++
		return unknown
	})
	require.ErrorIs(t, err, ErrCommitUnknown)
	assert.NotErrorIs(t, err, inventory.ErrConflict)
	assert.Equal(t, maxCommitAttempts, calls)
}

func TestCommitTransientFailureIsAConflict(t *testing.T) {
	transient := mongo.CommandError{Code: 251, Name: "NoSuchTransaction", Labels: []string{labelTransientTransaction}}
	calls := 0
	err := commitWithRetry(context.Background(), func(context.Context) error {
		calls++
		return transient
	})
	assert.ErrorIs(t, err, inventory.ErrConflict)
	assert.Equal(t, 1, calls)
}
