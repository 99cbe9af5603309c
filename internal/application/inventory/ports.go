package inventory

import (
	"context"

	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
)

// Broadcaster delivers a stock update to some set of observers.
type Broadcaster interface {
	BroadcastStock(ctx context.Context, e dominv.StockUpdatedEvent) error
}

// Sink names a Broadcaster for metrics and logs.
type Sink struct {
	Name string
	Broadcaster
}
