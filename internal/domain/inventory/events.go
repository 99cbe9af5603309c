package inventory

import "time"

// StockUpdatedEvent is emitted once per committed order with the stock left after it.
type StockUpdatedEvent struct {
	ProductID  string
	NewStock   int
	OccurredAt time.Time
}

func (StockUpdatedEvent) EventName() string { return "stock:update" }

func NewStockUpdatedEvent(productID string, newStock int) StockUpdatedEvent {
	return StockUpdatedEvent{
		ProductID:  productID,
		NewStock:   newStock,
		OccurredAt: time.Now().UTC(),
	}
}
