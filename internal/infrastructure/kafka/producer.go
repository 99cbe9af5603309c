package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
)

// Writer is the slice of a kafka writer the producer needs.
type Writer interface {
	WriteMessage(ctx context.Context, msg kafka.Message) error
	Close() error
}

type WriterConfig struct {
	Brokers      []string
	Topic        string
	ClientID     string
	BatchTimeout time.Duration
}

// NewWriter builds a traced writer: each message carries the W3C trace context of the
// span active when it is written.
func NewWriter(cfg WriterConfig, tp trace.TracerProvider) (Writer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka: no brokers configured")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("kafka: topic is required")
	}
	batchTimeout := cfg.BatchTimeout
	if batchTimeout <= 0 {
		batchTimeout = 10 * time.Millisecond
	}

	base := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: batchTimeout,
		RequiredAcks: kafka.RequireAll,
	}

	w, err := otelkafka.NewWriter(base,
		otelkafka.WithTracerProvider(tp),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(cfg.Topic),
				attribute.String("messaging.kafka.client_id", cfg.ClientID),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka: instrument writer: %w", err)
	}
	return w, nil
}

type stockMessage struct {
	ProductID  string    `json:"productId"`
	NewStock   int       `json:"newStock"`
	OccurredAt time.Time `json:"occurredAt"`
}

// StockProducer publishes stock updates keyed by product id, so updates for one product
// stay ordered within a partition.
type StockProducer struct {
	writer Writer
}

func NewStockProducer(w Writer) *StockProducer {
	return &StockProducer{writer: w}
}

func (p *StockProducer) BroadcastStock(ctx context.Context, e dominv.StockUpdatedEvent) error {
	payload, err := json.Marshal(stockMessage{
		ProductID:  e.ProductID,
		NewStock:   e.NewStock,
		OccurredAt: e.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("kafka: encode stock update: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(e.ProductID),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "event", Value: []byte(e.EventName())},
		},
	}
	if err := p.writer.WriteMessage(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write stock update: %w", err)
	}
	return nil
}

func (p *StockProducer) Close() error {
	return p.writer.Close()
}
