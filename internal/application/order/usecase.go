package order

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	domain "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	domoutbox "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	orderService      = "order-service"
	useCasePlaceOrder = "order.place"
	spanPrefix        = "UC."
	publishPeer       = "outbox"

	DefaultTxTimeout      = 5 * time.Second
	DefaultMaxAttempts    = 3
	DefaultPublishTimeout = 300 * time.Millisecond
	retryBackoff          = 25 * time.Millisecond
)

// ReasonInsufficientStock is reported for both a missing product and short stock; callers
// cannot tell the two apart.
const ReasonInsufficientStock = "Insufficient stock or invalid product"

var (
	ErrValidation = errors.New("order: invalid request")
	ErrStorage    = errors.New("order: storage failure")
)

var _ application.UseCase[PlaceOrderInput, *PlaceOrderResult] = (*PlaceOrderUseCase)(nil)

type Options struct {
	// TxTimeout bounds a single unit of work attempt.
	TxTimeout time.Duration
	// MaxAttempts caps how often a conflicting unit of work is retried, first attempt included.
	MaxAttempts    int
	PublishTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.TxTimeout <= 0 {
		o.TxTimeout = DefaultTxTimeout
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = DefaultPublishTimeout
	}
	return o
}

// PlaceOrderUseCase deducts stock and records the order in one unit of work, then
// notifies observers of the new stock level.
type PlaceOrderUseCase struct {
	uow         dominv.UnitOfWork
	idGenerator IDGenerator
	publisher   domoutbox.Publisher
	opts        Options

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter   // usecase_requests_total{use_case,outcome}
	durHistogram observability.Histogram // usecase_duration_seconds{use_case}

	extCounter   observability.Counter   // external_requests_total{peer,endpoint,outcome}
	extHistogram observability.Histogram // external_request_duration_seconds{peer,endpoint}
}

func NewPlaceOrderUseCase(
	uow dominv.UnitOfWork,
	idGen IDGenerator,
	publisher domoutbox.Publisher,
	tel observability.Observability,
	opts Options,
) *PlaceOrderUseCase {
	baseLog := observability.NopLogger()
	tracer := observability.NopTracer()
	metricsProvider := observability.NopMetrics()
	if tel != nil {
		baseLog = tel.Logger()
		tracer = tel.Tracer()
		metricsProvider = tel.Metrics()
	}

	return &PlaceOrderUseCase{
		uow:          uow,
		idGenerator:  idGen,
		publisher:    publisher,
		opts:         opts.withDefaults(),
		log:          baseLog.With(observability.F("service", orderService)),
		tracer:       tracer,
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:   metricsProvider.Counter(observability.MExternalRequests),
		extHistogram: metricsProvider.Histogram(observability.MExternalRequestDuration),
	}
}

type PlaceOrderInput struct {
	ProductID string
	Quantity  int
}

// PlaceOrderResult is either an accepted order with the stock left after it, or a
// rejection carrying Reason.
type PlaceOrderResult struct {
	Accepted bool
	Reason   string
	Order    *domain.Order
	NewStock int
}

func (uc *PlaceOrderUseCase) Execute(ctx context.Context, cmd PlaceOrderInput) (_ *PlaceOrderResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCasePlaceOrder),
		observability.F("product_id", cmd.ProductID),
		observability.F("quantity", cmd.Quantity),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+"PlaceOrder",
		attribute.String("use_case", useCasePlaceOrder),
		attribute.String("order.product_id", cmd.ProductID),
		attribute.Int("order.quantity", cmd.Quantity),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	attempts := 0
	var placed *domain.Order
	var publishErr error

	defer func() {
		lat := time.Since(start).Seconds()

		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, statusText)
		} else {
			span.SetStatus(codes.Ok, statusText)
		}
		span.End()

		uc.reqCounter.Add(1,
			observability.L("use_case", useCasePlaceOrder),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat,
			observability.L("use_case", useCasePlaceOrder),
		)

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("attempts", attempts),
		}
		if placed != nil {
			fields = append(fields,
				observability.F("order_id", placed.ID),
				observability.F("order_total", placed.Total()),
			)
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			fields = append(fields,
				observability.F("trace_id", sc.TraceID().String()),
				observability.F("span_id", sc.SpanID().String()),
			)
		}
		if publishErr != nil {
			fields = append(fields, observability.F("event_publish_error", publishErr.Error()))
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}

		logger.Info("use_case_done", fields...)
	}()

	// Validation happens before any storage access.
	if strings.TrimSpace(cmd.ProductID) == "" {
		outcome, statusText = "error", "PRODUCT_ID_REQUIRED"
		return nil, newValidation("product id is required")
	}
	if cmd.Quantity <= 0 {
		outcome, statusText = "error", "QUANTITY_INVALID"
		return nil, newValidation("quantity must be greater than zero")
	}
	if err := ctx.Err(); err != nil {
		outcome, statusText = "error", "CONTEXT_CANCELED"
		return nil, err
	}

	var (
		newStock int
		txErr    error
	)
	for {
		attempts++
		placed, newStock, txErr = uc.attempt(ctx, cmd)
		if txErr == nil || !errors.Is(txErr, dominv.ErrConflict) || attempts >= uc.opts.MaxAttempts {
			break
		}
		span.AddEvent("order.tx_conflict_retry",
			trace.WithAttributes(attribute.Int("attempt", attempts)),
		)
		wait := time.NewTimer(retryBackoff * time.Duration(attempts))
		select {
		case <-ctx.Done():
			wait.Stop()
			txErr = errors.Join(txErr, ctx.Err())
		case <-wait.C:
			continue
		}
		break
	}

	switch {
	case errors.Is(txErr, dominv.ErrNoMatch):
		outcome, statusText = "rejected", "INSUFFICIENT_STOCK"
		span.AddEvent("order.rejected")
		return &PlaceOrderResult{Accepted: false, Reason: ReasonInsufficientStock}, nil
	case txErr != nil:
		outcome, statusText = "error", "TX_FAILED"
		return nil, fmt.Errorf("%w: %w", ErrStorage, txErr)
	}

	span.SetAttributes(
		attribute.String("order.id", placed.ID),
		attribute.Int("product.new_stock", newStock),
	)
	span.AddEvent("order.placed")

	publishErr = uc.publish(ctx, dominv.NewStockUpdatedEvent(placed.ProductID, newStock))
	if publishErr != nil {
		statusText = "EVENT_PUBLISH_FAILED"
	}

	return &PlaceOrderResult{Accepted: true, Order: placed, NewStock: newStock}, nil
}

// attempt runs one unit of work under its own deadline. A deadline hit counts as a failed
// commit and nothing is persisted.
func (uc *PlaceOrderUseCase) attempt(ctx context.Context, cmd PlaceOrderInput) (*domain.Order, int, error) {
	txCtx, cancel := context.WithTimeout(ctx, uc.opts.TxTimeout)
	defer cancel()

	var (
		placed   *domain.Order
		newStock int
	)
	err := uc.uow.Within(txCtx, func(ctx context.Context, tx dominv.Tx) error {
		updated, err := tx.DeductStock(ctx, cmd.ProductID, cmd.Quantity)
		if err != nil {
			return err
		}
		o, err := domain.New(uc.idGenerator.NewID(), updated.ID, cmd.Quantity, updated.Price)
		if err != nil {
			return fmt.Errorf("order: construct: %w", err)
		}
		if err := tx.InsertOrder(ctx, o); err != nil {
			return err
		}
		placed, newStock = o, updated.Stock
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return placed, newStock, nil
}

// publish detaches from the caller's cancellation: the order is already committed, so a
// client hanging up must not suppress the notification.
func (uc *PlaceOrderUseCase) publish(ctx context.Context, e dominv.StockUpdatedEvent) error {
	if uc.publisher == nil {
		return nil
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.opts.PublishTimeout)
	defer cancel()

	pubStart := time.Now()
	pubOutcome := "success"
	err := uc.publisher.Publish(pubCtx, e)
	if err != nil {
		pubOutcome = "error"
	} else if pubCtx.Err() != nil {
		pubOutcome = "canceled"
		err = pubCtx.Err()
	}

	uc.extCounter.Add(1,
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", pubOutcome),
	)
	uc.extHistogram.Observe(time.Since(pubStart).Seconds(),
		observability.L("peer", publishPeer),
		observability.L("endpoint", e.EventName()),
	)
	return err
}

func newValidation(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}
