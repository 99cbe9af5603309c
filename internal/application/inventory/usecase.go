package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	inventoryService      = "inventory-service"
	useCaseStockBroadcast = "inventory.broadcast_stock"
	spanPrefix            = "UC."
	DefaultSinkTimeout    = 300 * time.Millisecond
)

// BroadcastResult counts sink deliveries for one stock update.
type BroadcastResult struct {
	Delivered int
	Failed    int
}

var _ application.UseCase[dominv.StockUpdatedEvent, *BroadcastResult] = (*BroadcastStockUseCase)(nil)

// BroadcastStockUseCase fans a stock update out to every configured sink. Sinks are
// independent: one failing does not stop the others.
type BroadcastStockUseCase struct {
	sinks       []Sink
	sinkTimeout time.Duration

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
	extCounter   observability.Counter
	extHistogram observability.Histogram
}

func NewBroadcastStockUseCase(sinks []Sink, sinkTimeout time.Duration, tel observability.Observability) *BroadcastStockUseCase {
	baseLog := observability.NopLogger()
	tracer := observability.NopTracer()
	metricsProvider := observability.NopMetrics()
	if tel != nil {
		baseLog = tel.Logger()
		tracer = tel.Tracer()
		metricsProvider = tel.Metrics()
	}
	if sinkTimeout <= 0 {
		sinkTimeout = DefaultSinkTimeout
	}

	return &BroadcastStockUseCase{
		sinks:        sinks,
		sinkTimeout:  sinkTimeout,
		log:          baseLog.With(observability.F("service", inventoryService)),
		tracer:       tracer,
		reqCounter:   metricsProvider.Counter(observability.MUsecaseRequests),
		durHistogram: metricsProvider.Histogram(observability.MUsecaseDuration),
		extCounter:   metricsProvider.Counter(observability.MExternalRequests),
		extHistogram: metricsProvider.Histogram(observability.MExternalRequestDuration),
	}
}

func (uc *BroadcastStockUseCase) Execute(ctx context.Context, e dominv.StockUpdatedEvent) (_ *BroadcastResult, err error) {
	logger := logctx.FromOr(ctx, uc.log).With(
		observability.F("use_case", useCaseStockBroadcast),
		observability.F("product_id", e.ProductID),
		observability.F("new_stock", e.NewStock),
	)

	ctx, span := uc.tracer.Start(ctx, spanPrefix+"BroadcastStock",
		attribute.String("use_case", useCaseStockBroadcast),
		attribute.String("product.id", e.ProductID),
		attribute.Int("product.new_stock", e.NewStock),
		attribute.Int("sinks", len(uc.sinks)),
	)
	start := time.Now()
	outcome, statusText := "success", "OK"
	res := &BroadcastResult{}

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
			observability.L("use_case", useCaseStockBroadcast),
			observability.L("outcome", outcome),
		)
		uc.durHistogram.Observe(lat, observability.L("use_case", useCaseStockBroadcast))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", statusText),
			observability.F("latency_seconds", lat),
			observability.F("delivered", res.Delivered),
			observability.F("failed", res.Failed),
		}
		if err != nil {
			fields = append(fields, observability.F("error", err.Error()))
		}
		logger.Info("use_case_done", fields...)
	}()

	var errs []error
	for _, sink := range uc.sinks {
		if sinkErr := uc.deliver(ctx, sink, e); sinkErr != nil {
			res.Failed++
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name, sinkErr))
			span.AddEvent("stock.sink_failed", trace.WithAttributes(attribute.String("sink", sink.Name)))
			continue
		}
		res.Delivered++
	}

	if len(errs) > 0 {
		outcome, statusText = "error", "SINK_FAILED"
		return res, errors.Join(errs...)
	}
	return res, nil
}

func (uc *BroadcastStockUseCase) deliver(ctx context.Context, sink Sink, e dominv.StockUpdatedEvent) error {
	sinkCtx, cancel := context.WithTimeout(ctx, uc.sinkTimeout)
	defer cancel()

	start := time.Now()
	outcome := "success"
	err := sink.BroadcastStock(sinkCtx, e)
	if err != nil {
		outcome = "error"
	}

	uc.extCounter.Add(1,
		observability.L("peer", sink.Name),
		observability.L("endpoint", e.EventName()),
		observability.L("outcome", outcome),
	)
	uc.extHistogram.Observe(time.Since(start).Seconds(),
		observability.L("peer", sink.Name),
		observability.L("endpoint", e.EventName()),
	)
	return err
}
