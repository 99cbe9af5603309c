package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/application"
	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"
	workerpresentation "github.com/Zhima-Mochi/minishop-inventory/app/internal/presentation/worker"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const workerService = "stock_worker"

// Worker turns stock events from the bus into broadcasts.
type Worker struct {
	subscriber domoutbox.Subscriber
	useCase    application.UseCase[dominv.StockUpdatedEvent, *BroadcastResult]

	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func NewWorker(
	subscriber domoutbox.Subscriber,
	useCase application.UseCase[dominv.StockUpdatedEvent, *BroadcastResult],
	tel observability.Observability,
) *Worker {
	if tel == nil {
		tel = observability.Nop()
	}
	return &Worker{
		subscriber:   subscriber,
		useCase:      useCase,
		log:          tel.Logger().With(observability.F("service", workerService)),
		tracer:       tel.Tracer(),
		reqCounter:   tel.Metrics().Counter(observability.MUsecaseRequests),
		durHistogram: tel.Metrics().Histogram(observability.MUsecaseDuration),
	}
}

func (w *Worker) Start() {
	if w.subscriber == nil || w.useCase == nil {
		return
	}
	w.subscriber.Subscribe(dominv.StockUpdatedEvent{}.EventName(), w.handleStockUpdated)
}

func (w *Worker) handleStockUpdated(ctx context.Context, e domoutbox.Event) error {
	const useCase = "inventory.worker.stock_updated"
	evt, ok := e.(dominv.StockUpdatedEvent)
	if !ok {
		w.count(useCase, "ignored")
		return nil
	}

	ctx, span := w.tracer.Start(ctx, spanPrefix+"StockUpdated",
		attribute.String("use_case", useCase),
		attribute.String("event", e.EventName()),
	)
	start := time.Now()
	outcome, status := "success", "OK"

	ctx = workerpresentation.WithEventContext(ctx, logctx.FromOr(ctx, w.log), workerpresentation.EventMeta{
		Name: e.EventName(),
		Attrs: map[string]string{
			"use_case":   useCase,
			"product_id": evt.ProductID,
		},
	})
	logger := logctx.FromOr(ctx, w.log)

	var res *BroadcastResult
	defer func() {
		lat := time.Since(start).Seconds()
		w.count(useCase, outcome)
		w.durHistogram.Observe(lat, observability.L("use_case", useCase))

		fields := []observability.Field{
			observability.F("outcome", outcome),
			observability.F("status", status),
			observability.F("latency_seconds", lat),
			observability.F("new_stock", evt.NewStock),
		}
		if res != nil {
			fields = append(fields,
				observability.F("delivered", res.Delivered),
				observability.F("failed", res.Failed),
			)
		}
		logger.Info("use_case_done", fields...)

		if outcome == "error" {
			span.SetStatus(codes.Error, status)
		} else {
			span.SetStatus(codes.Ok, status)
		}
		span.End()
	}()

	var err error
	res, err = w.useCase.Execute(ctx, evt)
	if err != nil {
		outcome, status = "error", "BROADCAST_FAILED"
		return fmt.Errorf("worker: stock broadcast: %w", err)
	}
	return nil
}

func (w *Worker) count(useCase, outcome string) {
	w.reqCounter.Add(1,
		observability.L("use_case", useCase),
		observability.L("outcome", outcome),
	)
}
