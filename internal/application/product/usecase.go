package product

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/application"
	domain "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	productService       = "product-service"
	useCaseProductCreate = "product.create"
	useCaseProductList   = "product.list"
	spanPrefix           = "UC."
)

var (
	ErrValidation = errors.New("product: invalid request")
	ErrRepository = errors.New("product: repository failure")
)

type IDGenerator interface {
	NewID() string
}

var (
	_ application.UseCase[CreateProductInput, *domain.Product]  = (*CreateProductUseCase)(nil)
	_ application.UseCase[ListProductsInput, []*domain.Product] = (*ListProductsUseCase)(nil)
)

// instrumented carries the span, RED metrics and closing log line shared by the product
// use cases.
type instrumented struct {
	log          observability.Logger
	tracer       observability.Tracer
	reqCounter   observability.Counter
	durHistogram observability.Histogram
}

func newInstrumented(tel observability.Observability) instrumented {
	in := instrumented{
		log:          observability.NopLogger(),
		tracer:       observability.NopTracer(),
		reqCounter:   observability.NopCounter(),
		durHistogram: observability.NopHistogram(),
	}
	if tel != nil {
		in.log = tel.Logger()
		in.tracer = tel.Tracer()
		in.reqCounter = tel.Metrics().Counter(observability.MUsecaseRequests)
		in.durHistogram = tel.Metrics().Histogram(observability.MUsecaseDuration)
	}
	in.log = in.log.With(observability.F("service", productService))
	return in
}

// run executes fn inside a span named after the use case and records its outcome.
func (in instrumented) run(ctx context.Context, useCase, spanName string, fn func(ctx context.Context) (status string, err error)) error {
	logger := logctx.FromOr(ctx, in.log).With(observability.F("use_case", useCase))
	ctx, span := in.tracer.Start(ctx, spanPrefix+spanName, attribute.String("use_case", useCase))
	start := time.Now()

	status, err := fn(ctx)
	outcome := "success"
	if err != nil {
		outcome = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, status)
	} else {
		span.SetStatus(codes.Ok, status)
	}
	span.End()

	lat := time.Since(start).Seconds()
	in.reqCounter.Add(1, observability.L("use_case", useCase), observability.L("outcome", outcome))
	in.durHistogram.Observe(lat, observability.L("use_case", useCase))

	fields := []observability.Field{
		observability.F("outcome", outcome),
		observability.F("status", status),
		observability.F("latency_seconds", lat),
	}
	if err != nil {
		fields = append(fields, observability.F("error", err.Error()))
	}
	logger.Info("use_case_done", fields...)
	return err
}

type CreateProductInput struct {
	Name  string
	Price float64
	Stock int
}

type CreateProductUseCase struct {
	repo        domain.Repository
	idGenerator IDGenerator
	instrumented
}

func NewCreateProductUseCase(repo domain.Repository, idGen IDGenerator, tel observability.Observability) *CreateProductUseCase {
	return &CreateProductUseCase{repo: repo, idGenerator: idGen, instrumented: newInstrumented(tel)}
}

func (uc *CreateProductUseCase) Execute(ctx context.Context, cmd CreateProductInput) (*domain.Product, error) {
	var created *domain.Product
	err := uc.run(ctx, useCaseProductCreate, "CreateProduct", func(ctx context.Context) (string, error) {
		p, err := domain.New(uc.idGenerator.NewID(), cmd.Name, cmd.Price, cmd.Stock)
		if err != nil {
			return "INVALID_PRODUCT", fmt.Errorf("%w: %w", ErrValidation, err)
		}
		if err := uc.repo.Create(ctx, p); err != nil {
			return "REPO_CREATE_FAILED", fmt.Errorf("%w: %w", ErrRepository, err)
		}
		created = p
		return "OK", nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

type ListProductsInput struct{}

type ListProductsUseCase struct {
	repo domain.Repository
	instrumented
}

func NewListProductsUseCase(repo domain.Repository, tel observability.Observability) *ListProductsUseCase {
	return &ListProductsUseCase{repo: repo, instrumented: newInstrumented(tel)}
}

// Execute returns all products, newest first. It never returns a nil slice on success.
func (uc *ListProductsUseCase) Execute(ctx context.Context, _ ListProductsInput) ([]*domain.Product, error) {
	var products []*domain.Product
	err := uc.run(ctx, useCaseProductList, "ListProducts", func(ctx context.Context) (string, error) {
		list, err := uc.repo.List(ctx)
		if err != nil {
			return "REPO_LIST_FAILED", fmt.Errorf("%w: %w", ErrRepository, err)
		}
		products = list
		return "OK", nil
	})
	if err != nil {
		return nil, err
	}
	if products == nil {
		products = []*domain.Product{}
	}
	return products, nil
}
