package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	appInventory "github.com/Zhima-Mochi/minishop-inventory/app/internal/application/inventory"
	appOrder "github.com/Zhima-Mochi/minishop-inventory/app/internal/application/order"
	appProduct "github.com/Zhima-Mochi/minishop-inventory/app/internal/application/product"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/config"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/id"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/kafka"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/memory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/mongodb"
	infraobs "github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/observability/otelsdk"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/observability/oteltrace"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/observability/zaplogger"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/outbox"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/postgres"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/realtime"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/redis"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/pkg/logging"
	httppresentation "github.com/Zhima-Mochi/minishop-inventory/app/internal/presentation/http"
)

const instrumentationName = "minishop.inventory"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "minishop-inventory: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sdk, err := otelsdk.Setup(ctx, otelsdk.Config{
		ServiceName:    cfg.ServiceName,
		ServiceVersion: cfg.ServiceVersion,
		Env:            cfg.Env,
		Endpoint:       cfg.OTLPEndpoint,
		Insecure:       cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}

	baseLogger, err := logging.NewLogger(logging.Options{
		Service: cfg.ServiceName,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
	}, sdk.ZapCore(instrumentationName))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer func() { _ = baseLogger.Sync() }()
	zap.ReplaceGlobals(baseLogger)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	logger := zaplogger.New(baseLogger)
	tel := infraobs.New(
		oteltrace.New(instrumentationName, sdk.TracerProvider),
		logger,
		prometrics.NewMetrics(prometrics.New("", "", reg)),
	)

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	baseLogger.Info("store_ready", zap.String("driver", cfg.StoreDriver))

	bus := outbox.NewBus(logger,
		outbox.WithQueueSize(cfg.BusQueueSize),
		outbox.WithConcurrency(cfg.BusConcurrency),
	)
	hub := realtime.NewHub(realtime.Config{
		AllowedOrigins: cfg.WSAllowedOrigins,
		BroadcastGroup: cfg.WSBroadcastGroup,
	}, tel)

	bg, cancelBackground := context.WithCancel(context.WithoutCancel(ctx))
	sinks, closeSinks, err := buildSinks(bg, cfg, hub, sdk, logger)
	if err != nil {
		cancelBackground()
		st.close(context.Background())
		return err
	}

	broadcast := appInventory.NewBroadcastStockUseCase(sinks, cfg.PublishTimeout, tel)
	appInventory.NewWorker(bus, broadcast, tel).Start()
	bus.Start(bg)

	placeOrder := appOrder.NewPlaceOrderUseCase(st.uow, st.ids, bus, tel, appOrder.Options{
		TxTimeout:      cfg.OrderTxTimeout,
		MaxAttempts:    cfg.OrderTxMaxAttempts,
		PublishTimeout: cfg.PublishTimeout,
	})
	handler := httppresentation.NewHandler(
		placeOrder,
		appProduct.NewCreateProductUseCase(st.products, st.ids, tel),
		appProduct.NewListProductsUseCase(st.products, tel),
		tel,
		httppresentation.WithRealtime(hub),
		httppresentation.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})),
	)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		baseLogger.Info("http_server_start",
			zap.String("addr", server.Addr),
		)
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			baseLogger.Error("http_server_error", zap.Error(err))
			runErr = err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("http_server_shutdown_error",
			zap.Error(err),
		)
	} else {
		baseLogger.Info("http_server_stopped")
	}
	hub.Close()
	bus.Stop(shutdownCtx)
	cancelBackground()
	closeSinks()
	st.close(shutdownCtx)
	if err := sdk.Shutdown(shutdownCtx); err != nil {
		baseLogger.Warn("otel_shutdown_error", zap.Error(err))
	}
	return runErr
}

type idGenerator interface {
	NewID() string
}

type store struct {
	products product.Repository
	uow      inventory.UnitOfWork
	ids      idGenerator
	close    func(ctx context.Context)
}

func openStore(ctx context.Context, cfg config.Config) (*store, error) {
	switch cfg.StoreDriver {
	case config.DriverMongo:
		s, err := mongodb.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			_ = s.Close(ctx)
			return nil, err
		}
		return &store{
			products: s,
			uow:      s,
			ids:      mongodb.ObjectIDGenerator{},
			close:    func(ctx context.Context) { _ = s.Close(ctx) },
		}, nil
	case config.DriverPostgres:
		s, err := postgres.Connect(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureSchema(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return &store{
			products: s,
			uow:      s,
			ids:      id.NewUUIDGenerator(),
			close:    func(context.Context) { s.Close() },
		}, nil
	default:
		s := memory.NewStore()
		return &store{
			products: s,
			uow:      s,
			ids:      id.NewUUIDGenerator(),
			close:    func(context.Context) {},
		}, nil
	}
}

// buildSinks assembles the broadcast targets. With Redis configured every replica publishes
// to the channel and the relay feeds the local hub, so the hub is not a sink of its own.
func buildSinks(
	ctx context.Context,
	cfg config.Config,
	hub *realtime.Hub,
	sdk *otelsdk.SDK,
	logger observability.Logger,
) ([]appInventory.Sink, func(), error) {
	var (
		sinks   []appInventory.Sink
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.RedisAddr != "" {
		client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		closers = append(closers, func() { _ = client.Close() })

		relay := redis.NewRelay(client, cfg.RedisStockChannel, hub, logger)
		ready := make(chan struct{})
		go func() {
			if err := relay.Run(ctx, ready); err != nil {
				logger.Error("redis_relay_stopped", observability.F("error", err.Error()))
			}
		}()
		select {
		case <-ready:
		case <-time.After(5 * time.Second):
			logger.Warn("redis_relay_subscribe_slow")
		}
		sinks = append(sinks, appInventory.Sink{Name: "redis", Broadcaster: relay})
	} else {
		sinks = append(sinks, appInventory.Sink{Name: "websocket", Broadcaster: hub})
	}

	if len(cfg.KafkaBrokers) > 0 {
		w, err := kafka.NewWriter(kafka.WriterConfig{
			Brokers:  cfg.KafkaBrokers,
			Topic:    cfg.KafkaStockTopic,
			ClientID: cfg.ServiceName,
		}, sdk.TracerProvider)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		producer := kafka.NewStockProducer(w)
		closers = append(closers, func() { _ = producer.Close() })
		sinks = append(sinks, appInventory.Sink{Name: "kafka", Broadcaster: producer})
	}

	return sinks, closeAll, nil
}
