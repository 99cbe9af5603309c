package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	appOrder "github.com/Zhima-Mochi/minishop-inventory/app/internal/application/order"
	appProduct "github.com/Zhima-Mochi/minishop-inventory/app/internal/application/product"
	domainOrder "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	domainProduct "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability/logctx"
)

const (
	componentHTTPHandler = "http_server"
	headerRequestID      = "X-Request-ID"
	tracerName           = "minishop.http"
	maxBodyBytes         = 1 << 20

	routeUnmatched = "unmatched"

	msgOrderPlaced     = "Order placed successfully"
	msgOrderInvalid    = "Valid productId and quantity are required"
	msgProductCreated  = "Product created successfully"
	msgProductRequired = "Name, price and stock are required"
	msgHealthy         = "Inventory service is running"
	msgInternal        = "Internal Server Error"
	msgNotFound        = "Not Found"
	msgMethodNotAllow  = "Method Not Allowed"
)

type Handler struct {
	placeOrder    *appOrder.PlaceOrderUseCase
	createProduct *appProduct.CreateProductUseCase
	listProducts  *appProduct.ListProductsUseCase

	realtime       http.Handler
	metricsHandler http.Handler
	corsOrigins    []string

	log          observability.Logger
	tracer       trace.Tracer
	httpRequests observability.Counter   // http_requests_total{method,route,status}
	httpDuration observability.Histogram // http_request_duration_seconds{method,route,status}
}

type Option func(*Handler)

// WithRealtime mounts the websocket endpoint at GET /ws.
func WithRealtime(h http.Handler) Option {
	return func(hd *Handler) { hd.realtime = h }
}

// WithMetricsHandler mounts the Prometheus exposition at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(hd *Handler) { hd.metricsHandler = h }
}

func WithCORSOrigins(origins []string) Option {
	return func(hd *Handler) {
		if len(origins) > 0 {
			hd.corsOrigins = origins
		}
	}
}

func NewHandler(
	placeOrder *appOrder.PlaceOrderUseCase,
	createProduct *appProduct.CreateProductUseCase,
	listProducts *appProduct.ListProductsUseCase,
	tel observability.Observability,
	opts ...Option,
) *Handler {
	if tel == nil {
		tel = observability.Nop()
	}
	h := &Handler{
		placeOrder:    placeOrder,
		createProduct: createProduct,
		listProducts:  listProducts,
		corsOrigins:   []string{"*"},
		log:           tel.Logger().With(observability.F("component", componentHTTPHandler)),
		tracer:        otel.Tracer(tracerName),
		httpRequests:  tel.Metrics().Counter(observability.MHTTPRequests),
		httpDuration:  tel.Metrics().Histogram(observability.MHTTPRequestDuration),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", headerRequestID, "traceparent", "tracestate"},
		ExposedHeaders: []string{headerRequestID},
		MaxAge:         300,
	}))
	r.Use(h.withRecover)

	// Trace → Request Logger → Metrics → Access Log → Recover → Handler
	h.handle(r, http.MethodPost, "/api/v1/orders", h.handlePlaceOrder)
	h.handle(r, http.MethodGet, "/api/v1/products", h.handleListProducts)
	h.handle(r, http.MethodPost, "/api/v1/products", h.handleCreateProduct)
	h.handle(r, http.MethodGet, "/health", h.handleHealth)

	// Hijacked and scraped endpoints skip the recording wrappers.
	if h.realtime != nil {
		r.Method(http.MethodGet, "/ws", ObservabilityMiddleware(h.log, requestIDFromHeader)(h.realtime))
	}
	if h.metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", h.metricsHandler)
	}

	r.NotFound(h.wrap(routeUnmatched, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, msgNotFound)
	}).ServeHTTP)
	r.MethodNotAllowed(h.wrap(routeUnmatched, func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllow)
	}).ServeHTTP)

	return r
}

func (h *Handler) handle(r chi.Router, method, route string, handler http.HandlerFunc) {
	r.Method(method, route, h.wrap(route, handler))
}

func (h *Handler) wrap(route string, handler http.HandlerFunc) http.Handler {
	inner := h.withTrace(
		ObservabilityMiddleware(h.log, requestIDFromHeader)(
			h.withHTTPMetrics(
				h.withAccessLog(
					h.withRecover(handler),
				),
			),
		),
	)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// stable route template for low-cardinality labels
		inner.ServeHTTP(w, r.WithContext(contextWithRoute(r.Context(), route)))
	})
}

func requestIDFromHeader(r *http.Request) string {
	return r.Header.Get(headerRequestID)
}

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type placeOrderRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type orderResponse struct {
	ID              string    `json:"id"`
	Product         string    `json:"product"`
	Quantity        int       `json:"quantity"`
	PriceAtPurchase float64   `json:"priceAtPurchase"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func newOrderResponse(o *domainOrder.Order) orderResponse {
	return orderResponse{
		ID:              o.ID,
		Product:         o.ProductID,
		Quantity:        o.Quantity,
		PriceAtPurchase: o.PriceAtPurchase,
		Status:          string(o.Status),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func (h *Handler) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgOrderInvalid)
		return
	}

	result, err := h.placeOrder.Execute(r.Context(), appOrder.PlaceOrderInput{
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	if !result.Accepted {
		writeError(w, http.StatusBadRequest, result.Reason)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: msgOrderPlaced,
		Data:    newOrderResponse(result.Order),
	})
}

// createProductRequest uses pointers so a missing field is told apart from a zero value.
type createProductRequest struct {
	Name  *string  `json:"name"`
	Price *float64 `json:"price"`
	Stock *int     `json:"stock"`
}

type productResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Price     float64   `json:"price"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func newProductResponse(p *domainProduct.Product) productResponse {
	return productResponse{
		ID:        p.ID,
		Name:      p.Name,
		Price:     p.Price,
		Stock:     p.Stock,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}

func (h *Handler) handleCreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgProductRequired)
		return
	}
	if req.Name == nil || *req.Name == "" || req.Price == nil || req.Stock == nil {
		writeError(w, http.StatusBadRequest, msgProductRequired)
		return
	}

	created, err := h.createProduct.Execute(r.Context(), appProduct.CreateProductInput{
		Name:  *req.Name,
		Price: *req.Price,
		Stock: *req.Stock,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: msgProductCreated,
		Data:    newProductResponse(created),
	})
}

func (h *Handler) handleListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.listProducts.Execute(r.Context(), appProduct.ListProductsInput{})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: out})
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: msgHealthy})
}

// withAccessLog writes a single access log after the handler completes.
// It relies on the request-scoped logger already injected by ObservabilityMiddleware.
func (h *Handler) withAccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := newStatusRecorder(w)

		next.ServeHTTP(lrw, r)

		logctx.FromOr(r.Context(), h.log).Info("http_access",
			observability.F("method", r.Method),
			observability.F("route", routeFromContext(r.Context())),
			observability.F("path", r.URL.Path),
			observability.F("status", lrw.status),
			observability.F("latency_ms", time.Since(start).Milliseconds()),
		)
	})
}

// withTrace creates a server span for the request using OTel and W3C propagation.
func (h *Handler) withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parentCtx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		route := routeFromContext(parentCtx)
		if route == routeUnmatched {
			route = r.URL.Path
		}

		ctx, span := h.tracer.Start(parentCtx,
			r.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("http.target", r.URL.Path),
				attribute.String("http.user_agent", r.UserAgent()),
			),
		)
		defer span.End()

		lrw := newStatusRecorder(w)
		next.ServeHTTP(lrw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", lrw.status))
	})
}

// withHTTPMetrics records RED-ish HTTP metrics using injected vectors.
// DO NOT new metrics inside the middleware.
func (h *Handler) withHTTPMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := newStatusRecorder(w)

		next.ServeHTTP(lrw, r)

		labels := []observability.Label{
			observability.L("method", r.Method),
			observability.L("route", routeFromContext(r.Context())),
			observability.L("status", strconv.Itoa(lrw.status)),
		}
		h.httpRequests.Add(1, labels...)
		h.httpDuration.Observe(time.Since(start).Seconds(), labels...)
	})
}

// withRecover turns a panic into the generic 500 body. http.ErrAbortHandler is re-raised
// so the server can abort the response as intended.
func (h *Handler) withRecover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logctx.FromOr(r.Context(), h.log).Error("http_panic_recovered",
				observability.F("panic", rec),
				observability.F("stack", string(debug.Stack())),
			)
			writeError(w, http.StatusInternalServerError, msgInternal)
		}()
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, envelope{Success: false, Message: msg})
}

// writeDomainError maps use case errors onto responses. Anything unrecognised is a 500 with
// a generic body; the detail only goes to the log.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, appOrder.ErrValidation):
		writeError(w, http.StatusBadRequest, msgOrderInvalid)
	case errors.Is(err, appProduct.ErrValidation):
		writeError(w, http.StatusBadRequest, productValidationMessage(err))
	default:
		logctx.FromOr(r.Context(), h.log).Error("http_request_failed",
			observability.F("route", routeFromContext(r.Context())),
			observability.F("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, msgInternal)
	}
}

func productValidationMessage(err error) string {
	switch {
	case errors.Is(err, domainProduct.ErrInvalidPrice):
		return "Price must be zero or greater"
	case errors.Is(err, domainProduct.ErrInvalidStock):
		return "Stock must be zero or greater"
	default:
		return msgProductRequired
	}
}

type routeKey struct{}

// contextWithRoute stores the stable route template in the context so downstream
// metrics/logging can rely on low-cardinality values.
func contextWithRoute(ctx context.Context, route string) context.Context {
	if route == "" {
		return ctx
	}
	return context.WithValue(ctx, routeKey{}, route)
}

func routeFromContext(ctx context.Context) string {
	if ctx == nil {
		return "unknown"
	}
	if route, ok := ctx.Value(routeKey{}).(string); ok && route != "" {
		return route
	}
	return "unknown"
}
