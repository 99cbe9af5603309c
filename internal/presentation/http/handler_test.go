package httppresentation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appOrder "github.com/Zhima-Mochi/minishop-inventory/app/internal/application/order"
	appProduct "github.com/Zhima-Mochi/minishop-inventory/app/internal/application/product"
	dominv "github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/memory"
	infraobs "github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/observability"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/infrastructure/observability/prometrics"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/observability"
)

type seqIDs struct {
	prefix string
	n      atomic.Int64
}

func (g *seqIDs) NewID() string { return fmt.Sprintf("%s-%d", g.prefix, g.n.Add(1)) }

type failingUoW struct{ err error }

func (f failingUoW) Within(context.Context, func(context.Context, dominv.Tx) error) error {
	return f.err
}

type panickingUoW struct{}

func (panickingUoW) Within(context.Context, func(context.Context, dominv.Tx) error) error {
	panic("boom")
}

type testServer struct {
	store   *memory.Store
	handler http.Handler
}

func newTestServer(t *testing.T, uow dominv.UnitOfWork, tel observability.Observability, opts ...Option) *testServer {
	t.Helper()
	store := memory.NewStore()
	if uow == nil {
		uow = store
	}
	h := NewHandler(
		appOrder.NewPlaceOrderUseCase(uow, &seqIDs{prefix: "o"}, nil, tel, appOrder.Options{}),
		appProduct.NewCreateProductUseCase(store, &seqIDs{prefix: "p"}, tel),
		appProduct.NewListProductsUseCase(store, tel),
		tel,
		opts...,
	)
	return &testServer{store: store, handler: h.Router()}
}

func (s *testServer) seed(t *testing.T, id string, price float64, stock int) {
	t.Helper()
	p, err := product.New(id, "Widget", price, stock)
	require.NoError(t, err)
	require.NoError(t, s.store.Create(context.Background(), p))
}

func (s *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, body := s.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Inventory service is running", body["message"])
	assert.NotEmpty(t, rec.Header().Get(headerRequestID))
}

func TestPlaceOrderAccepted(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "p1", 5, 10)

	rec, body := s.do(t, http.MethodPost, "/api/v1/orders", `{"productId":"p1","quantity":3}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Order placed successfully", body["message"])

	data := body["data"].(map[string]any)
	assert.Equal(t, "p1", data["product"])
	assert.EqualValues(t, 3, data["quantity"])
	assert.EqualValues(t, 5, data["priceAtPurchase"])
	assert.Equal(t, "PLACED", data["status"])
	assert.NotEmpty(t, data["id"])
	assert.NotEmpty(t, data["createdAt"])

	p, err := s.store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 7, p.Stock)
}

func TestPlaceOrderRejected(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "p1", 5, 2)

	for _, body := range []string{
		`{"productId":"p1","quantity":3}`,
		`{"productId":"ghost","quantity":1}`,
	} {
		rec, out := s.do(t, http.MethodPost, "/api/v1/orders", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, false, out["success"])
		assert.Equal(t, "Insufficient stock or invalid product", out["message"])
	}

	p, err := s.store.Get(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 2, p.Stock)
}

func TestPlaceOrderValidation(t *testing.T) {
	s := newTestServer(t, nil, nil)
	s.seed(t, "p1", 5, 2)

	for _, body := range []string{
		`{"productId":"p1","quantity":0}`,
		`{"productId":"p1","quantity":-1}`,
		`{"productId":"p1"}`,
		`{"quantity":1}`,
		`{"productId":"p1","quantity":"two"}`,
		`not json`,
	} {
		rec, out := s.do(t, http.MethodPost, "/api/v1/orders", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, "Valid productId and quantity are required", out["message"], body)
	}
	orders, err := s.store.Orders(context.Background())
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestPlaceOrderStorageFailureIsGeneric500(t *testing.T) {
	s := newTestServer(t, failingUoW{err: errors.New("dial tcp 10.0.0.7:5432: connection refused")}, nil)

	rec, out := s.do(t, http.MethodPost, "/api/v1/orders", `{"productId":"p1","quantity":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "Internal Server Error", out["message"])
	assert.NotContains(t, rec.Body.String(), "10.0.0.7")
}

func TestPanicIsRecovered(t *testing.T) {
	s := newTestServer(t, panickingUoW{}, nil)

	rec, out := s.do(t, http.MethodPost, "/api/v1/orders", `{"productId":"p1","quantity":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Internal Server Error", out["message"])
}

func TestCreateAndListProducts(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, out := s.do(t, http.MethodPost, "/api/v1/products", `{"name":"Lamp","price":12.5,"stock":4}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Product created successfully", out["message"])
	created := out["data"].(map[string]any)
	assert.Equal(t, "Lamp", created["name"])
	assert.EqualValues(t, 12.5, created["price"])
	assert.EqualValues(t, 4, created["stock"])

	rec, _ = s.do(t, http.MethodPost, "/api/v1/products", `{"name":"Desk","price":0,"stock":0}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec, out = s.do(t, http.MethodGet, "/api/v1/products", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	list := out["data"].([]any)
	require.Len(t, list, 2)
	assert.Equal(t, "Desk", list[0].(map[string]any)["name"])
	assert.Equal(t, "Lamp", list[1].(map[string]any)["name"])
}

func TestListProductsEmptyIsArray(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestCreateProductValidation(t *testing.T) {
	s := newTestServer(t, nil, nil)

	cases := map[string]string{
		`{"price":1,"stock":1}`:                "Name, price and stock are required",
		`{"name":"Lamp","stock":1}`:            "Name, price and stock are required",
		`{"name":"Lamp","price":1}`:            "Name, price and stock are required",
		`{"name":"   ","price":1,"stock":1}`:   "Name, price and stock are required",
		`{"name":"Lamp","price":-1,"stock":1}`: "Price must be zero or greater",
		`{"name":"Lamp","price":1,"stock":-3}`: "Stock must be zero or greater",
	}
	for body, msg := range cases {
		rec, out := s.do(t, http.MethodPost, "/api/v1/products", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.Equal(t, msg, out["message"], body)
	}

	list, err := s.store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	s := newTestServer(t, nil, nil)

	rec, out := s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, out["success"])

	rec, _ = s.do(t, http.MethodDelete, "/api/v1/products", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestIDIsEchoed(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(headerRequestID, "req-42")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-42", rec.Header().Get(headerRequestID))
}

func TestCORSAllowsAnyOrigin(t *testing.T) {
	s := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://mobile.example")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTPMetricsRecordedOncePerRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	tel := infraobs.New(nil, nil, prometrics.NewMetrics(prometrics.New("", "", reg)))
	s := newTestServer(t, nil, tel)

	s.do(t, http.MethodGet, "/health", "")
	s.do(t, http.MethodGet, "/health", "")
	s.do(t, http.MethodGet, "/missing", "")

	expected := `
# HELP http_requests_total HTTP requests by route, method and status.
# TYPE http_requests_total counter
http_requests_total{method="GET",route="/health",status="200"} 2
http_requests_total{method="GET",route="unmatched",status="404"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "http_requests_total"))
}

func TestMountsRealtimeAndMetrics(t *testing.T) {
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusTeapot) })
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })
	s := newTestServer(t, nil, nil, WithRealtime(ws), WithMetricsHandler(metrics))

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	assert.Equal(t, http.StatusTeapot, rec.Code)

	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "# metrics", rec.Body.String())
}
