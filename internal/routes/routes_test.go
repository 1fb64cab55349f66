package routes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/handler/api"
	"github.com/dukerupert/cakery/internal/idempotency"
	"github.com/dukerupert/cakery/internal/identity"
	"github.com/dukerupert/cakery/internal/middleware"
	"github.com/dukerupert/cakery/internal/router"
	"github.com/dukerupert/cakery/internal/service"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCheckout counts calls and returns one order per call.
type stubCheckout struct {
	calls atomic.Int32
}

func (s *stubCheckout) Checkout(_ context.Context, caller *domain.Caller, req service.CheckoutRequest) (*service.CheckoutResult, error) {
	s.calls.Add(1)
	return &service.CheckoutResult{
		CheckoutID: uuid.New(),
		Orders: []domain.Order{{
			ID:            uuid.New(),
			CustomerID:    caller.ID,
			ShopID:        uuid.New(),
			TotalAmount:   1000,
			PaymentType:   req.Delivery.PaymentType,
			OrderStatus:   domain.OrderStatusPending,
			PaymentStatus: domain.PaymentStatusPending,
		}},
	}, nil
}

// stubOrders records the last method that was routed to it.
type stubOrders struct {
	last string
}

func (s *stubOrders) hit(name string) (*domain.Order, error) {
	s.last = name
	return &domain.Order{ID: uuid.New()}, nil
}

func (s *stubOrders) GetOrder(context.Context, *domain.Caller, uuid.UUID) (*domain.Order, error) {
	return s.hit("get")
}

func (s *stubOrders) ListCustomerOrders(context.Context, *domain.Caller) ([]domain.Order, error) {
	s.last = "list_customer"
	return nil, nil
}

func (s *stubOrders) ListShopOrders(context.Context, *domain.Caller) ([]domain.Order, error) {
	s.last = "list_shop"
	return nil, nil
}

func (s *stubOrders) ListAllOrders(context.Context, *domain.Caller) ([]domain.Order, error) {
	s.last = "list_all"
	return nil, nil
}

func (s *stubOrders) UpdateOrderStatus(context.Context, *domain.Caller, uuid.UUID, domain.OrderStatus) (*domain.Order, error) {
	return s.hit("status")
}

func (s *stubOrders) UpdatePaymentStatus(context.Context, *domain.Caller, uuid.UUID, domain.PaymentStatus) (*domain.Order, error) {
	return s.hit("payment")
}

func (s *stubOrders) UpdateDeliveryDateAndStatus(context.Context, *domain.Caller, uuid.UUID, time.Time, domain.OrderStatus) (*domain.Order, error) {
	return s.hit("delivery")
}

func (s *stubOrders) CancelOrder(context.Context, *domain.Caller, uuid.UUID) (*domain.Order, error) {
	return s.hit("cancel")
}

type testServer struct {
	router   *router.Router
	verifier *identity.Verifier
	checkout *stubCheckout
	orders   *stubOrders
}

func newTestServer(t *testing.T, configure func(*APIDeps)) *testServer {
	t.Helper()

	verifier, err := identity.NewVerifier("test-secret", "")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	checkout, orders := &stubCheckout{}, &stubOrders{}

	deps := APIDeps{
		OrderHandler: api.NewOrderHandler(checkout, orders, logger),
		Logger:       logger,
	}
	if configure != nil {
		configure(&deps)
	}

	r := router.New(
		middleware.RequestID,
		middleware.WithCaller(verifier),
		middleware.WithRequestLogger(logger),
	)
	RegisterAPIRoutes(r, deps)

	return &testServer{router: r, verifier: verifier, checkout: checkout, orders: orders}
}

func (s *testServer) do(t *testing.T, role domain.Role, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if role != "" {
		token, err := s.verifier.Issue(domain.Caller{ID: uuid.MustParse("9b2e4c1a-7d3f-4e8a-b6c5-0a1b2c3d4e5f"), Role: role}, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

const checkoutJSON = `{"cart":[{"productId":"3f0c2b9e-8a4d-4b1e-9c7a-1d2e3f4a5b6c","quantity":1}],"deliveryAddress":"1 Baker St","paymentType":"card"}`

func TestRegisterAPIRoutes_Routing(t *testing.T) {
	id := uuid.New().String()

	tests := []struct {
		name   string
		role   domain.Role
		method string
		path   string
		body   string
		want   string
	}{
		{"customer orders", domain.RoleCustomer, http.MethodGet, "/api/orders/customer", "", "list_customer"},
		{"shop orders", domain.RoleShopOwner, http.MethodGet, "/api/orders/shop", "", "list_shop"},
		{"order by id", domain.RoleCustomer, http.MethodGet, "/api/orders/" + id, "", "get"},
		{"status", domain.RoleShopOwner, http.MethodPatch, "/api/orders/" + id + "/status", `{"status":"Processing"}`, "status"},
		{"payment", domain.RoleShopOwner, http.MethodPut, "/api/orders/" + id + "/payment-status", `{"paymentStatus":"Paid"}`, "payment"},
		{"delivery", domain.RoleShopOwner, http.MethodPut, "/api/orders/" + id + "/delivery-date-status", `{"deliveryDate":"2026-11-01","status":"Ready"}`, "delivery"},
		{"cancel", domain.RoleCustomer, http.MethodDelete, "/api/orders/" + id, "", "cancel"},
		{"admin list", domain.RoleAdmin, http.MethodGet, "/api/admin/orders", "", "list_all"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := s.do(t, tt.role, tt.method, tt.path, tt.body)

			assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
			assert.Equal(t, tt.want, s.orders.last)
		})
	}
}

func TestRegisterAPIRoutes_Checkout(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, domain.RoleCustomer, http.MethodPost, "/api/orders", checkoutJSON)

	assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, int32(1), s.checkout.calls.Load())
}

func TestRegisterAPIRoutes_Access(t *testing.T) {
	tests := []struct {
		name   string
		role   domain.Role
		method string
		path   string
		want   int
	}{
		{"anonymous read", "", http.MethodGet, "/api/orders/customer", http.StatusUnauthorized},
		{"anonymous checkout", "", http.MethodPost, "/api/orders", http.StatusUnauthorized},
		{"customer on admin list", domain.RoleCustomer, http.MethodGet, "/api/admin/orders", http.StatusForbidden},
		{"shop owner on admin list", domain.RoleShopOwner, http.MethodGet, "/api/admin/orders", http.StatusForbidden},
		{"unknown route", domain.RoleCustomer, http.MethodGet, "/api/carts", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, nil)
			w := s.do(t, tt.role, tt.method, tt.path, "")
			assert.Equal(t, tt.want, w.Code)
		})
	}
}

func TestRegisterAPIRoutes_CheckoutIdempotency(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := newTestServer(t, func(d *APIDeps) {
		d.Idempotency = idempotency.NewRedisStore(client, time.Hour)
	})

	first := s.do(t, domain.RoleCustomer, http.MethodPost, "/api/orders", checkoutJSON, idempotency.HeaderKey, "cart-42")
	second := s.do(t, domain.RoleCustomer, http.MethodPost, "/api/orders", checkoutJSON, idempotency.HeaderKey, "cart-42")

	require.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(idempotency.HeaderReplayed))
	assert.Equal(t, int32(1), s.checkout.calls.Load())
}

func TestRegisterAPIRoutes_CheckoutRateLimit(t *testing.T) {
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RequestsPerSecond: 0.001,
		BurstSize:         1,
	})
	t.Cleanup(limiter.Stop)

	s := newTestServer(t, func(d *APIDeps) { d.CheckoutLimiter = limiter })

	assert.Equal(t, http.StatusCreated, s.do(t, domain.RoleCustomer, http.MethodPost, "/api/orders", checkoutJSON).Code)
	assert.Equal(t, http.StatusTooManyRequests, s.do(t, domain.RoleCustomer, http.MethodPost, "/api/orders", checkoutJSON).Code)

	// Reads are not throttled.
	assert.Equal(t, http.StatusOK, s.do(t, domain.RoleCustomer, http.MethodGet, "/api/orders/customer", "").Code)
}

func TestRegisterAPIRoutes_BodyLimit(t *testing.T) {
	s := newTestServer(t, func(d *APIDeps) { d.MaxBodySize = 32 })

	w := s.do(t, domain.RoleCustomer, http.MethodPost, "/api/orders", checkoutJSON)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Zero(t, s.checkout.calls.Load())
}

func TestRegisterOpsRoutes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := middleware.NewMetricsWith("test", reg, reg)

	var pingErr error
	r := router.New(metrics.Middleware)
	RegisterOpsRoutes(r, OpsDeps{
		Metrics: metrics,
		Ping:    func(context.Context) error { return pingErr },
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())

	pingErr = errors.New("connection refused")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}
