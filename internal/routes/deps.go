package routes

import (
	"context"
	"log/slog"

	"github.com/dukerupert/cakery/internal/handler/api"
	"github.com/dukerupert/cakery/internal/idempotency"
	"github.com/dukerupert/cakery/internal/middleware"
)

// APIDeps contains dependencies for the /api routes
type APIDeps struct {
	// Orders (checkout, reads, lifecycle updates)
	OrderHandler *api.OrderHandler

	// Idempotency backs the Idempotency-Key header on checkout.
	// Nil disables key handling.
	Idempotency idempotency.Store

	// CheckoutLimiter throttles checkout per caller. Nil disables it.
	CheckoutLimiter *middleware.RateLimiter

	// MaxBodySize caps request bodies. Zero uses the middleware default.
	MaxBodySize int64

	Logger *slog.Logger
}

// OpsDeps contains dependencies for operational endpoints
type OpsDeps struct {
	Metrics *middleware.Metrics

	// Ping reports whether the order store is reachable.
	Ping func(ctx context.Context) error
}
