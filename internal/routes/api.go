package routes

import (
	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/idempotency"
	"github.com/dukerupert/cakery/internal/middleware"
	"github.com/dukerupert/cakery/internal/router"
)

// RegisterAPIRoutes registers the order API under /api. Every route needs a
// verified caller; finer checks (ownership, role) happen in the services.
func RegisterAPIRoutes(r *router.Router, deps APIDeps) {
	maxBody := deps.MaxBodySize
	if maxBody <= 0 {
		maxBody = middleware.DefaultMaxBodySize
	}

	api := r.Route("/api",
		middleware.MaxBodySize(maxBody),
		middleware.RequireCaller,
	)
	h := deps.OrderHandler

	// Checkout
	var checkout []router.Middleware
	if deps.CheckoutLimiter != nil {
		checkout = append(checkout, deps.CheckoutLimiter.Middleware)
	}
	if deps.Idempotency != nil {
		checkout = append(checkout, idempotency.Middleware(deps.Idempotency, deps.Logger))
	}
	api.Post("/orders", h.Checkout, checkout...)

	// Reads
	api.Get("/orders/customer", h.ListCustomerOrders)
	api.Get("/orders/shop", h.ListShopOrders)
	api.Get("/orders/{id}", h.GetOrder)

	// Lifecycle
	api.Patch("/orders/{id}/status", h.UpdateOrderStatus)
	api.Put("/orders/{id}/payment-status", h.UpdatePaymentStatus)
	api.Put("/orders/{id}/delivery-date-status", h.UpdateDeliveryDateAndStatus)
	api.Delete("/orders/{id}", h.CancelOrder)

	// Admin
	admin := api.Route("/admin", middleware.RequireRole(domain.RoleAdmin))
	admin.Get("/orders", h.ListAllOrders)
}
