// Package api contains the JSON handlers mounted under /api.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/handler"
	"github.com/dukerupert/cakery/internal/middleware"
	"github.com/dukerupert/cakery/internal/service"
	"github.com/google/uuid"
)

// OrderHandler serves checkout and the order lifecycle routes.
type OrderHandler struct {
	checkout service.CheckoutService
	orders   service.OrderService
	logger   *slog.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(checkout service.CheckoutService, orders service.OrderService, logger *slog.Logger) *OrderHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &OrderHandler{
		checkout: checkout,
		orders:   orders,
		logger:   logger,
	}
}

type customizationBody struct {
	Size        *string  `json:"size" validate:"omitempty,max=100"`
	Toppings    []string `json:"toppings" validate:"max=20,dive,max=100"`
	Flavor      *string  `json:"flavor" validate:"omitempty,max=100"`
	CakeText    *string  `json:"cakeText" validate:"omitempty,max=200"`
	SpecialNote *string  `json:"specialNote" validate:"omitempty,max=500"`
}

// maxLineQuantity caps a single cart line.
const maxLineQuantity = 1000

type cartLineBody struct {
	ProductID string `json:"productId" validate:"required,uuid"`
	// Quantity is decoded per line so a non-integer is reported as an invalid
	// quantity for that line instead of as malformed JSON.
	Quantity      json.RawMessage    `json:"quantity"`
	Customization *customizationBody `json:"customization"`
}

// quantity returns the line quantity. A missing or null quantity is 0 and is
// rejected by checkout; ok is false for anything that is not a JSON integer.
func (l cartLineBody) quantity() (n int, ok bool) {
	if len(l.Quantity) == 0 {
		return 0, true
	}
	if err := json.Unmarshal(l.Quantity, &n); err != nil {
		return 0, false
	}
	return n, true
}

type checkoutBody struct {
	Cart            []cartLineBody `json:"cart" validate:"max=200,dive"`
	DeliveryAddress string         `json:"deliveryAddress" validate:"required,max=500"`
	PaymentType     string         `json:"paymentType" validate:"required,oneof=card cod"`
	Instructions    string         `json:"instructions" validate:"max=1000"`
}

// toRequest converts the body into the service request. Quantities that are
// not integers or exceed maxLineQuantity are rejected here; the lower bound and
// product existence are checked by checkout itself.
func (b checkoutBody) toRequest(op string) (service.CheckoutRequest, error) {
	lines := make([]domain.CartLine, len(b.Cart))
	for i, line := range b.Cart {
		productID := uuid.MustParse(line.ProductID)
		qty, ok := line.quantity()
		if !ok || qty > maxLineQuantity {
			return service.CheckoutRequest{}, &domain.CheckoutError{
				Kind:      domain.KindInvalidQuantity,
				Op:        op,
				Message:   fmt.Sprintf("Quantity for product %s must be a whole number from 1 to %d.", productID, maxLineQuantity),
				ProductID: productID,
				Line:      i,
			}
		}

		lines[i] = domain.CartLine{
			ProductID: productID,
			Quantity:  qty,
		}
		if c := line.Customization; c != nil {
			lines[i].Customization = &domain.Customization{
				Size:        c.Size,
				Toppings:    c.Toppings,
				Flavor:      c.Flavor,
				CakeText:    c.CakeText,
				SpecialNote: c.SpecialNote,
			}
		}
	}

	return service.CheckoutRequest{
		Lines: lines,
		Delivery: domain.DeliveryInfo{
			Address:      strings.TrimSpace(b.DeliveryAddress),
			PaymentType:  domain.PaymentType(b.PaymentType),
			Instructions: strings.TrimSpace(b.Instructions),
		},
	}, nil
}

type checkoutResponse struct {
	Message    string                  `json:"message"`
	CheckoutID string                  `json:"checkout_id"`
	Orders     []handler.OrderResponse `json:"orders"`
	Total      int64                   `json:"total_amount"`
	TotalShown string                  `json:"total_display"`
}

type orderResponse struct {
	Message string                `json:"message,omitempty"`
	Order   handler.OrderResponse `json:"order"`
}

type orderListResponse struct {
	Data []handler.OrderResponse `json:"data"`
}

// Checkout handles POST /api/orders
// Creates one order per shop in the cart. Responds 201 with every order, or
// with a checkout error whose body lists any orders already committed.
func (h *OrderHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	const op = "api.checkout"
	ctx := r.Context()
	caller := middleware.GetCaller(r)

	// Reject non-customers before looking at the cart.
	if err := service.AuthorizeCheckout(caller); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var body checkoutBody
	if err := decodeJSON(r, op, &body); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	req, err := body.toRequest(op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	result, err := h.checkout.Checkout(ctx, caller, req)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	total := result.Total

	middleware.GetLogger(ctx, h.logger).Info("checkout completed",
		"checkout_id", result.CheckoutID,
		"orders", len(result.Orders),
		"total_amount", total,
	)

	handler.WriteJSON(w, http.StatusCreated, checkoutResponse{
		Message:    "Orders placed successfully",
		CheckoutID: result.CheckoutID.String(),
		Orders:     handler.NewOrderResponses(result.Orders),
		Total:      total,
		TotalShown: domain.FormatAmount(total),
	})
}

// GetOrder handles GET /api/orders/{id}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.get_order")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.GetOrder(r.Context(), middleware.GetCaller(r), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, orderResponse{Order: handler.NewOrderResponse(*order)})
}

// ListCustomerOrders handles GET /api/orders/customer
func (h *OrderHandler) ListCustomerOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.orders.ListCustomerOrders)
}

// ListShopOrders handles GET /api/orders/shop
func (h *OrderHandler) ListShopOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.orders.ListShopOrders)
}

// ListAllOrders handles GET /api/admin/orders
func (h *OrderHandler) ListAllOrders(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, h.orders.ListAllOrders)
}

func (h *OrderHandler) list(w http.ResponseWriter, r *http.Request, fetch func(context.Context, *domain.Caller) ([]domain.Order, error)) {
	orders, err := fetch(r.Context(), middleware.GetCaller(r))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, orderListResponse{Data: handler.NewOrderResponses(orders)})
}

type updateStatusBody struct {
	Status string `json:"status" validate:"required"`
}

// UpdateOrderStatus handles PATCH /api/orders/{id}/status
func (h *OrderHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_order_status"

	id, err := pathID(r, op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var body updateStatusBody
	if err := decodeJSON(r, op, &body); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.UpdateOrderStatus(r.Context(), middleware.GetCaller(r), id, domain.OrderStatus(body.Status))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, orderResponse{
		Message: "Order status updated successfully",
		Order:   handler.NewOrderResponse(*order),
	})
}

type updatePaymentStatusBody struct {
	PaymentStatus string `json:"paymentStatus" validate:"required"`
}

// UpdatePaymentStatus handles PUT /api/orders/{id}/payment-status
func (h *OrderHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_payment_status"

	id, err := pathID(r, op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var body updatePaymentStatusBody
	if err := decodeJSON(r, op, &body); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.UpdatePaymentStatus(r.Context(), middleware.GetCaller(r), id, domain.PaymentStatus(body.PaymentStatus))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, orderResponse{
		Message: "Order payment status updated successfully",
		Order:   handler.NewOrderResponse(*order),
	})
}

type updateDeliveryBody struct {
	DeliveryDate string `json:"deliveryDate" validate:"required"`
	Status       string `json:"status" validate:"required"`
}

// UpdateDeliveryDateAndStatus handles PUT /api/orders/{id}/delivery-date-status
// deliveryDate is either a calendar date (2006-01-02) or an RFC 3339 timestamp.
func (h *OrderHandler) UpdateDeliveryDateAndStatus(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_delivery"

	id, err := pathID(r, op)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	var body updateDeliveryBody
	if err := decodeJSON(r, op, &body); err != nil {
		handler.ValidationErrorResponse(w, r, err)
		return
	}

	date, err := parseDeliveryDate(body.DeliveryDate)
	if err != nil {
		handler.ValidationErrorResponse(w, r, domain.NewValidationError(op, "deliveryDate", "deliveryDate must be a date (YYYY-MM-DD) or RFC 3339 timestamp"))
		return
	}

	order, err := h.orders.UpdateDeliveryDateAndStatus(r.Context(), middleware.GetCaller(r), id, date, domain.OrderStatus(body.Status))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, orderResponse{
		Message: "Order delivery date and status updated successfully",
		Order:   handler.NewOrderResponse(*order),
	})
}

// CancelOrder handles DELETE /api/orders/{id}
// The order is cancelled, not removed.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "api.cancel_order")
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	order, err := h.orders.CancelOrder(r.Context(), middleware.GetCaller(r), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.WriteJSON(w, http.StatusOK, orderResponse{
		Message: "Order cancelled successfully",
		Order:   handler.NewOrderResponse(*order),
	})
}

func parseDeliveryDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
