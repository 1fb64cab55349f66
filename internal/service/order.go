package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/telemetry"
	"github.com/google/uuid"
)

// OrderService provides the read and lifecycle operations on orders created by
// checkout. Status changes are compare-and-set against the status that was
// read, so two concurrent updates cannot both succeed.
type OrderService interface {
	// GetOrder returns an order visible to the caller. Orders the caller may
	// not see are reported as not found.
	GetOrder(ctx context.Context, caller *domain.Caller, id uuid.UUID) (*domain.Order, error)

	// ListCustomerOrders returns the calling customer's orders, newest first.
	ListCustomerOrders(ctx context.Context, caller *domain.Caller) ([]domain.Order, error)

	// ListShopOrders returns the calling shop owner's orders, newest first.
	ListShopOrders(ctx context.Context, caller *domain.Caller) ([]domain.Order, error)

	// ListAllOrders returns every order. Admin only.
	ListAllOrders(ctx context.Context, caller *domain.Caller) ([]domain.Order, error)

	// UpdateOrderStatus moves an order along the fulfilment lifecycle.
	// Shop owners may update their own orders; admins may update any.
	UpdateOrderStatus(ctx context.Context, caller *domain.Caller, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error)

	// UpdatePaymentStatus records a payment state change.
	UpdatePaymentStatus(ctx context.Context, caller *domain.Caller, id uuid.UUID, status domain.PaymentStatus) (*domain.Order, error)

	// UpdateDeliveryDateAndStatus sets the delivery date together with a
	// status change.
	UpdateDeliveryDateAndStatus(ctx context.Context, caller *domain.Caller, id uuid.UUID, date time.Time, status domain.OrderStatus) (*domain.Order, error)

	// CancelOrder cancels a pending or processing order. The owning customer,
	// the owning shop or an admin may cancel. Orders are never hard deleted.
	CancelOrder(ctx context.Context, caller *domain.Caller, id uuid.UUID) (*domain.Order, error)
}

type orderService struct {
	store  domain.OrderStore
	logger *slog.Logger
}

// NewOrderService creates a new OrderService instance
func NewOrderService(store domain.OrderStore, logger *slog.Logger) OrderService {
	if logger == nil {
		logger = slog.Default()
	}
	return &orderService{store: store, logger: logger}
}

func (s *orderService) GetOrder(ctx context.Context, caller *domain.Caller, id uuid.UUID) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, ErrAuthRequired
	}

	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.VisibleTo(caller) {
		return nil, ErrOrderNotFound
	}
	return order, nil
}

func (s *orderService) ListCustomerOrders(ctx context.Context, caller *domain.Caller) ([]domain.Order, error) {
	if err := requireRole(caller, domain.RoleCustomer); err != nil {
		return nil, err
	}
	return s.store.ListOrdersByCustomer(ctx, caller.ID)
}

func (s *orderService) ListShopOrders(ctx context.Context, caller *domain.Caller) ([]domain.Order, error) {
	if err := requireRole(caller, domain.RoleShopOwner); err != nil {
		return nil, err
	}
	return s.store.ListOrdersByShop(ctx, caller.ID)
}

func (s *orderService) ListAllOrders(ctx context.Context, caller *domain.Caller) ([]domain.Order, error) {
	if err := requireRole(caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	return s.store.ListOrders(ctx)
}

func (s *orderService) UpdateOrderStatus(ctx context.Context, caller *domain.Caller, id uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	return s.changeStatus(ctx, caller, id, status, nil)
}

func (s *orderService) UpdateDeliveryDateAndStatus(ctx context.Context, caller *domain.Caller, id uuid.UUID, date time.Time, status domain.OrderStatus) (*domain.Order, error) {
	if date.IsZero() {
		return nil, ErrMissingDeliveryDate
	}
	date = date.UTC()
	return s.changeStatus(ctx, caller, id, status, &date)
}

func (s *orderService) changeStatus(ctx context.Context, caller *domain.Caller, id uuid.UUID, status domain.OrderStatus, deliveryDate *time.Time) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidOrderStatus
	}

	order, err := s.loadForShop(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	// Re-stating the current status only updates the delivery date.
	if order.OrderStatus != status && !order.OrderStatus.CanTransitionTo(status) {
		return nil, ErrIllegalTransition
	}

	return s.applyStatus(ctx, caller, order, status, deliveryDate)
}

func (s *orderService) UpdatePaymentStatus(ctx context.Context, caller *domain.Caller, id uuid.UUID, status domain.PaymentStatus) (*domain.Order, error) {
	if !status.Valid() {
		return nil, domain.ErrInvalidPaymentStatus
	}

	order, err := s.loadForShop(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if order.PaymentStatus == status {
		return order, nil
	}
	if !order.PaymentStatus.CanTransitionTo(status) {
		return nil, ErrIllegalTransition
	}

	updated, err := s.store.UpdatePaymentStatus(ctx, domain.UpdatePaymentStatusParams{
		ID:   order.ID,
		From: order.PaymentStatus,
		To:   status,
	})
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil {
		telemetry.Business.PaymentStatusChanges.WithLabelValues(string(order.PaymentStatus), string(status)).Inc()
	}
	s.logger.InfoContext(ctx, "payment status updated",
		"order_id", order.ID,
		"from", order.PaymentStatus,
		"to", status,
		"by", caller.ID,
	)
	return updated, nil
}

func (s *orderService) CancelOrder(ctx context.Context, caller *domain.Caller, id uuid.UUID) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, ErrAuthRequired
	}

	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.VisibleTo(caller) {
		return nil, ErrOrderNotFound
	}
	if !order.OrderStatus.CanTransitionTo(domain.OrderStatusCancelled) {
		return nil, ErrOrderNotCancellable
	}

	return s.applyStatus(ctx, caller, order, domain.OrderStatusCancelled, nil)
}

func (s *orderService) applyStatus(ctx context.Context, caller *domain.Caller, order *domain.Order, status domain.OrderStatus, deliveryDate *time.Time) (*domain.Order, error) {
	updated, err := s.store.UpdateOrderStatus(ctx, domain.UpdateOrderStatusParams{
		ID:           order.ID,
		From:         order.OrderStatus,
		To:           status,
		DeliveryDate: deliveryDate,
	})
	if err != nil {
		return nil, err
	}

	if telemetry.Business != nil && order.OrderStatus != status {
		telemetry.Business.OrderStatusChanges.WithLabelValues(string(order.OrderStatus), string(status)).Inc()
	}
	s.logger.InfoContext(ctx, "order status updated",
		"order_id", order.ID,
		"from", order.OrderStatus,
		"to", status,
		"by", caller.ID,
		"role", caller.Role,
	)
	return updated, nil
}

// loadForShop fetches an order the caller may manage: its shop owner or an admin.
func (s *orderService) loadForShop(ctx context.Context, caller *domain.Caller, id uuid.UUID) (*domain.Order, error) {
	if !caller.Authenticated() {
		return nil, ErrAuthRequired
	}
	if !caller.Is(domain.RoleShopOwner) && !caller.Is(domain.RoleAdmin) {
		return nil, ErrShopOwnerOnly
	}

	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if caller.Is(domain.RoleShopOwner) && order.ShopID != caller.ID {
		return nil, ErrNotOrderShop
	}
	return order, nil
}
