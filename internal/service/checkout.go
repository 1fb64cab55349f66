package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/telemetry"
	"github.com/google/uuid"
)

// CheckoutService turns one customer cart spanning any number of shops into
// one persisted order per shop.
type CheckoutService interface {
	// Checkout authorizes the caller, partitions the cart by shop, prices every
	// line from the catalog and writes one order per shop.
	//
	// Every failure is a *domain.CheckoutError. Validation failures happen
	// before any write. A KindPartialCommit error carries the orders that were
	// persisted; the caller must reconcile them rather than resubmit the cart.
	Checkout(ctx context.Context, caller *domain.Caller, req CheckoutRequest) (*CheckoutResult, error)
}

// CheckoutRequest is the validated checkout input.
type CheckoutRequest struct {
	Lines    []domain.CartLine
	Delivery domain.DeliveryInfo
}

// CheckoutResult lists the created orders in the order their shops first
// appeared in the cart. All orders share CheckoutID.
type CheckoutResult struct {
	CheckoutID uuid.UUID
	Orders     []domain.Order

	// Total is the sum of every order total.
	Total int64
}

// CheckoutConfig tunes how orders are materialized.
type CheckoutConfig struct {
	// AtomicWrites writes every order of a checkout in one transaction when
	// the order store supports it. Off by default.
	AtomicWrites bool

	// WriteAttempts bounds attempts per order write for transient failures.
	WriteAttempts int

	// RetryInitialInterval is the first backoff delay between attempts.
	RetryInitialInterval time.Duration
}

// DefaultCheckoutConfig returns the production defaults.
func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		WriteAttempts:        3,
		RetryInitialInterval: 100 * time.Millisecond,
	}
}

type checkoutService struct {
	catalog domain.Catalog
	orders  domain.OrderStore
	config  CheckoutConfig
	logger  *slog.Logger

	now   func() time.Time
	newID func() uuid.UUID
}

// NewCheckoutService creates a CheckoutService.
func NewCheckoutService(catalog domain.Catalog, orders domain.OrderStore, config CheckoutConfig, logger *slog.Logger) CheckoutService {
	if config.WriteAttempts < 1 {
		config.WriteAttempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &checkoutService{
		catalog: catalog,
		orders:  orders,
		config:  config,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   uuid.New,
	}
}

func (s *checkoutService) Checkout(ctx context.Context, caller *domain.Caller, req CheckoutRequest) (result *CheckoutResult, err error) {
	const op = "checkout"
	start := time.Now()

	defer func() {
		recordCheckout(req, result, err, time.Since(start))
	}()

	if err := AuthorizeCheckout(caller); err != nil {
		return nil, err
	}

	if len(req.Lines) == 0 {
		return nil, &domain.CheckoutError{
			Kind:    domain.KindEmptyCart,
			Op:      op,
			Message: "Cart must contain at least one item.",
		}
	}

	buckets, products, err := PartitionByShop(ctx, s.catalog, req.Lines)
	if err != nil {
		return nil, err
	}

	checkoutID := s.newID()
	now := s.now()

	// Price everything before the first write so validation failures never
	// leave orders behind.
	pending := make([]*domain.Order, 0, len(buckets))
	var grandTotal int64
	for _, bucket := range buckets {
		items := make([]domain.OrderItem, 0, len(bucket.Lines))
		for _, bl := range bucket.Lines {
			item, err := PriceLine(products[bl.Line.ProductID], bl.Line)
			if err != nil {
				if ce, ok := domain.AsCheckoutError(err); ok {
					ce.Line = bl.Index
				}
				return nil, err
			}

			// Order and checkout totals must stay representable; check them
			// per line so the error names the line that tipped them over.
			var ok bool
			if grandTotal, ok = domain.AddAmounts(grandTotal, item.Price); !ok {
				return nil, totalTooLarge(op, bucket.ShopID, bl)
			}
			items = append(items, item)
		}

		order, err := domain.NewOrder(s.newID(), checkoutID, caller.ID, bucket.ShopID, items, req.Delivery, now)
		if err != nil {
			return nil, totalTooLarge(op, bucket.ShopID, bucket.Lines[len(bucket.Lines)-1])
		}
		pending = append(pending, order)
	}

	created, err := s.materialize(ctx, checkoutID, pending)
	if err != nil {
		s.reportFailure(ctx, caller, err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "checkout completed",
		"checkout_id", checkoutID,
		"customer_id", caller.ID,
		"orders", len(created),
		"payment_type", req.Delivery.PaymentType,
	)

	return &CheckoutResult{CheckoutID: checkoutID, Orders: created, Total: grandTotal}, nil
}

func totalTooLarge(op string, shopID uuid.UUID, bl BucketLine) error {
	return &domain.CheckoutError{
		Kind:      domain.KindInvalidQuantity,
		Op:        op,
		Message:   fmt.Sprintf("Quantity for product %s makes the order total too large.", bl.Line.ProductID),
		ProductID: bl.Line.ProductID,
		ShopID:    shopID,
		Line:      bl.Index,
	}
}

func (s *checkoutService) reportFailure(ctx context.Context, caller *domain.Caller, err error) {
	ce, ok := domain.AsCheckoutError(err)
	if !ok {
		s.logger.ErrorContext(ctx, "checkout failed", "error", err)
		return
	}

	if ce.Kind != domain.KindPartialCommit {
		s.logger.ErrorContext(ctx, "checkout failed before any order was saved",
			"checkout_id", ce.CheckoutID,
			"customer_id", caller.ID,
			"kind", ce.Kind,
			"error", ce.Err,
		)
		return
	}

	s.logger.ErrorContext(ctx, "checkout partially committed",
		"checkout_id", ce.CheckoutID,
		"customer_id", caller.ID,
		"failed_shop_id", ce.ShopID,
		"committed_order_ids", ce.CommittedIDs(),
		"error", ce.Err,
	)
	telemetry.CaptureError(ctx, err, map[string]any{
		"checkout_id":         ce.CheckoutID.String(),
		"customer_id":         caller.ID.String(),
		"failed_shop_id":      ce.ShopID.String(),
		"committed_order_ids": ce.CommittedIDs(),
	})
}

func recordCheckout(req CheckoutRequest, result *CheckoutResult, err error, elapsed time.Duration) {
	m := telemetry.Business
	if m == nil {
		return
	}

	if err != nil {
		kind := "internal"
		if ce, ok := domain.AsCheckoutError(err); ok {
			kind = string(ce.Kind)
			if ce.Kind == domain.KindPartialCommit {
				m.PartialCommits.Inc()
			}
		}
		m.CheckoutFailed.WithLabelValues(kind).Inc()
		m.CheckoutDuration.WithLabelValues("failure").Observe(elapsed.Seconds())
		return
	}

	paymentType := string(req.Delivery.PaymentType)
	m.CheckoutCompleted.WithLabelValues(paymentType).Inc()
	m.CheckoutDuration.WithLabelValues("success").Observe(elapsed.Seconds())
	m.CheckoutShops.Observe(float64(len(result.Orders)))
	for _, o := range result.Orders {
		m.OrdersCreated.WithLabelValues(paymentType).Inc()
		m.OrderValue.WithLabelValues(paymentType).Observe(float64(o.TotalAmount))
		m.OrderItemCount.Observe(float64(len(o.Items)))
	}
}
