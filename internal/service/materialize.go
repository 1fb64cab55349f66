package service

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukerupert/cakery/internal/domain"
	"github.com/dukerupert/cakery/internal/telemetry"
	"github.com/google/uuid"
)

// materialize persists the priced orders. The default writes them one by one
// in bucket order and reports a partial commit if a later write fails. With
// AtomicWrites and a transactional store, all orders commit or none do.
func (s *checkoutService) materialize(ctx context.Context, checkoutID uuid.UUID, pending []*domain.Order) ([]domain.Order, error) {
	if s.config.AtomicWrites {
		if tx, ok := s.orders.(domain.TxOrderStore); ok {
			return s.materializeAtomic(ctx, tx, checkoutID, pending)
		}
		s.logger.WarnContext(ctx, "atomic checkout writes requested but the order store is not transactional, writing per shop")
	}
	return s.materializeSequential(ctx, checkoutID, pending)
}

func (s *checkoutService) materializeSequential(ctx context.Context, checkoutID uuid.UUID, pending []*domain.Order) ([]domain.Order, error) {
	created := make([]domain.Order, 0, len(pending))
	for _, order := range pending {
		err := s.withRetry(ctx, order.ShopID, func() error {
			return s.orders.CreateOrder(ctx, order)
		})
		if err != nil {
			return nil, commitFailure(checkoutID, order.ShopID, created, len(pending), err)
		}
		created = append(created, *order)
	}
	return created, nil
}

func (s *checkoutService) materializeAtomic(ctx context.Context, store domain.TxOrderStore, checkoutID uuid.UUID, pending []*domain.Order) ([]domain.Order, error) {
	var failedShop uuid.UUID

	err := s.withRetry(ctx, uuid.Nil, func() error {
		return store.WithinTx(ctx, func(tx domain.OrderStore) error {
			for _, order := range pending {
				if err := tx.CreateOrder(ctx, order); err != nil {
					failedShop = order.ShopID
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		return nil, commitFailure(checkoutID, failedShop, nil, len(pending), err)
	}

	created := make([]domain.Order, len(pending))
	for i, order := range pending {
		created[i] = *order
	}
	return created, nil
}

// withRetry runs write with bounded exponential backoff. Only failures the
// store classified as unavailable are retried; order writes are idempotent on
// the pre-generated order ID, so a retry after an ambiguous failure cannot
// duplicate an order.
func (s *checkoutService) withRetry(ctx context.Context, shopID uuid.UUID, write func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = s.config.RetryInitialInterval
	if eb.InitialInterval <= 0 {
		eb.InitialInterval = backoff.DefaultInitialInterval
	}
	eb.MaxElapsedTime = 0

	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(s.config.WriteAttempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := write()
		if err == nil {
			return nil
		}
		if !domain.IsCode(err, domain.EUNAVAILABLE) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		if telemetry.Business != nil {
			telemetry.Business.WriteRetries.Inc()
		}
		s.logger.WarnContext(ctx, "order write failed, retrying",
			"shop_id", shopID,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	})
}

func commitFailure(checkoutID, shopID uuid.UUID, committed []domain.Order, total int, err error) error {
	if len(committed) == 0 {
		return &domain.CheckoutError{
			Kind:       domain.KindPersistenceUnavailable,
			Op:         "checkout.materialize",
			Message:    "Your order could not be saved and nothing was placed. Please try again.",
			CheckoutID: checkoutID,
			ShopID:     shopID,
			Err:        err,
		}
	}
	return &domain.CheckoutError{
		Kind:       domain.KindPartialCommit,
		Op:         "checkout.materialize",
		Message:    fmt.Sprintf("%d of %d shop orders were placed. Do not resubmit the cart; review your placed orders.", len(committed), total),
		CheckoutID: checkoutID,
		ShopID:     shopID,
		Committed:  committed,
		Err:        err,
	}
}
