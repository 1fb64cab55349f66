package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dukerupert/cakery/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// OrderStore implements domain.TxOrderStore using PostgreSQL.
//
// Every write also appends an order event to the outbox table in the same
// transaction, so an order change and its event are never observed apart.
type OrderStore struct {
	db  DBTX
	now func() time.Time
}

// Compile-time check that OrderStore implements domain.TxOrderStore.
var _ domain.TxOrderStore = (*OrderStore)(nil)

// NewOrderStore creates a new PostgreSQL-backed order store.
func NewOrderStore(db DBTX) *OrderStore {
	return &OrderStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// SQL
// =============================================================================

const orderColumns = `
id, checkout_id, customer_id, shop_id, total_amount, delivery_address,
instructions, payment_type, order_status, payment_status, delivery_date,
created_at, updated_at`

const insertOrderSQL = `
INSERT INTO orders (` + orderColumns + `)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
ON CONFLICT (id) DO NOTHING`

const insertOrderItemSQL = `
INSERT INTO order_items (order_id, position, product_id, quantity, selected_customizations, price)
VALUES ($1, $2, $3, $4, $5, $6)`

const insertOrderEventSQL = `
INSERT INTO order_events (event_id, aggregate_id, event_type, payload, created_at)
VALUES ($1, $2, $3, $4, $5)`

const getOrderSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

const listOrdersByCustomerSQL = `SELECT ` + orderColumns + ` FROM orders WHERE customer_id = $1 ORDER BY created_at DESC, id`

const listOrdersByShopSQL = `SELECT ` + orderColumns + ` FROM orders WHERE shop_id = $1 ORDER BY created_at DESC, id`

const listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC, id`

const listOrderItemsSQL = `
SELECT order_id, product_id, quantity, selected_customizations, price
FROM order_items
WHERE order_id = ANY($1::uuid[])
ORDER BY order_id, position`

const updateOrderStatusSQL = `
UPDATE orders
SET order_status = $3,
    delivery_date = COALESCE($4, delivery_date),
    updated_at = $5
WHERE id = $1 AND order_status = $2`

const updatePaymentStatusSQL = `
UPDATE orders
SET payment_status = $3,
    updated_at = $4
WHERE id = $1 AND payment_status = $2`

const orderExistsSQL = `SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`

// =============================================================================
// WRITES
// =============================================================================

// CreateOrder inserts the order, its items and an order.created event in one
// transaction. Re-inserting an order ID that already exists is a no-op, which
// makes a retried write after an ambiguous failure safe.
func (s *OrderStore) CreateOrder(ctx context.Context, order *domain.Order) error {
	const op = "order.create"

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, insertOrderSQL,
			order.ID,
			order.CheckoutID,
			order.CustomerID,
			order.ShopID,
			order.TotalAmount,
			order.DeliveryAddress,
			order.Instructions,
			string(order.PaymentType),
			string(order.OrderStatus),
			string(order.PaymentStatus),
			order.DeliveryDate,
			order.CreatedAt,
			order.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, item := range order.Items {
			selected, err := json.Marshal(item.SelectedCustomizations)
			if err != nil {
				return domain.Internal(err, op, "failed to encode customizations")
			}
			batch.Queue(insertOrderItemSQL, order.ID, i, item.ProductID, item.Quantity, selected, item.Price)
		}
		if err := queueEvent(batch, domain.NewOrderEvent(domain.EventOrderCreated, order, s.now())); err != nil {
			return domain.Internal(err, op, "failed to encode order event")
		}

		return tx.SendBatch(ctx, batch).Close()
	})
	return classify(err, op, "failed to create order")
}

// WithinTx runs fn with a store bound to a single transaction. Writes made
// through the store commit together when fn returns nil.
func (s *OrderStore) WithinTx(ctx context.Context, fn func(domain.OrderStore) error) error {
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		return fn(&OrderStore{db: tx, now: s.now})
	})
	return classify(err, "order.within_tx", "order transaction failed")
}

// UpdateOrderStatus changes the order status only if it still equals
// params.From. It returns domain.ErrOrderStatusChanged otherwise.
func (s *OrderStore) UpdateOrderStatus(ctx context.Context, params domain.UpdateOrderStatusParams) (*domain.Order, error) {
	const op = "order.update_status"

	var updated *domain.Order
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		now := s.now()
		tag, err := tx.Exec(ctx, updateOrderStatusSQL, params.ID, string(params.From), string(params.To), params.DeliveryDate, now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return missingOrConflict(ctx, tx, params.ID, domain.ErrOrderStatusChanged)
		}

		order, err := getOrder(ctx, tx, params.ID)
		if err != nil {
			return err
		}

		if params.From != params.To {
			event := domain.NewOrderEvent(domain.EventOrderStatusChanged, order, now)
			event.PreviousOrderStatus = params.From
			if err := insertEvent(ctx, tx, event); err != nil {
				return err
			}
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, classify(err, op, "failed to update order status")
	}
	return updated, nil
}

// UpdatePaymentStatus changes the payment status only if it still equals
// params.From. It returns domain.ErrPaymentStatusConflict otherwise.
func (s *OrderStore) UpdatePaymentStatus(ctx context.Context, params domain.UpdatePaymentStatusParams) (*domain.Order, error) {
	const op = "order.update_payment_status"

	var updated *domain.Order
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		now := s.now()
		tag, err := tx.Exec(ctx, updatePaymentStatusSQL, params.ID, string(params.From), string(params.To), now)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return missingOrConflict(ctx, tx, params.ID, domain.ErrPaymentStatusConflict)
		}

		order, err := getOrder(ctx, tx, params.ID)
		if err != nil {
			return err
		}

		event := domain.NewOrderEvent(domain.EventOrderPaymentStatusChanged, order, now)
		event.PreviousPaymentStatus = params.From
		if err := insertEvent(ctx, tx, event); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, classify(err, op, "failed to update payment status")
	}
	return updated, nil
}

func missingOrConflict(ctx context.Context, db DBTX, id uuid.UUID, conflict error) error {
	var exists bool
	if err := db.QueryRow(ctx, orderExistsSQL, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrOrderNotFound
	}
	return conflict
}

func queueEvent(batch *pgx.Batch, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}
	batch.Queue(insertOrderEventSQL, event.EventID, event.OrderID, event.Type, payload, event.OccurredAt)
	return nil
}

func insertEvent(ctx context.Context, db DBTX, event domain.OrderEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return domain.Internal(err, "order.insert_event", "failed to encode order event")
	}
	_, err = db.Exec(ctx, insertOrderEventSQL, event.EventID, event.OrderID, event.Type, payload, event.OccurredAt)
	return err
}

// =============================================================================
// READS
// =============================================================================

// GetOrder retrieves a single order with its items.
func (s *OrderStore) GetOrder(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	order, err := getOrder(ctx, s.db, id)
	if err != nil {
		return nil, classify(err, "order.get", "failed to get order")
	}
	return order, nil
}

// ListOrdersByCustomer returns a customer's orders, newest first.
func (s *OrderStore) ListOrdersByCustomer(ctx context.Context, customerID uuid.UUID) ([]domain.Order, error) {
	orders, err := listOrders(ctx, s.db, listOrdersByCustomerSQL, customerID)
	if err != nil {
		return nil, classify(err, "order.list_by_customer", "failed to list customer orders")
	}
	return orders, nil
}

// ListOrdersByShop returns a shop's orders, newest first.
func (s *OrderStore) ListOrdersByShop(ctx context.Context, shopID uuid.UUID) ([]domain.Order, error) {
	orders, err := listOrders(ctx, s.db, listOrdersByShopSQL, shopID)
	if err != nil {
		return nil, classify(err, "order.list_by_shop", "failed to list shop orders")
	}
	return orders, nil
}

// ListOrders returns every order, newest first.
func (s *OrderStore) ListOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := listOrders(ctx, s.db, listOrdersSQL)
	if err != nil {
		return nil, classify(err, "order.list", "failed to list orders")
	}
	return orders, nil
}

func getOrder(ctx context.Context, db DBTX, id uuid.UUID) (*domain.Order, error) {
	order, err := scanOrder(db.QueryRow(ctx, getOrderSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrOrderNotFound
		}
		return nil, err
	}

	orders := []domain.Order{order}
	if err := attachItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return &orders[0], nil
}

func listOrders(ctx context.Context, db DBTX, query string, args ...any) ([]domain.Order, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := []domain.Order{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := attachItems(ctx, db, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// attachItems loads the items of every order in one query.
func attachItems(ctx context.Context, db DBTX, orders []domain.Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]string, len(orders))
	index := make(map[uuid.UUID]int, len(orders))
	for i, o := range orders {
		ids[i] = o.ID.String()
		index[o.ID] = i
		orders[i].Items = []domain.OrderItem{}
	}

	rows, err := db.Query(ctx, listOrderItemsSQL, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var orderID uuid.UUID
		var item domain.OrderItem
		var selected []byte
		if err := rows.Scan(&orderID, &item.ProductID, &item.Quantity, &selected, &item.Price); err != nil {
			return err
		}
		if err := decodeSelection(selected, &item.SelectedCustomizations); err != nil {
			return err
		}
		if i, ok := index[orderID]; ok {
			orders[i].Items = append(orders[i].Items, item)
		}
	}
	return rows.Err()
}

func decodeSelection(raw []byte, sel *domain.ResolvedSelection) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, sel); err != nil {
		return domain.Internal(err, "order.decode_item", "stored customizations are corrupt")
	}
	return nil
}

func scanOrder(row pgx.Row) (domain.Order, error) {
	var o domain.Order
	var paymentType, orderStatus, paymentStatus string
	err := row.Scan(
		&o.ID,
		&o.CheckoutID,
		&o.CustomerID,
		&o.ShopID,
		&o.TotalAmount,
		&o.DeliveryAddress,
		&o.Instructions,
		&paymentType,
		&orderStatus,
		&paymentStatus,
		&o.DeliveryDate,
		&o.CreatedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return domain.Order{}, err
	}
	o.PaymentType = domain.PaymentType(paymentType)
	o.OrderStatus = domain.OrderStatus(orderStatus)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	return o, nil
}
