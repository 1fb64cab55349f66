package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     OrderStatus
		to       OrderStatus
		expected bool
	}{
		{OrderStatusPending, OrderStatusProcessing, true},
		{OrderStatusProcessing, OrderStatusReady, true},
		{OrderStatusReady, OrderStatusDelivered, true},
		{OrderStatusPending, OrderStatusCancelled, true},
		{OrderStatusProcessing, OrderStatusCancelled, true},
		{OrderStatusReady, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusCancelled, false},
		{OrderStatusDelivered, OrderStatusPending, false},
		{OrderStatusCancelled, OrderStatusPending, false},
		{OrderStatusPending, OrderStatusReady, false},
		{OrderStatusPending, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from     PaymentStatus
		to       PaymentStatus
		expected bool
	}{
		{PaymentStatusPending, PaymentStatusPaid, true},
		{PaymentStatusPending, PaymentStatusFailed, true},
		{PaymentStatusPaid, PaymentStatusRefunded, true},
		{PaymentStatusPending, PaymentStatusRefunded, false},
		{PaymentStatusFailed, PaymentStatusPaid, false},
		{PaymentStatusRefunded, PaymentStatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestStatus_Valid(t *testing.T) {
	assert.True(t, OrderStatusReady.Valid())
	assert.False(t, OrderStatus("Shipped").Valid())
	assert.True(t, PaymentStatusRefunded.Valid())
	assert.False(t, PaymentStatus("paid").Valid())
}

func TestResolvedSelection_Delta(t *testing.T) {
	sel := ResolvedSelection{
		Size:     &SelectedOption{Name: "2kg", Price: 900},
		Flavor:   &SelectedOption{Name: "vanilla", Price: -100},
		Toppings: []SelectedOption{{Name: "nuts", Price: 50}, {Name: "cherries", Price: 150}},
		CakeText: "Happy Birthday",
	}
	assert.Equal(t, int64(1000), sel.Delta())
	assert.Equal(t, int64(0), ResolvedSelection{}.Delta())
}

func TestNewOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	items := []OrderItem{
		{ProductID: uuid.New(), Quantity: 2, Price: 5600},
		{ProductID: uuid.New(), Quantity: 1, Price: 1500},
	}
	delivery := DeliveryInfo{Address: "12 Galle Road, Colombo", PaymentType: PaymentTypeCashOnDelivery, Instructions: "Ring twice"}

	order, err := NewOrder(uuid.New(), uuid.New(), uuid.New(), uuid.New(), items, delivery, now)
	require.NoError(t, err)

	assert.Equal(t, int64(7100), order.TotalAmount)
	assert.Equal(t, OrderStatusPending, order.OrderStatus)
	assert.Equal(t, PaymentStatusPending, order.PaymentStatus)
	assert.Equal(t, "12 Galle Road, Colombo", order.DeliveryAddress)
	assert.Equal(t, PaymentTypeCashOnDelivery, order.PaymentType)
	assert.Equal(t, now, order.CreatedAt)
}

func TestNewOrder_RejectsTotalOverflow(t *testing.T) {
	items := []OrderItem{
		{ProductID: uuid.New(), Quantity: 1000, Price: 5_000_000_000_000_000_000},
		{ProductID: uuid.New(), Quantity: 1000, Price: 5_000_000_000_000_000_000},
	}

	order, err := NewOrder(uuid.New(), uuid.New(), uuid.New(), uuid.New(), items, DeliveryInfo{}, time.Now())

	assert.Nil(t, order)
	assert.ErrorIs(t, err, ErrTotalOverflow)
	assert.Equal(t, EINVALID, ErrorCode(err))
}

func TestOrder_VisibleTo(t *testing.T) {
	customer := &Caller{ID: uuid.New(), Role: RoleCustomer}
	shop := &Caller{ID: uuid.New(), Role: RoleShopOwner}
	admin := &Caller{ID: uuid.New(), Role: RoleAdmin}
	order := &Order{CustomerID: customer.ID, ShopID: shop.ID}

	assert.True(t, order.VisibleTo(customer))
	assert.True(t, order.VisibleTo(shop))
	assert.True(t, order.VisibleTo(admin))
	assert.False(t, order.VisibleTo(&Caller{ID: uuid.New(), Role: RoleCustomer}))
	assert.False(t, order.VisibleTo(&Caller{ID: customer.ID, Role: RoleShopOwner}))
	assert.False(t, order.VisibleTo(nil))
}
