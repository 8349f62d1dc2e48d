package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_CalculatesTotal(t *testing.T) {
	order, err := NewOrder("user-1", []Item{
		{ProductID: "p1", Price: 10.0, Quantity: 2},
		{ProductID: "p2", Price: 5.0, Quantity: 1},
	}, "somewhere", "card")
	require.NoError(t, err)

	assert.InDelta(t, 25.0, order.TotalAmount, 1e-9)
	assert.Equal(t, StatusPending, order.Status)
	assert.Equal(t, PaymentPending, order.PaymentStatus)
}

func TestNewOrder_DistinctIDs(t *testing.T) {
	items := []Item{{ProductID: "p1", Price: 1, Quantity: 1}}
	a, err := NewOrder("user-1", items, "", "card")
	require.NoError(t, err)
	b, err := NewOrder("user-1", items, "", "card")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID, "identical commands must yield distinct orders")
	assert.True(t, strings.HasPrefix(a.ID, "ORD-"))
}

func TestNewOrder_Validation(t *testing.T) {
	cases := []struct {
		name  string
		user  string
		items []Item
	}{
		{"missing user", "", []Item{{ProductID: "p1", Price: 1, Quantity: 1}}},
		{"empty items", "user-1", nil},
		{"zero quantity", "user-1", []Item{{ProductID: "p1", Price: 1, Quantity: 0}}},
		{"negative price", "user-1", []Item{{ProductID: "p1", Price: -1, Quantity: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewOrder(tc.user, tc.items, "", "card")
			require.Error(t, err)
			assert.True(t, IsValidation(err))
		})
	}
}

func TestMarkPaid(t *testing.T) {
	order := pendingOrder(t)

	require.NoError(t, order.MarkPaid())
	assert.Equal(t, StatusProcessing, order.Status)
	assert.Equal(t, PaymentPaid, order.PaymentStatus)

	// 重投同一事件必须是幂等空操作
	assert.ErrorIs(t, order.MarkPaid(), ErrStateConflict)
	assert.Equal(t, StatusProcessing, order.Status)
}

func TestMarkPaymentFailed(t *testing.T) {
	order := pendingOrder(t)

	require.NoError(t, order.MarkPaymentFailed())
	assert.Equal(t, StatusCancelled, order.Status)
	assert.Equal(t, PaymentFailed, order.PaymentStatus)

	// 取消后到达的成功事件不能复活订单
	assert.ErrorIs(t, order.MarkPaid(), ErrStateConflict)
	assert.Equal(t, StatusCancelled, order.Status)
	assert.Equal(t, PaymentFailed, order.PaymentStatus)
}

func TestApplyUpdate(t *testing.T) {
	t.Run("informational fields", func(t *testing.T) {
		order := pendingOrder(t)
		tracking := "TRK-42"
		require.NoError(t, order.ApplyUpdate(Update{TrackingNumber: &tracking}))
		assert.Equal(t, "TRK-42", order.TrackingNumber)
	})

	t.Run("invalid status rejected", func(t *testing.T) {
		order := pendingOrder(t)
		bogus := Status("TELEPORTED")
		err := order.ApplyUpdate(Update{Status: &bogus})
		require.Error(t, err)
		assert.True(t, IsValidation(err))
	})

	t.Run("cancelled order is terminal", func(t *testing.T) {
		order := pendingOrder(t)
		require.NoError(t, order.MarkPaymentFailed())

		shipped := StatusShipped
		assert.ErrorIs(t, order.ApplyUpdate(Update{Status: &shipped}), ErrStateConflict)

		// 信息性字段仍然允许补录
		notes := "customer contacted"
		require.NoError(t, order.ApplyUpdate(Update{Notes: &notes}))
		assert.Equal(t, "customer contacted", order.Notes)
	})
}

func TestDecodePaymentEvent(t *testing.T) {
	evt, err := DecodePaymentEvent([]byte(`{"order_id":"ORD-1","payment_id":"PAY-1","amount":25,"reason":""}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", evt.OrderID)

	_, err = DecodePaymentEvent([]byte(`{"payment_id":"PAY-1"}`))
	require.Error(t, err, "missing order_id must be rejected")

	_, err = DecodePaymentEvent([]byte(`not json`))
	require.Error(t, err)
}

func pendingOrder(t *testing.T) *Order {
	t.Helper()
	order, err := NewOrder("user-1", []Item{{ProductID: "p1", Price: 10, Quantity: 1}}, "", "card")
	require.NoError(t, err)
	return order
}
