package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPayment(t *testing.T) {
	p := NewPayment("ORD-1", "user-1", 25.0, "USD", "stripe")

	assert.True(t, strings.HasPrefix(p.ID, "PAY-"))
	assert.Equal(t, StatusPending, p.Status)

	q := NewPayment("ORD-1", "user-1", 25.0, "USD", "stripe")
	assert.NotEqual(t, p.ID, q.ID)
}

func TestPaymentTransitions(t *testing.T) {
	p := NewPayment("ORD-1", "user-1", 25.0, "USD", "stripe")

	p.MarkDegraded(ReasonFallback)
	assert.Equal(t, StatusPending, p.Status, "degraded payment stays pending")
	assert.Equal(t, ReasonFallback, p.Reason)

	p.MarkSucceeded()
	assert.Equal(t, StatusSucceeded, p.Status)

	p.MarkRefunded()
	assert.Equal(t, StatusRefunded, p.Status)
}

func TestReconcileStatus(t *testing.T) {
	p := NewPayment("ORD-1", "user-1", 25.0, "USD", "stripe")

	assert.True(t, p.ReconcileStatus(StatusSucceeded))
	assert.Equal(t, StatusSucceeded, p.Status)

	assert.False(t, p.ReconcileStatus(StatusSucceeded), "same status is a no-op")
	assert.False(t, p.ReconcileStatus("quantum"), "unknown status is ignored")
	assert.Equal(t, StatusSucceeded, p.Status)
}

func TestDecodeOrderCreated(t *testing.T) {
	evt, err := DecodeOrderCreated([]byte(`{"order_id":"ORD-1","user_id":"u","total_amount":25,"payment_method":"card"}`))
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", evt.OrderID)

	_, err = DecodeOrderCreated([]byte(`{"user_id":"u"}`))
	require.Error(t, err)

	_, err = DecodeOrderCreated([]byte(`garbage`))
	require.Error(t, err)
}
