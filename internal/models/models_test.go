package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOrderTransitions(t *testing.T) {
	assert.True(t, CanTransitionOrder(OrderStatusPending, OrderStatusAwaitingPayment))
	assert.True(t, CanTransitionOrder(OrderStatusPending, OrderStatusCancelled))
	assert.True(t, CanTransitionOrder(OrderStatusAwaitingPayment, OrderStatusPaid))
	assert.True(t, CanTransitionOrder(OrderStatusAwaitingPayment, OrderStatusExpired))
	assert.True(t, CanTransitionOrder(OrderStatusPaid, OrderStatusFulfilled))
	assert.True(t, CanTransitionOrder(OrderStatusPaid, OrderStatusNoStock))

	// no skipping straight to fulfilled
	assert.False(t, CanTransitionOrder(OrderStatusPending, OrderStatusFulfilled))
	assert.False(t, CanTransitionOrder(OrderStatusAwaitingPayment, OrderStatusFulfilled))

	// no leaving terminal states
	for _, terminal := range []string{OrderStatusFulfilled, OrderStatusCancelled, OrderStatusExpired} {
		for _, to := range []string{OrderStatusPending, OrderStatusAwaitingPayment, OrderStatusPaid, OrderStatusFulfilled} {
			assert.False(t, CanTransitionOrder(terminal, to), "%s -> %s should be forbidden", terminal, to)
		}
	}
}

func TestTerminalStatuses(t *testing.T) {
	assert.True(t, IsTerminalOrderStatus(OrderStatusFulfilled))
	assert.True(t, IsTerminalOrderStatus(OrderStatusCancelled))
	assert.True(t, IsTerminalOrderStatus(OrderStatusExpired))

	assert.False(t, IsTerminalOrderStatus(OrderStatusPending))
	assert.False(t, IsTerminalOrderStatus(OrderStatusAwaitingPayment))
	assert.False(t, IsTerminalOrderStatus(OrderStatusPaid))
	// no-stock orders still need manual resolution
	assert.False(t, IsTerminalOrderStatus(OrderStatusNoStock))
}

func TestProductSellable(t *testing.T) {
	p := &Product{Enabled: true, Hidden: false}
	assert.True(t, p.Sellable())

	assert.False(t, (&Product{Enabled: false}).Sellable())
	assert.False(t, (&Product{Enabled: true, Hidden: true}).Sellable())
}
