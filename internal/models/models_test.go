package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionLabels(t *testing.T) {
	want := map[Condition]string{
		ConditionNew:     "New",
		ConditionLikeNew: "Like New",
		ConditionGood:    "Good",
		ConditionFair:    "Fair",
		ConditionPoor:    "Poor",
	}
	for _, c := range Conditions() {
		assert.True(t, c.Valid())
		assert.Equal(t, want[c], c.Label())
	}
	assert.Len(t, Conditions(), len(want))

	assert.False(t, Condition("BROKEN").Valid())
	assert.Equal(t, "BROKEN", Condition("BROKEN").Label())
}

func TestParseCondition(t *testing.T) {
	for input, want := range map[string]Condition{
		"NEW":       ConditionNew,
		"like_new":  ConditionLikeNew,
		"Like New":  ConditionLikeNew,
		"like-new":  ConditionLikeNew,
		" good ":    ConditionGood,
		"Fair":      ConditionFair,
		"poor":      ConditionPoor,
	} {
		got, err := ParseCondition(input)
		require.NoError(t, err, input)
		assert.Equal(t, want, got, input)
	}

	_, err := ParseCondition("mint")
	assert.Error(t, err)
	_, err = ParseCondition("")
	assert.Error(t, err)
}

func TestOrderItemLineTotal(t *testing.T) {
	item := OrderItem{PriceAtOrder: decimal.RequireFromString("19.99"), Quantity: 3}
	assert.True(t, decimal.RequireFromString("59.97").Equal(item.LineTotal()))
}

func TestUserFullName(t *testing.T) {
	u := User{FirstName: "Ada", LastName: "Lovelace"}
	assert.Equal(t, "Ada Lovelace", u.FullName())
}

func TestOrderStatusTransitions(t *testing.T) {
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusConfirmed))
	assert.True(t, OrderStatusPending.CanTransitionTo(OrderStatusCancelled))
	assert.True(t, OrderStatusConfirmed.CanTransitionTo(OrderStatusShipped))
	assert.True(t, OrderStatusShipped.CanTransitionTo(OrderStatusDelivered))

	assert.False(t, OrderStatusPending.CanTransitionTo(OrderStatusDelivered))
	assert.False(t, OrderStatusShipped.CanTransitionTo(OrderStatusCancelled))
	assert.False(t, OrderStatusDelivered.CanTransitionTo(OrderStatusPending))
	assert.False(t, OrderStatusCancelled.CanTransitionTo(OrderStatusConfirmed))

	assert.True(t, OrderStatusDelivered.Terminal())
	assert.True(t, OrderStatusCancelled.Terminal())
	assert.False(t, OrderStatusShipped.Terminal())

	assert.True(t, OrderStatusShipped.Valid())
	assert.False(t, OrderStatus("lost").Valid())
}

func TestProductState(t *testing.T) {
	p := Product{IsAvailable: true}
	assert.Equal(t, ProductStateAvailable, p.State())

	p.IsAvailable, p.IsSold = false, true
	assert.Equal(t, ProductStateSold, p.State())
}
