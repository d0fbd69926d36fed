package funnel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderStartsAtGreeting(t *testing.T) {
	o := NewOrder()
	assert.NotEmpty(t, o.ID)
	assert.Equal(t, Greeting, o.State)
	assert.False(t, o.CreatedAt.IsZero())
}

func TestApplyAdvancesState(t *testing.T) {
	o := NewOrder()
	require.NoError(t, o.Apply(TriggerStartBrowsing))
	assert.Equal(t, Browsing, o.State)
	require.NoError(t, o.Apply(TriggerViewProduct))
	assert.Equal(t, ViewingProduct, o.State)
}

func TestApplyRejectsIllegalTrigger(t *testing.T) {
	o := NewOrder()
	err := o.Apply(TriggerPaymentSuccess)
	require.Error(t, err)
	assert.Equal(t, Greeting, o.State, "failed apply must not move the order")
}

func TestApplyRejectsTerminalState(t *testing.T) {
	o := NewOrder()
	o.State = OrderCompleted
	err := o.Apply(TriggerStartBrowsing)
	require.Error(t, err)
	assert.Equal(t, OrderCompleted, o.State)
}

func TestCan(t *testing.T) {
	o := NewOrder()
	assert.True(t, o.Can(TriggerStartBrowsing))
	assert.False(t, o.Can(TriggerPaymentSuccess))

	o.State = CustomerSupport
	assert.False(t, o.Can(TriggerStartBrowsing))
}
