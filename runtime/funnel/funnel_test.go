package funnel

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextHappyPath(t *testing.T) {
	// Greeting to completed order along the canonical path.
	path := []struct {
		from    State
		trigger Trigger
		to      State
	}{
		{Greeting, TriggerStartBrowsing, Browsing},
		{Browsing, TriggerViewProduct, ViewingProduct},
		{ViewingProduct, TriggerAddToCart, AddingToCart},
		{AddingToCart, TriggerReviewCart, CartReview},
		{CartReview, TriggerProceedToCheckout, Checkout},
		{Checkout, TriggerCollectAddress, CollectingAddress},
		{CollectingAddress, TriggerConfirmOrder, ConfirmingOrder},
		{ConfirmingOrder, TriggerInitiatePayment, PaymentPending},
		{PaymentPending, TriggerPaymentStarted, PaymentProcessing},
		{PaymentProcessing, TriggerPaymentSuccess, PaymentVerified},
		{PaymentVerified, TriggerScheduleDelivery, DeliveryScheduled},
		{DeliveryScheduled, TriggerStartDelivery, OutForDelivery},
		{OutForDelivery, TriggerDeliveryComplete, Delivered},
		{Delivered, TriggerConfirmCompletion, OrderCompleted},
	}
	for _, step := range path {
		next, ok := Next(step.from, step.trigger)
		require.True(t, ok, "missing transition %s --%s-->", step.from, step.trigger)
		assert.Equal(t, step.to, next)
	}
}

func TestNextRejectsUnknownPairs(t *testing.T) {
	cases := []struct {
		state   State
		trigger Trigger
	}{
		{Greeting, TriggerPaymentSuccess},
		{OrderCompleted, TriggerStartBrowsing},
		{CustomerSupport, TriggerEscalate},
		{PaymentProcessing, TriggerCancelOrder},
		{Delivered, TriggerModifyOrder},
	}
	for _, c := range cases {
		_, ok := Next(c.state, c.trigger)
		assert.False(t, ok, "unexpected transition %s --%s-->", c.state, c.trigger)
	}
}

func TestBackwardEdges(t *testing.T) {
	next, ok := Next(PaymentPending, TriggerModifyOrder)
	require.True(t, ok)
	assert.Equal(t, CartReview, next)

	next, ok = Next(PaymentFailed, TriggerContinueShopping)
	require.True(t, ok)
	assert.Equal(t, Browsing, next)

	next, ok = Next(ConfirmingOrder, TriggerCancelOrder)
	require.True(t, ok)
	assert.Equal(t, Greeting, next)

	next, ok = Next(Timeout, TriggerResumePayment)
	require.True(t, ok)
	assert.Equal(t, PaymentPending, next)
}

func TestTerminalStatesHaveNoEdges(t *testing.T) {
	for _, state := range States() {
		if !IsTerminal(state) {
			continue
		}
		assert.Empty(t, Triggers(state), "terminal state %s has outgoing edges", state)
	}
}

func TestEveryEdgeStaysInDeclaredStates(t *testing.T) {
	declared := make(map[State]struct{})
	for _, s := range States() {
		declared[s] = struct{}{}
	}
	for _, s := range States() {
		for to := range Reachable(s) {
			_, ok := declared[to]
			assert.True(t, ok, "edge from %s leads to undeclared state %s", s, to)
		}
	}
}

func TestOrderCompletedReachableFromGreeting(t *testing.T) {
	// BFS over the table: the happy path must exist without enumerating it.
	seen := map[State]bool{Greeting: true}
	queue := []State{Greeting}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for to := range Reachable(cur) {
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	assert.True(t, seen[OrderCompleted])
	assert.True(t, seen[CustomerSupport])
}

func TestPhasePredicatesArePartitions(t *testing.T) {
	for _, s := range States() {
		phases := 0
		for _, in := range []bool{IsShopping(s), IsCheckout(s), IsPayment(s), IsDelivery(s)} {
			if in {
				phases++
			}
		}
		assert.LessOrEqual(t, phases, 1, "state %s belongs to multiple phases", s)
	}
}

func TestConversationMapping(t *testing.T) {
	assert.Equal(t, ConversationWaitingForPayment, Conversation(PaymentPending))
	assert.Equal(t, ConversationWaitingForDelivery, Conversation(OutForDelivery))
	assert.Equal(t, ConversationCompleted, Conversation(OrderCompleted))
	assert.Equal(t, ConversationEscalated, Conversation(CustomerSupport))
	assert.Equal(t, ConversationPaused, Conversation(Timeout))
	assert.Equal(t, ConversationActive, Conversation(Browsing))
}

// TestRandomWalkStaysClosed verifies that arbitrary trigger sequences applied
// through Next never leave the declared state set and never escape a terminal
// state.
func TestRandomWalkStaysClosed(t *testing.T) {
	declared := make(map[State]struct{})
	for _, s := range States() {
		declared[s] = struct{}{}
	}
	allTriggers := []Trigger{
		TriggerStartBrowsing, TriggerViewProduct, TriggerAddToCart,
		TriggerContinueBrowsing, TriggerReviewCart, TriggerContinueShopping,
		TriggerProceedToCheckout, TriggerCollectAddress, TriggerConfirmOrder,
		TriggerInitiatePayment, TriggerPaymentStarted, TriggerPaymentSuccess,
		TriggerPaymentFailed, TriggerRetryPayment, TriggerScheduleDelivery,
		TriggerStartDelivery, TriggerDeliveryComplete, TriggerConfirmCompletion,
		TriggerEscalate, TriggerHumanTakeover, TriggerBackToCart,
		TriggerBackToCheckout, TriggerBackToAddress, TriggerPaymentTimeout,
		TriggerResumePayment, TriggerModifyOrder, TriggerCancelOrder,
		TriggerViewCart,
	}

	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("walks stay within declared states", prop.ForAll(
		func(steps []int) bool {
			state := Greeting
			for _, n := range steps {
				trigger := allTriggers[n%len(allTriggers)]
				next, ok := Next(state, trigger)
				if !ok {
					continue
				}
				if IsTerminal(state) {
					// A terminal state accepted a transition.
					return false
				}
				if _, declaredState := declared[next]; !declaredState {
					return false
				}
				state = next
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, len(allTriggers)-1)),
	))

	properties.TestingRun(t)
}
