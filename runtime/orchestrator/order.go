package orchestrator

import (
	"context"

	"github.com/sokoflow/sokoflow/runtime/funnel"
	"github.com/sokoflow/sokoflow/runtime/session"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

// orderTargets maps a finished workflow to the funnel state its outcome
// certifies. An availability answer means the customer is viewing a live
// product; verified payment, a scheduled delivery, and collected feedback
// land on the corresponding funnel milestones.
var orderTargets = map[workflow.TaskType]funnel.State{
	workflow.TaskProductUnavailable:  funnel.ViewingProduct,
	workflow.TaskPaymentVerification: funnel.PaymentVerified,
	workflow.TaskLogisticPlanning:    funnel.DeliveryScheduled,
	workflow.TaskCustomerFeedback:    funnel.OrderCompleted,
}

// directRoute lists the funnel states on the greeting-to-completion path in
// order, each paired with the trigger that advances past it. States off this
// route (failed payment, escalation, timeout) have no entry; orders parked
// there are advanced by the funnel's own recovery edges, not by workflow
// outcomes.
var directRoute = []struct {
	state funnel.State
	next  funnel.Trigger
}{
	{funnel.Greeting, funnel.TriggerStartBrowsing},
	{funnel.Browsing, funnel.TriggerViewProduct},
	{funnel.ViewingProduct, funnel.TriggerAddToCart},
	{funnel.AddingToCart, funnel.TriggerReviewCart},
	{funnel.CartReview, funnel.TriggerProceedToCheckout},
	{funnel.Checkout, funnel.TriggerCollectAddress},
	{funnel.CollectingAddress, funnel.TriggerConfirmOrder},
	{funnel.ConfirmingOrder, funnel.TriggerInitiatePayment},
	{funnel.PaymentPending, funnel.TriggerPaymentStarted},
	{funnel.PaymentProcessing, funnel.TriggerPaymentSuccess},
	{funnel.PaymentVerified, funnel.TriggerScheduleDelivery},
	{funnel.DeliveryScheduled, funnel.TriggerStartDelivery},
	{funnel.OutForDelivery, funnel.TriggerDeliveryComplete},
	{funnel.Delivered, funnel.TriggerConfirmCompletion},
}

// routeRank positions each direct-route state, with the completion state one
// past the last advancing entry.
var routeRank = buildRouteRank()

func buildRouteRank() map[funnel.State]int {
	m := make(map[funnel.State]int, len(directRoute)+1)
	for i, step := range directRoute {
		m[step.state] = i
	}
	m[funnel.OrderCompleted] = len(directRoute)
	return m
}

// advanceOrder moves the session's order funnel forward to the milestone the
// finished workflow certifies, applying direct-route triggers one edge at a
// time so every transition stays legal under the funnel table. Orders already
// at or past the milestone, or parked off the direct route, are left alone.
func (o *Orchestrator) advanceOrder(ctx context.Context, sess *session.Session, task workflow.TaskType, key Key) {
	target, ok := orderTargets[task]
	if !ok {
		return
	}
	if sess.Order == nil {
		sess.Order = funnel.NewOrder()
	}
	targetRank := routeRank[target]
	for {
		rank, ok := routeRank[sess.Order.State]
		if !ok || rank >= targetRank {
			return
		}
		if err := sess.Order.Apply(directRoute[rank].next); err != nil {
			o.logger.Warn(ctx, "order funnel advance stopped",
				"key", key.String(), "state", string(sess.Order.State), "error", err)
			return
		}
	}
}
