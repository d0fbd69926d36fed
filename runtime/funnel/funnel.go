// Package funnel defines the order lifecycle state machine: the set of funnel
// states a customer moves through from greeting to completed order, the
// explicit table of legal transitions between them, and the category
// predicates callers use to decide which flow affordances to expose.
//
// The transition table is immutable, globally shared data. Encoding the funnel
// as a table keeps every legal path enumerable and testable; "can the customer
// currently do X" is a single lookup rather than logic duplicated at call
// sites. Invalid (state, trigger) pairs are reported as "no transition", never
// as errors or side effects.
package funnel

type (
	// State identifies a position in the order funnel.
	State string

	// Trigger names a customer or system action that may advance the funnel.
	Trigger string

	// ConversationState is the coarse conversation status derived from the
	// current funnel state. Callers use it to decide whether the conversation
	// is waiting on the customer, on an external party, or is over.
	ConversationState string

	transition struct {
		from    State
		to      State
		trigger Trigger
	}
)

const (
	// Initial states.
	Greeting State = "greeting"
	Browsing State = "browsing"

	// Shopping states.
	ViewingProduct State = "viewing_product"
	AddingToCart   State = "adding_to_cart"
	CartReview     State = "cart_review"

	// Checkout states.
	Checkout          State = "checkout"
	CollectingAddress State = "collecting_address"
	ConfirmingOrder   State = "confirming_order"

	// Payment states.
	PaymentPending    State = "payment_pending"
	PaymentProcessing State = "payment_processing"
	PaymentVerified   State = "payment_verified"
	PaymentFailed     State = "payment_failed"

	// Delivery states.
	DeliveryScheduled State = "delivery_scheduled"
	OutForDelivery    State = "out_for_delivery"
	Delivered         State = "delivered"

	// Completion state.
	OrderCompleted State = "order_completed"

	// Support states.
	EscalatedToHuman State = "escalated_to_human"
	CustomerSupport  State = "customer_support"

	// Error states.
	ErrorState State = "error"
	Timeout    State = "timeout"
)

const (
	TriggerStartBrowsing     Trigger = "start_browsing"
	TriggerViewProduct       Trigger = "view_product"
	TriggerAddToCart         Trigger = "add_to_cart"
	TriggerContinueBrowsing  Trigger = "continue_browsing"
	TriggerReviewCart        Trigger = "review_cart"
	TriggerContinueShopping  Trigger = "continue_shopping"
	TriggerProceedToCheckout Trigger = "proceed_to_checkout"
	TriggerCollectAddress    Trigger = "collect_address"
	TriggerConfirmOrder      Trigger = "confirm_order"
	TriggerInitiatePayment   Trigger = "initiate_payment"
	TriggerPaymentStarted    Trigger = "payment_started"
	TriggerPaymentSuccess    Trigger = "payment_success"
	TriggerPaymentFailed     Trigger = "payment_failed"
	TriggerRetryPayment      Trigger = "retry_payment"
	TriggerScheduleDelivery  Trigger = "schedule_delivery"
	TriggerStartDelivery     Trigger = "start_delivery"
	TriggerDeliveryComplete  Trigger = "delivery_complete"
	TriggerConfirmCompletion Trigger = "confirm_completion"
	TriggerEscalate          Trigger = "escalate"
	TriggerHumanTakeover     Trigger = "human_takeover"
	TriggerBackToCart        Trigger = "back_to_cart"
	TriggerBackToCheckout    Trigger = "back_to_checkout"
	TriggerBackToAddress     Trigger = "back_to_address"
	TriggerPaymentTimeout    Trigger = "payment_timeout"
	TriggerResumePayment     Trigger = "resume_payment"
	TriggerModifyOrder       Trigger = "modify_order"
	TriggerCancelOrder       Trigger = "cancel_order"
	TriggerViewCart          Trigger = "view_cart"
)

const (
	ConversationActive             ConversationState = "active"
	ConversationPaused             ConversationState = "paused"
	ConversationWaitingForInput    ConversationState = "waiting_for_input"
	ConversationWaitingForPayment  ConversationState = "waiting_for_payment"
	ConversationWaitingForDelivery ConversationState = "waiting_for_delivery"
	ConversationCompleted          ConversationState = "completed"
	ConversationEscalated          ConversationState = "escalated"
)

// transitions enumerates every legal edge of the funnel. Backward edges
// (modify order, continue shopping, cancel) are first-class: customers abandon
// and resume flows non-linearly and the table must reflect that.
var transitions = []transition{
	// Initial flow.
	{Greeting, Browsing, TriggerStartBrowsing},
	{Browsing, ViewingProduct, TriggerViewProduct},

	// Shopping flow.
	{ViewingProduct, AddingToCart, TriggerAddToCart},
	{ViewingProduct, Browsing, TriggerContinueBrowsing},
	{AddingToCart, CartReview, TriggerReviewCart},
	{AddingToCart, Browsing, TriggerContinueShopping},

	// Cart management.
	{CartReview, Browsing, TriggerContinueShopping},
	{CartReview, Checkout, TriggerProceedToCheckout},
	{CartReview, ViewingProduct, TriggerViewProduct},

	// Checkout flow.
	{Checkout, CollectingAddress, TriggerCollectAddress},
	{CollectingAddress, ConfirmingOrder, TriggerConfirmOrder},
	{ConfirmingOrder, PaymentPending, TriggerInitiatePayment},

	// Payment flow.
	{PaymentPending, PaymentProcessing, TriggerPaymentStarted},
	{PaymentProcessing, PaymentVerified, TriggerPaymentSuccess},
	{PaymentProcessing, PaymentFailed, TriggerPaymentFailed},
	{PaymentFailed, PaymentPending, TriggerRetryPayment},
	{PaymentVerified, DeliveryScheduled, TriggerScheduleDelivery},

	// Delivery flow.
	{DeliveryScheduled, OutForDelivery, TriggerStartDelivery},
	{OutForDelivery, Delivered, TriggerDeliveryComplete},
	{Delivered, OrderCompleted, TriggerConfirmCompletion},

	// Support and error flows.
	{Browsing, EscalatedToHuman, TriggerEscalate},
	{CartReview, EscalatedToHuman, TriggerEscalate},
	{Checkout, EscalatedToHuman, TriggerEscalate},
	{PaymentFailed, EscalatedToHuman, TriggerEscalate},
	{EscalatedToHuman, CustomerSupport, TriggerHumanTakeover},

	// Back navigation.
	{Checkout, CartReview, TriggerBackToCart},
	{CollectingAddress, Checkout, TriggerBackToCheckout},
	{ConfirmingOrder, CollectingAddress, TriggerBackToAddress},

	// Timeout handling.
	{PaymentPending, Timeout, TriggerPaymentTimeout},
	{Timeout, PaymentPending, TriggerResumePayment},

	// Customers change their minds: shopping and cart remain reachable from
	// payment states.
	{PaymentPending, CartReview, TriggerModifyOrder},
	{PaymentPending, Browsing, TriggerContinueShopping},
	{PaymentFailed, CartReview, TriggerModifyOrder},
	{PaymentFailed, Browsing, TriggerContinueShopping},

	// Continuing shopping from checkout states.
	{Checkout, Browsing, TriggerContinueShopping},
	{CollectingAddress, CartReview, TriggerModifyOrder},
	{CollectingAddress, Browsing, TriggerContinueShopping},
	{ConfirmingOrder, CartReview, TriggerModifyOrder},
	{ConfirmingOrder, Browsing, TriggerContinueShopping},

	// Cancel order and restart.
	{Checkout, Greeting, TriggerCancelOrder},
	{CollectingAddress, Greeting, TriggerCancelOrder},
	{ConfirmingOrder, Greeting, TriggerCancelOrder},
	{PaymentPending, Greeting, TriggerCancelOrder},
	{PaymentFailed, Greeting, TriggerCancelOrder},

	// Adding products from checkout states.
	{Checkout, ViewingProduct, TriggerViewProduct},
	{CollectingAddress, ViewingProduct, TriggerViewProduct},

	// Direct navigation.
	{Browsing, CartReview, TriggerViewCart},
	{ViewingProduct, CartReview, TriggerViewCart},
	{AddingToCart, ViewingProduct, TriggerViewProduct},
}

// table is the transition map built once at package init.
var table = buildTable()

func buildTable() map[State]map[Trigger]State {
	m := make(map[State]map[Trigger]State)
	for _, t := range transitions {
		edges, ok := m[t.from]
		if !ok {
			edges = make(map[Trigger]State)
			m[t.from] = edges
		}
		edges[t.trigger] = t.to
	}
	return m
}

// Next returns the destination state for the given (state, trigger) pair. The
// boolean reports whether the pair is a registered transition. Pure function,
// no I/O.
func Next(state State, trigger Trigger) (State, bool) {
	next, ok := table[state][trigger]
	return next, ok
}

// Valid reports whether (state, trigger) is a registered transition.
func Valid(state State, trigger Trigger) bool {
	_, ok := table[state][trigger]
	return ok
}

// Triggers returns the triggers registered for the given state. The result is
// a fresh slice; callers may mutate it freely.
func Triggers(state State) []Trigger {
	edges := table[state]
	if len(edges) == 0 {
		return nil
	}
	out := make([]Trigger, 0, len(edges))
	for trigger := range edges {
		out = append(out, trigger)
	}
	return out
}

// Reachable returns the set of states directly reachable from the given state.
func Reachable(state State) map[State]struct{} {
	edges := table[state]
	if len(edges) == 0 {
		return nil
	}
	out := make(map[State]struct{}, len(edges))
	for _, to := range edges {
		out[to] = struct{}{}
	}
	return out
}

// States returns every state declared by the funnel.
func States() []State {
	return []State{
		Greeting, Browsing,
		ViewingProduct, AddingToCart, CartReview,
		Checkout, CollectingAddress, ConfirmingOrder,
		PaymentPending, PaymentProcessing, PaymentVerified, PaymentFailed,
		DeliveryScheduled, OutForDelivery, Delivered,
		OrderCompleted,
		EscalatedToHuman, CustomerSupport,
		ErrorState, Timeout,
	}
}

// IsTerminal reports whether the state accepts no further transitions.
func IsTerminal(state State) bool {
	switch state {
	case OrderCompleted, CustomerSupport, ErrorState:
		return true
	}
	return false
}

// IsPayment reports whether the state is part of the payment phase.
func IsPayment(state State) bool {
	switch state {
	case PaymentPending, PaymentProcessing, PaymentVerified, PaymentFailed:
		return true
	}
	return false
}

// IsShopping reports whether the state is part of the shopping phase.
func IsShopping(state State) bool {
	switch state {
	case Browsing, ViewingProduct, AddingToCart, CartReview:
		return true
	}
	return false
}

// IsCheckout reports whether the state is part of the checkout phase.
func IsCheckout(state State) bool {
	switch state {
	case Checkout, CollectingAddress, ConfirmingOrder:
		return true
	}
	return false
}

// IsDelivery reports whether the state is part of the delivery phase.
func IsDelivery(state State) bool {
	switch state {
	case DeliveryScheduled, OutForDelivery, Delivered:
		return true
	}
	return false
}

// RequiresInput reports whether the state is waiting on customer input.
func RequiresInput(state State) bool {
	switch state {
	case Browsing, ViewingProduct, CartReview, Checkout,
		CollectingAddress, ConfirmingOrder, PaymentFailed:
		return true
	}
	return false
}

// CanAddProducts reports whether products can be added in the current state.
func CanAddProducts(state State) bool {
	switch state {
	case Browsing, ViewingProduct, AddingToCart, CartReview:
		return true
	}
	return false
}

// CanModifyCart reports whether the cart can be modified in the current state.
func CanModifyCart(state State) bool {
	return CanAddProducts(state) || state == Checkout
}

// CanReturnToShopping reports whether the customer can abandon the current
// phase and return to browsing.
func CanReturnToShopping(state State) bool {
	switch state {
	case PaymentPending, PaymentFailed, Checkout, CollectingAddress,
		ConfirmingOrder, CartReview, ViewingProduct, AddingToCart:
		return true
	}
	return false
}

// CanCancel reports whether the customer can cancel the order and restart from
// the current state.
func CanCancel(state State) bool {
	switch state {
	case Checkout, CollectingAddress, ConfirmingOrder, PaymentPending, PaymentFailed:
		return true
	}
	return false
}

// Description returns a human-readable description of the state.
func Description(state State) string {
	switch state {
	case Greeting:
		return "Welcoming the customer"
	case Browsing:
		return "Customer is browsing products"
	case ViewingProduct:
		return "Customer is viewing a specific product"
	case AddingToCart:
		return "Adding product to cart"
	case CartReview:
		return "Customer is reviewing their cart"
	case Checkout:
		return "Customer is in checkout process"
	case CollectingAddress:
		return "Collecting delivery address"
	case ConfirmingOrder:
		return "Customer is confirming their order"
	case PaymentPending:
		return "Waiting for payment initiation"
	case PaymentProcessing:
		return "Payment is being processed"
	case PaymentVerified:
		return "Payment has been verified"
	case PaymentFailed:
		return "Payment has failed"
	case DeliveryScheduled:
		return "Delivery has been scheduled"
	case OutForDelivery:
		return "Order is out for delivery"
	case Delivered:
		return "Order has been delivered"
	case OrderCompleted:
		return "Order process is complete"
	case EscalatedToHuman:
		return "Issue escalated to human support"
	case CustomerSupport:
		return "Human support is handling the case"
	case ErrorState:
		return "An error has occurred"
	case Timeout:
		return "Session has timed out"
	}
	return "State: " + string(state)
}

// Conversation maps a funnel state to the coarse conversation status.
func Conversation(state State) ConversationState {
	switch state {
	case CollectingAddress, ConfirmingOrder:
		return ConversationWaitingForInput
	case PaymentPending, PaymentProcessing:
		return ConversationWaitingForPayment
	case DeliveryScheduled, OutForDelivery:
		return ConversationWaitingForDelivery
	case OrderCompleted:
		return ConversationCompleted
	case EscalatedToHuman, CustomerSupport:
		return ConversationEscalated
	case ErrorState, Timeout:
		return ConversationPaused
	}
	return ConversationActive
}
