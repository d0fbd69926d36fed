package funnel

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Order tracks a single customer order through the funnel. The only mutation
// path is Apply; once the order reaches a terminal state it is immutable.
type Order struct {
	// ID is the durable order identifier.
	ID string `json:"id"`
	// State is the current funnel state.
	State State `json:"state"`
	// CreatedAt records when the order was created.
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt records the last successful transition.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewOrder creates an order in the Greeting state.
func NewOrder() *Order {
	now := time.Now().UTC()
	return &Order{
		ID:        uuid.NewString(),
		State:     Greeting,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Apply advances the order along the edge registered for (current state,
// trigger). It returns an error and leaves the order untouched when the
// trigger is not legal in the current state or the order is terminal.
func (o *Order) Apply(trigger Trigger) error {
	if IsTerminal(o.State) {
		return fmt.Errorf("order %s is in terminal state %q", o.ID, o.State)
	}
	next, ok := Next(o.State, trigger)
	if !ok {
		return fmt.Errorf("no transition from %q on trigger %q", o.State, trigger)
	}
	o.State = next
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// Can reports whether the trigger is legal in the order's current state.
func (o *Order) Can(trigger Trigger) bool {
	return !IsTerminal(o.State) && Valid(o.State, trigger)
}
