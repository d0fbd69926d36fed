// Package reason defines the reasoning step contract: the Decision structure
// produced by a reasoning call, the Reasoner interface implemented by model
// adapters (features/reason/openai, features/reason/anthropic,
// features/reason/bedrock), and the per-task context builder that assembles
// the inputs each task type requires.
package reason

import (
	"context"
	"errors"
	"fmt"

	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type (
	// Decision is the structured output of a reasoning call. It is consumed
	// exactly once by the orchestrator to update the owning process and to
	// route the outbound message; it is never persisted as-is.
	Decision struct {
		// Message is the text to deliver to the recipient.
		Message string `json:"message"`
		// Sender is the party the message speaks as.
		Sender workflow.Role `json:"sender"`
		// Recipient is the party the message is addressed to.
		Recipient workflow.Role `json:"recipient"`
		// LogisticDetails carries delivery details when the task produced any.
		LogisticDetails string `json:"logistic_details,omitempty"`
		// Finished reports whether the workflow's objective is achieved.
		Finished bool `json:"finished"`
	}

	// Reasoner is the stateless reasoning step. Implementations wrap LLM
	// clients; they receive the task type, the task-specific context values
	// built by BuildContext, and the workflow transcript, and return a
	// Decision. Implementations must be safe for concurrent use.
	Reasoner interface {
		Reason(ctx context.Context, task workflow.TaskType, values map[string]string, transcript []workflow.Message) (Decision, error)
	}

	// ContextInput carries the raw values available to BuildContext. The
	// orchestrator fills it from the inbound event, the session's business
	// context, and the process being advanced.
	ContextInput struct {
		Product         string
		Price           string
		CustomerID      string
		BusinessID      string
		LogisticID      string
		CustomerAddress string
		BankDetails     string
	}

	// contextSpec declares which context keys a task type requires beyond the
	// common set. Requirements live in a table rather than in conditional
	// branches scattered through the orchestrator.
	contextSpec struct {
		needsAddress  bool
		needsBank     bool
		needsLogistic bool
	}
)

// Context keys shared by every task type plus the task-specific extras.
const (
	KeyProduct         = "product"
	KeyPrice           = "price"
	KeyCustomerID      = "customer_id"
	KeyBusinessID      = "business_id"
	KeyLogisticID      = "logistic_id"
	KeyCustomerAddress = "customer_address"
	KeyBankDetails     = "bank_details"
)

// addressUnknown is the placeholder used until the customer provides an
// address; prompts are written against it.
const addressUnknown = "Not yet gotten from customer"

// ErrRateLimited marks provider throttling failures so rate limiting
// middleware can back off. Adapters wrap the provider error with it.
var ErrRateLimited = errors.New("rate limited by model provider")

var contextSpecs = map[workflow.TaskType]contextSpec{
	workflow.TaskLogisticPlanning:    {needsAddress: true, needsLogistic: true},
	workflow.TaskPaymentVerification: {needsBank: true},
	workflow.TaskCustomerFeedback:    {},
	workflow.TaskProductUnavailable:  {},
}

// Validate reports whether the decision is structurally sound: a non-empty
// message and both parties within the closed role set.
func (d Decision) Validate() error {
	if d.Message == "" {
		return fmt.Errorf("decision has empty message")
	}
	if !d.Sender.Valid() {
		return fmt.Errorf("decision sender %q: %w", d.Sender, workflow.ErrUnknownRole)
	}
	if !d.Recipient.Valid() {
		return fmt.Errorf("decision recipient %q: %w", d.Recipient, workflow.ErrUnknownRole)
	}
	return nil
}

// BuildContext assembles the reasoning context for the given task type. It
// returns an error when a value the task requires is missing, so the
// orchestrator can reject the event before any reasoning call is made.
func BuildContext(task workflow.TaskType, in ContextInput) (map[string]string, error) {
	spec, ok := contextSpecs[task]
	if !ok {
		return nil, fmt.Errorf("%w: %q", workflow.ErrUnknownTaskType, task)
	}
	values := map[string]string{
		KeyProduct:    in.Product,
		KeyPrice:      in.Price,
		KeyCustomerID: in.CustomerID,
		KeyBusinessID: in.BusinessID,
	}
	if spec.needsLogistic {
		if in.LogisticID == "" {
			return nil, fmt.Errorf("task %q requires a logistic id", task)
		}
		values[KeyLogisticID] = fmt.Sprintf("using logistic company with id:- %s", in.LogisticID)
	}
	if spec.needsAddress {
		if in.CustomerAddress != "" {
			values[KeyCustomerAddress] = in.CustomerAddress
		} else {
			values[KeyCustomerAddress] = addressUnknown
		}
	}
	if spec.needsBank {
		if in.BankDetails == "" {
			return nil, fmt.Errorf("task %q requires bank details", task)
		}
		values[KeyBankDetails] = in.BankDetails
	}
	return values, nil
}
