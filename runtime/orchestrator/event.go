package orchestrator

import (
	"fmt"

	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type (
	// Event is an inbound message for the orchestrator. The surrounding chat
	// layer resolves which product the message refers to before building an
	// Event; ambiguity resolution is not the orchestrator's concern.
	Event struct {
		// Sender is the party the message came from.
		Sender workflow.Role `json:"sender"`
		// Recipient is the party the message is addressed to, usually the agent.
		Recipient workflow.Role `json:"recipient"`
		// Message is the inbound message text.
		Message string `json:"message"`
		// ProductName keys the workflow together with TaskType.
		ProductName string `json:"product_name"`
		// Price is the product price as quoted in the conversation.
		Price string `json:"price,omitempty"`
		// TaskType selects the workflow kind.
		TaskType workflow.TaskType `json:"task_type"`

		// CustomerID and BusinessID identify the session. Both are required.
		CustomerID string `json:"customer_id"`
		BusinessID string `json:"business_id"`
		// LogisticID identifies the logistics partner when one is involved.
		LogisticID string `json:"logistic_id,omitempty"`

		// CustomerAddress is the delivery address when already known.
		CustomerAddress string `json:"customer_address,omitempty"`
		// BankDetails carries payment account details for verification tasks.
		BankDetails string `json:"bank_details,omitempty"`
	}

	// Key identifies the workflow an event belongs to, for logging and error
	// reporting.
	Key struct {
		CustomerID string
		BusinessID string
		Task       workflow.TaskType
		Product    string
	}
)

// Validate checks the event's required fields. A failure means the event is
// rejected before any session mutation.
func (e *Event) Validate() error {
	if e.CustomerID == "" {
		return &ValidationError{Field: "customer_id", Reason: "is required"}
	}
	if e.BusinessID == "" {
		return &ValidationError{Field: "business_id", Reason: "is required"}
	}
	if e.ProductName == "" {
		return &ValidationError{Field: "product_name", Reason: "is required"}
	}
	if e.Message == "" {
		return &ValidationError{Field: "message", Reason: "is required"}
	}
	if !e.TaskType.Valid() {
		return &ValidationError{Field: "task_type", Reason: fmt.Sprintf("%q is not a known task type", e.TaskType)}
	}
	if !e.Sender.Valid() {
		return &ValidationError{Field: "sender", Reason: fmt.Sprintf("%q is not a known role", e.Sender)}
	}
	return nil
}

// Key returns the workflow key of the event.
func (e *Event) Key() Key {
	return Key{
		CustomerID: e.CustomerID,
		BusinessID: e.BusinessID,
		Task:       e.TaskType,
		Product:    e.ProductName,
	}
}

// String renders the key for log records.
func (k Key) String() string {
	return fmt.Sprintf("%s:%s/%s/%s", k.CustomerID, k.BusinessID, k.Task, k.Product)
}
