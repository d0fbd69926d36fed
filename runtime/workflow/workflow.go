// Package workflow defines the multi-party workflow primitives: the closed
// set of conversation roles, the task types a workflow can coordinate, the
// per-workflow transcript, and the Process type tracking one bounded task
// (logistics planning, payment verification, customer feedback, availability
// check) for a single product within a session.
package workflow

import (
	"errors"
	"fmt"
	"time"
)

type (
	// Role identifies a party in a commerce conversation. The set is closed:
	// callers dispatch on Role with exhaustive switches, never by matching
	// free-form strings.
	Role string

	// TaskType identifies the kind of work a workflow coordinates.
	TaskType string

	// Message is a single transcript entry. Role carries the chat role
	// ("user" or "assistant"), Name the party that authored the message.
	Message struct {
		Role    string `json:"role"`
		Name    string `json:"name"`
		Content string `json:"content"`
	}

	// Process is one active workflow: a bounded task tracked independently
	// per (task type, product) within a session. The transcript is
	// append-only; Finished flips exactly once, when the reasoning step
	// reports the objective achieved.
	Process struct {
		TaskType        TaskType  `json:"task_type"`
		ProductName     string    `json:"product_name"`
		Price           string    `json:"price,omitempty"`
		LogisticID      string    `json:"logistic_id,omitempty"`
		LogisticDetails string    `json:"logistic_details,omitempty"`
		CustomerAddress string    `json:"customer_address,omitempty"`
		Transcript      []Message `json:"communication_history"`
		Finished        bool      `json:"finished"`
		CreatedAt       time.Time `json:"created_at"`
		UpdatedAt       time.Time `json:"updated_at"`
	}
)

const (
	RoleAgent     Role = "agent"
	RoleCustomer  Role = "customer"
	RoleVendor    Role = "vendor"
	RoleLogistics Role = "logistics"
)

const (
	TaskLogisticPlanning    TaskType = "logistic_planning"
	TaskPaymentVerification TaskType = "payment_verification"
	TaskCustomerFeedback    TaskType = "customer_feedback"
	TaskProductUnavailable  TaskType = "product_unavailable"
)

// ErrUnknownRole indicates a role string outside the closed Role set.
var ErrUnknownRole = errors.New("unknown role")

// ErrUnknownTaskType indicates a task type outside the enumerated set.
var ErrUnknownTaskType = errors.New("unknown task type")

// ParseRole converts a boundary string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleAgent, RoleCustomer, RoleVendor, RoleLogistics:
		return Role(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}

// ParseTaskType converts a boundary string into a TaskType.
func ParseTaskType(s string) (TaskType, error) {
	switch TaskType(s) {
	case TaskLogisticPlanning, TaskPaymentVerification, TaskCustomerFeedback, TaskProductUnavailable:
		return TaskType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownTaskType, s)
}

// Valid reports whether the role belongs to the closed set.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleCustomer, RoleVendor, RoleLogistics:
		return true
	}
	return false
}

// Valid reports whether the task type belongs to the enumerated set.
func (t TaskType) Valid() bool {
	switch t {
	case TaskLogisticPlanning, TaskPaymentVerification, TaskCustomerFeedback, TaskProductUnavailable:
		return true
	}
	return false
}

// Background reports whether events of this task type are handled on the
// asynchronous dispatch path. Availability checks are latency-sensitive and
// run synchronously; everything else is background-eligible.
func (t TaskType) Background() bool {
	switch t {
	case TaskLogisticPlanning, TaskPaymentVerification, TaskCustomerFeedback:
		return true
	case TaskProductUnavailable:
		return false
	}
	return false
}

// ChatRole returns the chat role a transcript entry authored by this party
// carries: the agent speaks as "assistant", everyone else as "user".
func (r Role) ChatRole() string {
	if r == RoleAgent {
		return "assistant"
	}
	return "user"
}

// NewMessage builds a transcript entry authored by the given role.
func NewMessage(author Role, content string) Message {
	return Message{
		Role:    author.ChatRole(),
		Name:    string(author),
		Content: content,
	}
}

// Append adds a message to the process transcript and bumps UpdatedAt.
func (p *Process) Append(msg Message) {
	p.Transcript = append(p.Transcript, msg)
	p.UpdatedAt = time.Now().UTC()
}
