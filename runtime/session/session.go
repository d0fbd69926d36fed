// Package session defines the durable conversation document and its store
// contract.
//
// A Session is the unit of persistence, identified by the (customer, business)
// pair. It holds the customer-visible chat history, a cached snapshot of the
// counterparty's business profile, the registry of active workflows, and the
// order funnel state. The workflow orchestrator owns sessions exclusively; no
// other component mutates them.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/sokoflow/sokoflow/runtime/funnel"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type (
	// Session is the JSON-serializable conversation document.
	Session struct {
		// CustomerID and BusinessID identify the conversation pair.
		CustomerID string `json:"customer_id"`
		BusinessID string `json:"business_id"`
		// ChatHistory is the customer-visible conversation log, append-only.
		// It is distinct from per-workflow transcripts: workflow messages
		// reach it only when addressed to the customer.
		ChatHistory []workflow.Message `json:"chat_history"`
		// Business caches the counterparty profile, fetched once from the
		// catalog and kept for the session lifetime.
		Business *BusinessContext `json:"business_context,omitempty"`
		// Processes tracks the active workflows for this pair.
		Processes *workflow.Registry `json:"processes"`
		// Order tracks the customer's position in the order funnel.
		Order *funnel.Order `json:"order,omitempty"`

		CreatedAt time.Time `json:"created_at"`
		UpdatedAt time.Time `json:"updated_at"`
	}

	// BusinessContext is a read-mostly snapshot of a business profile. The
	// orchestrator fetches it from the catalog when a session is created and
	// never refreshes it mid-session.
	BusinessContext struct {
		BusinessID      string `json:"business_id"`
		Name            string `json:"business_name"`
		Description     string `json:"business_description,omitempty"`
		Website         string `json:"website,omitempty"`
		InstagramPage   string `json:"ig_page,omitempty"`
		FacebookPage    string `json:"facebook_page,omitempty"`
		TwitterPage     string `json:"twitter_page,omitempty"`
		TikTok          string `json:"tiktok,omitempty"`
		BankName        string `json:"bank_name,omitempty"`
		BankAccount     string `json:"bank_account_number,omitempty"`
		BankAccountName string `json:"bank_account_name,omitempty"`
		LogisticID      string `json:"logistic_id,omitempty"`
	}

	// Store persists session documents keyed by Session.Key. Stores are
	// schema-agnostic: the session owns its JSON shape, the store only moves
	// documents.
	Store interface {
		// Load retrieves the session for the key. Returns ErrNotFound when
		// no document exists.
		Load(ctx context.Context, key string) (*Session, error)
		// Save writes the full session document, replacing any prior state.
		Save(ctx context.Context, sess *Session) error
		// Delete removes the session. Deleting an absent key is a no-op.
		Delete(ctx context.Context, key string) error
	}
)

// ErrNotFound indicates no session document exists for the key.
var ErrNotFound = errors.New("session not found")

// New creates an empty session for the given pair.
func New(customerID, businessID string) *Session {
	now := time.Now().UTC()
	return &Session{
		CustomerID: customerID,
		BusinessID: businessID,
		Processes:  workflow.NewRegistry(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Key returns the store key for a (customer, business) pair.
func Key(customerID, businessID string) string {
	return customerID + ":" + businessID
}

// Key returns the store key of this session.
func (s *Session) Key() string {
	return Key(s.CustomerID, s.BusinessID)
}

// AppendChat appends a message to the customer-visible chat history.
func (s *Session) AppendChat(msg workflow.Message) {
	s.ChatHistory = append(s.ChatHistory, msg)
	s.UpdatedAt = time.Now().UTC()
}
