package workflow

import (
	"encoding/json"
	"sort"
	"time"
)

type (
	// Key identifies a workflow within a session. At most one active process
	// may exist per key; a second event for the same key joins the existing
	// process rather than creating a sibling.
	Key struct {
		Task    TaskType `json:"task_type"`
		Product string   `json:"product_name"`
	}

	// Registry maps workflow keys to their active processes within a single
	// session. It is not safe for concurrent use on its own: the owning
	// orchestrator serializes access per session via its lease.
	Registry struct {
		procs map[Key]*Process
	}
)

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[Key]*Process)}
}

// GetOrCreate returns the live process for (task, product), appending the
// inbound message to its transcript. When no process exists for the key a new
// one is created with the inbound message as the sole transcript entry.
//
// An inbound message identical to the last transcript entry is not appended
// again: at-least-once redelivery after a reasoning failure replays the event
// against a transcript that already holds the message.
func (r *Registry) GetOrCreate(task TaskType, product, price, logisticID string, inbound Message) *Process {
	if r.procs == nil {
		r.procs = make(map[Key]*Process)
	}
	key := Key{Task: task, Product: product}
	if p, ok := r.procs[key]; ok {
		if n := len(p.Transcript); n == 0 || p.Transcript[n-1] != inbound {
			p.Append(inbound)
		}
		return p
	}
	now := time.Now().UTC()
	p := &Process{
		TaskType:    task,
		ProductName: product,
		Price:       price,
		LogisticID:  logisticID,
		Transcript:  []Message{inbound},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.procs[key] = p
	return p
}

// Get returns the live process for the key, if any.
func (r *Registry) Get(task TaskType, product string) (*Process, bool) {
	p, ok := r.procs[Key{Task: task, Product: product}]
	return p, ok
}

// Complete removes the process for the key. Idempotent: completing an absent
// key is a no-op, since racing events may both observe a finished decision.
func (r *Registry) Complete(task TaskType, product string) {
	delete(r.procs, Key{Task: task, Product: product})
}

// All returns the live processes ordered by key for deterministic iteration.
func (r *Registry) All() []*Process {
	if len(r.procs) == 0 {
		return nil
	}
	keys := make([]Key, 0, len(r.procs))
	for k := range r.procs {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Task != keys[j].Task {
			return keys[i].Task < keys[j].Task
		}
		return keys[i].Product < keys[j].Product
	})
	out := make([]*Process, len(keys))
	for i, k := range keys {
		out[i] = r.procs[k]
	}
	return out
}

// Len returns the number of live processes.
func (r *Registry) Len() int {
	return len(r.procs)
}

// MarshalJSON serializes the registry as a flat process list. Map keys are
// derived from the processes themselves, so the list is the full state. An
// empty registry marshals as an empty list, never null: a session that
// finished its last workflow must round-trip to a usable registry.
func (r *Registry) MarshalJSON() ([]byte, error) {
	procs := r.All()
	if procs == nil {
		procs = []*Process{}
	}
	return json.Marshal(procs)
}

// UnmarshalJSON rebuilds the key map from a serialized process list.
func (r *Registry) UnmarshalJSON(data []byte) error {
	var procs []*Process
	if err := json.Unmarshal(data, &procs); err != nil {
		return err
	}
	r.procs = make(map[Key]*Process, len(procs))
	for _, p := range procs {
		r.procs[Key{Task: p.TaskType, Product: p.ProductName}] = p
	}
	return nil
}
