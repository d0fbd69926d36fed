// Package orchestrator implements the workflow coordinator: the single place
// where an inbound message becomes a persisted state change and an outbound
// routed message.
//
// Each handle call resolves the session, resolves or creates the workflow
// process, invokes the reasoning step, applies the resulting decision,
// persists the session exactly once, and routes the outbound message to the
// correct counterparty. Calls for the same (customer, business) pair are
// serialized by a per-key lease; calls for different pairs run in parallel.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/sokoflow/sokoflow/runtime/funnel"
	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/session"
	"github.com/sokoflow/sokoflow/runtime/telemetry"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type (
	// Outbound is a routed message ready for delivery: the text plus the
	// concrete contact identifiers of both parties.
	Outbound struct {
		Message string
		From    string
		To      string
	}

	// Notifier delivers outbound messages. Implementations wrap messaging
	// gateways (features/notify/whatsapp); delivery failures are logged, not
	// propagated, since the conversational state is already persisted.
	Notifier interface {
		Send(ctx context.Context, out Outbound) error
	}

	// Archiver receives completed workflow transcripts before they are
	// removed from the registry, preserving them for audit and dispute
	// resolution (features/archive/pulse).
	Archiver interface {
		ArchiveProcess(ctx context.Context, sessionKey string, proc *workflow.Process) error
	}

	// Catalog looks up business profiles for new sessions. The snapshot is
	// cached on the session for its lifetime.
	Catalog interface {
		Business(ctx context.Context, businessID string) (*session.BusinessContext, error)
	}

	// Options configures an Orchestrator. Sessions and Reasoner are required;
	// everything else has a working default.
	Options struct {
		// Sessions is the durable session store. Required.
		Sessions session.Store
		// Reasoner is the reasoning step adapter. Required.
		Reasoner reason.Reasoner
		// Lease serializes handle calls per session key. Defaults to an
		// in-process keyed mutex; multi-process deployments pass a
		// distributed lease (features/lease/redis).
		Lease Lease
		// Notifier delivers outbound messages. Nil skips delivery.
		Notifier Notifier
		// Archiver receives completed workflow transcripts. Nil discards them.
		Archiver Archiver
		// Catalog resolves business contexts for new sessions. Nil leaves the
		// business context empty.
		Catalog Catalog
		// ReasonTimeout bounds each reasoning call. Defaults to 30s.
		ReasonTimeout time.Duration
		// Logger, Metrics, and Tracer default to no-ops.
		Logger  telemetry.Logger
		Metrics telemetry.Metrics
		Tracer  telemetry.Tracer
	}

	// Orchestrator coordinates workflows for all sessions.
	Orchestrator struct {
		sessions      session.Store
		reasoner      reason.Reasoner
		lease         Lease
		notifier      Notifier
		archiver      Archiver
		catalog       Catalog
		reasonTimeout time.Duration
		logger        telemetry.Logger
		metrics       telemetry.Metrics
		tracer        telemetry.Tracer
	}
)

const defaultReasonTimeout = 30 * time.Second

// New constructs an Orchestrator from the options.
func New(opts Options) (*Orchestrator, error) {
	if opts.Sessions == nil {
		return nil, errors.New("session store is required")
	}
	if opts.Reasoner == nil {
		return nil, errors.New("reasoner is required")
	}
	o := &Orchestrator{
		sessions:      opts.Sessions,
		reasoner:      opts.Reasoner,
		lease:         opts.Lease,
		notifier:      opts.Notifier,
		archiver:      opts.Archiver,
		catalog:       opts.Catalog,
		reasonTimeout: opts.ReasonTimeout,
		logger:        opts.Logger,
		metrics:       opts.Metrics,
		tracer:        opts.Tracer,
	}
	if o.lease == nil {
		o.lease = NewKeyedMutex()
	}
	if o.reasonTimeout <= 0 {
		o.reasonTimeout = defaultReasonTimeout
	}
	if o.logger == nil {
		o.logger = telemetry.NewNoopLogger()
	}
	if o.metrics == nil {
		o.metrics = telemetry.NewNoopMetrics()
	}
	if o.tracer == nil {
		o.tracer = telemetry.NewNoopTracer()
	}
	return o, nil
}

// Handle advances the workflow addressed by the event and returns the routed
// outbound message. The session is written exactly once, after the decision
// is fully applied; a reasoning failure persists the inbound message but no
// partial decision, so redelivery is safe.
//
// A *RoutingError return means the conversational state was persisted but the
// outbound message could not be addressed; callers treat it as non-fatal.
func (o *Orchestrator) Handle(ctx context.Context, ev Event) (*Outbound, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	key := ev.Key()
	sessKey := session.Key(ev.CustomerID, ev.BusinessID)

	ctx, span := o.tracer.Start(ctx, "orchestrator.handle")
	defer span.End()
	span.AddEvent("event accepted", "task", string(ev.TaskType), "key", key.String())

	release, err := o.lease.Acquire(ctx, sessKey)
	if err != nil {
		return nil, fmt.Errorf("acquire lease for %s: %w", sessKey, err)
	}
	defer release()

	sess, err := o.loadOrCreateSession(ctx, ev, sessKey)
	if err != nil {
		return nil, err
	}

	inbound := workflow.NewMessage(ev.Sender, ev.Message)
	proc := sess.Processes.GetOrCreate(ev.TaskType, ev.ProductName, ev.Price, o.logisticID(ev, sess), inbound)
	if ev.CustomerAddress != "" {
		// Addresses arrive once; later events for the same workflow rely on
		// the copy kept on the process.
		proc.CustomerAddress = ev.CustomerAddress
	}

	values, err := reason.BuildContext(ev.TaskType, o.contextInput(ev, sess, proc))
	if err != nil {
		return nil, &ValidationError{Field: "context", Reason: err.Error()}
	}

	decision, err := o.reason(ctx, ev.TaskType, values, proc.Transcript)
	if err != nil {
		// Keep the inbound message so the retry has full context, but commit
		// no part of a decision.
		if saveErr := o.sessions.Save(ctx, sess); saveErr != nil {
			o.logger.Error(ctx, "session save after reasoning failure",
				"key", key.String(), "error", saveErr)
		}
		o.metrics.IncCounter("orchestrator.reasoning_errors", 1, "task", string(ev.TaskType))
		o.logger.Error(ctx, "reasoning step failed", "key", key.String(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "reasoning step failed")
		return nil, &ReasoningError{Key: key, Err: err}
	}

	proc.Append(workflow.NewMessage(decision.Sender, decision.Message))

	if decision.LogisticDetails != "" {
		proc.LogisticDetails = decision.LogisticDetails
	}
	if decision.Finished {
		proc.Finished = true
		o.archive(ctx, sessKey, proc)
		sess.Processes.Complete(ev.TaskType, ev.ProductName)
		o.advanceOrder(ctx, sess, ev.TaskType, key)
		span.AddEvent("workflow finished", "task", string(ev.TaskType))
	}

	if decision.Recipient == workflow.RoleCustomer {
		sess.AppendChat(workflow.Message{
			Role:    "assistant",
			Name:    string(decision.Sender),
			Content: decision.Message,
		})
	}

	if err := o.sessions.Save(ctx, sess); err != nil {
		o.logger.Error(ctx, "session save failed", "key", key.String(), "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "session save failed")
		return nil, &PersistenceError{Key: key, Op: "save", Err: err}
	}
	o.metrics.IncCounter("orchestrator.events_handled", 1, "task", string(ev.TaskType))

	out, err := o.route(ev, decision)
	if err != nil {
		o.logger.Warn(ctx, "outbound routing skipped", "key", key.String(), "error", err)
		return nil, err
	}
	if o.notifier != nil {
		if err := o.notifier.Send(ctx, *out); err != nil {
			o.logger.Error(ctx, "outbound delivery failed",
				"key", key.String(), "to", out.To, "error", err)
		}
	}
	return out, nil
}

// loadOrCreateSession resolves the session for the event, creating an empty
// one (with the business context snapshot and a fresh order funnel) when none
// exists. Loaded documents are repaired defensively: older documents may lack
// the registry or the order, and GetOrCreate must never see a nil registry.
func (o *Orchestrator) loadOrCreateSession(ctx context.Context, ev Event, sessKey string) (*session.Session, error) {
	sess, err := o.sessions.Load(ctx, sessKey)
	switch {
	case err == nil:
		if sess.Processes == nil {
			sess.Processes = workflow.NewRegistry()
		}
		if sess.Order == nil {
			sess.Order = funnel.NewOrder()
		}
		return sess, nil
	case errors.Is(err, session.ErrNotFound):
		sess = session.New(ev.CustomerID, ev.BusinessID)
		sess.Order = funnel.NewOrder()
		if o.catalog != nil {
			biz, err := o.catalog.Business(ctx, ev.BusinessID)
			if err != nil {
				o.logger.Warn(ctx, "business context lookup failed",
					"key", ev.Key().String(), "error", err)
			} else {
				sess.Business = biz
			}
		}
		return sess, nil
	default:
		return nil, &PersistenceError{Key: ev.Key(), Op: "load", Err: err}
	}
}

// reason invokes the reasoning step under the configured timeout and checks
// the decision's structure.
func (o *Orchestrator) reason(ctx context.Context, task workflow.TaskType, values map[string]string, transcript []workflow.Message) (reason.Decision, error) {
	rctx, cancel := context.WithTimeout(ctx, o.reasonTimeout)
	defer cancel()
	rctx, span := o.tracer.Start(rctx, "orchestrator.reason")
	defer span.End()
	start := time.Now()
	decision, err := o.reasoner.Reason(rctx, task, values, transcript)
	o.metrics.RecordTimer("orchestrator.reason_duration", time.Since(start), "task", string(task))
	if err != nil {
		span.RecordError(err)
		return reason.Decision{}, err
	}
	if err := decision.Validate(); err != nil {
		span.RecordError(err)
		return reason.Decision{}, err
	}
	return decision, nil
}

func (o *Orchestrator) archive(ctx context.Context, sessKey string, proc *workflow.Process) {
	if o.archiver == nil {
		return
	}
	if err := o.archiver.ArchiveProcess(ctx, sessKey, proc); err != nil {
		// Archival is best-effort; the workflow outcome stands either way.
		o.logger.Error(ctx, "transcript archival failed",
			"session", sessKey, "task", string(proc.TaskType),
			"product", proc.ProductName, "error", err)
	}
}

// route resolves the decision's roles to contact identifiers and formats the
// outbound message. Non-customer recipients get a correlation header so the
// vendor or logistics partner can tie the message back to the order.
func (o *Orchestrator) route(ev Event, decision reason.Decision) (*Outbound, error) {
	from, err := Contact(decision.Sender, ev)
	if err != nil {
		return nil, err
	}
	to, err := Contact(decision.Recipient, ev)
	if err != nil {
		return nil, err
	}
	msg := decision.Message
	if decision.Recipient != workflow.RoleCustomer {
		msg = fmt.Sprintf("*Customer id: *%s\n*Business id: *%s\n*Logistic id: *%s\n\n%s",
			ev.CustomerID, ev.BusinessID, ev.LogisticID, decision.Message)
	}
	return &Outbound{Message: msg, From: from, To: to}, nil
}

// Contact resolves a role to the matching identifier already present on the
// event; no external directory call is needed. The agent speaks through the
// business identity.
func Contact(role workflow.Role, ev Event) (string, error) {
	var id string
	switch role {
	case workflow.RoleCustomer:
		id = ev.CustomerID
	case workflow.RoleVendor, workflow.RoleAgent:
		id = ev.BusinessID
	case workflow.RoleLogistics:
		id = ev.LogisticID
	default:
		return "", &RoutingError{Key: ev.Key(), Role: string(role)}
	}
	if id == "" {
		return "", &RoutingError{Key: ev.Key(), Role: string(role)}
	}
	return id, nil
}

// logisticID prefers the event's logistic id and falls back to the session's
// business context.
func (o *Orchestrator) logisticID(ev Event, sess *session.Session) string {
	if ev.LogisticID != "" {
		return ev.LogisticID
	}
	if sess.Business != nil {
		return sess.Business.LogisticID
	}
	return ""
}

// contextInput merges event, session, and process data into the raw values
// BuildContext draws from. Bank details come from the event when present and
// from the cached business profile otherwise.
func (o *Orchestrator) contextInput(ev Event, sess *session.Session, proc *workflow.Process) reason.ContextInput {
	in := reason.ContextInput{
		Product:         ev.ProductName,
		Price:           proc.Price,
		CustomerID:      ev.CustomerID,
		BusinessID:      ev.BusinessID,
		LogisticID:      o.logisticID(ev, sess),
		CustomerAddress: ev.CustomerAddress,
		BankDetails:     ev.BankDetails,
	}
	if in.CustomerAddress == "" {
		in.CustomerAddress = proc.CustomerAddress
	}
	if in.BankDetails == "" && sess.Business != nil && sess.Business.BankAccount != "" {
		in.BankDetails = fmt.Sprintf("%s %s (%s)",
			sess.Business.BankName, sess.Business.BankAccount, sess.Business.BankAccountName)
	}
	return in
}

// Reset deletes the session for the pair. Used by stateless deployments that
// clear conversation state between runs.
func (o *Orchestrator) Reset(ctx context.Context, customerID, businessID string) error {
	key := session.Key(customerID, businessID)
	if err := o.sessions.Delete(ctx, key); err != nil {
		return &PersistenceError{
			Key: Key{CustomerID: customerID, BusinessID: businessID},
			Op:  "delete", Err: err,
		}
	}
	return nil
}
