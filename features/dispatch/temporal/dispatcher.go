// Package temporal runs background workflow events on a Temporal task queue.
// It is the durable alternative to the in-process dispatch queue: each
// enqueued event becomes a Temporal workflow execution whose single activity
// invokes the orchestrator, so events survive process restarts and inherit
// Temporal's retry policy.
package temporal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"github.com/sokoflow/sokoflow/runtime/orchestrator"
)

const (
	// DefaultTaskQueue is the task queue used when none is configured.
	DefaultTaskQueue = "commerce-workflows"

	workflowName = "HandleEventWorkflow"
	activityName = "HandleEventActivity"
)

type (
	// Options configures the dispatcher.
	Options struct {
		// Client is the connected Temporal client. Required.
		Client client.Client
		// TaskQueue defaults to DefaultTaskQueue.
		TaskQueue string
	}

	// Dispatcher starts one Temporal workflow per background event.
	Dispatcher struct {
		client    client.Client
		taskQueue string
	}

	// Activities holds the worker-side activity implementations.
	Activities struct {
		Handler interface {
			Handle(ctx context.Context, ev orchestrator.Event) (*orchestrator.Outbound, error)
		}
	}
)

// New constructs a Temporal dispatcher.
func New(opts Options) (*Dispatcher, error) {
	if opts.Client == nil {
		return nil, errors.New("temporal client is required")
	}
	taskQueue := opts.TaskQueue
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	return &Dispatcher{client: opts.Client, taskQueue: taskQueue}, nil
}

// Enqueue starts a workflow execution for the event. The workflow ID encodes
// the workflow key and message so redelivery of the same event deduplicates
// at the Temporal level.
func (d *Dispatcher) Enqueue(ctx context.Context, ev orchestrator.Event) error {
	opts := client.StartWorkflowOptions{
		ID:                  fmt.Sprintf("event/%s/%d", ev.Key(), time.Now().UnixNano()),
		TaskQueue:           d.taskQueue,
		WorkflowTaskTimeout: time.Minute,
		WorkflowRunTimeout:  10 * time.Minute,
	}
	_, err := d.client.ExecuteWorkflow(ctx, opts, workflowName, ev)
	if err != nil {
		return fmt.Errorf("start event workflow: %w", err)
	}
	return nil
}

// NewWorker builds a Temporal worker with the event workflow and activity
// registered. The caller runs it with worker.Run.
func NewWorker(c client.Client, taskQueue string, acts *Activities) worker.Worker {
	if taskQueue == "" {
		taskQueue = DefaultTaskQueue
	}
	w := worker.New(c, taskQueue, worker.Options{})
	w.RegisterWorkflowWithOptions(HandleEventWorkflow, workflow.RegisterOptions{Name: workflowName})
	w.RegisterActivityWithOptions(acts.HandleEvent, activity.RegisterOptions{Name: activityName})
	return w
}

// HandleEventWorkflow is the single-activity workflow wrapping one event.
// Retries are bounded; validation failures are terminal since replaying an
// invalid event can never succeed.
func HandleEventWorkflow(ctx workflow.Context, ev orchestrator.Event) error {
	opts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumAttempts:        4,
			NonRetryableErrorTypes: []string{"ValidationError", "RoutingError"},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, opts)
	return workflow.ExecuteActivity(ctx, activityName, ev).Get(ctx, nil)
}

// HandleEvent is the activity body: it delegates to the orchestrator and
// classifies errors so Temporal's retry policy can distinguish terminal
// failures from transient ones.
func (a *Activities) HandleEvent(ctx context.Context, ev orchestrator.Event) error {
	_, err := a.Handler.Handle(ctx, ev)
	if err == nil {
		return nil
	}
	var ve *orchestrator.ValidationError
	if errors.As(err, &ve) {
		return temporal.NewNonRetryableApplicationError(ve.Error(), "ValidationError", err)
	}
	var re *orchestrator.RoutingError
	if errors.As(err, &re) {
		// State is persisted; only delivery was skipped. Retrying replays the
		// reasoning step for nothing.
		return temporal.NewNonRetryableApplicationError(re.Error(), "RoutingError", err)
	}
	return err
}
