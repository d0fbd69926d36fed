// Package pulse implements the orchestrator's Archiver on goa.design/pulse
// streams. Completed workflow transcripts are appended to a per-business
// Redis stream before they are removed from the live session, preserving them
// for audit and dispute resolution.
package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sokoflow/sokoflow/features/archive/pulse/clients/pulse"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type (
	// Options configures the archiver.
	Options struct {
		// Client is the Pulse client used to publish records. Required.
		Client pulse.Client
		// StreamID derives the target stream from the session key. Defaults
		// to `transcripts/<business id>`.
		StreamID func(sessionKey string) (string, error)
	}

	// Archiver publishes completed workflow transcripts into Pulse streams.
	// Safe for concurrent use.
	Archiver struct {
		client   pulse.Client
		streamID func(sessionKey string) (string, error)
	}

	// record is the serialized archive entry.
	record struct {
		SessionKey  string             `json:"session_key"`
		TaskType    workflow.TaskType  `json:"task_type"`
		ProductName string             `json:"product_name"`
		Transcript  []workflow.Message `json:"communication_history"`
		ArchivedAt  time.Time          `json:"archived_at"`
	}
)

// New constructs a Pulse-backed archiver. The Client field in opts is
// required; StreamID defaults to the built-in per-business derivation.
func New(opts Options) (*Archiver, error) {
	if opts.Client == nil {
		return nil, errors.New("pulse client is required")
	}
	streamID := opts.StreamID
	if streamID == nil {
		streamID = defaultStreamID
	}
	return &Archiver{client: opts.Client, streamID: streamID}, nil
}

// ArchiveProcess publishes the completed process transcript to the derived
// stream.
func (a *Archiver) ArchiveProcess(ctx context.Context, sessionKey string, proc *workflow.Process) error {
	if proc == nil {
		return errors.New("process is required")
	}
	streamID, err := a.streamID(sessionKey)
	if err != nil {
		return err
	}
	handle, err := a.client.Stream(streamID)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(record{
		SessionKey:  sessionKey,
		TaskType:    proc.TaskType,
		ProductName: proc.ProductName,
		Transcript:  proc.Transcript,
		ArchivedAt:  time.Now().UTC(),
	})
	if err != nil {
		return err
	}
	if _, err := handle.Add(ctx, string(proc.TaskType), payload); err != nil {
		return err
	}
	return nil
}

// Close releases resources owned by the archiver.
func (a *Archiver) Close(ctx context.Context) error {
	return a.client.Close(ctx)
}

// defaultStreamID derives the stream name from the business half of the
// session key.
func defaultStreamID(sessionKey string) (string, error) {
	_, business, ok := strings.Cut(sessionKey, ":")
	if !ok || business == "" {
		return "", fmt.Errorf("malformed session key %q", sessionKey)
	}
	return "transcripts/" + business, nil
}
