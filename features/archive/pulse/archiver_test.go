package pulse

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	streamopts "goa.design/pulse/streaming/options"

	pulseclient "github.com/sokoflow/sokoflow/features/archive/pulse/clients/pulse"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type fakeStream struct {
	events   []string
	payloads [][]byte
	addErr   error
}

func (s *fakeStream) Add(_ context.Context, event string, payload []byte) (string, error) {
	if s.addErr != nil {
		return "", s.addErr
	}
	s.events = append(s.events, event)
	s.payloads = append(s.payloads, payload)
	return "1-0", nil
}

func (s *fakeStream) Destroy(context.Context) error { return nil }

type fakeClient struct {
	streams   map[string]*fakeStream
	streamErr error
	closed    bool
}

func (c *fakeClient) Stream(name string, _ ...streamopts.Stream) (pulseclient.Stream, error) {
	if c.streamErr != nil {
		return nil, c.streamErr
	}
	if c.streams == nil {
		c.streams = make(map[string]*fakeStream)
	}
	if _, ok := c.streams[name]; !ok {
		c.streams[name] = &fakeStream{}
	}
	return c.streams[name], nil
}

func (c *fakeClient) Close(context.Context) error {
	c.closed = true
	return nil
}

func finishedProcess() *workflow.Process {
	return &workflow.Process{
		TaskType:    workflow.TaskLogisticPlanning,
		ProductName: "shirt",
		Transcript: []workflow.Message{
			{Role: "user", Name: "customer", Content: "ship my order"},
			{Role: "assistant", Name: "agent", Content: "pickup scheduled"},
		},
	}
}

func TestArchiveProcess(t *testing.T) {
	fc := &fakeClient{}
	a, err := New(Options{Client: fc})
	require.NoError(t, err)

	require.NoError(t, a.ArchiveProcess(context.Background(), "cust-1:biz-1", finishedProcess()))

	stream, ok := fc.streams["transcripts/biz-1"]
	require.True(t, ok, "stream name derives from the business half of the key")
	require.Len(t, stream.events, 1)
	assert.Equal(t, string(workflow.TaskLogisticPlanning), stream.events[0])

	var rec struct {
		SessionKey  string             `json:"session_key"`
		TaskType    workflow.TaskType  `json:"task_type"`
		ProductName string             `json:"product_name"`
		Transcript  []workflow.Message `json:"communication_history"`
	}
	require.NoError(t, json.Unmarshal(stream.payloads[0], &rec))
	assert.Equal(t, "cust-1:biz-1", rec.SessionKey)
	assert.Equal(t, workflow.TaskLogisticPlanning, rec.TaskType)
	assert.Equal(t, "shirt", rec.ProductName)
	require.Len(t, rec.Transcript, 2)
	assert.Equal(t, "pickup scheduled", rec.Transcript[1].Content)
}

func TestArchiveProcessCustomStreamID(t *testing.T) {
	fc := &fakeClient{}
	a, err := New(Options{
		Client:   fc,
		StreamID: func(string) (string, error) { return "audit", nil },
	})
	require.NoError(t, err)

	require.NoError(t, a.ArchiveProcess(context.Background(), "cust-1:biz-1", finishedProcess()))
	_, ok := fc.streams["audit"]
	assert.True(t, ok)
}

func TestArchiveProcessErrors(t *testing.T) {
	a, err := New(Options{Client: &fakeClient{}})
	require.NoError(t, err)

	require.Error(t, a.ArchiveProcess(context.Background(), "cust-1:biz-1", nil))
	require.Error(t, a.ArchiveProcess(context.Background(), "no-business-half", finishedProcess()))

	failing, err := New(Options{Client: &fakeClient{streamErr: errors.New("redis down")}})
	require.NoError(t, err)
	require.Error(t, failing.ArchiveProcess(context.Background(), "cust-1:biz-1", finishedProcess()))
}

func TestArchiverRequiresClient(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
}

func TestClose(t *testing.T) {
	fc := &fakeClient{}
	a, err := New(Options{Client: fc})
	require.NoError(t, err)
	require.NoError(t, a.Close(context.Background()))
	assert.True(t, fc.closed)
}
