package inmem

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sokoflow/sokoflow/runtime/funnel"
	"github.com/sokoflow/sokoflow/runtime/session"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

func TestLoadMissingReturnsNotFound(t *testing.T) {
	s := New()
	_, err := s.Load(context.Background(), "cust:biz")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := New()

	sess := session.New("cust-1", "biz-1")
	sess.Order = funnel.NewOrder()
	require.NoError(t, sess.Order.Apply(funnel.TriggerStartBrowsing))
	proc := sess.Processes.GetOrCreate(workflow.TaskLogisticPlanning, "shirt", "25", "log-1",
		workflow.NewMessage(workflow.RoleCustomer, "ship to Lagos"))
	proc.Append(workflow.NewMessage(workflow.RoleAgent, "checking with logistics"))
	sess.AppendChat(workflow.NewMessage(workflow.RoleCustomer, "hello"))

	require.NoError(t, s.Save(ctx, sess))

	got, err := s.Load(ctx, "cust-1:biz-1")
	require.NoError(t, err)
	assert.Equal(t, "cust-1", got.CustomerID)
	assert.Equal(t, funnel.Browsing, got.Order.State)
	assert.Len(t, got.ChatHistory, 1)
	restored, ok := got.Processes.Get(workflow.TaskLogisticPlanning, "shirt")
	require.True(t, ok)
	assert.Len(t, restored.Transcript, 2)
}

func TestLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess := session.New("cust-1", "biz-1")
	require.NoError(t, s.Save(ctx, sess))

	first, err := s.Load(ctx, "cust-1:biz-1")
	require.NoError(t, err)
	first.AppendChat(workflow.NewMessage(workflow.RoleCustomer, "mutation"))

	second, err := s.Load(ctx, "cust-1:biz-1")
	require.NoError(t, err)
	assert.Empty(t, second.ChatHistory, "mutating a loaded session must not leak into the store")
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	sess := session.New("cust-1", "biz-1")
	require.NoError(t, s.Save(ctx, sess))
	require.NoError(t, s.Delete(ctx, "cust-1:biz-1"))
	_, err := s.Load(ctx, "cust-1:biz-1")
	require.ErrorIs(t, err, session.ErrNotFound)

	// Deleting an absent key is a no-op.
	require.NoError(t, s.Delete(ctx, "cust-1:biz-1"))
}
