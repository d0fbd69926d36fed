package bedrock

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/require"

	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type mockRuntimeClient struct {
	output   *bedrockruntime.ConverseOutput
	err      error
	captured *bedrockruntime.ConverseInput
}

func (m *mockRuntimeClient) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	m.captured = params
	if m.err != nil {
		return nil, m.err
	}
	return m.output, nil
}

func textOutput(raw string) *bedrockruntime.ConverseOutput {
	return &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{
			Value: brtypes.Message{
				Role:    brtypes.ConversationRoleAssistant,
				Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: raw}},
			},
		},
	}
}

func contextValues(t *testing.T) map[string]string {
	t.Helper()
	values, err := reason.BuildContext(workflow.TaskPaymentVerification, reason.ContextInput{
		Product:     "shirt",
		Price:       "25",
		CustomerID:  "cust-1",
		BusinessID:  "biz-1",
		BankDetails: "Acme Bank 0123456789 (Soko Traders)",
	})
	require.NoError(t, err)
	return values
}

func TestReason(t *testing.T) {
	mock := &mockRuntimeClient{
		output: textOutput(`{"message":"please send proof of payment","sender":"agent","recipient":"customer","finished":false}`),
	}
	r, err := New(Options{Runtime: mock, DefaultModel: "anthropic.claude-3-sonnet"})
	require.NoError(t, err)

	transcript := []workflow.Message{
		{Role: "user", Name: "customer", Content: "I just paid"},
	}
	d, err := r.Reason(context.Background(), workflow.TaskPaymentVerification, contextValues(t), transcript)
	require.NoError(t, err)
	require.Equal(t, workflow.RoleCustomer, d.Recipient)

	req := mock.captured
	require.Equal(t, "anthropic.claude-3-sonnet", *req.ModelId)
	require.Len(t, req.System, 1)
	require.Len(t, req.Messages, 1)
	require.NotNil(t, req.InferenceConfig)
	require.Equal(t, int32(1024), *req.InferenceConfig.MaxTokens)
}

func TestReasonWrapsThrottling(t *testing.T) {
	mock := &mockRuntimeClient{err: &brtypes.ThrottlingException{}}
	r, err := New(Options{Runtime: mock, DefaultModel: "anthropic.claude-3-sonnet"})
	require.NoError(t, err)

	_, err = r.Reason(context.Background(), workflow.TaskPaymentVerification, contextValues(t), nil)
	require.ErrorIs(t, err, reason.ErrRateLimited)
}

func TestReasonRejectsEmptyOutput(t *testing.T) {
	mock := &mockRuntimeClient{output: &bedrockruntime.ConverseOutput{}}
	r, err := New(Options{Runtime: mock, DefaultModel: "anthropic.claude-3-sonnet"})
	require.NoError(t, err)

	_, err = r.Reason(context.Background(), workflow.TaskPaymentVerification, contextValues(t), nil)
	require.Error(t, err)
}

func TestEncodeTranscriptMergesConsecutiveRoles(t *testing.T) {
	messages := encodeTranscript([]workflow.Message{
		{Role: "user", Name: "customer", Content: "hello"},
		{Role: "user", Name: "vendor", Content: "in stock"},
		{Role: "assistant", Name: "agent", Content: "great"},
		{Role: "user", Name: "customer", Content: "ship it"},
	})
	require.Len(t, messages, 3)
	require.Equal(t, brtypes.ConversationRoleUser, messages[0].Role)
	require.Len(t, messages[0].Content, 2, "consecutive user turns share one message")
	require.Equal(t, brtypes.ConversationRoleAssistant, messages[1].Role)
	require.Equal(t, brtypes.ConversationRoleUser, messages[2].Role)
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{DefaultModel: "m"})
	require.Error(t, err)
	_, err = New(Options{Runtime: &mockRuntimeClient{}})
	require.Error(t, err)
}
