// Package bedrock provides a reason.Reasoner backed by the AWS Bedrock
// Converse API. It renders the task prompt and workflow transcript into a
// Converse call and decodes the JSON decision from the response text blocks.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client required
// by the adapter. It matches *bedrockruntime.Client so callers can pass either
// the real client or a mock in tests.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
}

// Options configures the Bedrock reasoner.
type Options struct {
	// Runtime provides access to the Bedrock runtime. Required.
	Runtime RuntimeClient
	// DefaultModel is the model identifier. Required.
	DefaultModel string
	// MaxTokens bounds the completion. Defaults to 1024.
	MaxTokens int32
}

// Reasoner implements reason.Reasoner on top of AWS Bedrock Converse.
type Reasoner struct {
	runtime   RuntimeClient
	model     string
	maxTokens int32
}

// New builds a Bedrock-backed reasoner from the provided options.
func New(opts Options) (*Reasoner, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock runtime client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Reasoner{runtime: opts.Runtime, model: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// Reason issues a Converse request for the task and decodes the decision from
// the response's text blocks.
func (r *Reasoner) Reason(ctx context.Context, task workflow.TaskType, values map[string]string, transcript []workflow.Message) (reason.Decision, error) {
	system, err := reason.SystemPrompt(task, values)
	if err != nil {
		return reason.Decision{}, err
	}
	messages := encodeTranscript(transcript)
	output, err := r.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:  aws.String(r.model),
		System:   []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: system}},
		Messages: messages,
		InferenceConfig: &brtypes.InferenceConfiguration{
			MaxTokens: aws.Int32(r.maxTokens),
		},
	})
	if err != nil {
		var throttled *brtypes.ThrottlingException
		if errors.As(err, &throttled) {
			return reason.Decision{}, fmt.Errorf("%w: %w", reason.ErrRateLimited, err)
		}
		return reason.Decision{}, fmt.Errorf("bedrock converse: %w", err)
	}
	msg, ok := output.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok {
		return reason.Decision{}, errors.New("bedrock response carried no message")
	}
	var text strings.Builder
	for _, block := range msg.Value.Content {
		if v, ok := block.(*brtypes.ContentBlockMemberText); ok && v.Value != "" {
			text.WriteString(v.Value)
		}
	}
	if text.Len() == 0 {
		return reason.Decision{}, errors.New("bedrock response contained no text")
	}
	return reason.ParseDecision(text.String())
}

// encodeTranscript maps the workflow transcript onto Converse messages,
// merging consecutive turns of the same role since Bedrock requires strict
// user/assistant alternation.
func encodeTranscript(transcript []workflow.Message) []brtypes.Message {
	var messages []brtypes.Message
	for _, m := range transcript {
		role := brtypes.ConversationRoleUser
		if m.Role == "assistant" {
			role = brtypes.ConversationRoleAssistant
		}
		block := &brtypes.ContentBlockMemberText{Value: fmt.Sprintf("[%s] %s", m.Name, m.Content)}
		if n := len(messages); n > 0 && messages[n-1].Role == role {
			messages[n-1].Content = append(messages[n-1].Content, block)
			continue
		}
		messages = append(messages, brtypes.Message{
			Role:    role,
			Content: []brtypes.ContentBlock{block},
		})
	}
	return messages
}
