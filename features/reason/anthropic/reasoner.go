// Package anthropic provides a reason.Reasoner backed by the Anthropic Claude
// Messages API. It renders the task prompt and workflow transcript into a
// Messages.New call using github.com/anthropics/anthropic-sdk-go and decodes
// the JSON decision from the response text.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type (
	// MessagesClient captures the subset of the Anthropic SDK client used by
	// the adapter. It is satisfied by *sdk.MessageService so callers can pass
	// either a real client or a mock in tests.
	MessagesClient interface {
		New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	}

	// Options configures the Anthropic reasoner.
	Options struct {
		// DefaultModel is the Claude model identifier. Use the typed model
		// constants from github.com/anthropics/anthropic-sdk-go.
		DefaultModel string
		// MaxTokens bounds the completion. Defaults to 1024.
		MaxTokens int64
	}

	// Reasoner implements reason.Reasoner on top of Claude Messages.
	Reasoner struct {
		msg       MessagesClient
		model     string
		maxTokens int64
	}
)

// New builds an Anthropic-backed reasoner from the provided Messages client
// and options.
func New(msg MessagesClient, opts Options) (*Reasoner, error) {
	if msg == nil {
		return nil, errors.New("anthropic client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model identifier is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Reasoner{msg: msg, model: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a reasoner using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Reasoner, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return New(&ac.Messages, Options{DefaultModel: defaultModel})
}

// Reason issues a Messages.New request for the task and decodes the decision
// from the concatenated text blocks of the response.
func (r *Reasoner) Reason(ctx context.Context, task workflow.TaskType, values map[string]string, transcript []workflow.Message) (reason.Decision, error) {
	system, err := reason.SystemPrompt(task, values)
	if err != nil {
		return reason.Decision{}, err
	}
	conversation := make([]sdk.MessageParam, 0, len(transcript))
	for _, m := range transcript {
		block := sdk.NewTextBlock(fmt.Sprintf("[%s] %s", m.Name, m.Content))
		if m.Role == "assistant" {
			conversation = append(conversation, sdk.NewAssistantMessage(block))
		} else {
			conversation = append(conversation, sdk.NewUserMessage(block))
		}
	}
	msg, err := r.msg.New(ctx, sdk.MessageNewParams{
		Model:     sdk.Model(r.model),
		MaxTokens: r.maxTokens,
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages:  conversation,
	})
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return reason.Decision{}, fmt.Errorf("%w: %w", reason.ErrRateLimited, err)
		}
		return reason.Decision{}, fmt.Errorf("anthropic messages.new: %w", err)
	}
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Text != "" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return reason.Decision{}, errors.New("anthropic response contained no text")
	}
	return reason.ParseDecision(text.String())
}
