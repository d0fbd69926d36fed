// Package openai provides a reason.Reasoner backed by the OpenAI Chat
// Completions API. It renders the task prompt and workflow transcript into a
// completion request using github.com/openai/openai-go and decodes the JSON
// decision from the response.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

// ChatClient captures the subset of the openai-go client used by the adapter.
type ChatClient interface {
	New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Options configures the OpenAI reasoner.
type Options struct {
	Client       ChatClient
	DefaultModel string
	// MaxTokens bounds the completion. Defaults to 1024.
	MaxTokens int64
}

// Reasoner implements reason.Reasoner via the OpenAI Chat Completions API.
type Reasoner struct {
	chat      ChatClient
	model     string
	maxTokens int64
}

// New builds an OpenAI-backed reasoner from the provided options.
func New(opts Options) (*Reasoner, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.DefaultModel == "" {
		return nil, errors.New("default model is required")
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Reasoner{chat: opts.Client, model: opts.DefaultModel, maxTokens: maxTokens}, nil
}

// NewFromAPIKey constructs a reasoner using the default openai-go HTTP client.
func NewFromAPIKey(apiKey, defaultModel string) (*Reasoner, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return New(Options{Client: &client.Chat.Completions, DefaultModel: defaultModel})
}

// Reason renders the task prompt and transcript into a chat completion and
// decodes the decision from the first choice.
func (r *Reasoner) Reason(ctx context.Context, task workflow.TaskType, values map[string]string, transcript []workflow.Message) (reason.Decision, error) {
	system, err := reason.SystemPrompt(task, values)
	if err != nil {
		return reason.Decision{}, err
	}
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(transcript)+1)
	messages = append(messages, openai.SystemMessage(system))
	for _, m := range transcript {
		text := fmt.Sprintf("[%s] %s", m.Name, m.Content)
		if m.Role == "assistant" {
			messages = append(messages, openai.AssistantMessage(text))
		} else {
			messages = append(messages, openai.UserMessage(text))
		}
	}
	resp, err := r.chat.New(ctx, openai.ChatCompletionNewParams{
		Model:     r.model,
		Messages:  messages,
		MaxTokens: openai.Int(r.maxTokens),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
			return reason.Decision{}, fmt.Errorf("%w: %w", reason.ErrRateLimited, err)
		}
		return reason.Decision{}, fmt.Errorf("openai completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return reason.Decision{}, errors.New("openai completion returned no choices")
	}
	return reason.ParseDecision(resp.Choices[0].Message.Content)
}
