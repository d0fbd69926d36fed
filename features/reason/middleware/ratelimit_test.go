package middleware

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type stubReasoner struct {
	err   error
	calls int
}

func (s *stubReasoner) Reason(context.Context, workflow.TaskType, map[string]string, []workflow.Message) (reason.Decision, error) {
	s.calls++
	if s.err != nil {
		return reason.Decision{}, s.err
	}
	return reason.Decision{Message: "ok", Sender: workflow.RoleAgent, Recipient: workflow.RoleCustomer}, nil
}

func (l *AdaptiveRateLimiter) tpm() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentTPM
}

func TestLimiterBacksOffOnRateLimit(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 60000)
	stub := &stubReasoner{err: fmt.Errorf("provider: %w", reason.ErrRateLimited)}
	r := l.Middleware()(stub)

	_, err := r.Reason(context.Background(), workflow.TaskCustomerFeedback, nil, nil)
	require.ErrorIs(t, err, reason.ErrRateLimited)
	require.Equal(t, float64(30000), l.tpm(), "budget halves after a 429")

	_, _ = r.Reason(context.Background(), workflow.TaskCustomerFeedback, nil, nil)
	require.Equal(t, float64(15000), l.tpm())
}

func TestLimiterFloorsAtMinimum(t *testing.T) {
	l := NewAdaptiveRateLimiter(100, 100)
	for i := 0; i < 20; i++ {
		l.backoff()
	}
	require.Equal(t, float64(10), l.tpm(), "budget never drops below 10% of initial")
}

func TestLimiterRecoversOnSuccess(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 60000)
	l.backoff()
	require.Equal(t, float64(30000), l.tpm())

	stub := &stubReasoner{}
	r := l.Middleware()(stub)
	_, err := r.Reason(context.Background(), workflow.TaskCustomerFeedback, nil, nil)
	require.NoError(t, err)
	require.Equal(t, float64(33000), l.tpm(), "success restores 5% of initial budget")
}

func TestLimiterCapsAtMaximum(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 60000)
	for i := 0; i < 5; i++ {
		l.probe()
	}
	require.Equal(t, float64(60000), l.tpm())
}

func TestLimiterIgnoresOtherErrors(t *testing.T) {
	l := NewAdaptiveRateLimiter(60000, 60000)
	stub := &stubReasoner{err: errors.New("boom")}
	r := l.Middleware()(stub)

	_, err := r.Reason(context.Background(), workflow.TaskCustomerFeedback, nil, nil)
	require.Error(t, err)
	require.Equal(t, float64(60000), l.tpm(), "non-429 failures leave the budget alone")
}

func TestLimiterHonorsContext(t *testing.T) {
	// A tiny budget forces WaitN to block; the call must abort with the
	// context error instead of reaching the provider.
	l := NewAdaptiveRateLimiter(1, 1)
	stub := &stubReasoner{}
	r := l.Middleware()(stub)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.Reason(ctx, workflow.TaskCustomerFeedback, nil, nil)
	require.Error(t, err)
	require.Zero(t, stub.calls)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 501, estimateTokens(nil, nil))
	got := estimateTokens(
		map[string]string{"product": "shirt"},
		[]workflow.Message{{Content: "hello there"}},
	)
	require.Equal(t, (len("shirt")+len("hello there"))/3+500, got)
}
