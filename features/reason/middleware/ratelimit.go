// Package middleware provides reusable reason.Reasoner middlewares such as
// adaptive rate limiting at the model provider boundary.
package middleware

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/time/rate"

	"github.com/sokoflow/sokoflow/runtime/reason"
	"github.com/sokoflow/sokoflow/runtime/workflow"
)

type (
	// AdaptiveRateLimiter applies an AIMD-style adaptive token bucket on top
	// of a reason.Reasoner. It estimates the token cost of each call, blocks
	// callers until capacity is available, and adjusts its effective
	// tokens-per-minute budget in response to rate limiting signals from the
	// provider.
	//
	// The limiter is process-local. Construct a single instance per process
	// and wrap the provider reasoner with Middleware before handing it to the
	// orchestrator.
	AdaptiveRateLimiter struct {
		mu sync.Mutex

		limiter *rate.Limiter

		currentTPM   float64
		minTPM       float64
		maxTPM       float64
		recoveryRate float64
	}

	limitedReasoner struct {
		next    reason.Reasoner
		limiter *AdaptiveRateLimiter
	}
)

// NewAdaptiveRateLimiter constructs an AdaptiveRateLimiter configured with an
// initial tokens-per-minute budget and an upper bound. When maxTPM is zero or
// less than initialTPM, it is clamped to initialTPM.
func NewAdaptiveRateLimiter(initialTPM, maxTPM float64) *AdaptiveRateLimiter {
	if initialTPM <= 0 {
		initialTPM = 60000
	}
	if maxTPM <= 0 || maxTPM < initialTPM {
		maxTPM = initialTPM
	}
	minTPM := initialTPM * 0.1
	if minTPM < 1 {
		minTPM = 1
	}
	recoveryRate := initialTPM * 0.05
	if recoveryRate < 1 {
		recoveryRate = 1
	}
	return &AdaptiveRateLimiter{
		limiter:      rate.NewLimiter(rate.Limit(initialTPM/60.0), int(initialTPM)),
		currentTPM:   initialTPM,
		minTPM:       minTPM,
		maxTPM:       maxTPM,
		recoveryRate: recoveryRate,
	}
}

// Middleware returns a reason.Reasoner middleware enforcing the adaptive
// tokens-per-minute limit.
func (l *AdaptiveRateLimiter) Middleware() func(reason.Reasoner) reason.Reasoner {
	return func(next reason.Reasoner) reason.Reasoner {
		if next == nil {
			return nil
		}
		return &limitedReasoner{next: next, limiter: l}
	}
}

// Reason enforces the limiter before delegating to the underlying reasoner.
func (r *limitedReasoner) Reason(ctx context.Context, task workflow.TaskType, values map[string]string, transcript []workflow.Message) (reason.Decision, error) {
	if err := r.limiter.limiter.WaitN(ctx, estimateTokens(values, transcript)); err != nil {
		return reason.Decision{}, err
	}
	d, err := r.next.Reason(ctx, task, values, transcript)
	r.limiter.observe(err)
	return d, err
}

func (l *AdaptiveRateLimiter) observe(err error) {
	if err == nil {
		l.probe()
		return
	}
	if errors.Is(err, reason.ErrRateLimited) {
		l.backoff()
	}
}

// backoff halves the effective budget, floored at minTPM.
func (l *AdaptiveRateLimiter) backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM * 0.5
	if newTPM < l.minTPM {
		newTPM = l.minTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// probe additively restores budget after each success, capped at maxTPM.
func (l *AdaptiveRateLimiter) probe() {
	l.mu.Lock()
	defer l.mu.Unlock()
	newTPM := l.currentTPM + l.recoveryRate
	if newTPM > l.maxTPM {
		newTPM = l.maxTPM
	}
	if newTPM == l.currentTPM {
		return
	}
	l.currentTPM = newTPM
	l.limiter.SetLimit(rate.Limit(newTPM / 60.0))
	l.limiter.SetBurst(int(newTPM))
}

// estimateTokens computes a cheap heuristic for the token cost of a reasoning
// call: characters in the transcript and context values at roughly one token
// per three characters, plus a fixed buffer for the system prompt.
func estimateTokens(values map[string]string, transcript []workflow.Message) int {
	charCount := 0
	for _, m := range transcript {
		charCount += len(m.Content)
	}
	for _, v := range values {
		charCount += len(v)
	}
	tokens := charCount / 3
	if tokens < 1 {
		tokens = 1
	}
	return tokens + 500
}
