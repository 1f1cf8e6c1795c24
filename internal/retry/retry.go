// Copyright (C) 2025 sage-x-project
//
// SPDX-License-Identifier: LGPL-3.0-or-later

// Package retry applies an exponential-backoff-with-jitter retry
// policy to a bounded, explicitly retryable set of errors.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/dawn-project/dawnnode/config"
	"github.com/dawn-project/dawnnode/internal/breaker"
	"github.com/dawn-project/dawnnode/internal/dawnerr"
)

const jitterFraction = 0.25

// ErrExhausted wraps the last cause once max_attempts is reached.
type ErrExhausted struct {
	Attempts int
	Cause    error
}

func (e *ErrExhausted) Error() string {
	return fmt.Sprintf("retry: exhausted after %d attempts: %v", e.Attempts, e.Cause)
}

func (e *ErrExhausted) Unwrap() error { return e.Cause }

// Policy runs an operation with exponential backoff and jitter,
// retrying only errors shouldRetry accepts.
type Policy struct {
	cfg config.RetryConfig
}

// New constructs a Policy from its configuration.
func New(cfg config.RetryConfig) *Policy {
	return &Policy{cfg: cfg}
}

// Do runs fn, retrying on a shouldRetry-accepted error up to
// max_attempts times with exponential backoff. It never retries
// breaker.ErrCircuitOpen or a dawnerr whose Retryable() is false
// (signature failures, rate-limit refusals, authorization refusals).
func (p *Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	var lastErr error
	delay := p.cfg.InitialDelay

	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == p.cfg.MaxAttempts {
			break
		}

		wait := jitter(delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		delay = time.Duration(float64(delay) * p.cfg.ExponentialBase)
		if delay > p.cfg.MaxDelay {
			delay = p.cfg.MaxDelay
		}
	}

	if shouldRetry(lastErr) {
		return &ErrExhausted{Attempts: p.cfg.MaxAttempts, Cause: lastErr}
	}
	return lastErr
}

// shouldRetry limits retries to connection refusal, timeout, and
// generic socket errors — never a circuit-open, signature, rate-limit,
// or authorization failure.
func shouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return false
	}
	var dErr *dawnerr.Error
	if errors.As(err, &dErr) {
		return dawnerr.Retryable(dErr.Code)
	}
	// an error with no dawnerr classification is assumed to be a bare
	// transport-layer failure (dial refused, i/o timeout) and is
	// retryable by default.
	return true
}

func jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	delta := float64(d) * jitterFraction
	offset := (rand.Float64()*2 - 1) * delta
	jittered := time.Duration(float64(d) + offset)
	if jittered < 0 {
		return 0
	}
	return jittered
}
