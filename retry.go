// Copyright 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package pn533

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"
)

// RetryConfig configures RetryWithConfig. The library never resends a
// command on its own; callers wrap whole operations, such as re-opening a
// reader after a hot-plug, when they want that.
type RetryConfig struct {
	// Retryable decides whether an error is worth another attempt.
	// IsRetryable is used when nil.
	Retryable func(error) bool
	// MaxAttempts counts the first try; 0 or 1 means no retry.
	MaxAttempts int
	// InitialBackoff is the pause after the first failure
	InitialBackoff time.Duration
	// MaxBackoff caps the pause
	MaxBackoff time.Duration
	// BackoffMultiplier grows the pause after every failure. Values below
	// 1 keep it constant.
	BackoffMultiplier float64
	// Jitter adds up to this fraction of the pause at random
	Jitter float64
	// RetryTimeout bounds all attempts together; 0 means unbounded.
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    50 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// ConstantRetry retries every error attempts times with a fixed pause.
func ConstantRetry(attempts int, backoff time.Duration) *RetryConfig {
	return &RetryConfig{
		Retryable:      func(error) bool { return true },
		MaxAttempts:    attempts,
		InitialBackoff: backoff,
		MaxBackoff:     backoff,
	}
}

func (c *RetryConfig) next(d time.Duration) time.Duration {
	if c.BackoffMultiplier > 1 {
		d = time.Duration(float64(d) * c.BackoffMultiplier)
	}
	if c.MaxBackoff > 0 && d > c.MaxBackoff {
		d = c.MaxBackoff
	}
	return d
}

// RetryWithConfig calls fn until it succeeds, fails with an error the
// config does not consider retryable, or runs out of attempts or time. The
// last error from fn wins over a context error once fn has run at least
// once.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn func(context.Context) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	retryable := config.Retryable
	if retryable == nil {
		retryable = IsRetryable
	}
	if config.RetryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.RetryTimeout)
		defer cancel()
	}

	attempts := max(config.MaxAttempts, 1)
	backoff := config.InitialBackoff
	var lastErr error
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return lastErr
			}
			return fmt.Errorf("retry cancelled: %w", err)
		}

		lastErr = fn(ctx)
		if lastErr == nil || !retryable(lastErr) || attempt >= attempts {
			return lastErr
		}
		Debugf("attempt %d/%d failed: %v", attempt, attempts, lastErr)

		if pause(ctx, jittered(backoff, config.Jitter)) != nil {
			return lastErr
		}
		backoff = config.next(backoff)
	}
}

func jittered(d time.Duration, factor float64) time.Duration {
	if factor <= 0 || d <= 0 {
		return d
	}
	return d + time.Duration(rand.Float64()*factor*float64(d)) //nolint:gosec // jitter, not crypto
}
