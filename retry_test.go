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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig_DefaultRetryConfig(t *testing.T) {
	t.Parallel()

	config := DefaultRetryConfig()

	assert.NotNil(t, config)
	assert.Positive(t, config.MaxAttempts)
	assert.Greater(t, config.MaxBackoff, config.InitialBackoff)
	assert.Greater(t, config.BackoffMultiplier, 1.0)
	assert.LessOrEqual(t, config.Jitter, 1.0)
	assert.Greater(t, config.RetryTimeout, time.Duration(0))
}

func fastRetry(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       attempts,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
		RetryTimeout:      time.Second,
	}
}

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")

	tests := []struct {
		wantErr   error
		errs      []error
		name      string
		attempts  int
		wantCalls int
	}{
		{name: "first attempt succeeds", attempts: 3, errs: []error{nil}, wantCalls: 1},
		{
			name:      "retryable then success",
			attempts:  3,
			errs:      []error{ErrTransportTimeout, ErrTransportTimeout, nil},
			wantCalls: 3,
		},
		{
			name:      "attempts exhausted",
			attempts:  2,
			errs:      []error{ErrTransportTimeout, ErrChecksumMismatch},
			wantCalls: 2,
			wantErr:   ErrChecksumMismatch,
		},
		{
			name:      "non-retryable stops",
			attempts:  3,
			errs:      []error{permanent},
			wantCalls: 1,
			wantErr:   permanent,
		},
		{
			name:      "no retry configured",
			attempts:  0,
			errs:      []error{ErrTransportTimeout},
			wantCalls: 1,
			wantErr:   ErrTransportTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			calls := 0
			err := RetryWithConfig(context.Background(), fastRetry(tt.attempts), func(context.Context) error {
				e := tt.errs[min(calls, len(tt.errs)-1)]
				calls++
				return e
			})
			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestRetryWithConfig_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := RetryWithConfig(ctx, fastRetry(3), func(context.Context) error {
		calls++
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, calls)
}

func TestJittered(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 10*time.Millisecond, jittered(10*time.Millisecond, 0))
	for range 20 {
		d := jittered(10*time.Millisecond, 0.5)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 15*time.Millisecond)
	}
}

func TestRetryWithConfig_CustomPredicate(t *testing.T) {
	t.Parallel()

	permanent := errors.New("permanent")
	calls := 0
	err := RetryWithConfig(context.Background(), ConstantRetry(4, time.Millisecond), func(context.Context) error {
		calls++
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 4, calls)
}

func TestRetryConfig_Next(t *testing.T) {
	t.Parallel()

	tests := []struct {
		config RetryConfig
		name   string
		in     time.Duration
		want   time.Duration
	}{
		{name: "grows", config: RetryConfig{BackoffMultiplier: 2, MaxBackoff: time.Second}, in: 100 * time.Millisecond, want: 200 * time.Millisecond},
		{name: "capped", config: RetryConfig{BackoffMultiplier: 2, MaxBackoff: time.Second}, in: 800 * time.Millisecond, want: time.Second},
		{name: "constant", config: *ConstantRetry(3, 5*time.Millisecond), in: 5 * time.Millisecond, want: 5 * time.Millisecond},
		{name: "uncapped", config: RetryConfig{BackoffMultiplier: 3}, in: time.Second, want: 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.config.next(tt.in))
		})
	}
}
