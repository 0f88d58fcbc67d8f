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
package polling

import (
	"context"
	"fmt"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/ZaparooProject/go-pn533/internal/syncutil"
)

// DeviceRecoverer brings a reader back after a host wake-up or a run of
// failed polls.
type DeviceRecoverer interface {
	AttemptRecovery(ctx context.Context) error
}

// ReopenFunc opens a fresh pipe to the reader, for example after the USB
// device re-enumerated.
type ReopenFunc func() (pn533.Pipe, error)

// DefaultRecoverer re-initialises the reader over its current pipe and,
// when that fails and a ReopenFunc is set, attaches a newly opened pipe.
// Each attempt runs both steps; attempts are spaced by a fixed backoff.
type DefaultRecoverer struct {
	device *pn533.Device
	reopen ReopenFunc
	retry  *pn533.RetryConfig
	mu     syncutil.Mutex
}

// NewDefaultRecoverer returns a recoverer for device. Non-positive values
// fall back to 3 attempts and a 500ms backoff.
func NewDefaultRecoverer(
	device *pn533.Device,
	reopen ReopenFunc,
	backoff time.Duration,
	maxAttempts int,
) *DefaultRecoverer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &DefaultRecoverer{
		device: device,
		reopen: reopen,
		retry:  pn533.ConstantRetry(maxAttempts, backoff),
	}
}

// AttemptRecovery keeps the same Device value; a reopened pipe replaces
// the old one through an attach event.
func (r *DefaultRecoverer) AttemptRecovery(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	err := pn533.RetryWithConfig(ctx, r.retry, r.recoverOnce)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

func (r *DefaultRecoverer) recoverOnce(ctx context.Context) error {
	initErr := r.device.Init(ctx)
	if initErr == nil || r.reopen == nil {
		return initErr
	}

	pipe, err := r.reopen()
	if err != nil {
		return fmt.Errorf("reopen reader: %w", err)
	}
	// the device owns the pipe from here on, even when its init fails
	return r.device.HandleEvent(ctx, pn533.DeviceEvent{Kind: pn533.EventAttach, Pipe: pipe})
}
