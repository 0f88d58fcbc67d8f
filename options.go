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
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Option is a functional option for configuring a Device
type Option func(*Device) error

// WithIOTimeout sets the timeout applied to every pipe read and write.
func WithIOTimeout(timeout time.Duration) Option {
	return func(d *Device) error {
		if timeout <= 0 {
			return fmt.Errorf("%w: io timeout must be positive, got %v", ErrInvalidParameter, timeout)
		}
		d.ioTimeout = timeout
		return nil
	}
}

// WithLogger routes debug output to l and enables it. Debug logging is
// package-wide: this calls SetLogger and SetDebugEnabled, so the last
// Device built with WithLogger decides the logger of every Device in the
// process, including ones created earlier.
func WithLogger(l *zap.Logger) Option {
	return func(_ *Device) error {
		SetLogger(l)
		SetDebugEnabled(l != nil)
		return nil
	}
}

// WithMetrics makes the device report to m.
func WithMetrics(m *Metrics) Option {
	return func(d *Device) error {
		d.metrics = m
		return nil
	}
}

// WithTraceSize sets how many wire entries are attached to a failed
// exchange's TraceableError.
func WithTraceSize(entries int) Option {
	return func(d *Device) error {
		if entries <= 0 {
			return fmt.Errorf("%w: trace size must be positive, got %d", ErrInvalidParameter, entries)
		}
		d.traceSize = entries
		return nil
	}
}
