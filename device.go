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
	"time"

	"github.com/ZaparooProject/go-pn533/internal/syncutil"
)

// Device is a PN533-class reader together with the card session it holds.
//
// Thread Safety: every exported method takes the device lock, so a Device
// may be shared between goroutines. Multi-step operations (a poll followed
// by block reads) are not atomic as a whole; callers needing that hold
// their own lock around the sequence.
type Device struct {
	mu        syncutil.Mutex
	transport *Transport
	metrics   *Metrics
	identity  CardIdentity
	args      []byte
	nfcid3i   [NFCID3Size]byte
	nfcid3t   [NFCID3Size]byte
	ioTimeout time.Duration
	traceSize int
}

// New creates a device on pipe. A nil pipe starts the device detached;
// an attach event supplies the pipe later.
func New(pipe Pipe, opts ...Option) (*Device, error) {
	d := &Device{
		ioTimeout: DefaultIOTimeout,
		traceSize: DefaultTraceSize,
		args:      make([]byte, 0, 255),
	}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, fmt.Errorf("failed to apply device option: %w", err)
		}
	}
	d.transport = NewTransport(pipe, d.ioTimeout, d.traceSize, d.metrics)
	return d, nil
}

// Init runs the RF initialisation the reader needs before polling: no ATR
// or command timeouts, a single retry for every activation, the wait time
// used by the RC-S370, and finally the field switched off.
func (d *Device) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.init(ctx)
}

func (d *Device) init(ctx context.Context) error {
	steps := []struct {
		data []byte
		item byte
	}{
		{item: RFItemTimings, data: []byte{0x00, 0x00, 0x00}},
		{item: RFItemMaxRetries, data: []byte{0x00, 0x00, 0x00}},
		{item: RFItemWaitTime, data: []byte{0xB7}},
	}
	for _, step := range steps {
		if err := d.rfConfiguration(ctx, step.item, step.data); err != nil {
			return fmt.Errorf("RF init item 0x%02X: %w", step.item, err)
		}
	}
	return d.rfOff(ctx)
}

// Close switches the field off when possible and closes the pipe.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.transport.Attached() {
		if err := d.rfOff(context.Background()); err != nil {
			Debugf("RF off before close failed: %v", err)
		}
	}
	d.identity.reset()
	return d.transport.Close()
}

// Identity returns a copy of the card identity from the last poll.
func (d *Device) Identity() CardIdentity {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.identity
}

// Transmit sends a raw payload (TFI D4, command, data) and returns the raw
// response payload (TFI D5, command+1, data).
func (d *Device) Transmit(ctx context.Context, payload []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.Transmit(ctx, payload)
}

// Command sends cmd with args and returns the raw response payload.
func (d *Device) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transport.Command(ctx, cmd, args)
}

// buildArgs returns the device's scratch argument buffer reset to the given
// prefix. The result is only valid until the next buildArgs call.
func (d *Device) buildArgs(prefix ...byte) []byte {
	d.args = append(d.args[:0], prefix...)
	return d.args
}
