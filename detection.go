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
	"fmt"
	"time"
)

// PollKind selects a polling method for WaitForCard.
type PollKind string

const (
	PollFeliCa PollKind = "F"
	PollTypeA  PollKind = "A"
	PollTypeB  PollKind = "B"
)

// WaitConfig controls WaitForCard.
type WaitConfig struct {
	// Kinds are tried in order on every round; empty means FeliCa only.
	Kinds []PollKind
	// SystemCode is used for FeliCa polling; zero means the wildcard.
	SystemCode uint16
	// Interval is the pause between rounds; zero means 100ms.
	Interval time.Duration
	// MaxErrors is how many consecutive non card-not-found errors are
	// tolerated; zero means 10.
	MaxErrors int
}

// WaitForCard polls until a card answers, ctx is done, or too many reader
// errors occur in a row. The returned identity is also held by the device
// for the block access methods that follow.
//
// Example usage:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
//	defer cancel()
//
//	id, err := device.WaitForCard(ctx, pn533.WaitConfig{SystemCode: pn533.SystemCodeFeliCaLite})
//	if errors.Is(err, context.DeadlineExceeded) {
//		fmt.Println("no card")
//	}
func (d *Device) WaitForCard(ctx context.Context, cfg WaitConfig) (CardIdentity, error) {
	if len(cfg.Kinds) == 0 {
		cfg.Kinds = []PollKind{PollFeliCa}
	}
	if cfg.SystemCode == 0 {
		cfg.SystemCode = SystemCodeWildcard
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	if cfg.MaxErrors <= 0 {
		cfg.MaxErrors = 10
	}

	errorCount := 0
	for {
		if err := ctx.Err(); err != nil {
			return CardIdentity{}, err
		}
		for _, kind := range cfg.Kinds {
			id, err := d.pollOnce(ctx, kind, cfg.SystemCode)
			if err == nil {
				Debugf("card detected: %s", id)
				return id, nil
			}
			if err := d.handleDetectionError(&errorCount, cfg.MaxErrors, err); err != nil {
				return CardIdentity{}, err
			}
		}
		if err := pause(ctx, cfg.Interval); err != nil {
			return CardIdentity{}, err
		}
	}
}

func (d *Device) pollOnce(ctx context.Context, kind PollKind, systemCode uint16) (CardIdentity, error) {
	switch kind {
	case PollFeliCa:
		return d.PollingFeliCa(ctx, systemCode)
	case PollTypeA:
		return d.PollingA(ctx)
	case PollTypeB:
		return d.PollingB(ctx)
	default:
		return CardIdentity{}, fmt.Errorf("%w: poll kind %q", ErrInvalidParameter, kind)
	}
}

// handleDetectionError counts consecutive reader errors. An empty field is
// not an error; fatal errors end the wait at once.
func (*Device) handleDetectionError(errorCount *int, maxErrors int, err error) error {
	const logThreshold = 3

	if errors.Is(err, ErrCardNotFound) {
		*errorCount = 0
		return nil
	}
	if IsFatal(err) || errors.Is(err, ErrInvalidParameter) {
		return err
	}

	*errorCount++
	if *errorCount <= logThreshold {
		Debugf("card detection error #%d: %v", *errorCount, err)
	}
	if *errorCount > maxErrors {
		return fmt.Errorf("too many detection errors (%d), last error: %w", *errorCount, err)
	}
	return nil
}

func pause(ctx context.Context, interval time.Duration) error {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
