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
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
)

// SleepRecoveryConfig configures automatic recovery after host sleep/wake
type SleepRecoveryConfig struct {
	// Enabled enables sleep detection and recovery attempts
	Enabled bool

	// TimeDiscontinuityThreshold is the minimum elapsed time beyond the expected
	// poll interval that indicates a sleep occurred. Default: 2 seconds
	TimeDiscontinuityThreshold time.Duration

	// MaxRecoveryAttempts is the number of recovery attempts before
	// treating as a fatal error. Default: 3
	MaxRecoveryAttempts int

	// RecoveryBackoff is the delay between recovery attempts
	RecoveryBackoff time.Duration
}

// DefaultSleepRecoveryConfig returns sensible defaults for sleep recovery
func DefaultSleepRecoveryConfig() SleepRecoveryConfig {
	return SleepRecoveryConfig{
		Enabled:                    true,
		TimeDiscontinuityThreshold: 2 * time.Second,
		MaxRecoveryAttempts:        3,
		RecoveryBackoff:            500 * time.Millisecond,
	}
}

// DetectSleep reports whether elapsed exceeds pollInterval by more than
// the discontinuity threshold.
func (cfg SleepRecoveryConfig) DetectSleep(elapsed, pollInterval time.Duration) bool {
	if !cfg.Enabled {
		return false
	}
	return elapsed > pollInterval+cfg.TimeDiscontinuityThreshold
}

// Config holds monitor options.
type Config struct {
	// Kinds are polled in order each cycle; empty means FeliCa only.
	Kinds []pn533.PollKind
	// SystemCode filters FeliCa polls; zero means the wildcard.
	SystemCode uint16

	PollInterval time.Duration
	// IdleInterval is used once no card has been seen for IdleAfter.
	// Zero disables the slowdown.
	IdleInterval time.Duration
	IdleAfter    time.Duration

	// CardRemovalTimeout is how long a card may miss polls before it is
	// reported removed.
	CardRemovalTimeout time.Duration

	// MaxErrors is how many consecutive reader errors stop the monitor.
	MaxErrors int

	SleepRecovery SleepRecoveryConfig
}

// DefaultConfig returns the default monitor configuration
func DefaultConfig() *Config {
	return &Config{
		Kinds:              []pn533.PollKind{pn533.PollFeliCa},
		SystemCode:         pn533.SystemCodeWildcard,
		PollInterval:       250 * time.Millisecond,
		IdleInterval:       500 * time.Millisecond,
		IdleAfter:          5 * time.Second,
		CardRemovalTimeout: 600 * time.Millisecond,
		MaxErrors:          10,
		SleepRecovery:      DefaultSleepRecoveryConfig(),
	}
}

func (cfg *Config) withDefaults() *Config {
	out := *cfg
	def := DefaultConfig()
	if len(out.Kinds) == 0 {
		out.Kinds = def.Kinds
	}
	if out.SystemCode == 0 {
		out.SystemCode = def.SystemCode
	}
	if out.PollInterval <= 0 {
		out.PollInterval = def.PollInterval
	}
	if out.CardRemovalTimeout <= 0 {
		out.CardRemovalTimeout = def.CardRemovalTimeout
	}
	if out.MaxErrors <= 0 {
		out.MaxErrors = def.MaxErrors
	}
	return &out
}
