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
	"testing"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/stretchr/testify/assert"
)

func feliCaIdentity(idm [8]byte) pn533.CardIdentity {
	id := pn533.CardIdentity{Type: pn533.IDNFCID2, Length: pn533.NFCID2Size}
	copy(id.ID[:], idm[:])
	return id
}

func TestCardState_Transitions(t *testing.T) {
	t.Parallel()

	var cs CardState
	now := time.Now()

	assert.False(t, cs.TransitionToDetected(feliCaIdentity(idmA), now), "first card is not a change")
	assert.True(t, cs.Present)
	assert.Equal(t, StateTagDetected, cs.DetectionState)
	assert.Equal(t, "NFCID2:012e4cf39a102235", cs.LastID)

	assert.False(t, cs.TransitionToDetected(feliCaIdentity(idmA), now.Add(time.Millisecond)))
	assert.True(t, cs.TransitionToDetected(feliCaIdentity(idmB), now.Add(2*time.Millisecond)))

	assert.False(t, cs.Expired(now.Add(10*time.Millisecond), 100*time.Millisecond))
	assert.True(t, cs.Expired(now.Add(time.Second), 100*time.Millisecond))

	cs.TransitionToIdle()
	assert.Equal(t, CardState{}, cs)
	assert.False(t, cs.Expired(now.Add(time.Hour), time.Millisecond), "idle never expires")
}

func TestCardDetectionState_String(t *testing.T) {
	t.Parallel()

	tests := map[CardDetectionState]string{
		StateIdle:              "idle",
		StateTagDetected:       "detected",
		StateBusy:              "busy",
		CardDetectionState(42): "unknown",
	}
	for state, want := range tests {
		assert.Equal(t, want, state.String())
	}
}

func TestSleepRecoveryConfig_DetectSleep(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		cfg      SleepRecoveryConfig
		elapsed  time.Duration
		interval time.Duration
		want     bool
	}{
		{name: "normal tick", cfg: DefaultSleepRecoveryConfig(), elapsed: 260 * time.Millisecond, interval: 250 * time.Millisecond},
		{name: "just under threshold", cfg: DefaultSleepRecoveryConfig(), elapsed: 2250 * time.Millisecond, interval: 250 * time.Millisecond},
		{name: "woke from sleep", cfg: DefaultSleepRecoveryConfig(), elapsed: 10 * time.Second, interval: 250 * time.Millisecond, want: true},
		{name: "disabled", cfg: SleepRecoveryConfig{}, elapsed: time.Hour, interval: 250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.cfg.DetectSleep(tt.elapsed, tt.interval))
		})
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()

	cfg := (&Config{PollInterval: time.Second}).withDefaults()
	assert.Equal(t, []pn533.PollKind{pn533.PollFeliCa}, cfg.Kinds)
	assert.Equal(t, pn533.SystemCodeWildcard, cfg.SystemCode)
	assert.Equal(t, time.Second, cfg.PollInterval)
	assert.Equal(t, 600*time.Millisecond, cfg.CardRemovalTimeout)
	assert.Equal(t, 10, cfg.MaxErrors)
	assert.False(t, cfg.SleepRecovery.Enabled, "an explicit config keeps its recovery setting")
}
