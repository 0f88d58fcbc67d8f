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
	"encoding/hex"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
)

// CardDetectionState is the monitor's view of the field.
type CardDetectionState int

const (
	StateIdle CardDetectionState = iota
	StateTagDetected
	// StateBusy means the field is lent to a caller through Monitor.Do.
	StateBusy
)

func (s CardDetectionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTagDetected:
		return "detected"
	case StateBusy:
		return "busy"
	default:
		return "unknown"
	}
}

// CardState tracks the card currently in the field.
type CardState struct {
	LastSeenTime   time.Time
	Identity       pn533.CardIdentity
	LastID         string
	DetectionState CardDetectionState
	Present        bool
}

func cardKey(id pn533.CardIdentity) string {
	return id.Type.String() + ":" + hex.EncodeToString(id.IDBytes())
}

// TransitionToDetected records id as seen now. It reports whether this is
// a different card from the one already present.
func (cs *CardState) TransitionToDetected(id pn533.CardIdentity, now time.Time) (changed bool) {
	key := cardKey(id)
	changed = cs.Present && cs.LastID != key
	cs.DetectionState = StateTagDetected
	cs.Present = true
	cs.Identity = id
	cs.LastID = key
	cs.LastSeenTime = now
	return changed
}

// Expired reports whether a present card has missed polls for longer than
// timeout.
func (cs *CardState) Expired(now time.Time, timeout time.Duration) bool {
	return cs.Present && now.Sub(cs.LastSeenTime) > timeout
}

// TransitionToIdle resets to idle state
func (cs *CardState) TransitionToIdle() {
	*cs = CardState{}
}
