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


//go:build !deadlock

// Package syncutil selects the lock implementation used by the device and
// its helpers. Building with -tags=deadlock swaps in go-deadlock, which
// reports lock-order inversions and locks held for too long.
package syncutil

import "sync"

type (
	Mutex   = sync.Mutex
	RWMutex = sync.RWMutex
)

// DeadlockDetection reports whether the deadlock build tag is set.
const DeadlockDetection = false
