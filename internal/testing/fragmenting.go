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

package testing

import (
	"math/rand/v2"
	"time"
)

// Pipe is the method set the reader needs from its byte channel.
type Pipe interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	SetTimeout(timeout time.Duration) error
	Close() error
}

// FragmentingPipe wraps a Pipe and hands reads out in random slices, the
// way a USB-serial bridge splits a frame across transfers. Writes pass
// through untouched.
type FragmentingPipe struct {
	Pipe
	rng     *rand.Rand
	pending []byte
	// MaxChunk caps a single read; zero means 64, one USB full speed packet.
	MaxChunk int
}

// NewFragmentingPipe wraps backend with a deterministic split pattern.
func NewFragmentingPipe(backend Pipe, seed uint64) *FragmentingPipe {
	return &FragmentingPipe{
		Pipe: backend,
		rng:  rand.New(rand.NewPCG(seed, seed^0xDEADBEEF)), //nolint:gosec // test code, not crypto
	}
}

// Read returns between one byte and MaxChunk bytes of the backend stream.
func (f *FragmentingPipe) Read(buf []byte) (int, error) {
	if len(f.pending) == 0 {
		tmp := make([]byte, 1024)
		n, err := f.Pipe.Read(tmp)
		if err != nil || n == 0 {
			return n, err //nolint:wrapcheck // pass-through wrapper
		}
		f.pending = append(f.pending, tmp[:n]...)
	}

	maxChunk := f.MaxChunk
	if maxChunk <= 0 {
		maxChunk = 64
	}
	n := min(len(f.pending), len(buf), maxChunk)
	if n > 1 {
		n = 1 + f.rng.IntN(n)
	}
	copy(buf, f.pending[:n])
	f.pending = f.pending[n:]
	return n, nil
}
