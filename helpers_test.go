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
	"testing"

	"github.com/ZaparooProject/go-pn533/internal/frame"
	testutil "github.com/ZaparooProject/go-pn533/internal/testing"
	"github.com/stretchr/testify/require"
)

var (
	testIDm = [8]byte{0x01, 0x2E, 0x4C, 0xF3, 0x9A, 0x10, 0x22, 0x35}
	testUID = []byte{0xDE, 0xAD, 0xBE, 0xEF}
)

// newTestDevice returns a device attached to a simulator holding targets.
func newTestDevice(t *testing.T, targets ...testutil.Target) (*Device, *testutil.VirtualPN533) {
	t.Helper()
	sim := testutil.NewVirtualPN533(targets...)
	dev, err := New(sim)
	require.NoError(t, err)
	return dev, sim
}

// commandPayloads decodes the command frames the simulator received,
// skipping ACKs.
func commandPayloads(t *testing.T, sim *testutil.VirtualPN533) [][]byte {
	t.Helper()
	var out [][]byte
	for _, raw := range sim.Frames() {
		if frame.IsAck(raw) {
			continue
		}
		p, err := frame.Decode(raw)
		require.NoError(t, err)
		out = append(out, p)
	}
	return out
}

// lastCommand returns the last command payload with code cmd.
func lastCommand(t *testing.T, sim *testutil.VirtualPN533, cmd byte) []byte {
	t.Helper()
	payloads := commandPayloads(t, sim)
	for i := len(payloads) - 1; i >= 0; i-- {
		if payloads[i][1] == cmd {
			return payloads[i]
		}
	}
	t.Fatalf("command 0x%02X never sent", cmd)
	return nil
}

func block(b ...byte) []byte {
	out := make([]byte, BlockSize)
	copy(out, b)
	return out
}
