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
	"testing"

	testutil "github.com/ZaparooProject/go-pn533/internal/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMifareRead(t *testing.T) {
	t.Parallel()

	otherKey := [6]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5}

	tests := []struct {
		wantErr      error
		name         string
		keyA         [6]byte
		keyB         [6]byte
		wantAttempts []byte
		wantPolls    int
	}{
		{
			name:         "key A",
			keyA:         [6]byte(DefaultMifareKeys[:6]),
			keyB:         otherKey,
			wantAttempts: []byte{0x60},
			wantPolls:    1,
		},
		{
			name:         "falls back to key B after reselect",
			keyA:         otherKey,
			keyB:         [6]byte(DefaultMifareKeys[6:]),
			wantAttempts: []byte{0x60, 0x61},
			wantPolls:    2,
		},
		{
			name:         "both keys rejected",
			keyA:         otherKey,
			keyB:         otherKey,
			wantAttempts: []byte{0x60, 0x61},
			wantPolls:    2,
			wantErr:      ErrTagAuthFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			card := testutil.NewVirtualMifare(testUID)
			card.KeyA = tt.keyA
			card.KeyB = tt.keyB
			card.Blocks[4] = block(0xCA, 0xFE)
			dev, sim := newTestDevice(t, card)
			ctx := context.Background()

			_, err := dev.PollingA(ctx)
			require.NoError(t, err)

			got, err := dev.MifareRead(ctx, 4, DefaultMifareKeys)
			assert.Equal(t, tt.wantAttempts, card.AuthAttempts)
			assert.Equal(t, tt.wantPolls, sim.CountCommand(cmdInListPassiveTarget))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, block(0xCA, 0xFE), got)
		})
	}
}

func TestMifareRead_AuthFrame(t *testing.T) {
	t.Parallel()

	uid := []byte{0x04, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66}
	dev, sim := newTestDevice(t, testutil.NewVirtualMifare(uid))
	ctx := context.Background()
	_, err := dev.PollingA(ctx)
	require.NoError(t, err)

	_, err = dev.MifareRead(ctx, 1, DefaultMifareKeys)
	require.NoError(t, err)

	payloads := commandPayloads(t, sim)
	var auth []byte
	for _, p := range payloads {
		if p[1] == cmdInDataExchange && p[3] == 0x60 {
			auth = p
		}
	}
	require.NotNil(t, auth)
	want := []byte{0xD4, 0x40, 0x01, 0x60, 0x01, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x33, 0x44, 0x55, 0x66}
	assert.Equal(t, want, auth, "last four UID bytes")
}

func TestMifareRead_RequiresNFCA(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t, testutil.NewVirtualFeliCa(testIDm, SystemCodeCommon))
	pollFeliCa(t, dev)

	_, err := dev.MifareRead(context.Background(), 0, DefaultMifareKeys)
	require.ErrorIs(t, err, ErrNoCardSelected)
}

func TestMifareWrite_NotImplemented(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t)
	err := dev.MifareWrite(context.Background(), 4, block(), DefaultMifareKeys)
	require.ErrorIs(t, err, ErrNotImplemented)
	assert.Empty(t, sim.Frames())
}
