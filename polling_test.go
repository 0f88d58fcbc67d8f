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

func TestPollingF_Identity(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualFeliCa(testIDm, SystemCodeFeliCaLite)
	dev, sim := newTestDevice(t, card)

	id, err := dev.PollingFeliCa(context.Background(), SystemCodeWildcard)
	require.NoError(t, err)

	assert.Equal(t, IDNFCID2, id.Type)
	assert.Equal(t, testIDm[:], id.IDm())
	assert.Equal(t, card.PMm, id.PMm)
	assert.Equal(t, SystemCodeFeliCaLite, id.SensRes)
	assert.Equal(t, 1, sim.CountCommand(cmdInListPassiveTarget), "424 kbps answered")
	assert.Equal(t, []byte{0xD4, 0x4A, 0x01, 0x02, 0x00, 0xFF, 0xFF, 0x01, 0x00},
		lastCommand(t, sim, cmdInListPassiveTarget))
	assert.Equal(t, id, dev.Identity())
}

func TestPollingF_Fallback(t *testing.T) {
	t.Parallel()

	tests := []struct {
		wantErr   error
		name      string
		fail424   int
		fail212   int
		wantPolls int
	}{
		{name: "424 kbps answers", wantPolls: 1},
		{name: "falls back to 212 kbps", fail424: 1, wantPolls: 2},
		{name: "both rates fail", fail424: 1, fail212: 1, wantPolls: 2, wantErr: ErrCardNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			dev, sim := newTestDevice(t, testutil.NewVirtualFeliCa(testIDm, SystemCodeCommon))
			sim.FailPolls(testutil.BrTy424F, tt.fail424)
			sim.FailPolls(testutil.BrTy212F, tt.fail212)

			id, err := dev.PollingFeliCa(context.Background(), SystemCodeCommon)
			assert.Equal(t, tt.wantPolls, sim.CountCommand(cmdInListPassiveTarget))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.False(t, id.Present())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, SystemCodeCommon, id.SensRes)
		})
	}
}

func TestPollingF_WithoutSystemCode(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t, testutil.NewVirtualFeliCa(testIDm, SystemCodeCommon))
	id, err := dev.PollingF(context.Background(), SystemCodeWildcard, RequestNone)
	require.NoError(t, err)
	assert.Equal(t, uint16(0), id.SensRes)
	assert.Equal(t, testIDm[:], id.IDm())
}

func TestPollingF_SystemCodeMismatch(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t, testutil.NewVirtualFeliCa(testIDm, SystemCodeCommon))
	_, err := dev.PollingLite(context.Background())
	require.ErrorIs(t, err, ErrCardNotFound)

	var ce *CardError
	assert.ErrorAs(t, err, &ce)
}

func TestPollingA(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		wantLabel string
		selRes    byte
		wantSel   byte
	}{
		{name: "MIFARE 1K", selRes: 0x08, wantSel: SelResMifare1K, wantLabel: "MIFARE 1K"},
		{name: "MIFARE 4K", selRes: 0x18, wantSel: SelResMifare4K, wantLabel: "MIFARE 4K"},
		{name: "DESFire", selRes: 0x20, wantSel: SelResMifareDESFire, wantLabel: "MIFARE DESFIRE"},
		{name: "unknown", selRes: 0x44, wantSel: SelResUnknown, wantLabel: "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			card := testutil.NewVirtualMifare(testUID)
			card.SelRes = tt.selRes
			dev, _ := newTestDevice(t, card)

			id, err := dev.PollingA(context.Background())
			require.NoError(t, err)
			assert.Equal(t, IDNFCID1, id.Type)
			assert.Equal(t, testUID, id.IDBytes())
			assert.Equal(t, uint16(0x0004), id.SensRes)
			assert.Equal(t, tt.wantSel, id.SelRes)
			assert.Equal(t, tt.wantLabel, id.Label)
			assert.Nil(t, id.IDm())
		})
	}
}

func TestPollingB(t *testing.T) {
	t.Parallel()

	pupi := [4]byte{0x11, 0x22, 0x33, 0x44}
	card := testutil.NewVirtualTypeB(pupi)
	dev, sim := newTestDevice(t, card)

	id, err := dev.PollingB(context.Background())
	require.NoError(t, err)
	assert.Equal(t, IDNFCID0, id.Type)
	assert.Equal(t, card.ATQB[:], id.IDBytes())
	assert.Equal(t, []byte{0xD4, 0x4A, 0x01, 0x03, 0x00}, lastCommand(t, sim, cmdInListPassiveTarget))
}

func TestPolling_NoCardResetsIdentity(t *testing.T) {
	t.Parallel()

	card := testutil.NewVirtualFeliCa(testIDm, SystemCodeCommon)
	dev, sim := newTestDevice(t, card)
	ctx := context.Background()

	_, err := dev.PollingFeliCa(ctx, SystemCodeWildcard)
	require.NoError(t, err)
	require.True(t, dev.Identity().Present())

	sim.SetTargets()
	_, err = dev.PollingA(ctx)
	require.ErrorIs(t, err, ErrCardNotFound)
	assert.False(t, dev.Identity().Present())
	assert.Equal(t, "no card", dev.Identity().String())
}

func TestRFOff_ResetsIdentity(t *testing.T) {
	t.Parallel()

	dev, sim := newTestDevice(t, testutil.NewVirtualMifare(testUID))
	ctx := context.Background()
	_, err := dev.PollingA(ctx)
	require.NoError(t, err)
	require.True(t, sim.RFOn())

	require.NoError(t, dev.RFOff(ctx))
	assert.False(t, sim.RFOn())
	assert.False(t, dev.Identity().Present())
}
