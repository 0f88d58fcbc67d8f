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

func TestDevice_Card(t *testing.T) {
	t.Parallel()

	ultralight := testutil.NewVirtualMifare(testUID)
	ultralight.SelRes = SelResMifareUltralight

	tests := []struct {
		target   testutil.Target
		poll     func(context.Context, *Device) error
		wantErr  error
		name     string
		wantType CardType
		wantUID  string
	}{
		{
			name:     "FeliCa",
			target:   testutil.NewVirtualFeliCa(testIDm, SystemCodeCommon),
			poll:     func(ctx context.Context, d *Device) error { _, err := d.PollingFeliCa(ctx, SystemCodeWildcard); return err },
			wantType: CardTypeFeliCa,
			wantUID:  "012e4cf39a102235",
		},
		{
			name:     "FeliCa Lite",
			target:   testutil.NewVirtualFeliCaLite(testIDm, nil),
			poll:     func(ctx context.Context, d *Device) error { _, err := d.PollingLite(ctx); return err },
			wantType: CardTypeFeliCaLite,
			wantUID:  "012e4cf39a102235",
		},
		{
			name:     "MIFARE Classic",
			target:   testutil.NewVirtualMifare(testUID),
			poll:     func(ctx context.Context, d *Device) error { _, err := d.PollingA(ctx); return err },
			wantType: CardTypeMifare,
			wantUID:  "deadbeef",
		},
		{
			name:    "MIFARE Ultralight",
			target:  ultralight,
			poll:    func(ctx context.Context, d *Device) error { _, err := d.PollingA(ctx); return err },
			wantErr: ErrCardUnsupported,
		},
		{
			name:    "NFC-B",
			target:  testutil.NewVirtualTypeB([4]byte{1, 2, 3, 4}),
			poll:    func(ctx context.Context, d *Device) error { _, err := d.PollingB(ctx); return err },
			wantErr: ErrCardUnsupported,
		},
		{
			name:    "nothing selected",
			poll:    func(context.Context, *Device) error { return nil },
			wantErr: ErrNoCardSelected,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var targets []testutil.Target
			if tt.target != nil {
				targets = append(targets, tt.target)
			}
			dev, _ := newTestDevice(t, targets...)
			require.NoError(t, tt.poll(context.Background(), dev))

			card, err := dev.Card()
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, card)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, card.Type())
			assert.Equal(t, tt.wantUID, card.UID())
			assert.Equal(t, dev.Identity(), card.Identity())
		})
	}
}

func TestCard_ReadWrite(t *testing.T) {
	t.Parallel()

	lite := testutil.NewVirtualFeliCaLite(testIDm, nil)
	dev, _ := newTestDevice(t, lite)
	ctx := context.Background()
	_, err := dev.PollingLite(ctx)
	require.NoError(t, err)

	card, err := dev.Card()
	require.NoError(t, err)

	require.NoError(t, card.Write(ctx, 0x01, block(0x42)))
	got, err := card.Read(ctx, 0x01)
	require.NoError(t, err)
	assert.Equal(t, block(0x42), got)

	require.NoError(t, card.Deselect(ctx))
	assert.False(t, dev.Identity().Present())
}

func TestFeliCaCard_SystemCode(t *testing.T) {
	t.Parallel()

	dev, _ := newTestDevice(t, testutil.NewVirtualFeliCa(testIDm, SystemCodeNDEF))
	pollFeliCa(t, dev)

	card, err := dev.Card()
	require.NoError(t, err)
	fc, ok := card.(*FeliCaCard)
	require.True(t, ok)
	assert.Equal(t, SystemCodeNDEF, fc.SystemCode())
	assert.Equal(t, ServiceRO, fc.ReadService)
	assert.Equal(t, ServiceRW, fc.WriteService)
}

func TestMifareCard_Read(t *testing.T) {
	t.Parallel()

	target := testutil.NewVirtualMifare(testUID)
	target.Blocks[1] = block(0x01)
	target.Blocks[5] = block(0x05)
	dev, _ := newTestDevice(t, target)
	ctx := context.Background()
	_, err := dev.PollingA(ctx)
	require.NoError(t, err)

	card, err := dev.Card()
	require.NoError(t, err)

	got, err := card.Read(ctx, 1, 5)
	require.NoError(t, err)
	assert.Equal(t, append(block(0x01), block(0x05)...), got)

	_, err = card.Read(ctx, 0x100)
	require.ErrorIs(t, err, ErrInvalidParameter)
	_, err = card.Read(ctx)
	require.ErrorIs(t, err, ErrInvalidParameter)
	require.ErrorIs(t, card.Write(ctx, 1, block()), ErrNotImplemented)
}
