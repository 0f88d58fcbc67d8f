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

package usb

import (
	"testing"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func endpoint(num int, dir gousb.EndpointDirection, tt gousb.TransferType) gousb.EndpointDesc {
	addr := gousb.EndpointAddress(num)
	if dir == gousb.EndpointDirectionIn {
		addr |= 0x80
	}
	return gousb.EndpointDesc{Address: addr, Number: num, Direction: dir, TransferType: tt, MaxPacketSize: 64}
}

func setting(eps ...gousb.EndpointDesc) gousb.InterfaceSetting {
	s := gousb.InterfaceSetting{Endpoints: make(map[gousb.EndpointAddress]gousb.EndpointDesc)}
	for _, ep := range eps {
		s.Endpoints[ep.Address] = ep
	}
	return s
}

func TestBulkEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		setting gousb.InterfaceSetting
		wantIn  int
		wantOut int
		wantErr bool
	}{
		{
			name: "RC-S370 layout",
			setting: setting(
				endpoint(4, gousb.EndpointDirectionIn, gousb.TransferTypeBulk),
				endpoint(4, gousb.EndpointDirectionOut, gousb.TransferTypeBulk),
			),
			wantIn:  4,
			wantOut: 4,
		},
		{
			name: "interrupt endpoint ignored",
			setting: setting(
				endpoint(1, gousb.EndpointDirectionIn, gousb.TransferTypeInterrupt),
				endpoint(2, gousb.EndpointDirectionIn, gousb.TransferTypeBulk),
				endpoint(3, gousb.EndpointDirectionOut, gousb.TransferTypeBulk),
			),
			wantIn:  2,
			wantOut: 3,
		},
		{
			name: "lowest numbered pair wins",
			setting: setting(
				endpoint(5, gousb.EndpointDirectionIn, gousb.TransferTypeBulk),
				endpoint(2, gousb.EndpointDirectionIn, gousb.TransferTypeBulk),
				endpoint(6, gousb.EndpointDirectionOut, gousb.TransferTypeBulk),
				endpoint(1, gousb.EndpointDirectionOut, gousb.TransferTypeBulk),
			),
			wantIn:  2,
			wantOut: 1,
		},
		{
			name:    "missing out endpoint",
			setting: setting(endpoint(2, gousb.EndpointDirectionIn, gousb.TransferTypeBulk)),
			wantErr: true,
		},
		{
			name:    "no endpoints",
			setting: setting(),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			in, out, err := bulkEndpoints(tt.setting)
			if tt.wantErr {
				require.ErrorIs(t, err, pn533.ErrDeviceNotFound)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantIn, in)
			assert.Equal(t, tt.wantOut, out)
		})
	}
}

func TestParsePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path     string
		wantBus  int
		wantAddr int
		wantErr  bool
	}{
		{path: "", wantBus: 0, wantAddr: 0},
		{path: "001/004", wantBus: 1, wantAddr: 4},
		{path: "3/17", wantBus: 3, wantAddr: 17},
		{path: "usb", wantErr: true},
		{path: "/dev/ttyUSB0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			t.Parallel()

			bus, addr, err := parsePath(tt.path)
			if tt.wantErr {
				require.ErrorIs(t, err, pn533.ErrInvalidParameter)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantBus, bus)
			assert.Equal(t, tt.wantAddr, addr)
		})
	}
}

func TestKnownReader(t *testing.T) {
	t.Parallel()

	id, ok := knownReader(&gousb.DeviceDesc{Vendor: 0x054C, Product: 0x02E1})
	require.True(t, ok)
	assert.Equal(t, "Sony RC-S370/RC-S330", id.Name)

	_, ok = knownReader(&gousb.DeviceDesc{Vendor: 0x054C, Product: 0x06C3})
	assert.False(t, ok, "RC-S380 is not a PN533")
}

func TestDeviceInfoPath(t *testing.T) {
	t.Parallel()

	d := DeviceInfo{Bus: 1, Address: 12}
	assert.Equal(t, "001/012", d.Path())

	bus, addr, err := parsePath(d.Path())
	require.NoError(t, err)
	assert.Equal(t, 1, bus)
	assert.Equal(t, 12, addr)
}

func TestClosedPipe(t *testing.T) {
	t.Parallel()

	p := &Pipe{name: "usb:001/002"}
	_, err := p.Read(make([]byte, 8))
	require.ErrorIs(t, err, pn533.ErrTransportClosed)
	_, err = p.Write([]byte{0x00})
	require.ErrorIs(t, err, pn533.ErrTransportClosed)
	require.NoError(t, p.Close())
	require.ErrorIs(t, p.SetTimeout(0), pn533.ErrInvalidParameter)
	assert.Equal(t, "usb:001/002", p.String())
}
