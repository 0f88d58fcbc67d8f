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
	"os"
	"testing"

	"github.com/ZaparooProject/go-pn533/internal/frame"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testIDm = [8]byte{0x01, 0x2E, 0x4C, 0xF3, 0x9A, 0x10, 0x22, 0x35}

// roundTrip writes one command frame and returns everything the
// simulator queued in reply.
func roundTrip(t *testing.T, v *VirtualPN533, payload ...byte) []byte {
	t.Helper()
	raw, err := frame.Encode(payload)
	require.NoError(t, err)
	_, err = v.Write(raw)
	require.NoError(t, err)

	var out []byte
	buf := make([]byte, 512)
	for {
		n, err := v.Read(buf)
		if err != nil {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func splitAck(t *testing.T, reply []byte) []byte {
	t.Helper()
	require.GreaterOrEqual(t, len(reply), len(frame.AckFrame))
	require.True(t, frame.IsAck(reply[:6]), "reply starts with % X", reply)
	resp, err := frame.Decode(reply[6:])
	require.NoError(t, err)
	return resp
}

func TestVirtualPN533_RFConfiguration(t *testing.T) {
	t.Parallel()

	v := NewVirtualPN533()
	resp := splitAck(t, roundTrip(t, v, 0xD4, 0x32, 0x01, 0x01))
	assert.Equal(t, []byte{0xD5, 0x33}, resp)
	assert.True(t, v.RFOn())

	roundTrip(t, v, 0xD4, 0x32, 0x01, 0x00)
	assert.False(t, v.RFOn())
	assert.Equal(t, []byte{0x32, 0x32}, v.Commands())
}

func TestVirtualPN533_EmptyReadIsDeadline(t *testing.T) {
	t.Parallel()

	v := NewVirtualPN533()
	_, err := v.Read(make([]byte, 8))
	assert.ErrorIs(t, err, os.ErrDeadlineExceeded)
}

func TestVirtualPN533_PollFeliCa(t *testing.T) {
	t.Parallel()

	card := NewVirtualFeliCaLite(testIDm, nil)
	v := NewVirtualPN533(card)

	resp := splitAck(t, roundTrip(t, v, 0xD4, 0x4A, 0x01, BrTy424F, 0x00, 0x88, 0xB4, 0x01, 0x00))
	require.Len(t, resp, 24)
	assert.Equal(t, []byte{0xD5, 0x4B, 0x01, 0x01, 0x14, 0x01}, resp[:6])
	assert.Equal(t, testIDm[:], resp[6:14])
	assert.Equal(t, []byte{0x88, 0xB4}, resp[22:24])

	// unknown system code
	resp = splitAck(t, roundTrip(t, v, 0xD4, 0x4A, 0x01, BrTy424F, 0x00, 0x12, 0xFC, 0x01, 0x00))
	assert.Equal(t, []byte{0xD5, 0x4B, 0x00}, resp)
}

func TestVirtualFeliCa_DefaultSystemCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		sc     []byte
		answer bool
	}{
		{name: "wildcard", sc: []byte{0xFF, 0xFF}, answer: true},
		{name: "common", sc: []byte{0xFE, 0x00}, answer: true},
		{name: "lite", sc: []byte{0x88, 0xB4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			v := NewVirtualPN533(NewVirtualFeliCa(testIDm))
			poll := []byte{0xD4, 0x4A, 0x01, BrTy212F, 0x00, tt.sc[0], tt.sc[1], 0x01, 0x00}
			resp := splitAck(t, roundTrip(t, v, poll...))
			if !tt.answer {
				assert.Equal(t, []byte{0xD5, 0x4B, 0x00}, resp)
				return
			}
			require.Len(t, resp, 24)
			assert.Equal(t, testIDm[:], resp[6:14])
			assert.Equal(t, []byte{0xFE, 0x00}, resp[22:24])
		})
	}
}

func TestVirtualPN533_FailPolls(t *testing.T) {
	t.Parallel()

	v := NewVirtualPN533(NewVirtualFeliCa(testIDm, 0xFE00))
	v.FailPolls(BrTy424F, 1)

	poll := []byte{0xD4, 0x4A, 0x01, BrTy424F, 0x00, 0xFF, 0xFF, 0x00, 0x00}
	assert.Equal(t, []byte{0xD5, 0x4B, 0x00}, splitAck(t, roundTrip(t, v, poll...)))
	assert.Equal(t, byte(0x01), splitAck(t, roundTrip(t, v, poll...))[2])
}

func TestVirtualPN533_Faults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		check func(t *testing.T, reply []byte)
		name  string
		fault Fault
	}{
		{
			name:  "drop ACK",
			fault: FaultDropACK,
			check: func(t *testing.T, reply []byte) {
				t.Helper()
				assert.False(t, frame.IsAck(reply[:6]))
			},
		},
		{
			name:  "bad checksum",
			fault: FaultBadChecksum,
			check: func(t *testing.T, reply []byte) {
				t.Helper()
				_, err := frame.Decode(reply[6:])
				assert.ErrorIs(t, err, frame.ErrDataChecksum)
			},
		},
		{
			name:  "extended frame",
			fault: FaultExtendedFrame,
			check: func(t *testing.T, reply []byte) {
				t.Helper()
				_, err := frame.ValidateHeader(reply[6:])
				assert.ErrorIs(t, err, frame.ErrExtendedFrame)
			},
		},
		{
			name:  "error frame",
			fault: FaultErrorFrame,
			check: func(t *testing.T, reply []byte) {
				t.Helper()
				resp, err := frame.Decode(reply[6:])
				require.NoError(t, err)
				assert.True(t, frame.IsErrorFrame(resp))
			},
		},
		{
			name:  "silent",
			fault: FaultSilent,
			check: func(t *testing.T, reply []byte) {
				t.Helper()
				assert.Empty(t, reply)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := NewVirtualPN533()
			v.Inject(tt.fault)
			tt.check(t, roundTrip(t, v, 0xD4, 0x18, 0x01))
		})
	}
}

func TestVirtualFeliCaLite_WriteRules(t *testing.T) {
	t.Parallel()

	card := NewVirtualFeliCaLite(testIDm, nil)
	data := make([]byte, 16)
	data[0] = 0xAA

	assert.Equal(t, [2]byte{}, card.writeLite(serviceLiteRW, LiteID, data))
	assert.Equal(t, flagsReadOnly, card.writeLite(serviceLiteRW, LiteSYSC, data))
	assert.Equal(t, flagsService, card.writeLite(serviceLiteRO, LiteID, data))
	assert.Equal(t, []uint16{LiteID}, card.Writes)

	// CK is write only
	assert.Equal(t, [2]byte{}, card.writeLite(serviceLiteRW, LiteCK, data))
	got, _ := card.readLite(LiteCK, 0, []uint16{LiteCK})
	assert.Equal(t, make([]byte, 16), got)
	assert.Equal(t, data, card.CardKey())
}

func TestVirtualMifare_AuthHalts(t *testing.T) {
	t.Parallel()

	m := NewVirtualMifare([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	m.KeyA = [6]byte{1, 2, 3, 4, 5, 6}
	_, ok := m.Poll(BrTy106A, nil)
	require.True(t, ok)

	auth := []byte{mifareAuthA, 4, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xDE, 0xAD, 0xBE, 0xEF}
	_, status := m.Exchange(auth)
	assert.Equal(t, StatusMifareAuth, status)

	auth[0] = mifareAuthB
	_, status = m.Exchange(auth)
	assert.Equal(t, StatusTimeout, status, "halted card stays silent")

	m.Poll(BrTy106A, nil)
	_, status = m.Exchange(auth)
	assert.Equal(t, StatusOK, status)
}
