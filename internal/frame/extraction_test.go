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

package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeKnownFrame(t *testing.T) {
	t.Parallel()

	got, err := Encode([]byte{0xD4, 0x32, 0x01, 0x00})
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x00, 0xFF, 0x04, 0xFC, 0xD4, 0x32, 0x01, 0x00, 0xF9, 0x00}, got)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	for n := 0; n <= 250; n++ {
		payload := make([]byte, n+2)
		payload[0] = HostToPn533
		payload[1] = 0xA0
		for i := 2; i < len(payload); i++ {
			payload[i] = byte(i*7 + n)
		}

		raw, err := Encode(payload)
		require.NoError(t, err)
		assert.Len(t, raw, len(payload)+Overhead)

		got, err := Decode(raw)
		require.NoError(t, err, "n=%d", n)
		assert.Equal(t, payload, got)
	}
}

func TestEncodeRejects(t *testing.T) {
	t.Parallel()

	_, err := Encode(nil)
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Encode(make([]byte, 256))
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	good, err := Encode([]byte{Pn533ToHost, 0x33})
	require.NoError(t, err)

	corrupt := func(i int, v byte) []byte {
		b := append([]byte(nil), good...)
		b[i] = v
		return b
	}

	tests := []struct {
		want error
		name string
		raw  []byte
	}{
		{name: "short", raw: []byte{0x00, 0x00, 0xFF}, want: ErrShortFrame},
		{name: "preamble", raw: corrupt(2, 0xFE), want: ErrBadPreamble},
		{name: "extended", raw: []byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x00, 0x02, 0xFE, 0xD5, 0x33, 0xF8, 0x00}, want: ErrExtendedFrame},
		{name: "length checksum", raw: corrupt(4, 0x00), want: ErrLengthChecksum},
		{name: "data checksum", raw: corrupt(7, 0x00), want: ErrDataChecksum},
		{name: "postamble", raw: corrupt(8, 0x01), want: ErrBadPostamble},
		{name: "truncated", raw: good[:7], want: ErrShortFrame},
		{name: "ack has no payload", raw: AckFrame, want: ErrEmptyPayload},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Decode(tt.raw)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIsAckRejectsMutations(t *testing.T) {
	t.Parallel()

	assert.True(t, IsAck(AckFrame))
	assert.False(t, IsAck(NackFrame))
	assert.False(t, IsAck(AckFrame[:5]))

	for i := range AckFrame {
		for v := 0; v <= 0xFF; v++ {
			if byte(v) == AckFrame[i] {
				continue
			}
			mutated := append([]byte(nil), AckFrame...)
			mutated[i] = byte(v)
			assert.False(t, IsAck(mutated), "byte %d = %02X", i, v)
		}
	}
}

func TestIsErrorFrame(t *testing.T) {
	t.Parallel()

	assert.True(t, IsErrorFrame([]byte{ErrorFrame}))
	assert.False(t, IsErrorFrame([]byte{Pn533ToHost, 0x4B}))
}
