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
	"bytes"
	"errors"
)

// Frame validation errors. The root package maps these onto its own
// FrameError so callers only ever see one error family.
var (
	ErrShortFrame      = errors.New("frame too short")
	ErrBadPreamble     = errors.New("invalid frame preamble")
	ErrExtendedFrame   = errors.New("extended frame not supported")
	ErrLengthChecksum  = errors.New("length checksum mismatch")
	ErrDataChecksum    = errors.New("data checksum mismatch")
	ErrBadPostamble    = errors.New("invalid frame postamble")
	ErrPayloadTooLarge = errors.New("payload exceeds 255 bytes")
	ErrEmptyPayload    = errors.New("empty payload")
)

// IsAck reports whether raw is exactly the six byte ACK frame.
func IsAck(raw []byte) bool {
	return bytes.Equal(raw, AckFrame)
}

// IsNack reports whether raw is exactly the six byte NACK frame.
func IsNack(raw []byte) bool {
	return bytes.Equal(raw, NackFrame)
}

// ValidateHeader checks the preamble, start code and length checksum of a
// received frame and returns the declared payload length.
func ValidateHeader(raw []byte) (int, error) {
	if len(raw) < HeaderLength {
		return 0, ErrShortFrame
	}
	if raw[0] != Preamble || raw[1] != StartCode1 || raw[2] != StartCode2 {
		return 0, ErrBadPreamble
	}
	if raw[3] == ExtendedMarker && raw[4] == ExtendedMarker {
		return 0, ErrExtendedFrame
	}
	if raw[3] == 0x00 && raw[4] == 0xFF {
		return 0, nil
	}
	if raw[3]+raw[4] != 0 {
		return 0, ErrLengthChecksum
	}
	return int(raw[3]), nil
}

// ValidateFrameLength checks that raw holds the whole frame announced by
// its header, including DCS and postamble.
func ValidateFrameLength(raw []byte, length int) error {
	if len(raw) < HeaderLength+length+2 {
		return ErrShortFrame
	}
	return nil
}

// ValidateFrameChecksum checks DCS and the postamble of a frame whose
// payload is length bytes long.
func ValidateFrameChecksum(raw []byte, length int) error {
	payload := raw[HeaderLength : HeaderLength+length]
	if CalculateChecksum(payload)+raw[HeaderLength+length] != 0 {
		return ErrDataChecksum
	}
	if raw[HeaderLength+length+1] != Postamble {
		return ErrBadPostamble
	}
	return nil
}
