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

// Encode wraps payload (TFI, command and data) in a normal information
// frame. The returned slice is freshly allocated.
func Encode(payload []byte) ([]byte, error) {
	return AppendEncode(nil, payload)
}

// AppendEncode is Encode that appends to dst, letting a caller reuse its
// own transmit buffer.
func AppendEncode(dst, payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return dst, ErrEmptyPayload
	}
	if len(payload) > MaxPayloadLength {
		return dst, ErrPayloadTooLarge
	}
	length := byte(len(payload))
	dst = append(dst, Preamble, StartCode1, StartCode2, length, LengthChecksum(length))
	dst = append(dst, payload...)
	dst = append(dst, DataChecksum(payload), Postamble)
	return dst, nil
}

// Decode validates a complete frame and returns its payload, starting with
// the TFI byte. The payload aliases raw.
func Decode(raw []byte) ([]byte, error) {
	length, err := ValidateHeader(raw)
	if err != nil {
		return nil, err
	}
	if length == 0 {
		// ACK and NACK carry no payload
		return nil, ErrEmptyPayload
	}
	if err := ValidateFrameLength(raw, length); err != nil {
		return nil, err
	}
	if err := ValidateFrameChecksum(raw, length); err != nil {
		return nil, err
	}
	return raw[HeaderLength : HeaderLength+length], nil
}

// IsErrorFrame reports whether a decoded payload is the chip's application
// level error frame.
func IsErrorFrame(payload []byte) bool {
	return len(payload) == 1 && payload[0] == ErrorFrame
}
