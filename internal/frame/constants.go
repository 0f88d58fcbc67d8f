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

// Package frame encodes and decodes PN533 host-controller frames.
//
// A normal information frame is laid out as
//
//	00 00 FF <LEN> <LCS> <TFI> <CMD> <DATA...> <DCS> 00
//
// where LCS = (256 - LEN) mod 256 and DCS = (256 - sum(TFI, CMD, DATA)) mod 256.
package frame

// Frame direction constants - these indicate the direction of data flow
const (
	HostToPn533 = 0xD4 // Commands from host to PN533
	Pn533ToHost = 0xD5 // Responses from PN533 to host
	ErrorFrame  = 0x7F // Application level error frame TFI
)

// Frame markers and control bytes
const (
	Preamble   = 0x00 // Frame preamble byte
	StartCode1 = 0x00 // Start code byte 1
	StartCode2 = 0xFF // Start code byte 2
	Postamble  = 0x00 // Frame postamble byte

	// ExtendedMarker in both LEN and LCS marks an extended frame, which is
	// recognised but not supported.
	ExtendedMarker = 0xFF
)

// Frame size limits
const (
	MaxPayloadLength = 255                  // LEN is a single byte
	HeaderLength     = 5                    // preamble + start code + LEN + LCS
	Overhead         = HeaderLength + 2     // header + DCS + postamble
	MaxFrameLength   = MaxPayloadLength + 7 // largest normal frame on the wire
	MinFrameLength   = 6                    // ACK sized
)

// AckFrame is exchanged in both directions to acknowledge a frame.
var AckFrame = []byte{0x00, 0x00, 0xFF, 0x00, 0xFF, 0x00}

// NackFrame asks the peer to resend its last frame. The engine never sends
// it; it is listed so decoders can name it.
var NackFrame = []byte{0x00, 0x00, 0xFF, 0xFF, 0x00, 0x00}
