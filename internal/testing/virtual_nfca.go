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

import "bytes"

const (
	mifareAuthA     = 0x60
	mifareAuthB     = 0x61
	mifareRead      = 0x30
	mifareBlockSize = 16
)

// VirtualMifare is a MIFARE Classic 1K card with one key pair for every
// sector. A failed authentication halts the card until it is polled again.
type VirtualMifare struct {
	Blocks  map[byte][]byte
	UID     []byte
	KeyA    [6]byte
	KeyB    [6]byte
	SensRes uint16
	SelRes  byte
	// AuthAttempts journals the authentication commands received.
	AuthAttempts []byte
	authSector   int
	halted       bool
}

// NewVirtualMifare creates a 1K card with the transport keys.
func NewVirtualMifare(uid []byte) *VirtualMifare {
	ff := [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	return &VirtualMifare{
		UID:        append([]byte(nil), uid...),
		KeyA:       ff,
		KeyB:       ff,
		SensRes:    0x0004,
		SelRes:     0x08,
		Blocks:     make(map[byte][]byte),
		authSector: -1,
	}
}

// Poll answers 106 kbps type A polling: SENS_RES SEL_RES len NFCID1.
func (m *VirtualMifare) Poll(brTy byte, _ []byte) ([]byte, bool) {
	if brTy != BrTy106A {
		return nil, false
	}
	m.halted = false
	m.authSector = -1
	out := []byte{byte(m.SensRes >> 8), byte(m.SensRes), m.SelRes, byte(len(m.UID))}
	return append(out, m.UID...), true
}

// Exchange implements Target.
func (m *VirtualMifare) Exchange(cmd []byte) ([]byte, byte) {
	if m.halted || len(cmd) < 2 {
		return nil, StatusTimeout
	}
	block := cmd[1]
	switch cmd[0] {
	case mifareAuthA, mifareAuthB:
		m.AuthAttempts = append(m.AuthAttempts, cmd[0])
		key := m.KeyA
		if cmd[0] == mifareAuthB {
			key = m.KeyB
		}
		uid := m.UID[len(m.UID)-min(len(m.UID), 4):]
		if len(cmd) != 12 || !bytes.Equal(cmd[2:8], key[:]) || !bytes.Equal(cmd[8:12], uid) {
			m.halted = true
			m.authSector = -1
			return nil, StatusMifareAuth
		}
		m.authSector = int(block / 4)
		return nil, StatusOK
	case mifareRead:
		if m.authSector != int(block/4) {
			return nil, StatusMifareAuth
		}
		out := make([]byte, mifareBlockSize)
		copy(out, m.Blocks[block])
		return out, StatusOK
	default:
		return nil, StatusTimeout
	}
}

// VirtualTypeB is an ISO/IEC 14443-3B card. It only answers polling.
type VirtualTypeB struct {
	// ATQB is the 12 byte answer starting with 0x50 and the PUPI.
	ATQB [12]byte
}

// NewVirtualTypeB creates a card with the given PUPI.
func NewVirtualTypeB(pupi [4]byte) *VirtualTypeB {
	c := &VirtualTypeB{}
	c.ATQB[0] = 0x50
	copy(c.ATQB[1:5], pupi[:])
	copy(c.ATQB[9:], []byte{0x80, 0x81, 0x71})
	return c
}

// Poll answers 106 kbps type B polling.
func (c *VirtualTypeB) Poll(brTy byte, _ []byte) ([]byte, bool) {
	if brTy != BrTy106B {
		return nil, false
	}
	return append([]byte(nil), c.ATQB[:]...), true
}

// Exchange implements Target.
func (*VirtualTypeB) Exchange([]byte) ([]byte, byte) {
	return nil, StatusTimeout
}
