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
	"bytes"
	"encoding/binary"
)

const (
	feliCaBlockSize   = 16
	feliCaPoll        = 0x00
	feliCaRead        = 0x06
	feliCaWrite       = 0x08
	feliCaActivate    = 0xA4
	feliCaPush        = 0xB0
	systemCodeLite    = 0x88B4
	systemCodeCommon  = 0xFE00
	systemCodeAny     = 0xFFFF
	serviceLiteRW     = 0x0009
	serviceLiteRO     = 0x000B
	liteMaxReadBlocks = 4
)

// FeliCa Lite block numbers.
const (
	LiteRC   uint16 = 0x80
	LiteMAC  uint16 = 0x81
	LiteID   uint16 = 0x82
	LiteDID  uint16 = 0x83
	LiteSERC uint16 = 0x84
	LiteSYSC uint16 = 0x85
	LiteCKV  uint16 = 0x86
	LiteCK   uint16 = 0x87
	LiteMC   uint16 = 0x88
)

// Status flag pairs a FeliCa card reports on failure.
var (
	flagsBlockNumber = [2]byte{0x01, 0xA2}
	flagsService     = [2]byte{0x01, 0xA6}
	flagsReadOnly    = [2]byte{0x01, 0xA8}
)

// VirtualFeliCa is a FeliCa card with a flat block store that also
// accepts push (0xB0) and activate (0xA4) commands like a phone would.
type VirtualFeliCa struct {
	Blocks      map[uint16][]byte
	SystemCodes []uint16
	// Writes journals every block written, in order.
	Writes []uint16
	// Pushed collects push command payloads.
	Pushed [][]byte
	IDm    [8]byte
	PMm    [8]byte
	// MaxRead is the block count limit of a read; zero means 14.
	MaxRead int
}

// NewVirtualFeliCa creates a FeliCa card answering the given system codes.
func NewVirtualFeliCa(idm [8]byte, systemCodes ...uint16) *VirtualFeliCa {
	return &VirtualFeliCa{
		IDm:         idm,
		PMm:         [8]byte{0x00, 0xF1, 0x00, 0x00, 0x00, 0x01, 0x43, 0x00},
		SystemCodes: systemCodes,
		Blocks:      make(map[uint16][]byte),
	}
}

// SetBlock stores data (padded to 16 bytes) in block.
func (c *VirtualFeliCa) SetBlock(block uint16, data []byte) {
	b := make([]byte, feliCaBlockSize)
	copy(b, data)
	c.Blocks[block] = b
}

// Block returns the stored contents of block, zeros when never written.
func (c *VirtualFeliCa) Block(block uint16) []byte {
	if b, ok := c.Blocks[block]; ok {
		return append([]byte(nil), b...)
	}
	return make([]byte, feliCaBlockSize)
}

// Poll answers FeliCa polling at 212 and 424 kbps. initData is the
// polling request: 00 SC(2) RC TSN.
func (c *VirtualFeliCa) Poll(brTy byte, initData []byte) ([]byte, bool) {
	if (brTy != BrTy212F && brTy != BrTy424F) || len(initData) < 5 || initData[0] != feliCaPoll {
		return nil, false
	}
	want := binary.BigEndian.Uint16(initData[1:3])
	sc, ok := c.matchSystemCode(want)
	if !ok {
		return nil, false
	}

	out := []byte{0x12, 0x01}
	out = append(out, c.IDm[:]...)
	out = append(out, c.PMm[:]...)
	if initData[3] == 0x01 {
		out[0] = 0x14
		out = binary.BigEndian.AppendUint16(out, sc)
	}
	return out, true
}

func (c *VirtualFeliCa) matchSystemCode(want uint16) (uint16, bool) {
	if len(c.SystemCodes) == 0 {
		// a card without a configured system code answers wildcard polls
		return systemCodeCommon, want == systemCodeAny || want == systemCodeCommon
	}
	for _, sc := range c.SystemCodes {
		if want == systemCodeAny || want == sc {
			return sc, true
		}
	}
	return 0, false
}

// Exchange implements Target.
func (c *VirtualFeliCa) Exchange(cmd []byte) ([]byte, byte) {
	return c.exchange(cmd, c.readBlock, c.writeBlock)
}

type blockReader func(block uint16, pos int, req []uint16) ([]byte, [2]byte)

type blockWriter func(service, block uint16, data []byte) [2]byte

func (c *VirtualFeliCa) exchange(cmd []byte, read blockReader, write blockWriter) ([]byte, byte) {
	if len(cmd) < 10 || !bytes.Equal(cmd[1:9], c.IDm[:]) {
		// addressed to another card: nobody answers
		return nil, StatusTimeout
	}
	switch cmd[0] {
	case feliCaRead, feliCaWrite:
		return c.blockCommand(cmd, read, write), StatusOK
	case feliCaPush:
		n := int(cmd[9])
		if len(cmd) != 10+n {
			return nil, StatusTimeout
		}
		c.Pushed = append(c.Pushed, append([]byte(nil), cmd[10:]...))
		return append(append([]byte{feliCaPush + 1}, c.IDm[:]...), cmd[9]), StatusOK
	case feliCaActivate:
		return append(append([]byte{feliCaActivate + 1}, c.IDm[:]...), 0x00), StatusOK
	default:
		return nil, StatusTimeout
	}
}

// blockCommand handles cmd IDm 01 svc(LE) n elements [data].
func (c *VirtualFeliCa) blockCommand(cmd []byte, read blockReader, write blockWriter) []byte {
	code := cmd[0]
	fail := func(flags [2]byte) []byte {
		return append(append([]byte{code + 1}, c.IDm[:]...), flags[0], flags[1])
	}
	if cmd[9] != 0x01 || len(cmd) < 14 {
		return fail(flagsService)
	}
	service := binary.LittleEndian.Uint16(cmd[10:12])
	n := int(cmd[12])
	blocks, rest, ok := parseBlockList(cmd[13:], n)
	if !ok || n == 0 {
		return fail(flagsBlockNumber)
	}

	if code == feliCaWrite {
		if len(rest) != n*feliCaBlockSize {
			return fail(flagsBlockNumber)
		}
		for i, b := range blocks {
			if flags := write(service, b, rest[i*feliCaBlockSize:(i+1)*feliCaBlockSize]); flags != [2]byte{} {
				return fail(flags)
			}
		}
		return fail([2]byte{})
	}

	maxRead := c.MaxRead
	if maxRead == 0 {
		// more blocks would overflow a normal frame
		maxRead = 14
	}
	if n > maxRead {
		return fail(flagsBlockNumber)
	}
	out := append(fail([2]byte{}), byte(n))
	for i, b := range blocks {
		data, flags := read(b, i, blocks)
		if flags != [2]byte{} {
			return fail(flags)
		}
		out = append(out, data...)
	}
	return out
}

func parseBlockList(data []byte, n int) ([]uint16, []byte, bool) {
	blocks := make([]uint16, 0, n)
	for range n {
		switch {
		case len(data) >= 2 && data[0]&0x80 != 0:
			blocks = append(blocks, uint16(data[1]))
			data = data[2:]
		case len(data) >= 3:
			blocks = append(blocks, binary.LittleEndian.Uint16(data[1:3]))
			data = data[3:]
		default:
			return nil, nil, false
		}
	}
	return blocks, data, true
}

func (c *VirtualFeliCa) readBlock(block uint16, _ int, _ []uint16) ([]byte, [2]byte) {
	return c.Block(block), [2]byte{}
}

func (c *VirtualFeliCa) writeBlock(_, block uint16, data []byte) [2]byte {
	c.SetBlock(block, data)
	c.Writes = append(c.Writes, block)
	return [2]byte{}
}

// MACFunc computes the 8 byte MAC a FeliCa Lite card returns for block
// data under card key ck and random challenge rc.
type MACFunc func(ck, block, rc []byte) ([]byte, error)

// VirtualFeliCaLite is a FeliCa Lite card: reads of at most four blocks,
// single block writes through service 0x0009, write-only CK and RC, read
// only D_ID/SER_C/SYS_C and a MAC block computed on read.
type VirtualFeliCaLite struct {
	*VirtualFeliCa
	// MAC computes MAC block contents; nil leaves the MAC block zero.
	MAC MACFunc
	ck  []byte
	rc  []byte
}

// NewVirtualFeliCaLite creates a virgin FeliCa Lite card: SYS_C holds
// 88B4, MC leaves the system blocks writable, D_ID carries the IDm.
func NewVirtualFeliCaLite(idm [8]byte, mac MACFunc) *VirtualFeliCaLite {
	c := &VirtualFeliCaLite{
		VirtualFeliCa: NewVirtualFeliCa(idm, systemCodeLite),
		MAC:           mac,
		ck:            make([]byte, feliCaBlockSize),
		rc:            make([]byte, feliCaBlockSize),
	}
	c.MaxRead = liteMaxReadBlocks
	c.SetBlock(LiteSYSC, []byte{0x88, 0xB4})
	c.SetBlock(LiteMC, []byte{0xFF, 0xFF, 0xFF, 0x00})
	c.SetBlock(LiteDID, idm[:])
	c.SetBlock(LiteID, idm[:])
	c.SetBlock(LiteSERC, []byte{0x00, 0x0B})
	return c
}

// CardKey returns the card key written to CK.
func (c *VirtualFeliCaLite) CardKey() []byte { return append([]byte(nil), c.ck...) }

// Exchange implements Target.
func (c *VirtualFeliCaLite) Exchange(cmd []byte) ([]byte, byte) {
	return c.exchange(cmd, c.readLite, c.writeLite)
}

func (c *VirtualFeliCaLite) readLite(block uint16, pos int, req []uint16) ([]byte, [2]byte) {
	switch block {
	case LiteCK, LiteRC:
		return make([]byte, feliCaBlockSize), [2]byte{}
	case LiteMAC:
		out := make([]byte, feliCaBlockSize)
		if pos == 0 || c.MAC == nil {
			return out, [2]byte{}
		}
		mac, err := c.MAC(c.ck, c.Block(req[0]), c.rc)
		if err != nil {
			return nil, flagsBlockNumber
		}
		copy(out, mac)
		return out, [2]byte{}
	}
	return c.Block(block), [2]byte{}
}

func (c *VirtualFeliCaLite) writeLite(service, block uint16, data []byte) [2]byte {
	if service != serviceLiteRW {
		return flagsService
	}
	switch block {
	case LiteMAC, LiteDID, LiteSERC, LiteSYSC:
		return flagsReadOnly
	case LiteCK, LiteCKV, LiteID:
		if c.Block(LiteMC)[2] == 0x00 {
			return flagsReadOnly
		}
	}
	c.Writes = append(c.Writes, block)
	switch block {
	case LiteCK:
		c.ck = append(c.ck[:0], data...)
	case LiteRC:
		c.rc = append(c.rc[:0], data...)
	default:
		c.SetBlock(block, data)
	}
	return [2]byte{}
}
