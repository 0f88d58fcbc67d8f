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
	"fmt"
)

// FeliCa Lite blocks
const (
	LiteBlockPAD0  uint16 = 0x00
	LiteBlockPAD13 uint16 = 0x0D
	LiteBlockREG   uint16 = 0x0E
	LiteBlockRC    uint16 = 0x80
	LiteBlockMAC   uint16 = 0x81
	LiteBlockID    uint16 = 0x82
	LiteBlockDID   uint16 = 0x83
	LiteBlockSERC  uint16 = 0x84
	LiteBlockSYSC  uint16 = 0x85
	LiteBlockCKV   uint16 = 0x86
	LiteBlockCK    uint16 = 0x87
	LiteBlockMC    uint16 = 0x88
)

// LiteMaxReadBlocks is the most blocks a FeliCa Lite returns per read.
const LiteMaxReadBlocks = 4

// PollingLite polls for a FeliCa Lite card.
func (d *Device) PollingLite(ctx context.Context) (CardIdentity, error) {
	return d.PollingFeliCa(ctx, SystemCodeFeliCaLite)
}

// LiteRead reads up to four FeliCa Lite blocks through the read-only
// service.
func (d *Device) LiteRead(ctx context.Context, blocks ...uint16) ([]byte, error) {
	if len(blocks) > LiteMaxReadBlocks {
		return nil, fmt.Errorf("%w: FeliCa Lite reads at most %d blocks, got %d",
			ErrInvalidParameter, LiteMaxReadBlocks, len(blocks))
	}
	return d.ReadWithoutEncryption(ctx, ServiceRO, blocks)
}

// LiteWrite writes one FeliCa Lite block through the read/write service.
func (d *Device) LiteWrite(ctx context.Context, block uint16, data []byte) error {
	return d.WriteWithoutEncryption(ctx, ServiceRW, []uint16{block}, data)
}
