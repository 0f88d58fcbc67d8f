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
	"encoding/hex"
	"fmt"
)

// CardType names the card families a Device can hand out.
type CardType string

const (
	// CardTypeFeliCa is any FeliCa card other than FeliCa Lite.
	CardTypeFeliCa CardType = "FELICA"
	// CardTypeFeliCaLite is a FeliCa Lite (RC-S965) or Lite-S card.
	CardTypeFeliCaLite CardType = "FELICA_LITE"
	// CardTypeMifare is a MIFARE Classic card.
	CardTypeMifare CardType = "MIFARE"
)

// Card is the selected card seen through its block interface. The set of
// implementations is closed: *FeliCaCard, *FeliCaLiteCard and *MifareCard.
//
// A Card is bound to the Device that polled it. Polling again replaces the
// selection and the old Card then talks to whatever card was selected last.
type Card interface {
	// Type returns the card family
	Type() CardType

	// Identity returns the identity captured when the card was selected
	Identity() CardIdentity

	// UID returns the card identifier as a hex string
	UID() string

	// Read returns the contents of blocks back to back
	Read(ctx context.Context, blocks ...uint16) ([]byte, error)

	// Write stores one block
	Write(ctx context.Context, block uint16, data []byte) error

	// Deselect switches the RF field off, releasing the card
	Deselect(ctx context.Context) error

	card()
}

type baseCard struct {
	dev      *Device
	identity CardIdentity
}

func (c *baseCard) Identity() CardIdentity { return c.identity }

func (c *baseCard) UID() string { return hex.EncodeToString(c.identity.IDBytes()) }

func (c *baseCard) Deselect(ctx context.Context) error { return c.dev.RFOff(ctx) }

func (*baseCard) card() {}

// FeliCaCard is a FeliCa card accessed without encryption.
type FeliCaCard struct {
	baseCard
	// ReadService and WriteService default to ServiceRO and ServiceRW.
	ReadService  uint16
	WriteService uint16
}

// Type implements Card.
func (*FeliCaCard) Type() CardType { return CardTypeFeliCa }

// SystemCode returns the system code reported while polling.
func (c *FeliCaCard) SystemCode() uint16 { return c.identity.SensRes }

// Read implements Card.
func (c *FeliCaCard) Read(ctx context.Context, blocks ...uint16) ([]byte, error) {
	return c.dev.ReadWithoutEncryption(ctx, c.ReadService, blocks)
}

// Write implements Card.
func (c *FeliCaCard) Write(ctx context.Context, block uint16, data []byte) error {
	return c.dev.WriteWithoutEncryption(ctx, c.WriteService, []uint16{block}, data)
}

// FeliCaLiteCard is a FeliCa Lite card. Reads are limited to
// LiteMaxReadBlocks blocks and writes to a single block.
type FeliCaLiteCard struct {
	baseCard
}

// Type implements Card.
func (*FeliCaLiteCard) Type() CardType { return CardTypeFeliCaLite }

// Read implements Card.
func (c *FeliCaLiteCard) Read(ctx context.Context, blocks ...uint16) ([]byte, error) {
	return c.dev.LiteRead(ctx, blocks...)
}

// Write implements Card.
func (c *FeliCaLiteCard) Write(ctx context.Context, block uint16, data []byte) error {
	return c.dev.LiteWrite(ctx, block, data)
}

// MifareCard is a MIFARE Classic card. Only reads are supported.
type MifareCard struct {
	baseCard
	Keys [2 * mifareKeySize]byte
}

// Type implements Card.
func (*MifareCard) Type() CardType { return CardTypeMifare }

// Read authenticates and reads each block in turn.
func (c *MifareCard) Read(ctx context.Context, blocks ...uint16) ([]byte, error) {
	if len(blocks) == 0 {
		return nil, fmt.Errorf("%w: no blocks to read", ErrInvalidParameter)
	}
	out := make([]byte, 0, len(blocks)*BlockSize)
	for _, b := range blocks {
		if b > 0xFF {
			return nil, fmt.Errorf("%w: MIFARE block %d", ErrInvalidParameter, b)
		}
		data, err := c.dev.MifareRead(ctx, byte(b), c.Keys)
		if err != nil {
			return nil, err
		}
		out = append(out, data...)
	}
	return out, nil
}

// Write is not supported for MIFARE cards.
func (c *MifareCard) Write(ctx context.Context, block uint16, data []byte) error {
	return c.dev.MifareWrite(ctx, byte(block), data, c.Keys)
}

// Card returns the selected card as a Card. It fails with ErrNoCardSelected
// when nothing is selected and ErrCardUnsupported for cards without a block
// interface (NFC-B, MIFARE Ultralight, DESFire and the like).
func (d *Device) Card() (Card, error) {
	d.mu.Lock()
	id := d.identity
	d.mu.Unlock()

	base := baseCard{dev: d, identity: id}
	switch id.Type {
	case IDNone:
		return nil, NewCardError("card", ErrNoCardSelected)
	case IDNFCID2:
		if id.SensRes == SystemCodeFeliCaLite {
			return &FeliCaLiteCard{baseCard: base}, nil
		}
		return &FeliCaCard{baseCard: base, ReadService: ServiceRO, WriteService: ServiceRW}, nil
	case IDNFCID1:
		switch id.SelRes {
		case SelResMifare1K, SelResMifareMini, SelResMifare4K:
			return &MifareCard{baseCard: base, Keys: DefaultMifareKeys}, nil
		}
	}
	return nil, NewCardError("card", fmt.Errorf("%w: %s", ErrCardUnsupported, id))
}
