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
	"bytes"
	"context"
	"errors"
	"fmt"
)

// MIFARE commands
const (
	mifareCmdAuthA = 0x60
	mifareCmdAuthB = 0x61
	mifareCmdRead  = 0x30
)

const mifareKeySize = 6

// DefaultMifareKeys is the transport configuration: key A then key B, both
// all 0xFF.
var DefaultMifareKeys = [2 * mifareKeySize]byte{
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
	0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF,
}

// MifareRead authenticates block with key A (keys[0:6]) or, failing that,
// key B (keys[6:12]) and reads it. The selected card must be an NFC-A card.
func (d *Device) MifareRead(ctx context.Context, block byte, keys [2 * mifareKeySize]byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.identity.Type != IDNFCID1 {
		return nil, NewCardError("MIFARE read", ErrNoCardSelected)
	}
	uid := d.identity.IDBytes()

	err := d.mifareAuth(ctx, mifareCmdAuthA, block, keys[:mifareKeySize], uid)
	if err != nil {
		Debugf("MIFARE key A authentication of block %d failed: %v", block, err)
		// a failed authentication halts the card; select it again
		if err := d.reselectA(ctx, uid); err != nil {
			return nil, err
		}
		if err := d.mifareAuth(ctx, mifareCmdAuthB, block, keys[mifareKeySize:], uid); err != nil {
			return nil, NewCardError("MIFARE read", fmt.Errorf("%w: block %d: %w", ErrTagAuthFailed, block, err))
		}
	}

	data, err := d.inDataExchange(ctx, []byte{mifareCmdRead, block}, false)
	if err != nil {
		return nil, NewCardError("MIFARE read", err)
	}
	if len(data) < BlockSize {
		return nil, NewCardError("MIFARE read", fmt.Errorf("%w: %d bytes", ErrInvalidResponse, len(data)))
	}
	return append([]byte(nil), data[:BlockSize]...), nil
}

// MifareWrite is not supported.
func (*Device) MifareWrite(context.Context, byte, []byte, [2 * mifareKeySize]byte) error {
	return NewCardError("MIFARE write", ErrNotImplemented)
}

func (d *Device) mifareAuth(ctx context.Context, cmd, block byte, key, uid []byte) error {
	req := make([]byte, 0, 2+mifareKeySize+4)
	req = append(req, cmd, block)
	req = append(req, key...)
	// the last four UID bytes take part in the authentication
	req = append(req, uid[len(uid)-min(len(uid), 4):]...)
	_, err := d.inDataExchange(ctx, req, false)
	return err
}

func (d *Device) reselectA(ctx context.Context, uid []byte) error {
	if err := d.pollingA(ctx); err != nil {
		return fmt.Errorf("reselect after failed authentication: %w", err)
	}
	if !bytes.Equal(d.identity.IDBytes(), uid) {
		d.identity.reset()
		return NewCardError("reselect", errors.New("a different card answered"))
	}
	return nil
}
