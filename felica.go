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
	"fmt"
)

// FeliCa command codes (JIS X 6319-4 and the RC-S370 push extension)
const (
	feliCaCmdReadWithoutEncryption  = 0x06
	feliCaCmdWriteWithoutEncryption = 0x08
	feliCaCmdActivate               = 0xA4
	feliCaCmdPush                   = 0xB0
)

// FeliCa service codes
const (
	ServiceRW uint16 = 0x0009
	ServiceRO uint16 = 0x000B
)

// FeliCa constants
const (
	BlockSize      = 16
	MaxPushData    = 224
	maxReadBlocks  = 14 // 15 blocks of answer need an extended frame
	maxWriteBlocks = 13
)

// FeliCaStatusError carries the two status flags of a FeliCa response.
type FeliCaStatusError struct {
	Flag1 byte
	Flag2 byte
}

func (e *FeliCaStatusError) Error() string {
	return fmt.Sprintf("FeliCa status flags %02X %02X", e.Flag1, e.Flag2)
}

// BlockListElement returns the block list element addressing block within
// the serviceIndex-th service of the request. Blocks up to 0xFF use the two
// byte form (0x80|serviceIndex, block); larger ones the three byte form.
func BlockListElement(block uint16, serviceIndex byte) []byte {
	return appendBlockListElement(nil, block, serviceIndex)
}

func appendBlockListElement(dst []byte, block uint16, serviceIndex byte) []byte {
	if block <= 0xFF {
		v := 0x8000 | uint16(serviceIndex&0x0F)<<8 | block
		return append(dst, byte(v>>8), byte(v))
	}
	return append(dst, serviceIndex&0x0F, byte(block), byte(block>>8))
}

// ReadWithoutEncryption reads blocks of service from the selected FeliCa
// card and returns their contents back to back.
func (d *Device) ReadWithoutEncryption(ctx context.Context, service uint16, blocks []uint16) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readWithoutEncryption(ctx, service, blocks)
}

func (d *Device) readWithoutEncryption(ctx context.Context, service uint16, blocks []uint16) ([]byte, error) {
	if len(blocks) == 0 || len(blocks) > maxReadBlocks {
		return nil, fmt.Errorf("%w: %d blocks per read", ErrInvalidParameter, len(blocks))
	}
	idm, err := d.selectedIDm()
	if err != nil {
		return nil, err
	}

	req := feliCaRequest(feliCaCmdReadWithoutEncryption, idm, service, blocks)
	resp, err := d.communicateThruEx(ctx, DefaultCommunicateTimeout, req)
	if err != nil {
		return nil, fmt.Errorf("read without encryption: %w", err)
	}
	if err := checkFeliCaResponse(resp, feliCaCmdReadWithoutEncryption, idm); err != nil {
		return nil, err
	}

	n := len(blocks)
	if len(resp) < 12+n*BlockSize || int(resp[11]) != n {
		return nil, NewCardError("read without encryption",
			fmt.Errorf("%w: %d bytes for %d blocks", ErrInvalidResponse, len(resp), n))
	}
	return append([]byte(nil), resp[12:12+n*BlockSize]...), nil
}

// WriteWithoutEncryption writes data (BlockSize bytes per block) to blocks
// of service on the selected FeliCa card.
func (d *Device) WriteWithoutEncryption(ctx context.Context, service uint16, blocks []uint16, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writeWithoutEncryption(ctx, service, blocks, data)
}

func (d *Device) writeWithoutEncryption(ctx context.Context, service uint16, blocks []uint16, data []byte) error {
	if len(blocks) == 0 || len(blocks) > maxWriteBlocks {
		return fmt.Errorf("%w: %d blocks per write", ErrInvalidParameter, len(blocks))
	}
	if len(data) != len(blocks)*BlockSize {
		return fmt.Errorf("%w: %d bytes for %d blocks", ErrInvalidParameter, len(data), len(blocks))
	}
	idm, err := d.selectedIDm()
	if err != nil {
		return err
	}

	req := append(feliCaRequest(feliCaCmdWriteWithoutEncryption, idm, service, blocks), data...)
	resp, err := d.communicateThruEx(ctx, DefaultCommunicateTimeout, req)
	if err != nil {
		return fmt.Errorf("write without encryption: %w", err)
	}
	return checkFeliCaResponse(resp, feliCaCmdWriteWithoutEncryption, idm)
}

// feliCaRequest builds cmd IDm 01 svc(LE) n elements...
func feliCaRequest(cmd byte, idm []byte, service uint16, blocks []uint16) []byte {
	req := make([]byte, 0, 13+3*len(blocks)+len(blocks)*BlockSize)
	req = append(req, cmd)
	req = append(req, idm...)
	req = append(req, 0x01, byte(service), byte(service>>8), byte(len(blocks)))
	for _, b := range blocks {
		req = appendBlockListElement(req, b, 0)
	}
	return req
}

// checkFeliCaResponse validates response code, IDm echo and status flags.
func checkFeliCaResponse(resp []byte, cmd byte, idm []byte) error {
	op := fmt.Sprintf("FeliCa command 0x%02X", cmd)
	if len(resp) < 11 {
		return NewCardError(op, fmt.Errorf("%w: %d byte response", ErrInvalidResponse, len(resp)))
	}
	if resp[0] != cmd+1 {
		return NewCardError(op, fmt.Errorf("%w: response code 0x%02X", ErrInvalidResponse, resp[0]))
	}
	if !bytes.Equal(resp[1:1+NFCID2Size], idm) {
		return NewCardError(op, fmt.Errorf("%w: IDm mismatch", ErrInvalidResponse))
	}
	if resp[9] != 0x00 || resp[10] != 0x00 {
		return NewCardError(op, &FeliCaStatusError{Flag1: resp[9], Flag2: resp[10]})
	}
	return nil
}

// selectedIDm returns the IDm of the selected card, failing when the last
// poll did not select a FeliCa card.
func (d *Device) selectedIDm() ([]byte, error) {
	if d.identity.Type != IDNFCID2 {
		return nil, NewCardError("FeliCa access", ErrNoCardSelected)
	}
	return d.identity.IDBytes(), nil
}

// Push sends data to a FeliCa push capable phone and activates it. Data
// longer than MaxPushData is rejected before anything is sent.
func (d *Device) Push(ctx context.Context, data []byte) error {
	if len(data) > MaxPushData {
		return fmt.Errorf("%w: push data is %d bytes, max %d", ErrDataTooLarge, len(data), MaxPushData)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	idm, err := d.selectedIDm()
	if err != nil {
		return err
	}

	req := make([]byte, 0, 10+len(data))
	req = append(req, feliCaCmdPush)
	req = append(req, idm...)
	req = append(req, byte(len(data)))
	req = append(req, data...)
	resp, err := d.communicateThruEx(ctx, PushTimeout, req)
	if err != nil {
		return fmt.Errorf("push: %w", err)
	}
	if err := checkPushResponse(resp, feliCaCmdPush, idm, byte(len(data))); err != nil {
		return err
	}

	req = append(req[:0], feliCaCmdActivate)
	req = append(req, idm...)
	req = append(req, 0x00)
	resp, err = d.communicateThruEx(ctx, DefaultCommunicateTimeout, req)
	if err != nil {
		return fmt.Errorf("push activate: %w", err)
	}
	return checkPushResponse(resp, feliCaCmdActivate, idm, 0x00)
}

func checkPushResponse(resp []byte, cmd byte, idm []byte, last byte) error {
	if len(resp) != 10 || resp[0] != cmd+1 || !bytes.Equal(resp[1:9], idm) || resp[9] != last {
		return NewCardError(fmt.Sprintf("push command 0x%02X", cmd),
			fmt.Errorf("%w: % X", ErrInvalidResponse, resp))
	}
	return nil
}

// PushURL pushes url so the phone opens it in its browser.
func (d *Device) PushURL(ctx context.Context, url string) error {
	payload, err := pushURLPayload(url)
	if err != nil {
		return err
	}
	return d.Push(ctx, payload)
}

// pushURLPayload builds a one-entry push message: entry count, type 02
// (URL), parameter length, URL length, URL bytes and a 16 bit checksum that
// makes the byte sum zero.
func pushURLPayload(url string) ([]byte, error) {
	if len(url) > MaxPushData-8 {
		return nil, fmt.Errorf("%w: URL is %d bytes", ErrDataTooLarge, len(url))
	}
	paramLen := uint16(len(url) + 2) //nolint:gosec // bounded above

	out := make([]byte, 0, len(url)+8)
	out = append(out, 0x01, 0x02,
		byte(paramLen), byte(paramLen>>8),
		byte(paramLen-2), byte((paramLen-2)>>8))
	out = append(out, url...)

	var sum uint16
	for _, b := range out {
		sum += uint16(b)
	}
	sum = -sum
	return append(out, byte(sum>>8), byte(sum)), nil
}
