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
	"time"
)

// Reset issues the RC-S620/S Reset command. The reader may not answer it,
// so a failure is logged and otherwise ignored.
func (d *Device) Reset(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp, err := d.transport.Command(ctx, cmdReset, []byte{0x01})
	if err != nil {
		Debugf("Reset failed: %v", err)
		return
	}
	if len(resp) != 2 {
		Debugf("Reset: unexpected response length %d", len(resp))
	}
}

// SetParameters writes the reader's internal parameter flags.
func (d *Device) SetParameters(ctx context.Context, flags byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp, err := d.transport.Command(ctx, cmdSetParameters, []byte{flags})
	if err == nil && len(resp) != 2 {
		err = NewProtocolError(cmdSetParameters, ErrInvalidResponse, fmt.Sprintf("length %d", len(resp)))
	}
	if err != nil {
		Debugf("SetParameters(0x%02X) failed: %v", flags, err)
		return err
	}
	return nil
}

// RFConfiguration sets one configuration item.
func (d *Device) RFConfiguration(ctx context.Context, item byte, data ...byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rfConfiguration(ctx, item, data)
}

func (d *Device) rfConfiguration(ctx context.Context, item byte, data []byte) error {
	args := append(d.buildArgs(item), data...)
	resp, err := d.transport.Command(ctx, cmdRFConfiguration, args)
	if err != nil {
		return err
	}
	if len(resp) != 2 {
		return NewProtocolError(cmdRFConfiguration, ErrInvalidResponse, fmt.Sprintf("length %d", len(resp)))
	}
	return nil
}

// RFOff switches the RF field off. The selected card is forgotten either
// way, since a card without field loses its state.
func (d *Device) RFOff(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rfOff(ctx)
}

func (d *Device) rfOff(ctx context.Context) error {
	d.identity.reset()
	return d.rfConfiguration(ctx, RFItemField, []byte{rfFieldOff})
}

// InListPassiveTarget looks for one target of the given baud rate / type
// and returns the raw response (D5 4B NbTg Tg ...). The current identity is
// cleared first.
func (d *Device) InListPassiveTarget(ctx context.Context, brTy byte, initData []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inListPassiveTarget(ctx, brTy, initData)
}

func (d *Device) inListPassiveTarget(ctx context.Context, brTy byte, initData []byte) ([]byte, error) {
	d.identity.reset()

	args := append(d.buildArgs(inListPassiveMaxTg, brTy), initData...)
	resp, err := d.transport.Command(ctx, cmdInListPassiveTarget, args)
	if err != nil {
		return nil, err
	}
	if len(resp) < 3 || resp[2] != 0x01 {
		return nil, NewCardError("InListPassiveTarget", ErrCardNotFound)
	}
	return resp, nil
}

// InDataExchange sends data to target 1. more sets the MI bit for chained
// exchanges. The status byte is checked and stripped.
func (d *Device) InDataExchange(ctx context.Context, data []byte, more bool) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inDataExchange(ctx, data, more)
}

func (d *Device) inDataExchange(ctx context.Context, data []byte, more bool) ([]byte, error) {
	tg := inDataExchangeTg
	if more {
		tg |= inDataExchangeMI
	}
	resp, err := d.transport.Command(ctx, cmdInDataExchange, append(d.buildArgs(tg), data...))
	if err != nil {
		return nil, err
	}
	return statusData(cmdInDataExchange, resp)
}

// InCommunicateThru sends data to the current target without any protocol
// handling by the reader.
func (d *Device) InCommunicateThru(ctx context.Context, data []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	resp, err := d.transport.Command(ctx, cmdInCommunicateThru, data)
	if err != nil {
		return nil, err
	}
	return statusData(cmdInCommunicateThru, resp)
}

// statusData checks the status byte of a D5 xx status data... response.
func statusData(cmd byte, resp []byte) ([]byte, error) {
	if len(resp) < 3 {
		return nil, NewProtocolError(cmd, ErrInvalidResponse, fmt.Sprintf("length %d", len(resp)))
	}
	if resp[2] != 0x00 {
		return nil, &StatusError{Command: cmd, Status: resp[2]}
	}
	return resp[3:], nil
}

// CommunicateThruEx sends a raw card command (without its length byte,
// which is added here) and returns the card's answer without its length
// byte. timeout is how long the reader waits for the card and is added to
// the host read timeout.
func (d *Device) CommunicateThruEx(ctx context.Context, timeout time.Duration, data []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.communicateThruEx(ctx, timeout, data)
}

func (d *Device) communicateThruEx(ctx context.Context, timeout time.Duration, data []byte) ([]byte, error) {
	ms := timeout.Milliseconds()
	if ms < 0 || ms > 0xFFFF {
		return nil, fmt.Errorf("%w: CommunicateThruEX timeout %v", ErrInvalidParameter, timeout)
	}
	if len(data) > 0xFE {
		return nil, fmt.Errorf("%w: CommunicateThruEX data is %d bytes", ErrDataTooLarge, len(data))
	}

	args := d.buildArgs(byte(ms), byte(ms>>8))
	if len(data) > 0 {
		args = append(args, byte(len(data)+1))
		args = append(args, data...)
	}

	resp, err := d.transport.command(ctx, cmdCommunicateThruEX, args, timeout)
	if err != nil {
		return nil, err
	}

	switch {
	case len(resp) < 3:
		return nil, NewProtocolError(cmdCommunicateThruEX, ErrInvalidResponse, fmt.Sprintf("length %d", len(resp)))
	case len(resp) == 3:
		if resp[2] != 0x00 {
			return nil, &StatusError{Command: cmdCommunicateThruEX, Status: resp[2]}
		}
		return []byte{}, nil
	case resp[2] != 0x00:
		return nil, &StatusError{Command: cmdCommunicateThruEX, Status: resp[2]}
	case resp[3] == 0 || len(resp) != 3+int(resp[3]):
		return nil, NewProtocolError(cmdCommunicateThruEX, ErrInvalidResponse,
			fmt.Sprintf("card length byte %d in %d byte response", resp[3], len(resp)))
	}
	return resp[4 : 3+int(resp[3])], nil
}

// InJumpForDEP activates a target for NFC-DEP and returns the response
// from the status byte on.
func (d *Device) InJumpForDEP(ctx context.Context, ap, br byte, useNFCID3 bool, gt []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inJump(ctx, cmdInJumpForDEP, ap, br, useNFCID3, gt)
}

// InJumpForPSL is InJumpForDEP followed by a PSL bit rate change.
func (d *Device) InJumpForPSL(ctx context.Context, ap, br byte, useNFCID3 bool, gt []byte) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inJump(ctx, cmdInJumpForPSL, ap, br, useNFCID3, gt)
}

var (
	jumpPassiveID106 = []byte{0x08, 0x01, 0x02, 0x03}
	jumpPollingReq   = []byte{0x00, 0xFF, 0xFF, 0x01, 0x00}
)

func (d *Device) inJump(ctx context.Context, cmd, ap, br byte, useNFCID3 bool, gt []byte) ([]byte, error) {
	args := d.buildArgs(ap, br, 0x00)
	const next = 2
	if ap == APPassive {
		args[next] |= 0x01
		if br == BR106K {
			args = append(args, jumpPassiveID106...)
		} else {
			args = append(args, jumpPollingReq...)
		}
	}
	if useNFCID3 {
		args[next] |= 0x02
		args = append(args, d.nfcid3i[:]...)
	}
	if len(gt) > 0 && gt[0] != 0 {
		args[next] |= 0x04
		args = append(args, gt...)
	}

	resp, err := d.transport.Command(ctx, cmd, args)
	if err != nil {
		return nil, err
	}
	if len(resp) == 3 && resp[2] != 0x00 {
		return nil, &StatusError{Command: cmd, Status: resp[2]}
	}
	if len(resp) < minJumpResponse {
		return nil, NewProtocolError(cmd, ErrInvalidResponse, fmt.Sprintf("length %d", len(resp)))
	}
	return resp[2:], nil
}

// SetNFCID3i sets the initiator NFCID3 sent by InJumpForDEP/PSL.
func (d *Device) SetNFCID3i(id [NFCID3Size]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nfcid3i = id
}

// SetNFCID3iFromIDm derives the initiator NFCID3 from an 8 byte NFCID2:
// the IDm followed by two zero bytes.
func (d *Device) SetNFCID3iFromIDm(idm []byte) error {
	id, err := nfcid3FromIDm(idm)
	if err != nil {
		return err
	}
	d.SetNFCID3i(id)
	return nil
}

// NFCID3i returns the initiator NFCID3.
func (d *Device) NFCID3i() [NFCID3Size]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nfcid3i
}

// SetNFCID3t sets the target NFCID3.
func (d *Device) SetNFCID3t(id [NFCID3Size]byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nfcid3t = id
}

// SetNFCID3tFromIDm derives the target NFCID3 from an 8 byte NFCID2.
func (d *Device) SetNFCID3tFromIDm(idm []byte) error {
	id, err := nfcid3FromIDm(idm)
	if err != nil {
		return err
	}
	d.SetNFCID3t(id)
	return nil
}

// NFCID3t returns the target NFCID3.
func (d *Device) NFCID3t() [NFCID3Size]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nfcid3t
}

func nfcid3FromIDm(idm []byte) ([NFCID3Size]byte, error) {
	var id [NFCID3Size]byte
	if len(idm) != NFCID2Size {
		return id, fmt.Errorf("%w: IDm must be %d bytes, got %d", ErrInvalidParameter, NFCID2Size, len(idm))
	}
	copy(id[:], idm)
	return id, nil
}
