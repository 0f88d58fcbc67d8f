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

// System codes
const (
	SystemCodeCybernetics uint16 = 0x0003
	SystemCodeNDEF        uint16 = 0x12FC
	SystemCodeFeliCaLite  uint16 = 0x88B4
	SystemCodeCommon      uint16 = 0xFE00
	SystemCodeWildcard    uint16 = 0xFFFF
)

// FeliCa polling request codes
const (
	RequestNone       byte = 0x00
	RequestSystemCode byte = 0x01
	RequestBitRate    byte = 0x02
)

// Offsets into an InListPassiveTarget response (D5 4B NbTg Tg ...).
const (
	offTargetData = 4

	offSensRes  = 4
	offSelRes   = 6
	offNFCID1L  = 7
	offNFCID1   = 8
	typeBIDSize = 12

	offPolResLen  = 4
	offPolResCode = 5
	offIDm        = 6
	offPMm        = 14
	offSysCode    = 22
	minPolResLen  = 0x12
	polResCode    = 0x01
)

// PollingA looks for an NFC-A (ISO/IEC 14443-3A) card at 106 kbps.
func (d *Device) PollingA(ctx context.Context) (CardIdentity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.pollingA(ctx)
	d.metrics.observePoll("A", err)
	return d.identity, err
}

func (d *Device) pollingA(ctx context.Context) error {
	resp, err := d.inListPassiveTarget(ctx, BR106K, nil)
	if err != nil {
		return err
	}
	if len(resp) < offNFCID1 {
		return NewProtocolError(cmdInListPassiveTarget, ErrInvalidResponse, fmt.Sprintf("NFC-A target of %d bytes", len(resp)))
	}
	idLen := int(resp[offNFCID1L])
	if idLen > MaxNFCIDSize || len(resp) < offNFCID1+idLen {
		return NewProtocolError(cmdInListPassiveTarget, ErrInvalidResponse, fmt.Sprintf("NFCID1 length %d", idLen))
	}

	id := CardIdentity{
		Type:    IDNFCID1,
		Length:  idLen,
		SensRes: uint16(resp[offSensRes])<<8 | uint16(resp[offSensRes+1]),
	}
	id.SelRes, id.Label = selResLabel(resp[offSelRes])
	copy(id.ID[:], resp[offNFCID1:offNFCID1+idLen])
	d.identity = id
	Debugf("NFC-A card: %s SENS_RES=%04X", id, id.SensRes)
	return nil
}

// PollingB looks for an NFC-B (ISO/IEC 14443-3B) card at 106 kbps.
func (d *Device) PollingB(ctx context.Context) (CardIdentity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.pollingB(ctx)
	d.metrics.observePoll("B", err)
	return d.identity, err
}

func (d *Device) pollingB(ctx context.Context) error {
	// AFI 0x00: all application families
	resp, err := d.inListPassiveTarget(ctx, BRTypeB, []byte{0x00})
	if err != nil {
		return err
	}
	if len(resp) < offTargetData+typeBIDSize {
		return NewProtocolError(cmdInListPassiveTarget, ErrInvalidResponse, fmt.Sprintf("NFC-B target of %d bytes", len(resp)))
	}

	id := CardIdentity{Type: IDNFCID0, Length: typeBIDSize, Label: "NFC-B"}
	copy(id.ID[:], resp[offTargetData:offTargetData+typeBIDSize])
	d.identity = id
	Debugf("NFC-B card: %s", id)
	return nil
}

// PollingF looks for a FeliCa card answering systemCode, first at
// 424 kbps and then once more at 212 kbps. With requestCode 0x01 the card's
// system code ends up in the identity's SensRes.
func (d *Device) PollingF(ctx context.Context, systemCode uint16, requestCode byte) (CardIdentity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	err := d.pollingF(ctx, systemCode, requestCode)
	d.metrics.observePoll("F", err)
	return d.identity, err
}

// PollingFeliCa is PollingF asking for the system code.
func (d *Device) PollingFeliCa(ctx context.Context, systemCode uint16) (CardIdentity, error) {
	return d.PollingF(ctx, systemCode, RequestSystemCode)
}

func (d *Device) pollingF(ctx context.Context, systemCode uint16, requestCode byte) error {
	polReq := []byte{0x00, byte(systemCode >> 8), byte(systemCode), requestCode, 0x00}

	resp, err := d.inListPassiveTarget(ctx, BR424K, polReq)
	if err == nil {
		err = checkPolRes(resp, requestCode)
	}
	if err != nil {
		Debugf("FeliCa polling at 424 kbps failed, retrying at 212 kbps: %v", err)
		resp, err = d.inListPassiveTarget(ctx, BR212K, polReq)
		if err == nil {
			err = checkPolRes(resp, requestCode)
		}
		if err != nil {
			return err
		}
	}

	id := CardIdentity{Type: IDNFCID2, Length: NFCID2Size, Label: "FeliCa"}
	copy(id.ID[:], resp[offIDm:offIDm+NFCID2Size])
	copy(id.PMm[:], resp[offPMm:offPMm+8])
	if requestCode == RequestSystemCode {
		id.SensRes = uint16(resp[offSysCode])<<8 | uint16(resp[offSysCode+1])
	}
	d.identity = id
	Debugf("FeliCa card: %s system=%04X", id, id.SensRes)
	return nil
}

func checkPolRes(resp []byte, requestCode byte) error {
	want := offSysCode
	if requestCode == RequestSystemCode {
		want += 2
	}
	if len(resp) < want || resp[3] != 0x01 || resp[offPolResLen] < minPolResLen || resp[offPolResCode] != polResCode {
		return NewCardError("FeliCa polling", ErrCardNotFound)
	}
	return nil
}
