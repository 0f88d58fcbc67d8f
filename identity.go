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
	"encoding/hex"
	"fmt"
)

// IDType says which kind of NFCID the current card identity holds.
type IDType int

const (
	// IDNone means no card is selected.
	IDNone IDType = iota
	// IDNFCID0 is an NFC-B PUPI.
	IDNFCID0
	// IDNFCID1 is an NFC-A UID.
	IDNFCID1
	// IDNFCID2 is a FeliCa IDm.
	IDNFCID2
	// IDNFCID3 is an NFC-DEP identifier.
	IDNFCID3
)

func (t IDType) String() string {
	switch t {
	case IDNone:
		return "none"
	case IDNFCID0:
		return "NFCID0"
	case IDNFCID1:
		return "NFCID1"
	case IDNFCID2:
		return "NFCID2"
	case IDNFCID3:
		return "NFCID3"
	default:
		return fmt.Sprintf("IDType(%d)", int(t))
	}
}

// Identifier sizes
const (
	NFCID2Size   = 8
	NFCID3Size   = 10
	MaxNFCIDSize = 12
)

// SEL_RES values reported by NFC-A polling.
const (
	SelResMifareUltralight byte = 0x00
	SelResMifare1K         byte = 0x08
	SelResMifareMini       byte = 0x09
	SelResMifare4K         byte = 0x18
	SelResMifareDESFire    byte = 0x20
	SelResJCOP30           byte = 0x28
	SelResGemplusMPCOS     byte = 0x98
	SelResUnknown          byte = 0xFF
)

var selResLabels = map[byte]string{
	SelResMifareUltralight: "MIFARE Ultralight",
	SelResMifare1K:         "MIFARE 1K",
	SelResMifareMini:       "MIFARE MINI",
	SelResMifare4K:         "MIFARE 4K",
	SelResMifareDESFire:    "MIFARE DESFIRE",
	SelResJCOP30:           "JCOP30",
	SelResGemplusMPCOS:     "Gemplus MPCOS",
}

// selResLabel maps a SEL_RES to its label, collapsing unknown values to
// SelResUnknown.
func selResLabel(selRes byte) (byte, string) {
	if label, ok := selResLabels[selRes]; ok {
		return selRes, label
	}
	return SelResUnknown, "unknown"
}

// CardIdentity describes the card most recently selected by a poll. The
// zero value is "no card".
type CardIdentity struct {
	Label   string
	ID      [MaxNFCIDSize]byte
	PMm     [8]byte
	Length  int
	Type    IDType
	SensRes uint16 // SENS_RES for NFC-A, system code for NFC-F
	SelRes  byte
}

// Present reports whether a card is selected.
func (c CardIdentity) Present() bool {
	return c.Type != IDNone
}

// IDBytes returns a copy of the identifier.
func (c CardIdentity) IDBytes() []byte {
	return append([]byte(nil), c.ID[:c.Length]...)
}

// IDm returns the FeliCa IDm, or nil when the identity is not NFCID2.
func (c CardIdentity) IDm() []byte {
	if c.Type != IDNFCID2 {
		return nil
	}
	return c.IDBytes()
}

// String formats the identity for logs.
func (c CardIdentity) String() string {
	if !c.Present() {
		return "no card"
	}
	return fmt.Sprintf("%s %s (%s)", c.Type, hex.EncodeToString(c.ID[:c.Length]), c.Label)
}

func (c *CardIdentity) reset() {
	*c = CardIdentity{}
}
