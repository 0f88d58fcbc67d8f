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

import "time"

// Reader command codes
const (
	cmdGetFirmwareVersion  = 0x02
	cmdSetParameters       = 0x12
	cmdReset               = 0x18
	cmdRFConfiguration     = 0x32
	cmdInDataExchange      = 0x40
	cmdInCommunicateThru   = 0x42
	cmdInJumpForPSL        = 0x46
	cmdInListPassiveTarget = 0x4A
	cmdInJumpForDEP        = 0x56
	cmdCommunicateThruEX   = 0xA0
)

// RFConfiguration items
const (
	RFItemField        byte = 0x01
	RFItemTimings      byte = 0x02
	RFItemMaxRetryCOM  byte = 0x04
	RFItemMaxRetries   byte = 0x05
	RFItemWaitTime     byte = 0x81
	rfFieldOff         byte = 0x00
	inDataExchangeTg   byte = 0x01
	inDataExchangeMI   byte = 0x40
	inListPassiveMaxTg byte = 0x01
)

// Activation modes and bit rates for InJumpForDEP / InJumpForPSL and
// InListPassiveTarget.
const (
	APPassive byte = 0x01
	APActive  byte = 0x02

	BR106K byte = 0x00
	BR212K byte = 0x01
	BR424K byte = 0x02

	// BRTypeB selects 106 kbps ISO/IEC 14443-3B in InListPassiveTarget.
	BRTypeB byte = 0x03
)

// Timeouts handed to the reader for CommunicateThruEX, in addition to the
// host side I/O timeout.
const (
	DefaultCommunicateTimeout = 2000 * time.Millisecond
	PushTimeout               = 4200 * time.Millisecond
)

// minJumpResponse is the shortest valid InJumpForDEP/PSL answer: header,
// status, Tg and a bare ATR_RES.
const minJumpResponse = 19
