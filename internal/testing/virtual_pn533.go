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

// Package testing provides a packet level PN533 simulator for tests.
//
// VirtualPN533 implements the pn533.Pipe method set. Frames written to it
// are decoded, acknowledged and answered from a set of virtual targets
// (FeliCa, FeliCa Lite, MIFARE Classic, NFC-B), so the whole stack from
// frame encoding to card commands can run without hardware. Faults can be
// injected one exchange at a time and every received frame is journaled.
package testing

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/ZaparooProject/go-pn533/internal/frame"
	"github.com/ZaparooProject/go-pn533/internal/syncutil"
)

// Reader command codes the simulator answers.
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

// Status codes returned in the status byte of card related responses.
const (
	StatusOK          byte = 0x00
	StatusTimeout     byte = 0x01
	StatusMifareAuth  byte = 0x14
	StatusInvalidParm byte = 0x10
	StatusCommand     byte = 0x27
)

// Modulations carried in InListPassiveTarget's BrTy byte.
const (
	BrTy106A  byte = 0x00
	BrTy212F  byte = 0x01
	BrTy424F  byte = 0x02
	BrTy106B  byte = 0x03
	rfItemRF  byte = 0x01
	rfFieldOn byte = 0x01
)

// Target is a card in the simulated field.
type Target interface {
	// Poll answers InListPassiveTarget for brTy. It returns the target
	// data that follows the Tg byte, or false when the target stays silent.
	Poll(brTy byte, initData []byte) ([]byte, bool)
	// Exchange handles a command relayed to the selected target. A non
	// zero status is reported by the reader and resp is ignored.
	Exchange(cmd []byte) (resp []byte, status byte)
}

// Fault is a one shot misbehaviour applied to the next command.
type Fault int

const (
	// FaultNone answers normally.
	FaultNone Fault = iota
	// FaultDropACK answers without sending the ACK first.
	FaultDropACK
	// FaultBadChecksum corrupts the response's data checksum.
	FaultBadChecksum
	// FaultExtendedFrame answers with an extended frame header.
	FaultExtendedFrame
	// FaultErrorFrame answers with the application error frame.
	FaultErrorFrame
	// FaultWrongEcho answers with a mismatched command echo.
	FaultWrongEcho
	// FaultSilent swallows the command: no ACK and no response.
	FaultSilent
)

// VirtualPN533 simulates a PN533 reader at the frame level.
type VirtualPN533 struct {
	selected  Target
	targets   []Target
	frames    [][]byte
	faults    []Fault
	failPolls map[byte]int
	nfcid3t   []byte
	rx        bytes.Buffer
	tx        bytes.Buffer
	timeout   time.Duration
	mu        syncutil.Mutex
	rfOn      bool
	closed    bool
}

// NewVirtualPN533 creates a simulator with the given targets in its field.
func NewVirtualPN533(targets ...Target) *VirtualPN533 {
	return &VirtualPN533{
		targets:   targets,
		failPolls: make(map[byte]int),
	}
}

func (*VirtualPN533) String() string { return "virtual-pn533" }

// Write receives bytes from the host and answers every complete frame.
func (v *VirtualPN533) Write(data []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, io.ErrClosedPipe
	}
	v.rx.Write(data)
	v.process()
	return len(data), nil
}

// Read hands out pending response bytes. With nothing pending it reports
// a deadline error, the way a real pipe does once its timeout expires.
func (v *VirtualPN533) Read(buf []byte) (int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0, io.EOF
	}
	if v.tx.Len() == 0 {
		return 0, os.ErrDeadlineExceeded
	}
	n, _ := v.tx.Read(buf)
	return n, nil
}

// SetTimeout records the timeout; the simulator never blocks.
func (v *VirtualPN533) SetTimeout(timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.timeout = timeout
	return nil
}

// Timeout returns the last timeout set by the host.
func (v *VirtualPN533) Timeout() time.Duration {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.timeout
}

// Close closes the pipe; later reads and writes fail.
func (v *VirtualPN533) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	return nil
}

// Closed reports whether Close was called.
func (v *VirtualPN533) Closed() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closed
}

// SetTargets replaces the targets in the field and deselects.
func (v *VirtualPN533) SetTargets(targets ...Target) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.targets = targets
	v.selected = nil
}

// Inject queues faults, one per following command.
func (v *VirtualPN533) Inject(faults ...Fault) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.faults = append(v.faults, faults...)
}

// FailPolls makes the next n InListPassiveTarget commands for brTy find
// no target.
func (v *VirtualPN533) FailPolls(brTy byte, n int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.failPolls[brTy] = n
}

// SetDEPTarget puts an NFC-DEP target with the given NFCID3 in the field.
func (v *VirtualPN533) SetDEPTarget(nfcid3 []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.nfcid3t = append([]byte(nil), nfcid3...)
}

// Frames returns copies of every raw frame received from the host,
// ACK frames included.
func (v *VirtualPN533) Frames() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make([][]byte, len(v.frames))
	for i, f := range v.frames {
		out[i] = append([]byte(nil), f...)
	}
	return out
}

// Commands returns the command codes received, in order.
func (v *VirtualPN533) Commands() []byte {
	v.mu.Lock()
	defer v.mu.Unlock()
	var out []byte
	for _, f := range v.frames {
		if p, err := frame.Decode(f); err == nil && len(p) >= 2 {
			out = append(out, p[1])
		}
	}
	return out
}

// CountCommand returns how many times cmd was received.
func (v *VirtualPN533) CountCommand(cmd byte) int {
	n := 0
	for _, c := range v.Commands() {
		if c == cmd {
			n++
		}
	}
	return n
}

// RFOn reports whether the host left the RF field on.
func (v *VirtualPN533) RFOn() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rfOn
}

// AckCount returns how many ACK frames the host sent.
func (v *VirtualPN533) AckCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	n := 0
	for _, f := range v.frames {
		if frame.IsAck(f) {
			n++
		}
	}
	return n
}

func (v *VirtualPN533) process() {
	for {
		data := v.rx.Bytes()
		if len(data) < frame.MinFrameLength {
			return
		}
		if frame.IsAck(data[:frame.MinFrameLength]) {
			v.frames = append(v.frames, append([]byte(nil), data[:frame.MinFrameLength]...))
			v.rx.Next(frame.MinFrameLength)
			continue
		}
		length, err := frame.ValidateHeader(data)
		if err != nil {
			// resynchronise on the next byte
			v.rx.Next(1)
			continue
		}
		size := frame.HeaderLength + length + 2
		if len(data) < size {
			return
		}
		raw := append([]byte(nil), data[:size]...)
		v.rx.Next(size)
		v.frames = append(v.frames, raw)

		payload, err := frame.Decode(raw)
		if err != nil || len(payload) < 2 || payload[0] != frame.HostToPn533 {
			continue
		}
		v.answer(payload[1], payload[2:])
	}
}

func (v *VirtualPN533) nextFault() Fault {
	if len(v.faults) == 0 {
		return FaultNone
	}
	f := v.faults[0]
	v.faults = v.faults[1:]
	return f
}

func (v *VirtualPN533) answer(cmd byte, params []byte) {
	fault := v.nextFault()
	if fault == FaultSilent {
		return
	}
	if fault != FaultDropACK {
		v.tx.Write(frame.AckFrame)
	}

	data := v.handle(cmd, params)
	echo := cmd + 1
	if fault == FaultWrongEcho {
		echo++
	}
	payload := append([]byte{frame.Pn533ToHost, echo}, data...)

	switch fault {
	case FaultExtendedFrame:
		v.tx.Write([]byte{0x00, 0x00, 0xFF, 0xFF, 0xFF, 0x00, 0x02, 0xFE, frame.Pn533ToHost, echo, 0x00, 0x00})
	case FaultErrorFrame:
		v.tx.Write([]byte{0x00, 0x00, 0xFF, 0x01, 0xFF, frame.ErrorFrame, 0x81, 0x00})
	case FaultBadChecksum:
		raw, _ := frame.Encode(payload)
		raw[len(raw)-2]++
		v.tx.Write(raw)
	default:
		raw, _ := frame.Encode(payload)
		v.tx.Write(raw)
	}
}

// handle returns the response data following D5 and the echo.
func (v *VirtualPN533) handle(cmd byte, params []byte) []byte {
	switch cmd {
	case cmdRFConfiguration:
		if len(params) >= 2 && params[0] == rfItemRF {
			v.rfOn = params[1]&rfFieldOn != 0
			if !v.rfOn {
				v.selected = nil
			}
		}
		return nil
	case cmdGetFirmwareVersion:
		// PN533 v1.48, ISO/IEC 14443 A and B plus ISO 18092
		return []byte{0x33, 0x01, 0x30, 0x07}
	case cmdReset, cmdSetParameters:
		return nil
	case cmdInListPassiveTarget:
		return v.inListPassiveTarget(params)
	case cmdInDataExchange:
		if len(params) < 1 {
			return []byte{StatusInvalidParm}
		}
		return v.exchange(params[1:])
	case cmdInCommunicateThru:
		return v.exchange(params)
	case cmdCommunicateThruEX:
		return v.communicateThruEx(params)
	case cmdInJumpForDEP, cmdInJumpForPSL:
		return v.inJump()
	default:
		return []byte{StatusCommand}
	}
}

func (v *VirtualPN533) inListPassiveTarget(params []byte) []byte {
	if len(params) < 2 {
		return []byte{0x00}
	}
	brTy, initData := params[1], params[2:]
	v.selected = nil
	if n := v.failPolls[brTy]; n > 0 {
		v.failPolls[brTy] = n - 1
		return []byte{0x00}
	}
	for _, t := range v.targets {
		if data, ok := t.Poll(brTy, initData); ok {
			v.selected = t
			v.rfOn = true
			return append([]byte{0x01, 0x01}, data...)
		}
	}
	return []byte{0x00}
}

func (v *VirtualPN533) exchange(data []byte) []byte {
	if v.selected == nil {
		return []byte{StatusTimeout}
	}
	resp, status := v.selected.Exchange(data)
	if status != StatusOK {
		return []byte{status}
	}
	return append([]byte{StatusOK}, resp...)
}

// communicateThruEx unpacks timeout(2) len data; len counts itself.
func (v *VirtualPN533) communicateThruEx(params []byte) []byte {
	if len(params) < 3 || int(params[2]) != len(params)-2 {
		return []byte{StatusInvalidParm}
	}
	if v.selected == nil {
		return []byte{StatusTimeout}
	}
	resp, status := v.selected.Exchange(params[3:])
	if status != StatusOK {
		return []byte{status}
	}
	return append([]byte{StatusOK, byte(len(resp) + 1)}, resp...)
}

// inJump answers Status Tg NFCID3t DIDt BSt BRt TO PPt.
func (v *VirtualPN533) inJump() []byte {
	if v.nfcid3t == nil {
		return []byte{StatusTimeout}
	}
	out := []byte{StatusOK, 0x01}
	out = append(out, v.nfcid3t...)
	return append(out, 0x00, 0x00, 0x00, 0x0E, 0x32)
}
