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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ZaparooProject/go-pn533/internal/frame"
)

// TraceDirection is TX (host to reader) or RX.
type TraceDirection string

const (
	TraceTX TraceDirection = "TX"
	TraceRX TraceDirection = "RX"
)

// DefaultTraceSize is the number of wire entries kept per exchange.
const DefaultTraceSize = 16

// traceHexLimit caps the bytes rendered per entry.
const traceHexLimit = 32

var commandNames = map[byte]string{
	cmdGetFirmwareVersion:  "GetFirmwareVersion",
	cmdSetParameters:       "SetParameters",
	cmdReset:               "Reset",
	cmdRFConfiguration:     "RFConfiguration",
	cmdInDataExchange:      "InDataExchange",
	cmdInCommunicateThru:   "InCommunicateThru",
	cmdInJumpForPSL:        "InJumpForPSL",
	cmdInListPassiveTarget: "InListPassiveTarget",
	cmdInJumpForDEP:        "InJumpForDEP",
	cmdCommunicateThruEX:   "CommunicateThruEX",
}

// CommandName returns the PN533 name of cmd, or its hex code.
func CommandName(cmd byte) string {
	if name, ok := commandNames[cmd]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", cmd)
}

// TraceEntry is one chunk of bytes seen on the pipe.
type TraceEntry struct {
	Timestamp time.Time
	Direction TraceDirection
	Note      string
	Data      []byte
}

// Kind labels the frame held in Data: "ACK", "error frame", a command
// name for host frames, "<name> response" for reader frames, or "" when
// the bytes do not decode as one frame.
func (e TraceEntry) Kind() string {
	if frame.IsAck(e.Data) {
		return "ACK"
	}
	payload, err := frame.Decode(e.Data)
	if err != nil {
		return ""
	}
	switch {
	case frame.IsErrorFrame(payload):
		return "error frame"
	case len(payload) < 2:
		return ""
	case payload[0] == frame.HostToPn533:
		return CommandName(payload[1])
	default:
		return CommandName(payload[1]-1) + " response"
	}
}

func (e TraceEntry) label() string {
	switch kind := e.Kind(); {
	case kind != "" && e.Note != "":
		return kind + ", " + e.Note
	case kind != "":
		return kind
	default:
		return e.Note
	}
}

func (e TraceEntry) String() string {
	line := fmt.Sprintf("[%s] %s: %s", e.Timestamp.Format("15:04:05.000"), e.Direction, formatHexBytes(e.Data))
	if label := e.label(); label != "" {
		line += " (" + label + ")"
	}
	return line
}

// TraceableError carries the wire trace of the exchange that failed.
//
//	var te *pn533.TraceableError
//	if errors.As(err, &te) {
//		log.Printf("Wire trace:\n%s", te.FormatTrace())
//	}
type TraceableError struct {
	Err   error
	Pipe  string
	Trace []TraceEntry
}

func (e *TraceableError) Error() string { return e.Err.Error() }

func (e *TraceableError) Unwrap() error { return e.Err }

// FormatTrace renders the trace one entry per line, ">" for TX and "<"
// for RX.
func (e *TraceableError) FormatTrace() string {
	if len(e.Trace) == 0 {
		return fmt.Sprintf("[%s] (no trace data)", e.Pipe)
	}

	var sb strings.Builder
	_, _ = fmt.Fprintf(&sb, "[%s] Wire trace (%d entries):\n", e.Pipe, len(e.Trace))
	for _, entry := range e.Trace {
		arrow := ">"
		if entry.Direction == TraceRX {
			arrow = "<"
		}
		_, _ = fmt.Fprintf(&sb, "  %s %s", arrow, formatHexBytes(entry.Data))
		if label := entry.label(); label != "" {
			_, _ = fmt.Fprintf(&sb, "  %s", label)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatHexBytes(data []byte) string {
	if len(data) == 0 {
		return "(empty)"
	}
	if len(data) > traceHexLimit {
		return fmt.Sprintf("% X ... (%d bytes total)", data[:traceHexLimit], len(data))
	}
	return fmt.Sprintf("% X", data)
}

// TraceBuffer keeps the last entries of the current exchange. The
// transport clears it at the start of every command.
type TraceBuffer struct {
	pipe    string
	entries []TraceEntry
	next    int
	full    bool
}

// NewTraceBuffer returns a ring of size entries (DefaultTraceSize when
// size is not positive).
func NewTraceBuffer(pipe string, size int) *TraceBuffer {
	if size <= 0 {
		size = DefaultTraceSize
	}
	return &TraceBuffer{pipe: pipe, entries: make([]TraceEntry, size)}
}

func (tb *TraceBuffer) RecordTX(data []byte, note string) { tb.record(TraceTX, data, note) }

func (tb *TraceBuffer) RecordRX(data []byte, note string) { tb.record(TraceRX, data, note) }

// RecordTimeout notes a read that expired without data.
func (tb *TraceBuffer) RecordTimeout(note string) { tb.record(TraceRX, nil, "TIMEOUT: "+note) }

func (tb *TraceBuffer) record(dir TraceDirection, data []byte, note string) {
	tb.entries[tb.next] = TraceEntry{
		Timestamp: time.Now(),
		Direction: dir,
		Note:      note,
		Data:      append([]byte(nil), data...),
	}
	tb.next = (tb.next + 1) % len(tb.entries)
	if tb.next == 0 {
		tb.full = true
	}
}

// Entries returns the recorded entries, oldest first.
func (tb *TraceBuffer) Entries() []TraceEntry {
	if !tb.full {
		return append([]TraceEntry(nil), tb.entries[:tb.next]...)
	}
	out := make([]TraceEntry, 0, len(tb.entries))
	out = append(out, tb.entries[tb.next:]...)
	return append(out, tb.entries[:tb.next]...)
}

// WrapError attaches the current entries to err. A nil err stays nil.
func (tb *TraceBuffer) WrapError(err error) error {
	if err == nil {
		return nil
	}
	return &TraceableError{Err: err, Pipe: tb.pipe, Trace: tb.Entries()}
}

func (tb *TraceBuffer) Clear() {
	clear(tb.entries)
	tb.next = 0
	tb.full = false
}

// HasTrace reports whether err carries a wire trace.
func HasTrace(err error) bool {
	return GetTrace(err) != nil
}

// GetTrace extracts the wire trace from err, or nil.
func GetTrace(err error) *TraceableError {
	var te *TraceableError
	if errors.As(err, &te) {
		return te
	}
	return nil
}
