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
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ZaparooProject/go-pn533/internal/frame"
)

// Pipe is the duplex byte channel the reader is attached through: a USB
// bulk endpoint pair, a serial line, or a simulator in tests. Read may
// return a whole frame per call or any part of the byte stream.
type Pipe interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	SetTimeout(timeout time.Duration) error
	Close() error
}

// DefaultIOTimeout bounds every single pipe read or write.
const DefaultIOTimeout = 500 * time.Millisecond

// Transport runs the host side of the framing protocol: one command frame
// out, one ACK in, one response frame in. It is not safe for concurrent
// use; Device serializes access to it.
type Transport struct {
	pipe      Pipe
	trace     *TraceBuffer
	metrics   *Metrics
	name      string
	payload   []byte
	txBuf     []byte
	rxBuf     []byte
	pending   []byte
	frameBuf  []byte
	ioTimeout time.Duration
}

// NewTransport creates a framing engine over pipe. A nil pipe leaves the
// transport detached until SetPipe is called.
func NewTransport(pipe Pipe, ioTimeout time.Duration, traceSize int, metrics *Metrics) *Transport {
	if ioTimeout <= 0 {
		ioTimeout = DefaultIOTimeout
	}
	t := &Transport{
		ioTimeout: ioTimeout,
		metrics:   metrics,
		payload:   make([]byte, 0, frame.MaxPayloadLength),
		txBuf:     make([]byte, 0, frame.MaxFrameLength),
		rxBuf:     make([]byte, frame.MaxFrameLength),
		pending:   make([]byte, 0, 2*frame.MaxFrameLength),
		frameBuf:  make([]byte, frame.MaxFrameLength),
	}
	t.trace = NewTraceBuffer("", traceSize)
	t.SetPipe(pipe)
	return t
}

// SetPipe swaps the underlying pipe. Nil detaches the transport.
func (t *Transport) SetPipe(pipe Pipe) {
	t.pipe = pipe
	t.pending = t.pending[:0]
	t.name = pipeName(pipe)
	t.trace.pipe = t.name
}

// Attached reports whether a pipe is present.
func (t *Transport) Attached() bool {
	return t.pipe != nil
}

// Close closes the underlying pipe and detaches the transport.
func (t *Transport) Close() error {
	if t.pipe == nil {
		return nil
	}
	err := t.pipe.Close()
	t.SetPipe(nil)
	if err != nil {
		return fmt.Errorf("failed to close pipe: %w", err)
	}
	return nil
}

func pipeName(pipe Pipe) string {
	if pipe == nil {
		return "detached"
	}
	if s, ok := pipe.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", pipe)
}

// Command sends cmd with args (the D4 TFI is added here) and returns the
// response payload starting with the D5 TFI and the cmd+1 echo.
func (t *Transport) Command(ctx context.Context, cmd byte, args []byte) ([]byte, error) {
	return t.command(ctx, cmd, args, 0)
}

// Transmit sends a raw payload (TFI, command, data) and returns the raw
// response payload. It is the escape hatch for commands this package does
// not wrap.
func (t *Transport) Transmit(ctx context.Context, payload []byte) ([]byte, error) {
	if len(payload) < 2 || payload[0] != frame.HostToPn533 {
		return nil, fmt.Errorf("%w: payload must start with TFI D4 and a command", ErrInvalidParameter)
	}
	return t.transmit(ctx, payload, 0)
}

// command is Command with extra time added to the response read, for
// commands where the reader itself waits on the card.
func (t *Transport) command(ctx context.Context, cmd byte, args []byte, wait time.Duration) ([]byte, error) {
	if 2+len(args) > frame.MaxPayloadLength {
		return nil, NewTransportError("Command", t.name, ErrDataTooLarge, ErrorTypePermanent)
	}
	t.payload = append(t.payload[:0], frame.HostToPn533, cmd)
	t.payload = append(t.payload, args...)
	return t.transmit(ctx, t.payload, wait)
}

func (t *Transport) transmit(ctx context.Context, payload []byte, wait time.Duration) ([]byte, error) {
	if t.pipe == nil {
		return nil, NewTransportError("transmit", t.name, ErrDeviceDetached, ErrorTypePermanent)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("transmit cancelled: %w", err)
	}

	cmd := payload[1]
	t.trace.Clear()
	resp, err := t.exchange(payload, wait)
	t.metrics.observeCommand(cmd, err)
	if err != nil {
		Debugf("command 0x%02X failed: %v", cmd, err)
		return nil, t.trace.WrapError(err)
	}
	return resp, nil
}

func (t *Transport) exchange(payload []byte, wait time.Duration) ([]byte, error) {
	cmd := payload[1]

	var err error
	t.txBuf, err = frame.AppendEncode(t.txBuf[:0], payload)
	if err != nil {
		return nil, NewTransportError("encode", t.name, fmt.Errorf("%w: %w", ErrDataTooLarge, err), ErrorTypePermanent)
	}

	// stale bytes belong to an exchange that was already given up on
	t.pending = t.pending[:0]
	if err := t.write(t.txBuf, fmt.Sprintf("cmd 0x%02X", cmd)); err != nil {
		return nil, err
	}

	ack, err := t.readFrame(t.ioTimeout, "ACK")
	if err != nil {
		return nil, t.abort(err)
	}
	if !frame.IsAck(ack) {
		return nil, t.abort(NewFrameError("wait ACK", ErrNoACK, nil))
	}

	raw, err := t.readFrame(t.ioTimeout+wait, "response")
	if err != nil {
		return nil, t.abort(err)
	}

	resp, err := frame.Decode(raw)
	switch {
	case err != nil:
		return nil, t.abort(frameError("decode response", err))
	case frame.IsErrorFrame(resp):
		return nil, t.abort(NewFrameError("decode response", ErrErrorFrame, nil))
	case resp[0] != frame.Pn533ToHost:
		return nil, t.abort(NewFrameError("decode response", ErrFrameCorrupted,
			fmt.Errorf("unexpected TFI 0x%02X", resp[0])))
	case len(resp) < 2 || resp[1] != cmd+1:
		return nil, t.abort(NewProtocolError(cmd, ErrInvalidResponse, "response does not echo command"))
	}

	return append([]byte(nil), resp...), nil
}

// abort writes an ACK after a failed receive so the reader drops whatever
// it still holds, then returns err. Pipe failures skip the ACK.
func (t *Transport) abort(err error) error {
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	var fe *FrameError
	if errors.As(err, &fe) {
		t.metrics.observeFrameError(fe.Reason)
	}
	if ackErr := t.write(frame.AckFrame, "ACK"); ackErr != nil {
		Debugf("ACK after failed exchange not sent: %v", ackErr)
	}
	return err
}

func (t *Transport) write(data []byte, note string) error {
	if err := t.pipe.SetTimeout(t.ioTimeout); err != nil {
		return NewTransportError("set timeout", t.name, err, ErrorTypePermanent)
	}
	t.trace.RecordTX(data, note)
	n, err := t.pipe.Write(data)
	if err != nil {
		return t.pipeError("write", ErrTransportWrite, err)
	}
	if n != len(data) {
		return NewTransportError("write", t.name,
			fmt.Errorf("%w: wrote %d of %d bytes", ErrTransportWrite, n, len(data)), ErrorTypeTransient)
	}
	return nil
}

// readFrame returns the next complete frame from the pipe, accumulating
// partial reads. The returned slice is valid until the next readFrame.
func (t *Transport) readFrame(timeout time.Duration, note string) ([]byte, error) {
	if err := t.pipe.SetTimeout(timeout); err != nil {
		return nil, NewTransportError("set timeout", t.name, err, ErrorTypePermanent)
	}

	for {
		size, err := frameSize(t.pending)
		if err != nil {
			t.trace.RecordRX(t.pending, "invalid "+note)
			t.pending = t.pending[:0]
			return nil, err
		}
		if size > 0 && len(t.pending) >= size {
			raw := t.frameBuf[:size]
			copy(raw, t.pending)
			t.pending = t.pending[:copy(t.pending, t.pending[size:])]
			t.trace.RecordRX(raw, note)
			return raw, nil
		}

		n, err := t.pipe.Read(t.rxBuf)
		if err != nil {
			return nil, t.pipeError("read "+note, ErrTransportRead, err)
		}
		if n == 0 {
			t.trace.RecordTimeout(note)
			return nil, NewTransportError("read "+note, t.name,
				fmt.Errorf("%w: no data", ErrTransportRead), ErrorTypeTransient)
		}
		t.pending = append(t.pending, t.rxBuf[:n]...)
	}
}

// pipeError classifies an error returned by the pipe.
func (t *Transport) pipeError(op string, sentinel, err error) error {
	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded):
		t.trace.RecordTimeout(op)
		return NewTransportError(op, t.name, fmt.Errorf("%w: %w", ErrTransportTimeout, err), ErrorTypeTimeout)
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrClosedPipe), errors.Is(err, ErrTransportClosed), isDeviceGoneError(err):
		return NewTransportError(op, t.name, err, ErrorTypePermanent)
	default:
		return NewTransportError(op, t.name, fmt.Errorf("%w: %w", sentinel, err), ErrorTypeTransient)
	}
}

var framePrefix = []byte{frame.Preamble, frame.StartCode1, frame.StartCode2}

// frameSize returns the total size of the frame at the start of buf, or 0
// when more bytes are needed to tell.
func frameSize(buf []byte) (int, error) {
	for i := 0; i < len(buf) && i < len(framePrefix); i++ {
		if buf[i] != framePrefix[i] {
			return 0, NewFrameError("read frame", ErrFrameCorrupted, frame.ErrBadPreamble)
		}
	}
	if len(buf) < frame.HeaderLength {
		return 0, nil
	}
	length, err := frame.ValidateHeader(buf)
	if err != nil {
		return 0, frameError("read frame", err)
	}
	if length == 0 {
		return len(frame.AckFrame), nil
	}
	return frame.HeaderLength + length + 2, nil
}

// frameError maps a decoder error onto the FrameError reasons.
func frameError(op string, err error) *FrameError {
	switch {
	case errors.Is(err, frame.ErrExtendedFrame):
		return NewFrameError(op, ErrExtendedFrame, err)
	case errors.Is(err, frame.ErrLengthChecksum), errors.Is(err, frame.ErrDataChecksum):
		return NewFrameError(op, ErrChecksumMismatch, err)
	default:
		return NewFrameError(op, ErrFrameCorrupted, err)
	}
}
