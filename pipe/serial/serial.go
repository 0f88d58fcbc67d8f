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

// Package serial opens PN533-family readers attached through a serial
// line: the RC-S620/S module and PN532 HSU boards behind USB-UART bridges.
package serial

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
	"go.bug.st/serial"
)

// BaudRate is the HSU default of the reader chips.
const BaudRate = 115200

// wakeUp is a long preamble: 0x55 then zeros for the chip to come out of
// power down.
var wakeUp = []byte{
	0x55, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// port is the part of serial.Port a Pipe uses.
type port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadTimeout(t time.Duration) error
	Drain() error
	Close() error
}

// Pipe is a pn533.Pipe over a serial port.
type Pipe struct {
	port    port
	name    string
	mu      sync.Mutex
	timeout time.Duration
	closed  bool
}

var _ pn533.Pipe = (*Pipe)(nil)

// Open opens path at 115200 8N1 and wakes the reader up.
func Open(path string) (*Pipe, error) {
	p, err := serial.Open(path, &serial.Mode{
		BaudRate: BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	pipe, err := newPipe(p, path)
	if err != nil {
		_ = p.Close()
		return nil, err
	}
	return pipe, nil
}

func newPipe(p port, name string) (*Pipe, error) {
	pipe := &Pipe{port: p, name: name, timeout: pn533.DefaultIOTimeout}
	if err := pipe.SetTimeout(pipe.timeout); err != nil {
		return nil, err
	}
	n, err := p.Write(wakeUp)
	if err != nil {
		return nil, fmt.Errorf("serial wake up write failed: %w", err)
	}
	if n != len(wakeUp) {
		return nil, fmt.Errorf("serial wake up: wrote %d of %d bytes", n, len(wakeUp))
	}
	if err := pipe.drain("wake up"); err != nil {
		return nil, err
	}
	return pipe, nil
}

// String returns the port path.
func (p *Pipe) String() string { return p.name }

// Write implements pn533.Pipe. It returns once the bytes left the port.
func (p *Pipe) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, pn533.ErrTransportClosed
	}

	n, err := p.port.Write(data)
	if err != nil {
		return n, fmt.Errorf("serial write failed: %w", err)
	}
	return n, p.drain("write")
}

// Read implements pn533.Pipe. A read that times out without data returns
// os.ErrDeadlineExceeded.
func (p *Pipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, pn533.ErrTransportClosed
	}

	n, err := p.port.Read(buf)
	if err != nil {
		return n, fmt.Errorf("serial read failed: %w", err)
	}
	if n == 0 {
		return 0, fmt.Errorf("serial read after %v: %w", p.timeout, os.ErrDeadlineExceeded)
	}
	return n, nil
}

// SetTimeout implements pn533.Pipe.
func (p *Pipe) SetTimeout(timeout time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.port.SetReadTimeout(timeout); err != nil {
		return fmt.Errorf("serial set timeout failed: %w", err)
	}
	p.timeout = timeout
	return nil
}

// Close implements pn533.Pipe.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := p.port.Close(); err != nil {
		return fmt.Errorf("serial close failed: %w", err)
	}
	return nil
}

func isInterruptedSystemCall(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "interrupted system call") ||
		strings.Contains(errStr, "eintr")
}

// drain waits for written bytes to leave the port, retrying drains
// interrupted by signals.
func (p *Pipe) drain(operation string) error {
	const maxRetries = 3
	delay := 2 * time.Millisecond

	var err error
	for attempt := range maxRetries {
		if err = p.port.Drain(); err == nil {
			return nil
		}
		if !isInterruptedSystemCall(err) {
			break
		}
		if attempt < maxRetries-1 {
			time.Sleep(delay)
			delay *= 2
		}
	}
	return fmt.Errorf("serial %s drain failed: %w", operation, err)
}
