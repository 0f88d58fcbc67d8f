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

// Package usb opens PN533 readers over USB bulk endpoints with gousb.
// On Linux the kernel's pn533 driver is detached from the interface while
// the pipe is open.
package usb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/google/gousb"
)

// ID is a USB vendor and product pair.
type ID struct {
	Vendor  gousb.ID
	Product gousb.ID
	Name    string
}

// KnownReaders are the PN533 based readers Open looks for.
var KnownReaders = []ID{
	{Vendor: 0x054C, Product: 0x02E1, Name: "Sony RC-S370/RC-S330"},
	{Vendor: 0x04CC, Product: 0x2533, Name: "NXP PN533"},
	{Vendor: 0x04E6, Product: 0x5591, Name: "SCM SCL3711"},
}

// ErrNoReader is returned when no known reader is attached.
var ErrNoReader = errors.New("no PN533 USB reader found")

func knownReader(desc *gousb.DeviceDesc) (ID, bool) {
	for _, id := range KnownReaders {
		if desc.Vendor == id.Vendor && desc.Product == id.Product {
			return id, true
		}
	}
	return ID{}, false
}

// DeviceInfo describes an attached reader.
type DeviceInfo struct {
	ID
	Bus     int
	Address int
}

// Path is the "bus/address" form accepted by Open.
func (d DeviceInfo) Path() string {
	return fmt.Sprintf("%03d/%03d", d.Bus, d.Address)
}

// List returns the attached known readers without opening them.
func List() ([]DeviceInfo, error) {
	ctx := gousb.NewContext()
	defer func() { _ = ctx.Close() }()

	var found []DeviceInfo
	_, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if id, ok := knownReader(desc); ok {
			found = append(found, DeviceInfo{ID: id, Bus: desc.Bus, Address: desc.Address})
		}
		return false
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate USB devices: %w", err)
	}
	return found, nil
}

func parsePath(path string) (bus, addr int, err error) {
	if path == "" {
		return 0, 0, nil
	}
	if _, err := fmt.Sscanf(path, "%d/%d", &bus, &addr); err != nil {
		return 0, 0, fmt.Errorf("%w: USB path %q, want bus/address", pn533.ErrInvalidParameter, path)
	}
	return bus, addr, nil
}

// Pipe is a pn533.Pipe over the bulk endpoints of a USB reader.
type Pipe struct {
	ctx     *gousb.Context
	dev     *gousb.Device
	done    func()
	in      *gousb.InEndpoint
	out     *gousb.OutEndpoint
	name    string
	mu      sync.Mutex
	timeout time.Duration
}

var _ pn533.Pipe = (*Pipe)(nil)

// Open opens the reader at path ("bus/address" as reported by List), or
// the first known reader when path is empty.
func Open(path string) (*Pipe, error) {
	bus, addr, err := parsePath(path)
	if err != nil {
		return nil, err
	}

	ctx := gousb.NewContext()
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if _, ok := knownReader(desc); !ok {
			return false
		}
		return path == "" || (desc.Bus == bus && desc.Address == addr)
	})
	if err != nil {
		for _, d := range devs {
			_ = d.Close()
		}
		_ = ctx.Close()
		return nil, fmt.Errorf("failed to open USB devices: %w", err)
	}
	if len(devs) == 0 {
		_ = ctx.Close()
		return nil, fmt.Errorf("%w: %w", pn533.ErrDeviceNotFound, ErrNoReader)
	}

	dev := devs[0]
	for _, d := range devs[1:] {
		_ = d.Close()
	}

	p, err := claim(dev)
	if err != nil {
		_ = dev.Close()
		_ = ctx.Close()
		return nil, err
	}
	p.ctx = ctx
	return p, nil
}

func claim(dev *gousb.Device) (*Pipe, error) {
	if err := dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("failed to enable kernel driver auto detach: %w", err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return nil, fmt.Errorf("failed to claim default interface: %w", err)
	}

	inAddr, outAddr, err := bulkEndpoints(intf.Setting)
	if err != nil {
		done()
		return nil, err
	}
	in, err := intf.InEndpoint(inAddr)
	if err != nil {
		done()
		return nil, fmt.Errorf("failed to open bulk in endpoint: %w", err)
	}
	out, err := intf.OutEndpoint(outAddr)
	if err != nil {
		done()
		return nil, fmt.Errorf("failed to open bulk out endpoint: %w", err)
	}

	desc := dev.Desc
	return &Pipe{
		dev:     dev,
		done:    done,
		in:      in,
		out:     out,
		name:    fmt.Sprintf("usb:%03d/%03d", desc.Bus, desc.Address),
		timeout: pn533.DefaultIOTimeout,
	}, nil
}

// bulkEndpoints returns the numbers of the first bulk IN and OUT endpoints
// of setting.
func bulkEndpoints(setting gousb.InterfaceSetting) (in, out int, err error) {
	in, out = -1, -1
	for _, ep := range setting.Endpoints {
		if ep.TransferType != gousb.TransferTypeBulk {
			continue
		}
		switch {
		case ep.Direction == gousb.EndpointDirectionIn && (in < 0 || ep.Number < in):
			in = ep.Number
		case ep.Direction == gousb.EndpointDirectionOut && (out < 0 || ep.Number < out):
			out = ep.Number
		}
	}
	if in < 0 || out < 0 {
		return 0, 0, fmt.Errorf("%w: interface %d has no bulk endpoint pair", pn533.ErrDeviceNotFound, setting.Number)
	}
	return in, out, nil
}

// String returns "usb:bus/address".
func (p *Pipe) String() string { return p.name }

// Write implements pn533.Pipe.
func (p *Pipe) Write(data []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return 0, pn533.ErrTransportClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	n, err := p.out.WriteContext(ctx, data)
	return n, p.mapError(ctx, "write", err)
}

// Read implements pn533.Pipe. Each call returns at most one USB packet.
func (p *Pipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return 0, pn533.ErrTransportClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	n, err := p.in.ReadContext(ctx, buf)
	return n, p.mapError(ctx, "read", err)
}

func (p *Pipe) mapError(ctx context.Context, op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gousb.ErrorNoDevice):
		return fmt.Errorf("usb %s: %w: %w", op, pn533.ErrDeviceDetached, err)
	case errors.Is(err, gousb.TransferTimedOut), ctx.Err() != nil:
		return fmt.Errorf("usb %s after %v: %w", op, p.timeout, os.ErrDeadlineExceeded)
	default:
		return fmt.Errorf("usb %s: %w", op, err)
	}
}

// SetTimeout implements pn533.Pipe.
func (p *Pipe) SetTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return fmt.Errorf("%w: timeout %v", pn533.ErrInvalidParameter, timeout)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = timeout
	return nil
}

// Close releases the interface and the device.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}

	p.done()
	err := p.dev.Close()
	p.dev = nil
	if p.ctx != nil {
		if cerr := p.ctx.Close(); err == nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("usb close: %w", err)
	}
	return nil
}
