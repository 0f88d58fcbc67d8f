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
)

// EventKind is the kind of a reader attach/detach notification.
type EventKind int

const (
	// EventAttach carries a freshly opened pipe to a reader.
	EventAttach EventKind = iota + 1
	// EventDetach reports that the reader went away.
	EventDetach
)

func (k EventKind) String() string {
	switch k {
	case EventAttach:
		return "attach"
	case EventDetach:
		return "detach"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// DeviceEvent is a hot-plug notification for a Device.
type DeviceEvent struct {
	Pipe Pipe
	Kind EventKind
}

// HandleEvent applies ev under the device lock. An attach swaps in the new
// pipe (closing any previous one) and runs Init. A detach switches RF off
// if the pipe still answers, clears the card identity and closes the pipe;
// commands then fail with ErrDeviceDetached until the next attach.
func (d *Device) HandleEvent(ctx context.Context, ev DeviceEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch ev.Kind {
	case EventAttach:
		if ev.Pipe == nil {
			return fmt.Errorf("%w: attach event without a pipe", ErrInvalidParameter)
		}
		if d.transport.Attached() {
			if err := d.transport.Close(); err != nil {
				Debugf("closing replaced pipe: %v", err)
			}
		}
		d.identity.reset()
		d.transport.SetPipe(ev.Pipe)
		Debugf("reader attached on %s", d.transport.name)
		if err := d.init(ctx); err != nil {
			return fmt.Errorf("init after attach: %w", err)
		}
		return nil
	case EventDetach:
		if d.transport.Attached() {
			if err := d.rfOff(ctx); err != nil {
				Debugf("RF off on detach: %v", err)
			}
		}
		d.identity.reset()
		err := d.transport.Close()
		Debugln("reader detached")
		return err
	default:
		return fmt.Errorf("%w: event %s", ErrInvalidParameter, ev.Kind)
	}
}

// Watch applies events until the channel closes or ctx is done. Errors from
// individual events are logged and do not stop the loop.
func (d *Device) Watch(ctx context.Context, events <-chan DeviceEvent) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := d.HandleEvent(ctx, ev); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				Debugf("reader %s event: %v", ev.Kind, err)
			}
		}
	}
}
