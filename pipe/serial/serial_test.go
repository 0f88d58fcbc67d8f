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

package serial

import (
	"bytes"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
)

type fakePort struct {
	drainErrs []error
	written   bytes.Buffer
	rx        bytes.Buffer
	timeout   time.Duration
	drains    int
	closed    bool
}

func (f *fakePort) Read(p []byte) (int, error) {
	if f.rx.Len() == 0 {
		return 0, nil
	}
	return f.rx.Read(p)
}

func (f *fakePort) Write(p []byte) (int, error) { return f.written.Write(p) }

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.timeout = t
	return nil
}

func (f *fakePort) Drain() error {
	f.drains++
	if len(f.drainErrs) > 0 {
		err := f.drainErrs[0]
		f.drainErrs = f.drainErrs[1:]
		return err
	}
	return nil
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func TestNewPipe_WakesUp(t *testing.T) {
	t.Parallel()

	fp := &fakePort{}
	p, err := newPipe(fp, "/dev/ttyUSB0")
	require.NoError(t, err)

	assert.Equal(t, wakeUp, fp.written.Bytes())
	assert.Equal(t, 1, fp.drains)
	assert.Equal(t, pn533.DefaultIOTimeout, fp.timeout)
	assert.Equal(t, "/dev/ttyUSB0", p.String())
}

func TestPipe_ReadTimeout(t *testing.T) {
	t.Parallel()

	fp := &fakePort{}
	p, err := newPipe(fp, "test")
	require.NoError(t, err)

	require.NoError(t, p.SetTimeout(20*time.Millisecond))
	assert.Equal(t, 20*time.Millisecond, fp.timeout)

	_, err = p.Read(make([]byte, 8))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)

	fp.rx.Write([]byte{0x00, 0x00, 0xFF})
	n, err := p.Read(make([]byte, 8))
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestPipe_DrainRetry(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		drainErrs []error
		wantErr   bool
		drains    int
	}{
		{name: "clean", drains: 1},
		{name: "interrupted once", drainErrs: []error{syscall.EINTR}, drains: 2},
		{
			name:      "interrupted every time",
			drainErrs: []error{syscall.EINTR, syscall.EINTR, syscall.EINTR},
			drains:    3,
			wantErr:   true,
		},
		{name: "hard failure", drainErrs: []error{errors.New("device gone")}, drains: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fp := &fakePort{}
			p, err := newPipe(fp, "test")
			require.NoError(t, err)
			fp.drains = 0
			fp.drainErrs = tt.drainErrs

			_, err = p.Write([]byte{0x00})
			assert.Equal(t, tt.drains, fp.drains)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestPipe_Closed(t *testing.T) {
	t.Parallel()

	fp := &fakePort{}
	p, err := newPipe(fp, "test")
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, fp.closed)

	_, err = p.Write([]byte{0x00})
	require.ErrorIs(t, err, pn533.ErrTransportClosed)
	_, err = p.Read(make([]byte, 1))
	require.ErrorIs(t, err, pn533.ErrTransportClosed)
}

func TestPortInfo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		details *enumerator.PortDetails
		want    PortInfo
		name    string
	}{
		{
			name:    "CH340 bridge",
			details: &enumerator.PortDetails{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523"},
			want:    PortInfo{Path: "/dev/ttyUSB0", VIDPID: "1A86:7523", Likely: true},
		},
		{
			name:    "product string",
			details: &enumerator.PortDetails{Name: "COM3", IsUSB: true, VID: "054c", PID: "01bb", Product: "RC-S620/S"},
			want:    PortInfo{Path: "COM3", VIDPID: "054C:01BB", Product: "RC-S620/S", Likely: true},
		},
		{
			name:    "built-in UART",
			details: &enumerator.PortDetails{Name: "/dev/ttyS0"},
			want:    PortInfo{Path: "/dev/ttyS0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, portInfo(tt.details))
		})
	}
}
