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

// IC bytes reported by GetFirmwareVersion.
const (
	ICPN533 byte = 0x33
	ICPN532 byte = 0x32
)

// FirmwareVersion is the reader's answer to GetFirmwareVersion.
type FirmwareVersion struct {
	Version          string
	IC               byte
	SupportIso14443a bool
	SupportIso14443b bool
	SupportIso18092  bool
}

// GetFirmwareVersion asks the reader for its IC and firmware version. It
// is the cheapest way to tell whether a freshly attached reader answers.
func (d *Device) GetFirmwareVersion(ctx context.Context) (*FirmwareVersion, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	res, err := d.transport.Command(ctx, cmdGetFirmwareVersion, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send GetFirmwareVersion command: %w", err)
	}
	Debugf("GetFirmwareVersion response: % X", res)

	// D5 03 IC Ver Rev Support
	if len(res) < 6 {
		return nil, NewProtocolError(cmdGetFirmwareVersion, ErrInvalidResponse, fmt.Sprintf("length %d", len(res)))
	}
	if res[2] != ICPN533 && res[2] != ICPN532 {
		return nil, NewProtocolError(cmdGetFirmwareVersion, ErrInvalidResponse, fmt.Sprintf("unexpected IC 0x%02X", res[2]))
	}
	return &FirmwareVersion{
		IC:               res[2],
		Version:          fmt.Sprintf("%d.%d", res[3], res[4]),
		SupportIso14443a: res[5]&0x01 == 0x01,
		SupportIso14443b: res[5]&0x02 == 0x02,
		SupportIso18092:  res[5]&0x04 == 0x04,
	}, nil
}
