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
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// PortInfo describes a serial port that may have a reader behind it.
type PortInfo struct {
	Path         string
	VIDPID       string
	Product      string
	SerialNumber string
	// Likely is set when the bridge or product strings match a known
	// reader setup.
	Likely bool
}

// ErrNoPorts is returned by Ports when the system has no serial ports.
var ErrNoPorts = errors.New("no serial ports found")

// bridges commonly found on reader boards.
var knownBridges = []string{
	"067B:2303", // Prolific PL2303
	"0403:6001", // FTDI FT232
	"10C4:EA60", // Silicon Labs CP210x
	"1A86:7523", // QinHeng CH340
}

var readerKeywords = []string{"pn532", "pn533", "rc-s620", "nfc", "rfid", "13.56"}

// Ports lists USB serial ports, likely reader candidates first.
func Ports() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	var likely, other []PortInfo
	for _, d := range details {
		info := portInfo(d)
		if info.Likely {
			likely = append(likely, info)
		} else {
			other = append(other, info)
		}
	}
	ports := append(likely, other...)
	if len(ports) == 0 {
		return nil, ErrNoPorts
	}
	return ports, nil
}

func portInfo(d *enumerator.PortDetails) PortInfo {
	info := PortInfo{
		Path:         d.Name,
		Product:      d.Product,
		SerialNumber: d.SerialNumber,
	}
	if d.IsUSB {
		info.VIDPID = strings.ToUpper(d.VID + ":" + d.PID)
	}
	info.Likely = isLikelyReader(info)
	return info
}

func isLikelyReader(info PortInfo) bool {
	for _, known := range knownBridges {
		if info.VIDPID == known {
			return true
		}
	}
	product := strings.ToLower(info.Product)
	for _, keyword := range readerKeywords {
		if strings.Contains(product, keyword) {
			return true
		}
	}
	return false
}
