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

// Package pn533 drives NXP PN533 based contactless readers such as the
// Sony RC-S370 and issues FeliCa Lite cards with them.
//
// A Device wraps a Pipe (a USB bulk pipe from pipe/usb or a serial line
// from pipe/serial) with the PN533 framing protocol. Every reader command
// has its own method, and the card session methods (PollingA, PollingB,
// PollingF) keep the identity of the selected card for the block access
// methods that follow:
//
//	dev, err := pn533.New(pipe)
//	if err != nil {
//		return err
//	}
//	defer dev.Close()
//	if err := dev.Init(ctx); err != nil {
//		return err
//	}
//	if _, err := dev.PollingLite(ctx); err != nil {
//		return err
//	}
//	id, err := dev.LiteRead(ctx, pn533.LiteBlockID)
//
// Card issuance lives in the issuance package, hot-plug handling in
// HandleEvent and Watch, and periodic card detection in package polling.
//
// Debug output is off unless PN533_DEBUG (or DEBUG) is set or
// SetDebugEnabled is called; InitSessionLog mirrors it to a rotating file.
package pn533
