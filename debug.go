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
	"fmt"
	"os"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// debugEnabled controls whether debug output reaches the console logger.
var debugEnabled atomic.Bool

// consoleLogger receives debug output when debugging is enabled.
var consoleLogger atomic.Pointer[zap.SugaredLogger]

func init() {
	if os.Getenv("PN533_DEBUG") != "" || os.Getenv("DEBUG") != "" {
		debugEnabled.Store(true)
	}
	consoleLogger.Store(newConsoleLogger())
}

func newConsoleLogger() *zap.SugaredLogger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.Lock(os.Stdout), zapcore.DebugLevel)
	return zap.New(core).Sugar().Named("pn533")
}

// Debugf prints debug information.
// Always writes to the session log (if initialized); only prints to the
// console logger when debug mode is enabled.
func Debugf(format string, args ...any) {
	debugMessage(fmt.Sprintf(format, args...))
}

// Debugln prints debug information, formatting its operands like fmt.Sprintln.
func Debugln(args ...any) {
	msg := fmt.Sprintln(args...)
	debugMessage(msg[:len(msg)-1])
}

func debugMessage(msg string) {
	if l := sessionLogger.Load(); l != nil {
		l.Debug(msg)
	}
	if debugEnabled.Load() {
		consoleLogger.Load().Debug(msg)
	}
}

// SetDebugEnabled allows programmatic control of debug logging
// Useful for testing or application-controlled debug modes
func SetDebugEnabled(enabled bool) {
	debugEnabled.Store(enabled)
}

// SetLogger replaces the console logger used for debug output. Passing nil
// restores the default stdout logger.
func SetLogger(l *zap.Logger) {
	if l == nil {
		consoleLogger.Store(newConsoleLogger())
		return
	}
	consoleLogger.Store(l.Sugar())
}
