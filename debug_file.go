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
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-pn533/internal/syncutil"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Session log state. sessionMu guards sessionLog and sessionPath;
// Debugf only loads sessionLogger.
var (
	sessionLogger atomic.Pointer[zap.SugaredLogger]
	sessionMu     syncutil.Mutex
	sessionLog    *lumberjack.Logger
	sessionPath   string
)

// InitSessionLog creates a rotating session log in dir (the current
// directory when empty). Every Debugf call is written to it regardless of
// SetDebugEnabled. Returns the log file path for display to the user.
func InitSessionLog(dir string) (string, error) {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionLog != nil {
		return sessionPath, nil
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create session log dir: %w", err)
	}

	filename := filepath.Join(dir, fmt.Sprintf("pn533_%s.log", time.Now().Format("20060102_150405")))
	lj := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
	}

	writeSessionHeader(lj)
	sessionLog = lj
	sessionPath = filename
	setSessionWriter(lj)
	return filename, nil
}

// CloseSessionLog closes the current session log file.
func CloseSessionLog() error {
	sessionMu.Lock()
	defer sessionMu.Unlock()

	if sessionLog == nil {
		return nil
	}
	if l := sessionLogger.Swap(nil); l != nil {
		_ = l.Sync()
	}
	_, _ = fmt.Fprintf(sessionLog, "\n%s === Session ended ===\n", time.Now().Format("15:04:05.000"))

	err := sessionLog.Close()
	sessionLog = nil
	sessionPath = ""
	if err != nil {
		return fmt.Errorf("failed to close session log: %w", err)
	}
	return nil
}

// GetSessionLogPath returns the current session log file path.
func GetSessionLogPath() string {
	sessionMu.Lock()
	defer sessionMu.Unlock()
	return sessionPath
}

// setSessionWriter points the session logger at w; nil disables it.
func setSessionWriter(w io.Writer) {
	if w == nil {
		sessionLogger.Store(nil)
		return
	}
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), zapcore.DebugLevel)
	sessionLogger.Store(zap.New(core).Sugar())
}

// writeSessionHeader writes metadata about the session to the log file.
func writeSessionHeader(writer io.Writer) {
	_, _ = fmt.Fprint(writer, "=== PN533 Debug Session Log ===\n")
	_, _ = fmt.Fprintf(writer, "Started: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(writer, "PID: %d\n", os.Getpid())
	_, _ = fmt.Fprintf(writer, "OS: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(writer, "Go Version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(writer, "Deadlock Detection: %v\n", syncutil.DeadlockDetection)
	if exe, err := os.Executable(); err == nil {
		_, _ = fmt.Fprintf(writer, "Executable: %s\n", exe)
	}
	_, _ = fmt.Fprintf(writer, "Command Line: %s\n", strings.Join(os.Args, " "))
	_, _ = fmt.Fprint(writer, "================================\n\n")
}
