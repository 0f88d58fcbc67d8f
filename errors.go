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
	"errors"
	"fmt"
	"io"
	"runtime"
	"syscall"
)

// Error categories for better error handling and retry logic
var (
	// Transport errors - potentially retryable
	ErrTransportTimeout = errors.New("transport timeout")
	ErrTransportWrite   = errors.New("transport write failed")
	ErrTransportRead    = errors.New("transport read failed")
	ErrTransportClosed  = errors.New("transport is closed")
	ErrDeviceDetached   = errors.New("device detached")
	ErrDeviceNotFound   = errors.New("device not found")

	// Frame errors - the exchange is abandoned, the caller may try again
	ErrNoACK            = errors.New("no ACK received")
	ErrFrameCorrupted   = errors.New("frame corrupted")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrExtendedFrame    = errors.New("extended frame not supported")
	ErrErrorFrame       = errors.New("reader returned an error frame")

	// Protocol errors - the reader answered, but not with what we asked for
	ErrInvalidResponse = errors.New("invalid response format")
	ErrCommandFailed   = errors.New("command execution failed")

	// Card errors
	ErrCardNotFound            = errors.New("card not found")
	ErrNoCardSelected          = errors.New("no card selected")
	ErrCardUnsupported         = errors.New("card type not supported")
	ErrBadSystemCode           = errors.New("unexpected system code")
	ErrAlreadyIssued           = errors.New("card already issued")
	ErrWriteVerificationFailed = errors.New("write verification failed: data mismatch")
	ErrMACMismatch             = errors.New("MAC mismatch")
	ErrTagAuthFailed           = errors.New("tag authentication failed")
	ErrNDEFInvalid             = errors.New("invalid NDEF attribute block")

	// Data errors - not retryable
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrDataTooLarge     = errors.New("data too large")
	ErrInvalidKey       = errors.New("invalid key")
	ErrNotImplemented   = errors.New("not implemented")
)

// ErrorType represents the category of error for retry logic
type ErrorType int

const (
	// ErrorTypeTransient indicates a potentially retryable error
	ErrorTypeTransient ErrorType = iota
	// ErrorTypePermanent indicates a non-retryable error
	ErrorTypePermanent
	// ErrorTypeTimeout indicates a timeout error (special handling)
	ErrorTypeTimeout
)

// TransportError wraps pipe-level errors with additional context
type TransportError struct {
	Err       error     // Underlying error
	Op        string    // Operation that failed
	Port      string    // Port or device identifier
	Type      ErrorType // Error category
	Retryable bool      // Whether the error is retryable
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// FrameError reports a received frame that failed validation. Reason is one
// of the frame sentinels (ErrNoACK, ErrFrameCorrupted, ErrChecksumMismatch,
// ErrExtendedFrame, ErrErrorFrame); Err carries the decoder's own error when
// there is one.
type FrameError struct {
	Reason error
	Err    error
	Op     string
}

func (e *FrameError) Error() string {
	if e.Err != nil && e.Err != e.Reason {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Reason)
}

func (e *FrameError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Reason}
	}
	return []error{e.Reason, e.Err}
}

// ProtocolError reports a well-formed response that does not fit the
// command that was sent.
type ProtocolError struct {
	Reason  error
	Detail  string
	Command byte
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("command 0x%02X: %v: %s", e.Command, e.Reason, e.Detail)
	}
	return fmt.Sprintf("command 0x%02X: %v", e.Command, e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Reason
}

// StatusError is returned when the reader answers a command with a non-zero
// status byte. It unwraps to a ProtocolError carrying ErrCommandFailed.
type StatusError struct {
	Command byte
	Status  byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("command 0x%02X status 0x%02X (%s)", e.Command, e.Status, statusMeaning(e.Status))
}

func (e *StatusError) Unwrap() error {
	return &ProtocolError{Command: e.Command, Reason: ErrCommandFailed}
}

// Code returns the error code held in the low six bits of the status byte.
func (e *StatusError) Code() byte {
	return e.Status & 0x3F
}

// IsTimeout reports whether the card did not answer in time.
func (e *StatusError) IsTimeout() bool {
	return e.Code() == 0x01
}

// IsAuthenticationError returns true if the error is authentication-related
func (e *StatusError) IsAuthenticationError() bool {
	return e.Code() == 0x14
}

// statusMeaning returns a human-readable meaning for PN533 status codes,
// taken from the PN533 user manual error table.
func statusMeaning(status byte) string {
	meanings := map[byte]string{
		0x00: "success",
		0x01: "timeout",
		0x02: "CRC error",
		0x03: "parity error",
		0x04: "erroneous bit count during anti-collision",
		0x05: "framing error during mifare operation",
		0x06: "abnormal bit collision",
		0x07: "communication buffer size insufficient",
		0x09: "RF buffer overflow",
		0x0A: "RF field not activated in time",
		0x0B: "RF protocol error",
		0x0D: "overheating",
		0x0E: "internal buffer overflow",
		0x10: "invalid parameter",
		0x12: "DEP protocol not supported",
		0x13: "dataformat does not match",
		0x14: "authentication error",
		0x18: "target does not support the requested command",
		0x23: "UID check byte is wrong",
		0x25: "DEP invalid state",
		0x26: "operation not allowed",
		0x27: "wrong context for command",
		0x29: "target released by initiator",
		0x2A: "card ID mismatch",
		0x2B: "card disappeared",
		0x2C: "NFCID3 initiator/target mismatch",
		0x2D: "over-current event",
		0x2E: "NAD missing in DEP frame",
	}
	if m, ok := meanings[status&0x3F]; ok {
		return m
	}
	return "unknown error"
}

// CardError wraps failures that concern the card rather than the reader.
type CardError struct {
	Err error
	Op  string
}

func (e *CardError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *CardError) Unwrap() error {
	return e.Err
}

// CryptoError wraps failures of key derivation and MAC computation.
type CryptoError struct {
	Err error
	Op  string
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is potentially retryable
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.IsTimeout()
	}

	switch {
	case errors.Is(err, ErrTransportTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrNoACK),
		errors.Is(err, ErrFrameCorrupted),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrCardNotFound):
		return true
	default:
		return false
	}
}

// IsFatal returns true if the error indicates the device/connection is gone
// and polling should stop entirely. This is distinct from IsRetryable which
// indicates whether a single operation can be retried.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) && te.Type == ErrorTypePermanent {
		return true
	}

	if isDeviceGoneError(err) {
		return true
	}

	switch {
	case errors.Is(err, ErrTransportClosed),
		errors.Is(err, ErrDeviceDetached),
		errors.Is(err, ErrDeviceNotFound),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrClosedPipe):
		return true
	default:
		return false
	}
}

// Windows error codes for device disconnection detection.
// These are defined here because they're not available on non-Windows platforms.
const (
	errAccessDenied syscall.Errno = 5   // ERROR_ACCESS_DENIED
	errGenFailure   syscall.Errno = 31  // ERROR_GEN_FAILURE
	errNoSuchDevice syscall.Errno = 433 // ERROR_NO_SUCH_DEVICE
)

// isDeviceGoneError checks for OS-level errors indicating device disconnection.
func isDeviceGoneError(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}

	//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
	switch errno {
	case syscall.EIO, syscall.ENXIO, syscall.ENODEV:
		return true
	}

	if runtime.GOOS == "windows" {
		//nolint:exhaustive // Only checking specific device-gone errors, not all errno values
		switch errno {
		case errAccessDenied, errGenFailure, errNoSuchDevice:
			return true
		}
	}
	return false
}

// NewTransportError creates a standard transport error with consistent formatting
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType == ErrorTypeTransient || errType == ErrorTypeTimeout,
	}
}

// NewTimeoutError creates a timeout error for transport operations
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTransportTimeout, ErrorTypeTimeout)
}

// NewFrameError creates a FrameError for the given reason.
func NewFrameError(op string, reason, err error) *FrameError {
	return &FrameError{Op: op, Reason: reason, Err: err}
}

// NewProtocolError creates a ProtocolError for an unexpected response.
func NewProtocolError(cmd byte, reason error, detail string) *ProtocolError {
	return &ProtocolError{Command: cmd, Reason: reason, Detail: detail}
}

// NewCardError wraps err with the card operation that produced it.
func NewCardError(op string, err error) *CardError {
	return &CardError{Op: op, Err: err}
}
