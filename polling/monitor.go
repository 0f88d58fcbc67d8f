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

package polling

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/ZaparooProject/go-pn533/internal/syncutil"
)

// Callbacks are invoked from the polling goroutine while the monitor holds
// the field, so they may use the device directly. They must not call Do
// or Stop.
type Callbacks struct {
	OnCardDetected func(id pn533.CardIdentity) error
	OnCardRemoved  func()
	// OnCardChanged fires when a different card replaces the present one
	// between two polls. When nil, OnCardRemoved and OnCardDetected are
	// called instead.
	OnCardChanged func(id pn533.CardIdentity) error
}

// Metrics is a snapshot of monitor counters.
type Metrics struct {
	PollCycles      int64
	PollErrors      int64
	CardsDetected   int64
	CallbackErrors  int64
	Recoveries      int64
	LastPollLatency time.Duration
}

// Monitor polls a device in the background and reports cards entering and
// leaving the field.
type Monitor struct {
	device    *pn533.Device
	config    *Config
	callbacks Callbacks
	recoverer DeviceRecoverer

	// opMu serializes poll cycles with Do.
	opMu    syncutil.Mutex
	stateMu syncutil.RWMutex
	state   CardState
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	wg      sync.WaitGroup

	errorCount int

	pollCycles        int64
	pollErrors        int64
	cardsDetected     int64
	callbackErrors    int64
	recoveries        int64
	lastPollLatency   int64 // in nanoseconds
	currentInterval   int64 // in nanoseconds
	lastCardDetection int64
	lastActivity      int64 // last poll or Do, for sleep detection
	running           int64
}

// NewMonitor creates a stopped monitor. A nil config means DefaultConfig.
// With sleep recovery enabled the monitor re-initialises the reader after
// a wake-up or a fatal error; SetRecoverer replaces that strategy.
func NewMonitor(device *pn533.Device, config *Config, callbacks Callbacks) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	config = config.withDefaults()
	m := &Monitor{
		device:            device,
		config:            config,
		callbacks:         callbacks,
		currentInterval:   config.PollInterval.Nanoseconds(),
		lastCardDetection: time.Now().UnixNano(),
	}
	if config.SleepRecovery.Enabled {
		m.recoverer = NewDefaultRecoverer(device, nil,
			config.SleepRecovery.RecoveryBackoff, config.SleepRecovery.MaxRecoveryAttempts)
	}
	return m
}

// SetRecoverer replaces the recovery strategy. Nil disables recovery.
// Call before Start.
func (m *Monitor) SetRecoverer(r DeviceRecoverer) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()
	m.recoverer = r
}

// Start begins polling. It is a no-op when already running. The loop ends
// on Stop, when ctx is done, or on an unrecoverable reader error (see Err).
func (m *Monitor) Start(ctx context.Context) error {
	if m.device == nil {
		return fmt.Errorf("%w: monitor without a device", pn533.ErrInvalidParameter)
	}
	if !atomic.CompareAndSwapInt64(&m.running, 0, 1) {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.stateMu.Lock()
	m.cancel = cancel
	m.done = done
	m.err = nil
	m.stateMu.Unlock()
	atomic.StoreInt64(&m.lastActivity, 0)

	m.wg.Add(1)
	go m.pollLoop(loopCtx, done)
	return nil
}

func (m *Monitor) pollLoop(ctx context.Context, done chan struct{}) {
	defer m.wg.Done()
	timer := time.NewTimer(0)
	defer func() {
		timer.Stop()
		atomic.StoreInt64(&m.running, 0)
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		interval := time.Duration(atomic.LoadInt64(&m.currentInterval))
		if last := atomic.LoadInt64(&m.lastActivity); last != 0 {
			elapsed := time.Since(time.Unix(0, last))
			if m.config.SleepRecovery.DetectSleep(elapsed, interval) {
				pn533.Debugf("monitor: %v since last poll, assuming host sleep", elapsed.Round(time.Millisecond))
				err := m.attemptRecovery(ctx)
				if err != nil && !errors.Is(err, errNoRecoverer) && ctx.Err() == nil {
					m.fail(err)
					return
				}
			}
		}

		if err := m.performPoll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			if rerr := m.attemptRecovery(ctx); rerr != nil {
				m.fail(err)
				return
			}
		}
		atomic.StoreInt64(&m.lastActivity, time.Now().UnixNano())

		m.adjustPollInterval()
		timer.Reset(time.Duration(atomic.LoadInt64(&m.currentInterval)))
	}
}

func (m *Monitor) fail(err error) {
	m.stateMu.Lock()
	m.err = err
	m.stateMu.Unlock()
	pn533.Debugf("monitor stopped: %v", err)
}

// performPoll runs one cycle. It returns an error only when the reader is
// unusable: a fatal error or too many consecutive failures.
func (m *Monitor) performPoll(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	start := time.Now()
	id, err := m.pollKinds(ctx)
	atomic.AddInt64(&m.pollCycles, 1)
	atomic.StoreInt64(&m.lastPollLatency, time.Since(start).Nanoseconds())

	switch {
	case err == nil:
		m.errorCount = 0
		m.handleDetected(id, start)
		return nil
	case errors.Is(err, pn533.ErrCardNotFound):
		m.errorCount = 0
		m.checkRemoval(time.Now())
		return nil
	}

	atomic.AddInt64(&m.pollErrors, 1)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.errorCount++
	if pn533.IsFatal(err) {
		return err
	}
	if m.errorCount > m.config.MaxErrors {
		return fmt.Errorf("too many polling errors (%d), last error: %w", m.errorCount, err)
	}
	pn533.Debugf("monitor poll error #%d: %v", m.errorCount, err)
	return nil
}

func (m *Monitor) pollKinds(ctx context.Context) (pn533.CardIdentity, error) {
	err := pn533.ErrCardNotFound
	for _, kind := range m.config.Kinds {
		var id pn533.CardIdentity
		switch kind {
		case pn533.PollFeliCa:
			id, err = m.device.PollingFeliCa(ctx, m.config.SystemCode)
		case pn533.PollTypeA:
			id, err = m.device.PollingA(ctx)
		case pn533.PollTypeB:
			id, err = m.device.PollingB(ctx)
		default:
			return pn533.CardIdentity{}, fmt.Errorf("%w: poll kind %q", pn533.ErrInvalidParameter, kind)
		}
		if err == nil || !errors.Is(err, pn533.ErrCardNotFound) {
			return id, err
		}
	}
	return pn533.CardIdentity{}, err
}

func (m *Monitor) handleDetected(id pn533.CardIdentity, now time.Time) {
	m.stateMu.Lock()
	wasPresent := m.state.Present
	changed := m.state.TransitionToDetected(id, now)
	m.stateMu.Unlock()
	atomic.StoreInt64(&m.lastCardDetection, now.UnixNano())

	switch {
	case !wasPresent:
		atomic.AddInt64(&m.cardsDetected, 1)
		m.safeCall("OnCardDetected", m.callbacks.OnCardDetected, id)
	case changed:
		atomic.AddInt64(&m.cardsDetected, 1)
		if m.callbacks.OnCardChanged != nil {
			m.safeCall("OnCardChanged", m.callbacks.OnCardChanged, id)
			return
		}
		m.notifyRemoved()
		m.safeCall("OnCardDetected", m.callbacks.OnCardDetected, id)
	}
}

func (m *Monitor) checkRemoval(now time.Time) {
	m.stateMu.Lock()
	expired := m.state.Expired(now, m.config.CardRemovalTimeout)
	if expired {
		m.state.TransitionToIdle()
	}
	m.stateMu.Unlock()
	if expired {
		m.notifyRemoved()
	}
}

func (m *Monitor) notifyRemoved() {
	if m.callbacks.OnCardRemoved == nil {
		return
	}
	m.safeCall("OnCardRemoved", func(pn533.CardIdentity) error {
		m.callbacks.OnCardRemoved()
		return nil
	}, pn533.CardIdentity{})
}

// safeCall executes a callback with panic recovery
func (m *Monitor) safeCall(name string, callback func(pn533.CardIdentity) error, id pn533.CardIdentity) {
	if callback == nil {
		return
	}
	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s callback panicked: %v", name, r)
			}
		}()
		err = callback(id)
	}()
	if err != nil {
		atomic.AddInt64(&m.callbackErrors, 1)
		pn533.Debugf("monitor: %s: %v", name, err)
	}
}

var errNoRecoverer = errors.New("no recoverer configured")

// attemptRecovery runs the recoverer. A card present before recovery is
// reported removed, since the reader lost its selection.
func (m *Monitor) attemptRecovery(ctx context.Context) error {
	m.stateMu.RLock()
	r := m.recoverer
	m.stateMu.RUnlock()
	if r == nil {
		return errNoRecoverer
	}

	m.opMu.Lock()
	err := r.AttemptRecovery(ctx)
	m.opMu.Unlock()
	if err != nil {
		return fmt.Errorf("device recovery failed: %w", err)
	}

	atomic.AddInt64(&m.recoveries, 1)
	m.errorCount = 0
	m.stateMu.Lock()
	wasPresent := m.state.Present
	m.state.TransitionToIdle()
	m.stateMu.Unlock()
	if wasPresent {
		m.notifyRemoved()
	}
	pn533.Debugln("monitor: reader recovered")
	return nil
}

// adjustPollInterval slows polling once the field has been empty for a while.
func (m *Monitor) adjustPollInterval() {
	interval := m.config.PollInterval
	if m.config.IdleInterval > 0 {
		last := time.Unix(0, atomic.LoadInt64(&m.lastCardDetection))
		if time.Since(last) > m.config.IdleAfter {
			interval = m.config.IdleInterval
		}
	}
	atomic.StoreInt64(&m.currentInterval, interval.Nanoseconds())
}

// Do pauses polling and runs fn with exclusive use of the device. The
// removal timeout restarts afterwards so a card kept in the field is not
// reported removed because of the pause.
//
// Example usage:
//
//	err := monitor.Do(ctx, func(dev *pn533.Device) error {
//		outcome, err := issuance.New(dev).Issue(ctx, params)
//		...
//	})
func (m *Monitor) Do(ctx context.Context, fn func(*pn533.Device) error) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	m.stateMu.Lock()
	m.state.DetectionState = StateBusy
	m.stateMu.Unlock()

	err := fn(m.device)

	m.stateMu.Lock()
	if m.state.Present {
		m.state.DetectionState = StateTagDetected
		m.state.LastSeenTime = time.Now()
	} else {
		m.state.DetectionState = StateIdle
	}
	m.stateMu.Unlock()
	atomic.StoreInt64(&m.lastActivity, time.Now().UnixNano())
	return err
}

// Stop ends polling and waits for the goroutine to exit or ctx to end.
func (m *Monitor) Stop(ctx context.Context) error {
	m.stateMu.RLock()
	cancel := m.cancel
	m.stateMu.RUnlock()
	if cancel != nil {
		cancel()
	}

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()
	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the current run ends. It is nil before Start.
func (m *Monitor) Done() <-chan struct{} {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.done
}

// Err returns the error that stopped the monitor, if any.
func (m *Monitor) Err() error {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.err
}

// State returns a copy of the card state.
func (m *Monitor) State() CardState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

// Running reports whether the polling goroutine is active.
func (m *Monitor) Running() bool {
	return atomic.LoadInt64(&m.running) == 1
}

// GetMetrics returns current operational metrics
func (m *Monitor) GetMetrics() Metrics {
	return Metrics{
		PollCycles:      atomic.LoadInt64(&m.pollCycles),
		PollErrors:      atomic.LoadInt64(&m.pollErrors),
		CardsDetected:   atomic.LoadInt64(&m.cardsDetected),
		CallbackErrors:  atomic.LoadInt64(&m.callbackErrors),
		Recoveries:      atomic.LoadInt64(&m.recoveries),
		LastPollLatency: time.Duration(atomic.LoadInt64(&m.lastPollLatency)),
	}
}

// GetCurrentPollInterval returns the current adaptive polling interval
func (m *Monitor) GetCurrentPollInterval() time.Duration {
	return time.Duration(atomic.LoadInt64(&m.currentInterval))
}
