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

// Package issuance performs first-stage issuance of FeliCa Lite cards: it
// writes the ID block, a card key derived from a personalization master
// key and the card key version, and proves the key through the card's MAC.
package issuance

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/google/uuid"
)

// Outcome is the result class of an issuance attempt.
type Outcome int

const (
	Success Outcome = iota
	CardNotFound
	BadSystemCode
	AlreadyIssued
	Error
)

func (o Outcome) String() string {
	switch o {
	case Success:
		return "success"
	case CardNotFound:
		return "card_not_found"
	case BadSystemCode:
		return "bad_system_code"
	case AlreadyIssued:
		return "already_issued"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// BlockDevice is what the engine needs from a reader. *pn533.Device
// implements it.
type BlockDevice interface {
	PollingLite(ctx context.Context) (pn533.CardIdentity, error)
	LiteRead(ctx context.Context, blocks ...uint16) ([]byte, error)
	LiteWrite(ctx context.Context, block uint16, data []byte) error
}

// Params are the issuer's inputs for one card.
type Params struct {
	MasterKey  []byte
	DFD        uint16
	KeyVersion uint16
}

// Engine issues FeliCa Lite cards through a BlockDevice.
type Engine struct {
	dev     BlockDevice
	metrics *pn533.Metrics
	random  io.Reader
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics counts issuance outcomes in m.
func WithMetrics(m *pn533.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRandom replaces crypto/rand as the source of MAC challenges.
func WithRandom(r io.Reader) Option {
	return func(e *Engine) {
		e.random = r
	}
}

// New returns an engine working on dev.
func New(dev BlockDevice, opts ...Option) *Engine {
	e := &Engine{dev: dev, random: rand.Reader}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Issue runs first-stage issuance on the FeliCa Lite card in the field.
// The returned error explains any outcome other than Success. Nothing is
// rolled back when a step after the ID write fails, and the system blocks
// are not made read-only.
func (e *Engine) Issue(ctx context.Context, p Params) (Outcome, error) {
	run := uuid.NewString()
	outcome, err := e.issue(ctx, p)
	e.metrics.ObserveIssuance(outcome.String())
	if err != nil {
		pn533.Debugf("issuance %s: %s: %v", run, outcome, err)
		return outcome, fmt.Errorf("issuance %s: %w", run, err)
	}
	pn533.Debugf("issuance %s: %s", run, outcome)
	return outcome, nil
}

func (e *Engine) issue(ctx context.Context, p Params) (Outcome, error) {
	if err := checkLen("issue", "master key", p.MasterKey, MasterKeySize); err != nil {
		return Error, err
	}

	if _, err := e.dev.PollingLite(ctx); err != nil {
		return CardNotFound, err
	}

	if err := e.checkSystemCode(ctx); err != nil {
		if errors.Is(err, pn533.ErrBadSystemCode) {
			return BadSystemCode, err
		}
		return Error, err
	}
	if err := e.checkNotIssued(ctx); err != nil {
		if errors.Is(err, pn533.ErrAlreadyIssued) {
			return AlreadyIssued, err
		}
		return Error, err
	}

	id, err := e.writeID(ctx, p.DFD)
	if err != nil {
		return Error, err
	}
	if err := e.writeCardKey(ctx, id, p.MasterKey); err != nil {
		return Error, err
	}
	if err := e.writeWithCheck(ctx, pn533.LiteBlockCKV, keyVersionBlock(p.KeyVersion)); err != nil {
		return Error, fmt.Errorf("write key version: %w", err)
	}
	return Success, nil
}

// checkSystemCode wants 88 B4 followed by zeros in SYS_C.
func (e *Engine) checkSystemCode(ctx context.Context) error {
	buf, err := e.dev.LiteRead(ctx, pn533.LiteBlockSYSC)
	if err != nil {
		return fmt.Errorf("read SYS_C: %w", err)
	}
	want := make([]byte, pn533.BlockSize)
	binary.BigEndian.PutUint16(want, pn533.SystemCodeFeliCaLite)
	if !bytes.Equal(buf, want) {
		return pn533.NewCardError("check system code", fmt.Errorf("%w: SYS_C % X", pn533.ErrBadSystemCode, buf))
	}
	return nil
}

// checkNotIssued rejects cards past first (MC byte 2 zero) or second
// (MC byte 1 bit 7 clear) stage issuance.
func (e *Engine) checkNotIssued(ctx context.Context) error {
	mc, err := e.dev.LiteRead(ctx, pn533.LiteBlockMC)
	if err != nil {
		return fmt.Errorf("read MC: %w", err)
	}
	switch {
	case mc[2] == 0x00:
		return pn533.NewCardError("check MC", fmt.Errorf("%w: first stage done", pn533.ErrAlreadyIssued))
	case mc[1]&0x80 == 0:
		return pn533.NewCardError("check MC", fmt.Errorf("%w: second stage done", pn533.ErrAlreadyIssued))
	}
	return nil
}

// writeID copies D_ID into ID with the DFD in bytes 8-9 and returns the
// block written.
func (e *Engine) writeID(ctx context.Context, dfd uint16) ([]byte, error) {
	id, err := e.dev.LiteRead(ctx, pn533.LiteBlockDID)
	if err != nil {
		return nil, fmt.Errorf("read D_ID: %w", err)
	}
	id[8], id[9] = byte(dfd>>8), byte(dfd)
	clear(id[10:])
	if err := e.writeWithCheck(ctx, pn533.LiteBlockID, id); err != nil {
		return nil, fmt.Errorf("write ID: %w", err)
	}
	return id, nil
}

// writeCardKey writes the derived key to CK, which cannot be read back,
// and proves it through the MAC instead.
func (e *Engine) writeCardKey(ctx context.Context, id, masterKey []byte) error {
	ck, err := DerivePersonalKey(masterKey, id)
	if err != nil {
		return err
	}
	if err := e.dev.LiteWrite(ctx, pn533.LiteBlockCK, ck); err != nil {
		return fmt.Errorf("write CK: %w", err)
	}
	if err := e.CheckMAC(ctx, ck); err != nil {
		return fmt.Errorf("verify CK: %w", err)
	}
	return nil
}

func (e *Engine) writeWithCheck(ctx context.Context, block uint16, data []byte) error {
	if err := e.dev.LiteWrite(ctx, block, data); err != nil {
		return err
	}
	got, err := e.dev.LiteRead(ctx, block)
	if err != nil {
		return fmt.Errorf("read back: %w", err)
	}
	if !bytes.Equal(got, data) {
		return pn533.NewCardError(fmt.Sprintf("verify block 0x%02X", block), pn533.ErrWriteVerificationFailed)
	}
	return nil
}

func keyVersionBlock(v uint16) []byte {
	b := make([]byte, pn533.BlockSize)
	b[0], b[1] = byte(v>>8), byte(v)
	return b
}

// CheckMAC proves that the selected card holds cardKey: it writes a fresh
// random challenge to RC and compares the MAC the card computes over its ID
// block.
func (e *Engine) CheckMAC(ctx context.Context, cardKey []byte) error {
	if err := checkLen("check MAC", "card key", cardKey, CardKeySize); err != nil {
		return err
	}
	return e.checkMAC(ctx, func([]byte) ([]byte, error) { return cardKey, nil })
}

// CheckMACWithMasterKey is CheckMAC for a card issued with masterKey; the
// card key is derived from the ID block read together with the MAC.
func (e *Engine) CheckMACWithMasterKey(ctx context.Context, masterKey []byte) error {
	if err := checkLen("check MAC", "master key", masterKey, MasterKeySize); err != nil {
		return err
	}
	return e.checkMAC(ctx, func(id []byte) ([]byte, error) { return DerivePersonalKey(masterKey, id) })
}

func (e *Engine) checkMAC(ctx context.Context, cardKey func(id []byte) ([]byte, error)) error {
	rc := make([]byte, ChallengeSize)
	if _, err := io.ReadFull(e.random, rc); err != nil {
		return &pn533.CryptoError{Op: "random challenge", Err: err}
	}
	if err := e.dev.LiteWrite(ctx, pn533.LiteBlockRC, rc); err != nil {
		return fmt.Errorf("write RC: %w", err)
	}

	// the MAC block covers the block read before it
	buf, err := e.dev.LiteRead(ctx, pn533.LiteBlockID, pn533.LiteBlockMAC)
	if err != nil {
		return fmt.Errorf("read ID and MAC: %w", err)
	}
	if len(buf) != 2*pn533.BlockSize {
		return pn533.NewCardError("check MAC", fmt.Errorf("%w: %d bytes", pn533.ErrInvalidResponse, len(buf)))
	}
	id, cardMAC := buf[:pn533.BlockSize], buf[pn533.BlockSize:pn533.BlockSize+MACSize]

	ck, err := cardKey(id)
	if err != nil {
		return err
	}
	mac, err := ComputeMAC(ck, id, rc)
	if err != nil {
		return err
	}
	if !bytes.Equal(mac, cardMAC) {
		return pn533.NewCardError("check MAC", pn533.ErrMACMismatch)
	}
	return nil
}
