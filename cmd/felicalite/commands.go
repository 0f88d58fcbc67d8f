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

package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/ZaparooProject/go-pn533/issuance"
	"github.com/ZaparooProject/go-pn533/pipe/serial"
	"github.com/ZaparooProject/go-pn533/pipe/usb"
	"github.com/ZaparooProject/go-pn533/polling"
	"go.uber.org/zap"
)

// outcomeError reports an issuance the card refused, as opposed to a
// reader failure.
type outcomeError struct {
	err     error
	outcome issuance.Outcome
}

func (e *outcomeError) Error() string { return e.err.Error() }
func (e *outcomeError) Unwrap() error { return e.err }

func waitCard(ctx context.Context, a *app, dev *pn533.Device, cfg pn533.WaitConfig) (pn533.CardIdentity, error) {
	ctx, cancel := context.WithTimeout(ctx, a.wait)
	defer cancel()

	_, _ = fmt.Fprintln(a.out, "Waiting for a card...")
	id, err := dev.WaitForCard(ctx, cfg)
	if errors.Is(err, context.DeadlineExceeded) {
		return id, fmt.Errorf("no card within %v: %w", a.wait, pn533.ErrCardNotFound)
	}
	return id, err
}

func waitLite(ctx context.Context, a *app, dev *pn533.Device) (pn533.CardIdentity, error) {
	return waitCard(ctx, a, dev, pn533.WaitConfig{SystemCode: pn533.SystemCodeFeliCaLite})
}

func printIdentity(w io.Writer, id pn533.CardIdentity) {
	_, _ = fmt.Fprintf(w, "%s\n", id)
	if id.Type == pn533.IDNFCID2 {
		_, _ = fmt.Fprintf(w, "  IDm  %X\n  PMm  %X\n  SYS  %04X\n", id.IDm(), id.PMm, id.SensRes)
	}
}

func runPoll(ctx context.Context, a *app, dev *pn533.Device, _ []string) error {
	id, err := waitCard(ctx, a, dev, pn533.WaitConfig{
		Kinds: []pn533.PollKind{pn533.PollFeliCa, pn533.PollTypeA, pn533.PollTypeB},
	})
	if err != nil {
		return err
	}
	printIdentity(a.out, id)
	return nil
}

// parseBlocks accepts decimal or 0x-prefixed block numbers.
func parseBlocks(args []string) ([]uint16, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: no blocks given", pn533.ErrInvalidParameter)
	}
	blocks := make([]uint16, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseUint(arg, 0, 16)
		if err != nil {
			return nil, fmt.Errorf("%w: block %q", pn533.ErrInvalidParameter, arg)
		}
		blocks = append(blocks, uint16(n))
	}
	return blocks, nil
}

func runRead(ctx context.Context, a *app, dev *pn533.Device, args []string) error {
	blocks, err := parseBlocks(args)
	if err != nil {
		return err
	}
	if _, err := waitLite(ctx, a, dev); err != nil {
		return err
	}

	for start := 0; start < len(blocks); start += pn533.LiteMaxReadBlocks {
		chunk := blocks[start:min(start+pn533.LiteMaxReadBlocks, len(blocks))]
		data, err := dev.LiteRead(ctx, chunk...)
		if err != nil {
			return fmt.Errorf("read blocks %v: %w", chunk, err)
		}
		for i, b := range chunk {
			_, _ = fmt.Fprintf(a.out, "%02X: % X\n", b, data[i*pn533.BlockSize:(i+1)*pn533.BlockSize])
		}
	}
	return nil
}

func issuanceParams(a *app) (issuance.Params, error) {
	key, err := a.cfg.Issuance.MasterKeyBytes()
	if err != nil {
		return issuance.Params{}, err
	}
	return issuance.Params{
		MasterKey:  key,
		DFD:        uint16(a.cfg.Issuance.DFD),
		KeyVersion: uint16(a.cfg.Issuance.KeyVersion),
	}, nil
}

func runIssue(ctx context.Context, a *app, dev *pn533.Device, _ []string) error {
	params, err := issuanceParams(a)
	if err != nil {
		return err
	}
	id, err := waitLite(ctx, a, dev)
	if err != nil {
		return err
	}

	outcome, err := issuance.New(dev, issuance.WithMetrics(a.metrics)).Issue(ctx, params)
	a.log.Info("issuance", zap.String("idm", hex.EncodeToString(id.IDm())), zap.Stringer("outcome", outcome))
	switch outcome {
	case issuance.Success:
		_, _ = fmt.Fprintf(a.out, "Issued %X (DFD %04X, key version %d)\n", id.IDm(), params.DFD, params.KeyVersion)
		return nil
	case issuance.BadSystemCode, issuance.AlreadyIssued, issuance.CardNotFound:
		return &outcomeError{outcome: outcome, err: err}
	default:
		return err
	}
}

func runMACCheck(ctx context.Context, a *app, dev *pn533.Device, _ []string) error {
	params, err := issuanceParams(a)
	if err != nil {
		return err
	}
	id, err := waitLite(ctx, a, dev)
	if err != nil {
		return err
	}
	if err := issuance.New(dev).CheckMACWithMasterKey(ctx, params.MasterKey); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(a.out, "MAC OK for %X\n", id.IDm())
	return nil
}

func runPushURL(ctx context.Context, a *app, dev *pn533.Device, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: push-url takes exactly one URL", pn533.ErrInvalidParameter)
	}
	if _, err := waitCard(ctx, a, dev, pn533.WaitConfig{}); err != nil {
		return err
	}
	if err := dev.PushURL(ctx, args[0]); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, "URL pushed")
	return nil
}

func runNDEF(ctx context.Context, a *app, dev *pn533.Device, _ []string) error {
	if _, err := waitCard(ctx, a, dev, pn533.WaitConfig{SystemCode: pn533.SystemCodeNDEF}); err != nil {
		return err
	}
	msg, err := dev.ReadNDEF(ctx)
	if err != nil {
		return err
	}
	for i, r := range msg.Records {
		switch {
		case r.Text != "":
			_, _ = fmt.Fprintf(a.out, "%d: text %q\n", i, r.Text)
		case r.URI != "":
			_, _ = fmt.Fprintf(a.out, "%d: uri %s\n", i, r.URI)
		default:
			_, _ = fmt.Fprintf(a.out, "%d: type %q payload % X\n", i, r.Type, r.Payload)
		}
	}
	return nil
}

func runWatch(ctx context.Context, a *app, dev *pn533.Device, _ []string) error {
	cfg := polling.DefaultConfig()
	cfg.Kinds = []pn533.PollKind{pn533.PollFeliCa, pn533.PollTypeA}

	monitor := polling.NewMonitor(dev, cfg, polling.Callbacks{
		OnCardDetected: func(id pn533.CardIdentity) error {
			a.log.Info("card detected", zap.Stringer("card", id))
			printIdentity(a.out, id)
			return nil
		},
		OnCardRemoved: func() {
			a.log.Info("card removed")
			_, _ = fmt.Fprintln(a.out, "Card removed")
		},
	})
	monitor.SetRecoverer(polling.NewDefaultRecoverer(dev, a.reopen,
		cfg.SleepRecovery.RecoveryBackoff, cfg.SleepRecovery.MaxRecoveryAttempts))

	if err := monitor.Start(ctx); err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.out, "Watching for cards. Press Ctrl+C to stop...")

	select {
	case <-ctx.Done():
	case <-monitor.Done():
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 2*pn533.DefaultIOTimeout)
	defer cancel()
	_ = monitor.Stop(stopCtx)

	m := monitor.GetMetrics()
	a.log.Info("watch finished",
		zap.Int64("polls", m.PollCycles),
		zap.Int64("cards", m.CardsDetected),
		zap.Int64("errors", m.PollErrors),
		zap.Int64("recoveries", m.Recoveries))
	if err := monitor.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

func listPorts(w io.Writer) error {
	readers, err := usb.List()
	if err != nil {
		_, _ = fmt.Fprintf(w, "usb: %v\n", err)
	}
	for _, r := range readers {
		_, _ = fmt.Fprintf(w, "usb     %s  %04X:%04X  %s\n", r.Path(), uint16(r.Vendor), uint16(r.Product), r.Name)
	}

	ports, err := serial.Ports()
	if err != nil && !errors.Is(err, serial.ErrNoPorts) {
		_, _ = fmt.Fprintf(w, "serial: %v\n", err)
	}
	for _, p := range ports {
		mark := ""
		if p.Likely {
			mark = "  (likely reader)"
		}
		_, _ = fmt.Fprintf(w, "serial  %s  %s  %s%s\n", p.Path, p.VIDPID, p.Product, mark)
	}
	return nil
}
