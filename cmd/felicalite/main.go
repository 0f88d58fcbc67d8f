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

// Command felicalite issues and inspects FeliCa Lite cards on a PN533
// reader.
//
//	felicalite [flags] poll
//	felicalite [flags] read <block>...
//	felicalite [flags] issue
//	felicalite [flags] maccheck
//	felicalite [flags] push-url <url>
//	felicalite [flags] ndef
//	felicalite [flags] watch
//	felicalite ports
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pn533 "github.com/ZaparooProject/go-pn533"
	"github.com/ZaparooProject/go-pn533/config"
	"github.com/ZaparooProject/go-pn533/pipe/serial"
	"github.com/ZaparooProject/go-pn533/pipe/usb"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Package-level flag variables
var (
	flagConfig  string
	flagPipe    string
	flagDevice  string
	flagDebug   bool
	flagTimeout time.Duration
)

func init() {
	flag.StringVar(&flagConfig, "config", "", "Config file (default $PN533_CONFIG or ./pn533.yaml)")
	flag.StringVar(&flagPipe, "pipe", "", "Reader connection, usb or serial (overrides config)")
	flag.StringVar(&flagDevice, "device", "", "USB bus/address or serial port (auto-detect if empty)")
	flag.BoolVar(&flagDebug, "debug", false, "Enable wire-level debug output")
	flag.DurationVar(&flagTimeout, "timeout", 30*time.Second, "How long to wait for a card")
	flag.Usage = usage
}

func usage() {
	out := flag.CommandLine.Output()
	_, _ = fmt.Fprintf(out, "Usage: %s [flags] <command> [args]\n\nCommands:\n", os.Args[0])
	for _, c := range commands {
		_, _ = fmt.Fprintf(out, "  %-10s %s\n", c.name, c.help)
	}
	_, _ = fmt.Fprintln(out, "\nFlags:")
	flag.PrintDefaults()
}

// app carries what every command needs.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	out     io.Writer
	metrics *pn533.Metrics
	reopen  func() (pn533.Pipe, error)
	runID   string
	wait    time.Duration
}

type command struct {
	run  func(ctx context.Context, a *app, dev *pn533.Device, args []string) error
	name string
	help string
}

var commands = []command{
	{name: "poll", help: "wait for a card and print its identity", run: runPoll},
	{name: "read", help: "read FeliCa Lite blocks, e.g. read 0x82 0x88", run: runRead},
	{name: "issue", help: "issue the next blank FeliCa Lite card", run: runIssue},
	{name: "maccheck", help: "verify the card key of an issued card", run: runMACCheck},
	{name: "push-url", help: "push a URL to a mobile FeliCa device", run: runPushURL},
	{name: "ndef", help: "read the NDEF message of a Type 3 tag", run: runNDEF},
	{name: "watch", help: "report cards entering and leaving the field", run: runWatch},
	{name: "ports", help: "list attached readers"},
}

func findCommand(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagPipe != "" {
		cfg.Device.Pipe = flagPipe
	}
	if flagDevice != "" {
		cfg.Device.Path = flagDevice
	}
	if flagDebug {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openPipe opens the configured reader connection.
func openPipe(cfg config.DeviceConfig) (pn533.Pipe, error) {
	switch cfg.Pipe {
	case config.PipeSerial:
		path := cfg.Path
		if path == "" {
			ports, err := serial.Ports()
			if err != nil {
				return nil, fmt.Errorf("failed to auto-detect serial reader: %w", err)
			}
			path = ports[0].Path
		}
		p, err := serial.Open(path)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := usb.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

func connect(ctx context.Context, a *app) (*pn533.Device, error) {
	pipe, err := a.reopen()
	if err != nil {
		return nil, fmt.Errorf("failed to open reader: %w", err)
	}

	opts := []pn533.Option{
		pn533.WithIOTimeout(a.cfg.Device.IOTimeout),
		pn533.WithMetrics(a.metrics),
	}
	if a.cfg.Device.TraceSize > 0 {
		opts = append(opts, pn533.WithTraceSize(a.cfg.Device.TraceSize))
	}
	if flagDebug {
		opts = append(opts, pn533.WithLogger(a.log.Named("pn533")))
	}

	dev, err := pn533.New(pipe, opts...)
	if err != nil {
		_ = pipe.Close()
		return nil, err
	}
	if err := dev.Init(ctx); err != nil {
		_ = dev.Close()
		return nil, fmt.Errorf("failed to initialise reader on %v: %w", pipe, err)
	}

	if version, err := dev.GetFirmwareVersion(ctx); err == nil {
		a.log.Info("reader ready", zap.String("pipe", fmt.Sprint(pipe)), zap.String("firmware", version.Version))
	}
	return dev, nil
}

// serveMetrics exposes the registry when enabled. The returned function
// shuts the server down.
func serveMetrics(a *app) func() {
	if !a.cfg.Metrics.Enable {
		return func() {}
	}

	reg, m := pn533.NewRegistry()
	a.metrics = m

	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, pn533.Handler(reg))
	srv := &http.Server{Addr: a.cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("metrics server", zap.Error(err))
		}
	}()
	a.log.Info("serving metrics", zap.String("addr", a.cfg.Metrics.Addr), zap.String("path", a.cfg.Metrics.Path))

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}
}

func run(ctx context.Context, a *app, name string, args []string) error {
	if name == "ports" {
		return listPorts(a.out)
	}
	cmd, ok := findCommand(name)
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}

	stop := serveMetrics(a)
	defer stop()

	dev, err := connect(ctx, a)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			a.log.Warn("failed to close device", zap.Error(err))
		}
	}()

	return cmd.run(ctx, a, dev, args)
}

func main() {
	flag.Parse()
	os.Exit(mainWithExitCode())
}

func mainWithExitCode() int {
	if flag.NArg() == 0 {
		usage()
		return 2
	}

	cfg, err := loadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	logger := config.NewLogger(cfg.Logging)
	defer func() { _ = logger.Sync() }()

	if cfg.Logging.SessionDir != "" {
		path, err := pn533.InitSessionLog(cfg.Logging.SessionDir)
		if err != nil {
			logger.Warn("session log disabled", zap.Error(err))
		} else {
			logger.Info("session log", zap.String("path", path))
			defer func() { _ = pn533.CloseSessionLog() }()
		}
	}

	runID := uuid.NewString()
	a := &app{
		cfg:   cfg,
		log:   logger.With(zap.String("run", runID)),
		out:   os.Stdout,
		runID: runID,
		wait:  flagTimeout,
		reopen: func() (pn533.Pipe, error) {
			return openPipe(cfg.Device)
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, a, flag.Arg(0), flag.Args()[1:]); err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		var oe *outcomeError
		if errors.As(err, &oe) {
			a.log.Warn("issuance refused", zap.Stringer("outcome", oe.outcome))
			return 3
		}
		a.log.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		return 1
	}
	return 0
}
