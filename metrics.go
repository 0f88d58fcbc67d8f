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
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors a Device reports to. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Commands    *prometheus.CounterVec // labels: code, result
	FrameErrors *prometheus.CounterVec // labels: reason
	Polls       *prometheus.CounterVec // labels: type, result
	Issuance    *prometheus.CounterVec // labels: outcome
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pn533",
			Name:      "commands_total",
			Help:      "Reader commands exchanged, by command code and result.",
		}, []string{"code", "result"}),
		FrameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pn533",
			Name:      "frame_errors_total",
			Help:      "Received frames that failed validation, by reason.",
		}, []string{"reason"}),
		Polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pn533",
			Name:      "polls_total",
			Help:      "Card polls, by technology and result.",
		}, []string{"type", "result"}),
		Issuance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pn533",
			Name:      "issuance_total",
			Help:      "FeliCa Lite issuance attempts, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.Commands, m.FrameErrors, m.Polls, m.Issuance)
	return m
}

// NewRegistry returns a registry with the Go and process collectors and the
// device metrics registered.
func NewRegistry() (*prometheus.Registry, *Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, NewMetrics(reg)
}

// Handler returns the HTTP handler exposing reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	var se *StatusError
	switch {
	case errors.As(err, &se):
		return "status"
	case errors.Is(err, ErrTransportTimeout):
		return "timeout"
	case errors.Is(err, ErrCardNotFound):
		return "none"
	default:
		return "error"
	}
}

func (m *Metrics) observeCommand(cmd byte, err error) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(fmt.Sprintf("0x%02X", cmd), resultLabel(err)).Inc()
}

func (m *Metrics) observeFrameError(reason error) {
	if m == nil {
		return
	}
	m.FrameErrors.WithLabelValues(reason.Error()).Inc()
}

func (m *Metrics) observePoll(kind string, err error) {
	if m == nil {
		return
	}
	m.Polls.WithLabelValues(kind, resultLabel(err)).Inc()
}

// ObserveIssuance counts one issuance attempt with the given outcome label.
func (m *Metrics) ObserveIssuance(outcome string) {
	if m == nil {
		return
	}
	m.Issuance.WithLabelValues(outcome).Inc()
}
