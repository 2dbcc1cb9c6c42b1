// Copyright 2024 The lamina Authors. All Rights Reserved.
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

// Prometheus instrumentation for the control plane.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Request outcomes.
const (
	OutcomeOK             = "ok"
	OutcomeUnknownCommand = "unknown_command"
	OutcomeInvalidRequest = "invalid_request"
	OutcomeEngineFailure  = "engine_failure"
)

var (
	Requests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lamina_requests_total",
			Help: "Count of control requests by outcome.",
		},
		[]string{"outcome"},
	)

	ProgramDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lamina_program_duration_seconds",
			Help:    "Time spent executing the counter programming sequence.",
			Buckets: prometheus.ExponentialBuckets(10e-6, 10, 6),
		},
	)
)

// Register installs the control-plane collectors on a registry.
func Register(r prometheus.Registerer) {
	r.MustRegister(Requests, ProgramDuration)
}
