// Copyright 2026 Tom Barlow
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

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts protocol activity. With a nil registerer the collectors
// still work, they just are not exported anywhere.
type Metrics struct {
	// Requests counts dispatched requests by command.
	Requests *prometheus.CounterVec

	// Events counts published protocol events by event name.
	Events *prometheus.CounterVec

	// EvalTimeouts counts evaluations abandoned at the timeout.
	EvalTimeouts prometheus.Counter
}

// NewMetrics creates the session metrics, registered on reg when non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monodap_requests_total",
			Help: "DAP requests dispatched, by command.",
		}, []string{"command"}),
		Events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "monodap_events_total",
			Help: "DAP events published, by event name.",
		}, []string{"event"}),
		EvalTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "monodap_evaluation_timeouts_total",
			Help: "Expression evaluations abandoned at the timeout.",
		}),
	}
}
