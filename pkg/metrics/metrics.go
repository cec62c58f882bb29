// Copyright 2026 Procwise GmbH
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

package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/procwise/localcluster/pkg/logger"
)

const (
	// Component labels.
	ComponentController = "controller"
	ComponentLauncher   = "launcher"
	ComponentBootstrap  = "bootstrap"
	ComponentBroadcast  = "broadcast"
	ComponentAgent      = "member_agent"
)

var (
	// Namespace and subsystem for all metrics.
	namespace = "localcluster"
	subsystem = "harness"

	// Error counters.
	errorCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Total number of errors encountered by component",
		},
		[]string{"component", "instance"},
	)

	// Controller operation timing.
	operationDuration = promauto.NewSummaryVec(
		prometheus.SummaryOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "operation_duration_milliseconds",
			Help:      "Time taken by a controller operation (in milliseconds)",
			Objectives: map[float64]float64{
				0.5:  0.01,
				0.9:  0.01,
				0.99: 0.01,
			},
		},
		[]string{"component", "operation"},
	)

	// Membership gauges.
	membersLive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "members_live",
			Help:      "Number of currently live cluster members",
		},
	)

	membersAllocated = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "members_allocated_total",
			Help:      "Total number of members ever allocated by the controller",
		},
	)

	// Broadcast outcomes by sync command.
	broadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "broadcasts_total",
			Help:      "Total number of broadcast sync commands by outcome",
		},
		[]string{"command", "outcome"},
	)
)

// SetupMetricsEndpoint starts an HTTP server exposing /metrics.
// This should be called once at application startup.
func SetupMetricsEndpoint(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:        addr,
		Handler:     mux,
		ReadTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.For(logger.ComponentMetrics).Errorf("Metrics server failed: %v", err)
		}
	}()

	return server
}

// IncErrorCountAndLog increments the error counter for a component and logs
// the failure if a logger is provided.
func IncErrorCountAndLog(component, instance string, err error, log *zap.SugaredLogger) {
	IncErrorCount(component, instance)

	if log != nil {
		log.Debugf("Component %s instance %s failed: %v", component, instance, err)
	}
}

// IncErrorCount increments the error counter for a component.
func IncErrorCount(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Inc()
}

// InitErrorCounter initializes the error counter for a component.
func InitErrorCounter(component, instance string) {
	errorCounter.WithLabelValues(component, instance).Add(0)
}

// ObserveOperation records the time taken by a controller operation.
func ObserveOperation(component, operation string, duration time.Duration) {
	operationDuration.WithLabelValues(component, operation).Observe(float64(duration.Milliseconds()))
}

// SetLiveMembers updates the live member gauge.
func SetLiveMembers(count int) {
	membersLive.Set(float64(count))
}

// AddAllocatedMembers increases the total-allocated counter.
func AddAllocatedMembers(count int) {
	membersAllocated.Add(float64(count))
}

// RecordBroadcast counts a broadcast sync command outcome ("ok" or "failed").
func RecordBroadcast(command string, failed bool) {
	outcome := "ok"
	if failed {
		outcome = "failed"
	}

	broadcastsTotal.WithLabelValues(command, outcome).Inc()
}
