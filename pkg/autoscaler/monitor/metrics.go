/*
Copyright 2025 The Aibrix Team.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package monitor

import (
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// Stages a tick can fail in.
const (
	StageRead   = "read"
	StageSample = "sample"
	StageApply  = "apply"
)

var (
	decisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metric_autoscaler_decisions_total",
			Help: "Number of scaling decisions by kind and reason",
		},
		[]string{"decision", "reason"},
	)
	tickErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metric_autoscaler_tick_errors_total",
			Help: "Number of ticks abandoned because a dependency call failed",
		},
		[]string{"stage"},
	)
	currentReplicas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metric_autoscaler_current_replicas",
			Help: "Replica count observed at the last tick",
		},
	)
	desiredReplicas = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metric_autoscaler_desired_replicas",
			Help: "Replica count requested by the last scaling action",
		},
	)
	metricValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "metric_autoscaler_metric_value",
			Help: "Last sampled metric value, NaN when the source had no data",
		},
	)
	lastScaleTimestamp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "metric_autoscaler_last_scale_timestamp_seconds",
			Help: "Unix time of the last successful scaling action by direction",
		},
		[]string{"direction"},
	)
)

func init() {
	// Register with controller-runtime metrics registry
	metrics.Registry.MustRegister(
		decisionsTotal,
		tickErrorsTotal,
		currentReplicas,
		desiredReplicas,
		metricValue,
		lastScaleTimestamp,
	)
}

// Monitor records the control loop's activity as Prometheus metrics.
type Monitor interface {
	RecordObservation(current int32, sample types.MetricSample)
	RecordDecision(decision types.ScaleDecision)
	RecordTickError(stage string)
	RecordScaled(decision types.ScaleDecision, at time.Time)
}

type monitor struct{}

func New() Monitor {
	return &monitor{}
}

func (m *monitor) RecordObservation(current int32, sample types.MetricSample) {
	currentReplicas.Set(float64(current))
	if sample.Present {
		metricValue.Set(sample.Value)
	} else {
		metricValue.Set(math.NaN())
	}
}

func (m *monitor) RecordDecision(decision types.ScaleDecision) {
	decisionsTotal.WithLabelValues(string(decision.Kind), decision.Reason).Inc()
}

func (m *monitor) RecordTickError(stage string) {
	tickErrorsTotal.WithLabelValues(stage).Inc()
}

func (m *monitor) RecordScaled(decision types.ScaleDecision, at time.Time) {
	desiredReplicas.Set(float64(decision.To))
	var direction string
	switch decision.Kind {
	case types.DecisionScaleUp:
		direction = "up"
	case types.DecisionScaleDown:
		direction = "down"
	case types.DecisionClampToMinimum:
		direction = "clamp"
	default:
		return
	}
	lastScaleTimestamp.WithLabelValues(direction).Set(float64(at.Unix()))
}

// Noop discards everything.
type Noop struct{}

func (Noop) RecordObservation(int32, types.MetricSample) {}
func (Noop) RecordDecision(types.ScaleDecision)          {}
func (Noop) RecordTickError(string)                      {}
func (Noop) RecordScaled(types.ScaleDecision, time.Time) {}
