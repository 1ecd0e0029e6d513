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

package autoscaler

import (
	"sync"
	"time"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// Status is a point in time copy of what the loop last did.
type Status struct {
	Ready           bool       `json:"ready"`
	DryRun          bool       `json:"dryRun"`
	Ticks           int64      `json:"ticks"`
	LastTickID      string     `json:"lastTickId,omitempty"`
	LastTickAt      *time.Time `json:"lastTickAt,omitempty"`
	CurrentReplicas int32      `json:"currentReplicas"`
	MetricValue     *float64   `json:"metricValue"`
	Decision        string     `json:"decision,omitempty"`
	From            int32      `json:"from,omitempty"`
	To              int32      `json:"to,omitempty"`
	Reason          string     `json:"reason,omitempty"`
	Applied         bool       `json:"applied"`
	FailedStage     string     `json:"failedStage,omitempty"`
	LastError       string     `json:"lastError,omitempty"`
	LastScaleUpAt   time.Time  `json:"lastScaleUpAt"`
	LastScaleDownAt time.Time  `json:"lastScaleDownAt"`
}

// StatusRecorder holds the last published Status. The loop writes it, HTTP
// handlers read it.
type StatusRecorder struct {
	mu     sync.RWMutex
	status Status
}

func NewStatusRecorder(dryRun bool) *StatusRecorder {
	return &StatusRecorder{status: Status{DryRun: dryRun}}
}

// Record publishes the outcome of a tick. The recorder becomes ready after
// the first tick, whatever its outcome.
func (r *StatusRecorder) Record(res TickResult, state types.SchedulerState) {
	s := Status{
		Ready:           true,
		DryRun:          res.DryRun,
		LastTickID:      res.ID,
		CurrentReplicas: res.Current,
		Decision:        string(res.Decision.Kind),
		Reason:          res.Decision.Reason,
		Applied:         res.Applied,
		FailedStage:     res.Stage,
		LastScaleUpAt:   state.LastScaleUpAt,
		LastScaleDownAt: state.LastScaleDownAt,
	}
	if !res.At.IsZero() {
		at := res.At
		s.LastTickAt = &at
	}
	if res.Sample.Present {
		v := res.Sample.Value
		s.MetricValue = &v
	}
	if res.Decision.IsAction() {
		s.From = res.Decision.From
		s.To = res.Decision.To
	}
	if res.Err != nil {
		s.LastError = res.Err.Error()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	s.Ticks = r.status.Ticks + 1
	r.status = s
}

func (r *StatusRecorder) Snapshot() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := r.status
	if s.LastTickAt != nil {
		at := *s.LastTickAt
		s.LastTickAt = &at
	}
	if s.MetricValue != nil {
		v := *s.MetricValue
		s.MetricValue = &v
	}
	return s
}

func (r *StatusRecorder) Ready() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.status.Ready
}
