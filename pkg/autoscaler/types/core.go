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

package types

import (
	"fmt"
	"time"
)

// Policy holds the scaling parameters. It is built once at startup and never mutated.
type Policy struct {
	MinReplicas int32
	MaxReplicas int32

	// A sample at or below ScaleDownThreshold asks for a scale down, a sample at
	// or above ScaleUpThreshold asks for a scale up. Anything in between is the
	// dead band.
	ScaleDownThreshold float64
	ScaleUpThreshold   float64

	ScaleDownStep int32
	ScaleUpStep   int32

	// Minimum time between two actions in the same direction.
	ScaleDownCooldown time.Duration
	ScaleUpCooldown   time.Duration

	PollInterval time.Duration
	// Window is the trailing window the metric is aggregated over.
	Window time.Duration

	DryRun bool
}

// initialLookback places the initial scaling timestamps far enough in the past
// that the first decision after startup is never held back by a cooldown.
const initialLookback = 365 * 24 * time.Hour

// SchedulerState is the only state carried between ticks. It is owned by the
// control loop and is never shared.
type SchedulerState struct {
	LastScaleUpAt   time.Time
	LastScaleDownAt time.Time
}

// NewSchedulerState returns a state whose timestamps are one year before now.
func NewSchedulerState(now time.Time) *SchedulerState {
	past := now.Add(-initialLookback)
	return &SchedulerState{
		LastScaleUpAt:   past,
		LastScaleDownAt: past,
	}
}

// Record moves the timestamp matching the decision's direction to now.
// ClampToMinimum and NoOp leave the state untouched.
func (s *SchedulerState) Record(decision ScaleDecision, now time.Time) {
	switch decision.Kind {
	case DecisionScaleUp:
		s.LastScaleUpAt = now
	case DecisionScaleDown:
		s.LastScaleDownAt = now
	}
}

// MetricSample is one aggregated metric value. Present is false when the
// source answered successfully but had no datapoints for the window.
type MetricSample struct {
	Value   float64
	Present bool
}

// NoData is the sample returned when a source has no datapoints.
var NoData = MetricSample{}

// Sample returns a present sample with the given value.
func Sample(v float64) MetricSample {
	return MetricSample{Value: v, Present: true}
}

func (m MetricSample) String() string {
	if !m.Present {
		return "<no data>"
	}
	return fmt.Sprintf("%g", m.Value)
}

// DecisionKind tags a ScaleDecision.
type DecisionKind string

const (
	DecisionNoOp           DecisionKind = "NoOp"
	DecisionClampToMinimum DecisionKind = "ClampToMinimum"
	DecisionScaleDown      DecisionKind = "ScaleDown"
	DecisionScaleUp        DecisionKind = "ScaleUp"
)

// Reasons attached to NoOp decisions.
const (
	ReasonNoData     = "no data"
	ReasonAtMinimum  = "at minimum"
	ReasonAtMaximum  = "at maximum"
	ReasonCooldown   = "cooldown"
	ReasonWithinBand = "within band"
)

// Reasons attached to actions. They only feed logs and metric labels.
const (
	ReasonBelowMinimum   = "below minimum"
	ReasonAboveThreshold = "above scale up threshold"
	ReasonBelowThreshold = "below scale down threshold"
)

// ScaleDecision is the outcome of one evaluation. From and To are only
// meaningful for actions.
type ScaleDecision struct {
	Kind   DecisionKind
	From   int32
	To     int32
	Reason string
}

// NoOp builds a decision that takes no action.
func NoOp(reason string) ScaleDecision {
	return ScaleDecision{Kind: DecisionNoOp, Reason: reason}
}

// IsAction reports whether the decision asks for the replica count to change.
func (d ScaleDecision) IsAction() bool {
	return d.Kind != DecisionNoOp && d.Kind != ""
}

func (d ScaleDecision) String() string {
	if !d.IsAction() {
		return fmt.Sprintf("NoOp{%s}", d.Reason)
	}
	return fmt.Sprintf("%s{%d->%d}", d.Kind, d.From, d.To)
}
