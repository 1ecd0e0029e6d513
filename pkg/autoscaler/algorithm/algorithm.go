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

// Package algorithm turns a metric sample and the scaling history into a
// single scaling decision. Everything here is pure: no I/O, no logging, no
// clock reads. The caller passes "now" in.
package algorithm

import (
	"math"
	"time"

	"github.com/samber/lo"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// Decide evaluates the threshold policy. Branches are checked in order and
// exactly one decision is returned:
//
//  1. below the replica floor: clamp to the minimum, whatever the metric says
//  2. no datapoints: no-op
//  3. at or below the scale down threshold: scale down unless at minimum or cooling down
//  4. at or above the scale up threshold: scale up unless at maximum or cooling down
//  5. otherwise the value is in the dead band: no-op
func Decide(policy types.Policy, state types.SchedulerState, current int32, sample types.MetricSample, now time.Time) types.ScaleDecision {
	if current < policy.MinReplicas {
		return types.ScaleDecision{
			Kind:   types.DecisionClampToMinimum,
			From:   current,
			To:     policy.MinReplicas,
			Reason: types.ReasonBelowMinimum,
		}
	}

	if !sample.Present || math.IsNaN(sample.Value) {
		return types.NoOp(types.ReasonNoData)
	}

	switch {
	case sample.Value <= policy.ScaleDownThreshold:
		return decideScaleDown(policy, state, current, now)
	case sample.Value >= policy.ScaleUpThreshold:
		return decideScaleUp(policy, state, current, now)
	default:
		return types.NoOp(types.ReasonWithinBand)
	}
}

func decideScaleDown(policy types.Policy, state types.SchedulerState, current int32, now time.Time) types.ScaleDecision {
	if current <= policy.MinReplicas {
		return types.NoOp(types.ReasonAtMinimum)
	}
	if inCooldown(state.LastScaleDownAt, policy.ScaleDownCooldown, now) {
		return types.NoOp(types.ReasonCooldown)
	}
	return types.ScaleDecision{
		Kind:   types.DecisionScaleDown,
		From:   current,
		To:     applyConstraints(int64(current)-int64(policy.ScaleDownStep), policy),
		Reason: types.ReasonBelowThreshold,
	}
}

func decideScaleUp(policy types.Policy, state types.SchedulerState, current int32, now time.Time) types.ScaleDecision {
	if current >= policy.MaxReplicas {
		return types.NoOp(types.ReasonAtMaximum)
	}
	if inCooldown(state.LastScaleUpAt, policy.ScaleUpCooldown, now) {
		return types.NoOp(types.ReasonCooldown)
	}
	return types.ScaleDecision{
		Kind:   types.DecisionScaleUp,
		From:   current,
		To:     applyConstraints(int64(current)+int64(policy.ScaleUpStep), policy),
		Reason: types.ReasonAboveThreshold,
	}
}

func inCooldown(last time.Time, cooldown time.Duration, now time.Time) bool {
	return now.Sub(last) < cooldown
}

// applyConstraints truncates a stepped replica count to the policy bounds.
// The step is added in int64 so that large steps cannot wrap around.
func applyConstraints(replicas int64, policy types.Policy) int32 {
	return int32(lo.Clamp(replicas, int64(policy.MinReplicas), int64(policy.MaxReplicas)))
}
