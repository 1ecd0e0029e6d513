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

// Package autoscaler drives the decision engine on a fixed cadence: read the
// workload's replicas, sample the metric, decide, apply.
package autoscaler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/algorithm"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/metrics"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/monitor"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/scale"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

const defaultRequestTimeout = 30 * time.Second

// errStopped marks a tick whose action was dropped because a stop was requested.
var errStopped = errors.New("stop requested before the scaling action was applied")

// TickResult describes what one tick observed and did.
type TickResult struct {
	ID       string
	At       time.Time
	Current  int32
	Sample   types.MetricSample
	Decision types.ScaleDecision
	// Applied is true only when ScaleTarget.Apply succeeded.
	Applied bool
	DryRun  bool
	// Stage is the step that failed, empty on success.
	Stage string
	Err   error
}

// Autoscaler owns the scheduler state and is the only writer to it. Tick
// must not be called concurrently with itself or with Run.
type Autoscaler struct {
	policy types.Policy
	source metrics.MetricSource
	target scale.ScaleTarget

	state *types.SchedulerState

	clock          clock.WithTicker
	monitor        monitor.Monitor
	recorder       *StatusRecorder
	requestTimeout time.Duration
}

type Option func(*Autoscaler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.WithTicker) Option {
	return func(a *Autoscaler) {
		a.clock = c
	}
}

func WithMonitor(m monitor.Monitor) Option {
	return func(a *Autoscaler) {
		a.monitor = m
	}
}

// WithStatusRecorder publishes a snapshot after every tick.
func WithStatusRecorder(r *StatusRecorder) Option {
	return func(a *Autoscaler) {
		a.recorder = r
	}
}

// WithRequestTimeout bounds every call to the metric source and the scale target.
func WithRequestTimeout(d time.Duration) Option {
	return func(a *Autoscaler) {
		if d > 0 {
			a.requestTimeout = d
		}
	}
}

// New returns an Autoscaler. The policy must already be validated.
func New(policy types.Policy, source metrics.MetricSource, target scale.ScaleTarget, opts ...Option) *Autoscaler {
	a := &Autoscaler{
		policy:         policy,
		source:         source,
		target:         target,
		clock:          clock.RealClock{},
		monitor:        monitor.Noop{},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.state = types.NewSchedulerState(a.clock.Now())
	return a
}

// State returns a copy of the scheduler state.
func (a *Autoscaler) State() types.SchedulerState {
	return *a.state
}

// Run ticks every poll interval until ctx is cancelled. It only returns on
// stop, never because a dependency failed.
func (a *Autoscaler) Run(ctx context.Context) error {
	klog.InfoS("Starting autoscaler", "pollInterval", a.policy.PollInterval, "window", a.policy.Window,
		"minReplicas", a.policy.MinReplicas, "maxReplicas", a.policy.MaxReplicas,
		"scaleDownThreshold", a.policy.ScaleDownThreshold, "scaleUpThreshold", a.policy.ScaleUpThreshold,
		"dryRun", a.policy.DryRun)

	ticker := a.clock.NewTicker(a.policy.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
		case <-ticker.C():
		}
		if ctx.Err() != nil {
			break
		}
		a.Tick(ctx)
	}

	klog.InfoS("Autoscaler stopped", "lastScaleUpAt", a.state.LastScaleUpAt, "lastScaleDownAt", a.state.LastScaleDownAt)
	return nil
}

// Tick runs one read, sample, decide, apply cycle.
func (a *Autoscaler) Tick(ctx context.Context) (res TickResult) {
	res = TickResult{
		ID:     uuid.NewString(),
		At:     a.clock.Now(),
		DryRun: a.policy.DryRun,
	}
	defer func() {
		if a.recorder != nil {
			a.recorder.Record(res, *a.state)
		}
	}()

	current, err := a.readCurrentReplicas(ctx)
	if err != nil {
		return a.fail(ctx, res, monitor.StageRead, err)
	}
	res.Current = current

	sample, err := a.sample(ctx)
	if err != nil {
		return a.fail(ctx, res, monitor.StageSample, err)
	}
	res.Sample = sample
	a.monitor.RecordObservation(current, sample)

	decision := algorithm.Decide(a.policy, *a.state, current, sample, a.clock.Now())
	res.Decision = decision
	a.monitor.RecordDecision(decision)

	if !decision.IsAction() {
		klog.InfoS("No scaling action", "tick", res.ID, "currentReplicas", current, "metric", sample.String(),
			"decision", decision.Kind, "reason", decision.Reason)
		return res
	}

	if a.policy.DryRun {
		klog.InfoS("Dry run, scaling action not applied", "tick", res.ID, "decision", decision.Kind,
			"from", decision.From, "to", decision.To, "metric", sample.String(), "reason", decision.Reason)
		return res
	}

	if ctx.Err() != nil {
		klog.InfoS("Stop requested, scaling action dropped", "tick", res.ID, "decision", decision.Kind, "from", decision.From, "to", decision.To)
		res.Err = errStopped
		return res
	}

	if err := a.apply(ctx, decision.To); err != nil {
		return a.fail(ctx, res, monitor.StageApply, err)
	}

	appliedAt := a.clock.Now()
	a.state.Record(decision, appliedAt)
	a.monitor.RecordScaled(decision, appliedAt)
	res.Applied = true

	klog.InfoS("Scaling action applied", "tick", res.ID, "decision", decision.Kind,
		"from", decision.From, "to", decision.To, "metric", sample.String(), "reason", decision.Reason)
	return res
}

// fail abandons the tick. A read or sample cut short by a stop is not a
// dependency failure and is neither counted nor logged as an error. Apply runs
// detached from the stop, so its failures always count.
func (a *Autoscaler) fail(ctx context.Context, res TickResult, stage string, err error) TickResult {
	res.Stage = stage
	res.Err = err
	if stage != monitor.StageApply && ctx.Err() != nil {
		klog.InfoS("Stop requested, tick abandoned", "tick", res.ID, "stage", stage, "err", err)
		return res
	}
	a.monitor.RecordTickError(stage)
	klog.ErrorS(err, "Tick abandoned, will retry on the next tick", "tick", res.ID, "stage", stage)
	return res
}

func (a *Autoscaler) readCurrentReplicas(ctx context.Context) (int32, error) {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	replicas, err := a.target.ReadCurrentReplicas(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read current replicas: %w", err)
	}
	if replicas < 0 {
		return 0, fmt.Errorf("workload reported negative replicas %d", replicas)
	}
	return replicas, nil
}

func (a *Autoscaler) sample(ctx context.Context) (types.MetricSample, error) {
	ctx, cancel := context.WithTimeout(ctx, a.requestTimeout)
	defer cancel()

	sample, err := a.source.Sample(ctx, a.policy.Window)
	if err != nil {
		return types.NoData, fmt.Errorf("failed to sample metric: %w", err)
	}
	klog.V(4).InfoS("Sampled metric", "window", a.policy.Window, "sample", sample.String())
	return sample, nil
}

// apply runs detached from the stop signal: once issued, a scale request is
// allowed to finish so the state and the cluster stay consistent.
func (a *Autoscaler) apply(ctx context.Context, replicas int32) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.requestTimeout)
	defer cancel()

	if err := a.target.Apply(ctx, replicas); err != nil {
		return fmt.Errorf("failed to apply %d replicas: %w", replicas, err)
	}
	return nil
}
