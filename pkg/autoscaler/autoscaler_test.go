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
	"context"
	"errors"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/monitor"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

var _ = ginkgo.Describe("Autoscaler control loop", func() {
	var (
		policy   types.Policy
		clk      *testingclock.FakeClock
		source   *fakeSource
		target   *fakeTarget
		mon      *fakeMonitor
		recorder *StatusRecorder
		start    time.Time
	)

	newAutoscaler := func() *Autoscaler {
		return New(policy, source, target,
			WithClock(clk),
			WithMonitor(mon),
			WithStatusRecorder(recorder),
			WithRequestTimeout(time.Second),
		)
	}

	ginkgo.BeforeEach(func() {
		policy = types.Policy{
			MinReplicas:        1,
			MaxReplicas:        10,
			ScaleDownThreshold: 2,
			ScaleUpThreshold:   8,
			ScaleDownStep:      1,
			ScaleUpStep:        2,
			ScaleDownCooldown:  60 * time.Second,
			ScaleUpCooldown:    120 * time.Second,
			PollInterval:       30 * time.Second,
			Window:             5 * time.Minute,
		}
		start = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
		clk = testingclock.NewFakeClock(start)
		source = &fakeSource{sample: types.Sample(5)}
		target = &fakeTarget{replicas: 3}
		mon = &fakeMonitor{}
		recorder = NewStatusRecorder(false)
	})

	ginkgo.Context("Tick", func() {
		ginkgo.It("scales up and records the scale up time only", func() {
			a := newAutoscaler()
			before := a.State()
			source.set(types.Sample(9), nil)

			res := a.Tick(context.Background())

			gomega.Expect(res.Err).NotTo(gomega.HaveOccurred())
			gomega.Expect(res.Applied).To(gomega.BeTrue())
			gomega.Expect(res.Decision).To(gomega.Equal(types.ScaleDecision{
				Kind: types.DecisionScaleUp, From: 3, To: 5, Reason: types.ReasonAboveThreshold,
			}))
			gomega.Expect(target.appliedReplicas()).To(gomega.Equal([]int32{5}))
			gomega.Expect(a.State().LastScaleUpAt).To(gomega.Equal(start))
			gomega.Expect(a.State().LastScaleDownAt).To(gomega.Equal(before.LastScaleDownAt))
			gomega.Expect(source.windows).To(gomega.Equal([]time.Duration{5 * time.Minute}))
			gomega.Expect(mon.scaled).To(gomega.HaveLen(1))
		})

		ginkgo.It("abandons the tick when the replica count cannot be read", func() {
			a := newAutoscaler()
			before := a.State()
			target.readErr = errors.New("apiserver unavailable")

			res := a.Tick(context.Background())

			gomega.Expect(res.Err).To(gomega.HaveOccurred())
			gomega.Expect(res.Stage).To(gomega.Equal(monitor.StageRead))
			gomega.Expect(source.callCount()).To(gomega.BeZero())
			gomega.Expect(target.appliedReplicas()).To(gomega.BeEmpty())
			gomega.Expect(a.State()).To(gomega.Equal(before))
			gomega.Expect(mon.stages).To(gomega.Equal([]string{monitor.StageRead}))
		})

		ginkgo.It("abandons the tick when the metric cannot be sampled", func() {
			a := newAutoscaler()
			source.set(types.NoData, errors.New("throttled"))

			res := a.Tick(context.Background())

			gomega.Expect(res.Stage).To(gomega.Equal(monitor.StageSample))
			gomega.Expect(res.Decision.Kind).To(gomega.BeEmpty())
			gomega.Expect(target.appliedReplicas()).To(gomega.BeEmpty())
			gomega.Expect(mon.decisions).To(gomega.BeEmpty())
		})

		ginkgo.It("does nothing when the source has no data", func() {
			a := newAutoscaler()
			source.set(types.NoData, nil)

			res := a.Tick(context.Background())

			gomega.Expect(res.Err).NotTo(gomega.HaveOccurred())
			gomega.Expect(res.Decision).To(gomega.Equal(types.NoOp(types.ReasonNoData)))
			gomega.Expect(target.appliedReplicas()).To(gomega.BeEmpty())
		})

		ginkgo.It("does nothing inside the band", func() {
			a := newAutoscaler()

			res := a.Tick(context.Background())

			gomega.Expect(res.Decision).To(gomega.Equal(types.NoOp(types.ReasonWithinBand)))
			gomega.Expect(res.Applied).To(gomega.BeFalse())
			gomega.Expect(target.appliedReplicas()).To(gomega.BeEmpty())
		})

		ginkgo.It("never applies or records state in dry run", func() {
			policy.DryRun = true
			a := newAutoscaler()
			before := a.State()
			source.set(types.Sample(9), nil)

			res := a.Tick(context.Background())

			gomega.Expect(res.Decision.Kind).To(gomega.Equal(types.DecisionScaleUp))
			gomega.Expect(res.DryRun).To(gomega.BeTrue())
			gomega.Expect(res.Applied).To(gomega.BeFalse())
			gomega.Expect(target.appliedReplicas()).To(gomega.BeEmpty())
			gomega.Expect(a.State()).To(gomega.Equal(before))

			// Cooldowns do not engage, so the next tick decides the same way.
			clk.Step(policy.PollInterval)
			gomega.Expect(a.Tick(context.Background()).Decision.Kind).To(gomega.Equal(types.DecisionScaleUp))
		})

		ginkgo.It("leaves the state untouched when apply fails and retries next tick", func() {
			a := newAutoscaler()
			before := a.State()
			source.set(types.Sample(9), nil)
			target.applyErr = errors.New("conflict")

			res := a.Tick(context.Background())

			gomega.Expect(res.Stage).To(gomega.Equal(monitor.StageApply))
			gomega.Expect(res.Applied).To(gomega.BeFalse())
			gomega.Expect(a.State()).To(gomega.Equal(before))
			gomega.Expect(mon.stages).To(gomega.Equal([]string{monitor.StageApply}))

			target.applyErr = nil
			clk.Step(policy.PollInterval)
			res = a.Tick(context.Background())
			gomega.Expect(res.Applied).To(gomega.BeTrue())
			gomega.Expect(target.appliedReplicas()).To(gomega.Equal([]int32{5}))
		})

		ginkgo.It("clamps to the minimum without touching cooldowns", func() {
			a := newAutoscaler()
			before := a.State()
			target.setReplicas(0)
			source.set(types.NoData, nil)

			res := a.Tick(context.Background())

			gomega.Expect(res.Decision.Kind).To(gomega.Equal(types.DecisionClampToMinimum))
			gomega.Expect(res.Applied).To(gomega.BeTrue())
			gomega.Expect(target.appliedReplicas()).To(gomega.Equal([]int32{1}))
			gomega.Expect(a.State()).To(gomega.Equal(before))
		})

		ginkgo.It("holds the scale up cooldown across ticks while scale down stays free", func() {
			a := newAutoscaler()
			source.set(types.Sample(9), nil)
			gomega.Expect(a.Tick(context.Background()).Decision.To).To(gomega.Equal(int32(5)))

			clk.Step(60 * time.Second)
			res := a.Tick(context.Background())
			gomega.Expect(res.Decision).To(gomega.Equal(types.NoOp(types.ReasonCooldown)))

			clk.Step(30 * time.Second)
			source.set(types.Sample(1), nil)
			res = a.Tick(context.Background())
			gomega.Expect(res.Decision.Kind).To(gomega.Equal(types.DecisionScaleDown))
			gomega.Expect(res.Decision.To).To(gomega.Equal(int32(4)))

			clk.Step(31 * time.Second)
			source.set(types.Sample(9), nil)
			res = a.Tick(context.Background())
			gomega.Expect(res.Decision.Kind).To(gomega.Equal(types.DecisionScaleUp))
			gomega.Expect(target.appliedReplicas()).To(gomega.Equal([]int32{5, 4, 6}))
		})

		ginkgo.It("drops the action when a stop arrives before apply", func() {
			a := newAutoscaler()
			before := a.State()
			source.set(types.Sample(9), nil)
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			res := a.Tick(ctx)

			gomega.Expect(res.Decision.Kind).To(gomega.Equal(types.DecisionScaleUp))
			gomega.Expect(res.Applied).To(gomega.BeFalse())
			gomega.Expect(res.Err).To(gomega.MatchError(errStopped))
			gomega.Expect(target.appliedReplicas()).To(gomega.BeEmpty())
			gomega.Expect(a.State()).To(gomega.Equal(before))
		})

		ginkgo.It("does not count a sample cut short by a stop as a tick error", func() {
			a := newAutoscaler()
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			source.set(types.NoData, context.Canceled)

			res := a.Tick(ctx)

			gomega.Expect(res.Stage).To(gomega.Equal(monitor.StageSample))
			gomega.Expect(res.Err).To(gomega.MatchError(context.Canceled))
			gomega.Expect(mon.stages).To(gomega.BeEmpty())
			gomega.Expect(target.appliedReplicas()).To(gomega.BeEmpty())
		})

		ginkgo.It("counts an apply failure even when a stop arrives meanwhile", func() {
			a := newAutoscaler()
			source.set(types.Sample(9), nil)
			target.applyErr = errors.New("forbidden")
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			target.block = make(chan struct{})
			target.started = make(chan struct{})

			done := make(chan TickResult, 1)
			go func() { done <- a.Tick(ctx) }()
			gomega.Eventually(target.started).Should(gomega.BeClosed())
			cancel()
			close(target.block)

			var res TickResult
			gomega.Eventually(done).Should(gomega.Receive(&res))
			gomega.Expect(res.Stage).To(gomega.Equal(monitor.StageApply))
			gomega.Expect(mon.stages).To(gomega.Equal([]string{monitor.StageApply}))
		})

		ginkgo.It("publishes a status snapshot", func() {
			a := newAutoscaler()
			gomega.Expect(recorder.Ready()).To(gomega.BeFalse())
			source.set(types.Sample(9), nil)

			res := a.Tick(context.Background())

			status := recorder.Snapshot()
			gomega.Expect(status.Ready).To(gomega.BeTrue())
			gomega.Expect(status.Ticks).To(gomega.Equal(int64(1)))
			gomega.Expect(status.LastTickID).To(gomega.Equal(res.ID))
			gomega.Expect(status.Decision).To(gomega.Equal(string(types.DecisionScaleUp)))
			gomega.Expect(status.From).To(gomega.Equal(int32(3)))
			gomega.Expect(status.To).To(gomega.Equal(int32(5)))
			gomega.Expect(status.MetricValue).To(gomega.HaveValue(gomega.Equal(9.0)))
			gomega.Expect(status.LastScaleUpAt).To(gomega.Equal(start))
		})
	})

	ginkgo.Context("Run", func() {
		ginkgo.It("ticks once per poll interval and returns on stop", func() {
			a := newAutoscaler()
			source.set(types.Sample(9), nil)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()

			gomega.Eventually(clk.HasWaiters).Should(gomega.BeTrue())
			gomega.Consistently(source.callCount, 50*time.Millisecond).Should(gomega.BeZero())

			clk.Step(policy.PollInterval)
			gomega.Eventually(target.appliedReplicas).Should(gomega.Equal([]int32{5}))

			cancel()
			gomega.Eventually(done).Should(gomega.Receive(gomega.BeNil()))
			gomega.Expect(source.callCount()).To(gomega.Equal(1))
		})

		ginkgo.It("lets an in-flight apply finish after stop", func() {
			a := newAutoscaler()
			source.set(types.Sample(9), nil)
			target.block = make(chan struct{})
			target.started = make(chan struct{})
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			done := make(chan error, 1)
			go func() { done <- a.Run(ctx) }()

			gomega.Eventually(clk.HasWaiters).Should(gomega.BeTrue())
			clk.Step(policy.PollInterval)
			gomega.Eventually(target.started).Should(gomega.BeClosed())

			cancel()
			gomega.Consistently(done, 50*time.Millisecond).ShouldNot(gomega.Receive())

			close(target.block)
			gomega.Eventually(done).Should(gomega.Receive(gomega.BeNil()))
			gomega.Expect(target.appliedReplicas()).To(gomega.Equal([]int32{5}))
			gomega.Expect(target.applyCtxErr).NotTo(gomega.HaveOccurred())
			gomega.Expect(a.State().LastScaleUpAt).To(gomega.Equal(start.Add(policy.PollInterval)))
		})
	})
})
