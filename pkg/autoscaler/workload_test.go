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
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	appsv1 "k8s.io/api/apps/v1"
	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	testingclock "k8s.io/utils/clock/testing"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/metrics"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/scale"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
	"github.com/vllm-project/metric-autoscaler/test/utils/wrapper"
)

var _ = ginkgo.Describe("Autoscaler against a Deployment", func() {
	var (
		ctx       context.Context
		k8sClient client.Client
		clk       *testingclock.FakeClock
		value     float64
		a         *Autoscaler
	)

	replicas := func() int32 {
		d := &appsv1.Deployment{}
		gomega.Expect(k8sClient.Get(ctx, client.ObjectKey{Namespace: "jobs", Name: "worker"}, d)).To(gomega.Succeed())
		return *d.Spec.Replicas
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		k8sClient = fake.NewClientBuilder().
			WithScheme(clientgoscheme.Scheme).
			WithObjects(wrapper.MakeDeployment("worker", "jobs").Replicas(2).Obj()).
			Build()
		clk = testingclock.NewFakeClock(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))

		ref, err := scale.ParseEndpoint("apis/apps/v1/namespaces/jobs/deployments/worker/scale")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		target, err := scale.NewWorkloadScale(k8sClient, ref)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())

		source := metrics.MetricSourceFunc(func(context.Context, time.Duration) (types.MetricSample, error) {
			return types.Sample(value), nil
		})
		a = New(types.Policy{
			MinReplicas:        1,
			MaxReplicas:        5,
			ScaleDownThreshold: 1,
			ScaleUpThreshold:   10,
			ScaleDownStep:      1,
			ScaleUpStep:        2,
			ScaleDownCooldown:  60 * time.Second,
			ScaleUpCooldown:    120 * time.Second,
			PollInterval:       30 * time.Second,
			Window:             5 * time.Minute,
		}, source, target, WithClock(clk))
	})

	ginkgo.It("walks the replica count up and back down", func() {
		value = 25
		gomega.Expect(a.Tick(ctx).Applied).To(gomega.BeTrue())
		gomega.Expect(replicas()).To(gomega.Equal(int32(4)))

		clk.Step(30 * time.Second)
		value = 0
		gomega.Expect(a.Tick(ctx).Decision.Kind).To(gomega.Equal(types.DecisionScaleDown))
		gomega.Expect(replicas()).To(gomega.Equal(int32(3)))

		clk.Step(30 * time.Second)
		gomega.Expect(a.Tick(ctx).Decision).To(gomega.Equal(types.NoOp(types.ReasonCooldown)))
		gomega.Expect(replicas()).To(gomega.Equal(int32(3)))

		clk.Step(30 * time.Second)
		gomega.Expect(a.Tick(ctx).Decision.Kind).To(gomega.Equal(types.DecisionScaleDown))
		gomega.Expect(replicas()).To(gomega.Equal(int32(2)))
	})

	ginkgo.It("caps scale up at the maximum", func() {
		value = 25
		a.Tick(ctx)
		clk.Step(121 * time.Second)
		res := a.Tick(ctx)
		gomega.Expect(res.Decision.To).To(gomega.Equal(int32(5)))
		gomega.Expect(replicas()).To(gomega.Equal(int32(5)))

		clk.Step(121 * time.Second)
		gomega.Expect(a.Tick(ctx).Decision).To(gomega.Equal(types.NoOp(types.ReasonAtMaximum)))
	})

	ginkgo.It("restores the floor when the workload was scaled to zero", func() {
		gomega.Expect(k8sClient.Patch(ctx, wrapper.MakeDeployment("worker", "jobs").Replicas(0).Obj(),
			client.RawPatch("application/merge-patch+json", []byte(`{"spec":{"replicas":0}}`)))).To(gomega.Succeed())
		value = 5

		res := a.Tick(ctx)
		gomega.Expect(res.Decision.Kind).To(gomega.Equal(types.DecisionClampToMinimum))
		gomega.Expect(replicas()).To(gomega.Equal(int32(1)))
	})
})
