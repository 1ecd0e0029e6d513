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
	"sync"
	"time"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

type fakeSource struct {
	mu      sync.Mutex
	sample  types.MetricSample
	err     error
	calls   int
	windows []time.Duration
}

func (f *fakeSource) Sample(_ context.Context, window time.Duration) (types.MetricSample, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.windows = append(f.windows, window)
	return f.sample, f.err
}

func (f *fakeSource) set(sample types.MetricSample, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sample = sample
	f.err = err
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeTarget struct {
	mu       sync.Mutex
	replicas int32
	readErr  error
	applyErr error
	applied  []int32

	// block, when set, holds Apply until closed.
	block       chan struct{}
	started     chan struct{}
	applyCtxErr error
}

func (f *fakeTarget) ReadCurrentReplicas(_ context.Context) (int32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.replicas, nil
}

func (f *fakeTarget) Apply(ctx context.Context, replicas int32) error {
	f.mu.Lock()
	block, started := f.block, f.started
	f.mu.Unlock()

	if block != nil {
		close(started)
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyCtxErr = ctx.Err()
	if f.applyErr != nil {
		return f.applyErr
	}
	f.applied = append(f.applied, replicas)
	f.replicas = replicas
	return nil
}

func (f *fakeTarget) appliedReplicas() []int32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int32(nil), f.applied...)
}

func (f *fakeTarget) setReplicas(n int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replicas = n
}

type fakeMonitor struct {
	mu        sync.Mutex
	stages    []string
	decisions []types.ScaleDecision
	scaled    []types.ScaleDecision
}

func (m *fakeMonitor) RecordObservation(int32, types.MetricSample) {}

func (m *fakeMonitor) RecordDecision(d types.ScaleDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decisions = append(m.decisions, d)
}

func (m *fakeMonitor) RecordTickError(stage string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stages = append(m.stages, stage)
}

func (m *fakeMonitor) RecordScaled(d types.ScaleDecision, _ time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scaled = append(m.scaled, d)
}
