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

package metrics

import (
	"context"
	"fmt"
	"time"

	prometheusv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// PrometheusSource evaluates a PromQL expression as an instant query. The
// expression may reference the sampling window as ${window}, for example
// avg_over_time(queue_depth[${window}]).
type PrometheusSource struct {
	api   prometheusv1.API
	query string
	clock clock.PassiveClock
}

func NewPrometheusSource(api prometheusv1.API, query string) *PrometheusSource {
	return &PrometheusSource{
		api:   api,
		query: query,
		clock: clock.RealClock{},
	}
}

func (s *PrometheusSource) Sample(ctx context.Context, window time.Duration) (types.MetricSample, error) {
	query := BuildQuery(s.query, map[string]string{"window": PromDuration(window)})

	result, warnings, err := s.api.Query(ctx, query, s.clock.Now())
	if err != nil {
		return types.NoData, fmt.Errorf("failed to query prometheus with %q: %w", query, err)
	}
	if len(warnings) > 0 {
		klog.V(4).InfoS("Prometheus query returned warnings", "query", query, "warnings", warnings)
	}

	switch v := result.(type) {
	case nil:
		return types.NoData, nil
	case *model.Scalar:
		return sampleOf(float64(v.Value)), nil
	case model.Vector:
		switch len(v) {
		case 0:
			klog.V(4).InfoS("Prometheus query returned an empty vector", "query", query)
			return types.NoData, nil
		case 1:
			return sampleOf(float64(v[0].Value)), nil
		default:
			return types.NoData, fmt.Errorf("%w: %q matched %d series, aggregate it with sum() or avg()", ErrMultipleSeries, query, len(v))
		}
	default:
		return types.NoData, fmt.Errorf("%w: %s", ErrUnsupportedResult, result.Type())
	}
}
