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

	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/klog/v2"
	"k8s.io/metrics/pkg/client/external_metrics"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// ExternalMetricsSource reads a metric from the Kubernetes external metrics
// API, which is how adapters such as KEDA or the Prometheus adapter expose
// values that do not belong to any object. Values of all matching series are
// summed.
type ExternalMetricsSource struct {
	client     external_metrics.ExternalMetricsClient
	namespace  string
	metricName string
	selector   labels.Selector
}

func NewExternalMetricsSource(client external_metrics.ExternalMetricsClient, namespace, metricName, selector string) (*ExternalMetricsSource, error) {
	sel := labels.Everything()
	if selector != "" {
		parsed, err := labels.Parse(selector)
		if err != nil {
			return nil, fmt.Errorf("invalid external metric selector %q: %w", selector, err)
		}
		sel = parsed
	}
	return &ExternalMetricsSource{
		client:     client,
		namespace:  namespace,
		metricName: metricName,
		selector:   sel,
	}, nil
}

// Sample ignores the window: the adapter decides how values are aggregated.
func (s *ExternalMetricsSource) Sample(_ context.Context, _ time.Duration) (types.MetricSample, error) {
	list, err := s.client.NamespacedMetrics(s.namespace).List(s.metricName, s.selector)
	if err != nil {
		return types.NoData, fmt.Errorf("failed to fetch external metric %s in namespace %s: %w", s.metricName, s.namespace, err)
	}
	if len(list.Items) == 0 {
		klog.V(4).InfoS("External metric has no values", "metric", s.metricName, "namespace", s.namespace, "selector", s.selector.String())
		return types.NoData, nil
	}

	var total float64
	for _, item := range list.Items {
		total += item.Value.AsApproximateFloat64()
	}
	return sampleOf(total), nil
}
