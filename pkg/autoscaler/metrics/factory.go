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

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/redis/go-redis/v9"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
	"k8s.io/metrics/pkg/client/external_metrics"

	"github.com/vllm-project/metric-autoscaler/pkg/config"
)

// NewMetricSource builds the source selected by cfg.MetricSource. The returned
// close function releases any connection the source holds and is never nil.
func NewMetricSource(ctx context.Context, cfg *config.Config, restConfig *rest.Config) (MetricSource, func() error, error) {
	noop := func() error { return nil }

	switch cfg.MetricSource {
	case config.SourceCloudWatch:
		var opts []func(*awsconfig.LoadOptions) error
		if cfg.CloudWatch.Region != "" {
			opts = append(opts, awsconfig.WithRegion(cfg.CloudWatch.Region))
		}
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to load AWS configuration: %w", err)
		}
		source, err := NewCloudWatchSource(cloudwatch.NewFromConfig(awsCfg), cfg.CloudWatch)
		if err != nil {
			return nil, noop, err
		}
		klog.InfoS("Using CloudWatch metric source", "namespace", cfg.CloudWatch.Namespace,
			"metric", cfg.CloudWatch.MetricName, "dimensions", cfg.CloudWatch.Dimensions,
			"statistic", cfg.CloudWatch.Statistic, "region", awsCfg.Region)
		return source, noop, nil

	case config.SourcePrometheus:
		api, err := InitializePrometheusAPI(cfg.Prometheus.Address, cfg.Prometheus.Username, cfg.Prometheus.Password)
		if err != nil {
			return nil, noop, err
		}
		klog.InfoS("Using Prometheus metric source", "address", cfg.Prometheus.Address, "query", cfg.Prometheus.Query)
		return NewPrometheusSource(api, cfg.Prometheus.Query), noop, nil

	case config.SourceExternal:
		if restConfig == nil {
			return nil, noop, fmt.Errorf("external metric source requires a kubernetes client configuration")
		}
		client, err := external_metrics.NewForConfig(withRequestTimeout(restConfig, cfg.RequestTimeout.Std()))
		if err != nil {
			return nil, noop, fmt.Errorf("failed to create external metrics client: %w", err)
		}
		namespace := cfg.External.Namespace
		if namespace == "" {
			namespace = "default"
		}
		source, err := NewExternalMetricsSource(client, namespace, cfg.External.Name, cfg.External.Selector)
		if err != nil {
			return nil, noop, err
		}
		klog.InfoS("Using external metric source", "metric", cfg.External.Name, "namespace", namespace, "selector", cfg.External.Selector)
		return source, noop, nil

	case config.SourceRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		klog.InfoS("Using redis backlog metric source", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB, "key", cfg.Redis.Key)
		return NewRedisBacklogSource(client, cfg.Redis.Key), client.Close, nil

	default:
		return nil, noop, fmt.Errorf("unsupported metric source %q", cfg.MetricSource)
	}
}

// withRequestTimeout returns a copy of restConfig whose HTTP client gives up
// after timeout. The external metrics client takes no context, so this is the
// only bound on its calls.
func withRequestTimeout(restConfig *rest.Config, timeout time.Duration) *rest.Config {
	bounded := rest.CopyConfig(restConfig)
	bounded.Timeout = timeout
	return bounded
}
