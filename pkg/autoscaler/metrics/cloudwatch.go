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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/aws/smithy-go"
	"github.com/samber/lo"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/klog/v2"
	"k8s.io/utils/clock"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
	"github.com/vllm-project/metric-autoscaler/pkg/config"
)

const minCloudWatchPeriod = 60 * time.Second

// Not exhaustive, add to it as needed.
var throttlingErrorCodes = sets.New[string](
	"Throttling",
	"ThrottlingException",
	"ThrottledException",
	"RequestLimitExceeded",
	"RequestThrottled",
	"TooManyRequestsException",
)

// CloudWatchAPI is the subset of the CloudWatch client used for sampling.
type CloudWatchAPI interface {
	GetMetricStatistics(ctx context.Context, params *cloudwatch.GetMetricStatisticsInput, optFns ...func(*cloudwatch.Options)) (*cloudwatch.GetMetricStatisticsOutput, error)
}

// CloudWatchSource samples one CloudWatch metric with GetMetricStatistics.
type CloudWatchSource struct {
	api        CloudWatchAPI
	namespace  string
	metricName string
	dimensions []cwtypes.Dimension
	statistic  cwtypes.Statistic

	clock      clock.PassiveClock
	retryDelay time.Duration
	attempts   uint
}

// NewCloudWatchSource builds a source from configuration. The dimensions
// string must already have been validated.
func NewCloudWatchSource(api CloudWatchAPI, cfg config.CloudWatchConfig) (*CloudWatchSource, error) {
	dims, err := ParseDimensions(cfg.Dimensions)
	if err != nil {
		return nil, err
	}
	return &CloudWatchSource{
		api:        api,
		namespace:  cfg.Namespace,
		metricName: cfg.MetricName,
		dimensions: dims,
		statistic:  cwtypes.Statistic(cfg.Statistic),
		clock:      clock.RealClock{},
		retryDelay: time.Second,
		attempts:   3,
	}, nil
}

func (s *CloudWatchSource) Sample(ctx context.Context, window time.Duration) (types.MetricSample, error) {
	end := s.clock.Now().UTC()
	period := cloudWatchPeriod(window)
	input := &cloudwatch.GetMetricStatisticsInput{
		Namespace:  aws.String(s.namespace),
		MetricName: aws.String(s.metricName),
		Dimensions: s.dimensions,
		StartTime:  aws.Time(end.Add(-period)),
		EndTime:    aws.Time(end),
		Period:     aws.Int32(int32(period / time.Second)),
		Statistics: []cwtypes.Statistic{s.statistic},
	}

	var out *cloudwatch.GetMetricStatisticsOutput
	err := retry.Do(
		func() (err error) {
			out, err = s.api.GetMetricStatistics(ctx, input)
			return err
		},
		retry.Context(ctx),
		retry.Attempts(s.attempts),
		retry.Delay(s.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(IsThrottled),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			klog.V(4).InfoS("CloudWatch request throttled, retrying", "attempt", n+1, "metric", s.metricName, "err", err)
		}),
	)
	if err != nil {
		return types.NoData, fmt.Errorf("failed to get CloudWatch statistics for %s/%s: %w", s.namespace, s.metricName, err)
	}

	if len(out.Datapoints) == 0 {
		klog.V(4).InfoS("CloudWatch returned no datapoints, the period may be too short for this metric",
			"namespace", s.namespace, "metric", s.metricName, "period", period)
		return types.NoData, nil
	}

	// Datapoints are not ordered, use the freshest one.
	latest := lo.MaxBy(out.Datapoints, func(a, b cwtypes.Datapoint) bool {
		return aws.ToTime(a.Timestamp).After(aws.ToTime(b.Timestamp))
	})
	value := statisticValue(latest, s.statistic)
	if value == nil {
		return types.NoData, nil
	}

	klog.V(4).InfoS("Sampled CloudWatch metric", "namespace", s.namespace, "metric", s.metricName,
		"statistic", s.statistic, "value", *value, "timestamp", aws.ToTime(latest.Timestamp))
	return sampleOf(*value), nil
}

// cloudWatchPeriod rounds the window up to a whole number of minutes, the
// granularity CloudWatch accepts for standard resolution metrics.
func cloudWatchPeriod(window time.Duration) time.Duration {
	if window <= minCloudWatchPeriod {
		return minCloudWatchPeriod
	}
	if rem := window % minCloudWatchPeriod; rem != 0 {
		window += minCloudWatchPeriod - rem
	}
	return window
}

func statisticValue(dp cwtypes.Datapoint, statistic cwtypes.Statistic) *float64 {
	switch statistic {
	case cwtypes.StatisticAverage:
		return dp.Average
	case cwtypes.StatisticSum:
		return dp.Sum
	case cwtypes.StatisticMinimum:
		return dp.Minimum
	case cwtypes.StatisticMaximum:
		return dp.Maximum
	case cwtypes.StatisticSampleCount:
		return dp.SampleCount
	default:
		return nil
	}
}

// ParseDimensions parses whitespace separated "Name=<name>,Value=<value>" pairs.
func ParseDimensions(raw string) ([]cwtypes.Dimension, error) {
	var dims []cwtypes.Dimension
	for _, field := range strings.Fields(raw) {
		name, value, ok := strings.Cut(field, ",Value=")
		if !ok || !strings.HasPrefix(name, "Name=") {
			return nil, fmt.Errorf("invalid CloudWatch dimension %q, expected Name=<name>,Value=<value>", field)
		}
		name = strings.TrimPrefix(name, "Name=")
		if name == "" {
			return nil, fmt.Errorf("invalid CloudWatch dimension %q, name is empty", field)
		}
		dims = append(dims, cwtypes.Dimension{Name: aws.String(name), Value: aws.String(value)})
	}
	return dims, nil
}

// IsThrottled returns true if the err is an AWS API error (even if it's
// wrapped) whose code means the request was rate limited.
func IsThrottled(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return throttlingErrorCodes.Has(apiErr.ErrorCode())
	}
	return false
}
