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
	"time"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// MetricSource knows how to aggregate one external metric over a trailing window.
type MetricSource interface {
	// Sample returns the aggregated statistic over the window ending now.
	// A successful call with zero datapoints returns types.NoData and a nil
	// error. A non-nil error always means the backend could not be queried.
	Sample(ctx context.Context, window time.Duration) (types.MetricSample, error)
}

var (
	// ErrMultipleSeries is returned when a query matches more than one series
	// and there is no way to pick a single value.
	ErrMultipleSeries = errors.New("query returned more than one series")

	// ErrUnsupportedResult is returned for query results that are neither a
	// scalar nor an instant vector.
	ErrUnsupportedResult = errors.New("unsupported query result type")
)

// MetricSourceFunc adapts a plain function to a MetricSource.
type MetricSourceFunc func(ctx context.Context, window time.Duration) (types.MetricSample, error)

func (f MetricSourceFunc) Sample(ctx context.Context, window time.Duration) (types.MetricSample, error) {
	return f(ctx, window)
}
