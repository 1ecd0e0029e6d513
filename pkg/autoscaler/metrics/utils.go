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
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/prometheus/client_golang/api"
	prometheusv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/config"
	"github.com/prometheus/common/model"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

var placeholderPattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_]*)\}`)

// BuildQuery replaces ${name} placeholders in a PromQL template. Unknown
// placeholders are left untouched so the server reports them.
func BuildQuery(queryTemplate string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(queryTemplate, func(match string) string {
		key := placeholderPattern.FindStringSubmatch(match)[1]
		if value, exists := vars[key]; exists {
			return value
		}
		return match
	})
}

// PromDuration renders a window in PromQL range syntax, e.g. 6m or 1h30m.
func PromDuration(d time.Duration) string {
	if d < time.Second {
		d = time.Second
	}
	return model.Duration(d.Truncate(time.Second)).String()
}

// InitializePrometheusAPI initializes the Prometheus API client. Basic auth is
// only attached when a username is given.
func InitializePrometheusAPI(endpoint, username, password string) (prometheusv1.API, error) {
	if endpoint == "" {
		return nil, fmt.Errorf("prometheus endpoint is not provided")
	}

	cfg := api.Config{Address: endpoint}
	if username != "" {
		cfg.RoundTripper = config.NewBasicAuthRoundTripper(config.NewInlineSecret(username),
			config.NewInlineSecret(password), api.DefaultRoundTripper)
	}

	client, err := api.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}

	return prometheusv1.NewAPI(client), nil
}

// sampleOf turns a raw float into a sample; NaN and Inf are not usable values.
func sampleOf(v float64) types.MetricSample {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return types.NoData
	}
	return types.Sample(v)
}
