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

package config

import (
	"strings"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/types"
)

// Supported metric backends.
const (
	SourceCloudWatch = "cloudwatch"
	SourcePrometheus = "prometheus"
	SourceExternal   = "external"
	SourceRedis      = "redis"
)

var supportedSources = []string{SourceCloudWatch, SourcePrometheus, SourceExternal, SourceRedis}

// Config is everything the process needs to start. Environment variable names
// are kept compatible with earlier releases of the scaler (KUBE_*, CW_*, NOOP,
// DEBUG). Nested groups are read from the environment one by one, see Load.
type Config struct {
	MinReplicas int32 `json:"minReplicas" envconfig:"KUBE_MIN_REPLICAS" validate:"min=0"`
	MaxReplicas int32 `json:"maxReplicas" envconfig:"KUBE_MAX_REPLICAS" validate:"min=0"`

	ScaleDownCount    int32    `json:"scaleDownCount" envconfig:"KUBE_SCALE_DOWN_COUNT" validate:"gt=0"`
	ScaleDownCooldown Duration `json:"scaleDownCooldown" envconfig:"KUBE_SCALE_DOWN_COOLDOWN" validate:"min=0"`
	ScaleUpCount      int32    `json:"scaleUpCount" envconfig:"KUBE_SCALE_UP_COUNT" validate:"gt=0"`
	ScaleUpCooldown   Duration `json:"scaleUpCooldown" envconfig:"KUBE_SCALE_UP_COOLDOWN" validate:"min=0"`

	ScaleDownValue *float64 `json:"scaleDownValue" envconfig:"CW_SCALE_DOWN_VALUE" validate:"required"`
	ScaleUpValue   *float64 `json:"scaleUpValue" envconfig:"CW_SCALE_UP_VALUE" validate:"required"`

	// Window is the trailing window every sample aggregates over.
	Window       Duration `json:"window" envconfig:"CW_PERIOD" validate:"gt=0"`
	PollInterval Duration `json:"pollInterval" envconfig:"CW_POLL_PERIOD" validate:"gt=0"`

	DryRun bool `json:"dryRun" envconfig:"NOOP"`
	// LogLevel is DEBUG, INFO or anything else for warnings only.
	LogLevel string `json:"logLevel" envconfig:"DEBUG"`

	RequestTimeout Duration `json:"requestTimeout" envconfig:"REQUEST_TIMEOUT" validate:"gt=0"`

	MetricSource string `json:"metricSource" envconfig:"METRIC_SOURCE"`

	Target     TargetConfig         `json:"target" ignored:"true"`
	CloudWatch CloudWatchConfig     `json:"cloudwatch" ignored:"true"`
	Prometheus PrometheusConfig     `json:"prometheus" ignored:"true"`
	External   ExternalMetricConfig `json:"external" ignored:"true"`
	Redis      RedisConfig          `json:"redis" ignored:"true"`
}

// TargetConfig names the scaled workload, either through the legacy
// KUBE_ENDPOINT scale path or through explicit fields.
type TargetConfig struct {
	Endpoint   string `json:"endpoint" envconfig:"KUBE_ENDPOINT"`
	APIVersion string `json:"apiVersion" envconfig:"KUBE_TARGET_API_VERSION"`
	Kind       string `json:"kind" envconfig:"KUBE_TARGET_KIND"`
	Namespace  string `json:"namespace" envconfig:"KUBE_TARGET_NAMESPACE"`
	Name       string `json:"name" envconfig:"KUBE_TARGET_NAME"`
}

type CloudWatchConfig struct {
	// Region overrides the region resolved by the AWS SDK (AWS_REGION, profile).
	Region     string `json:"region" envconfig:"CW_REGION"`
	Namespace  string `json:"namespace" envconfig:"CW_NAMESPACE"`
	MetricName string `json:"metricName" envconfig:"CW_METRIC_NAME"`
	// Dimensions uses the CLI shorthand, e.g. "Name=QueueName,Value=jobs".
	// Several dimensions are separated by whitespace.
	Dimensions string `json:"dimensions" envconfig:"CW_DIMENSIONS"`
	Statistic  string `json:"statistic" envconfig:"CW_STATISTICS"`
}

type PrometheusConfig struct {
	Address  string `json:"address" envconfig:"PROMETHEUS_ADDRESS"`
	Query    string `json:"query" envconfig:"PROMETHEUS_QUERY"`
	Username string `json:"username" envconfig:"PROMETHEUS_USERNAME"`
	Password string `json:"password" envconfig:"PROMETHEUS_PASSWORD"`
}

type ExternalMetricConfig struct {
	Namespace string `json:"namespace" envconfig:"EXTERNAL_METRIC_NAMESPACE"`
	Name      string `json:"name" envconfig:"EXTERNAL_METRIC_NAME"`
	Selector  string `json:"selector" envconfig:"EXTERNAL_METRIC_SELECTOR"`
}

type RedisConfig struct {
	Addr     string `json:"addr" envconfig:"REDIS_ADDR"`
	Password string `json:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `json:"db" envconfig:"REDIS_DB" validate:"min=0"`
	Key      string `json:"key" envconfig:"REDIS_KEY"`
}

// Default returns the built-in defaults. The thresholds have no default.
func Default() *Config {
	return &Config{
		MinReplicas:       1,
		MaxReplicas:       50,
		ScaleDownCount:    1,
		ScaleDownCooldown: Seconds(180),
		ScaleUpCount:      1,
		ScaleUpCooldown:   Seconds(300),
		Window:            Seconds(360),
		PollInterval:      Seconds(30),
		LogLevel:          "INFO",
		RequestTimeout:    Seconds(30),
		MetricSource:      SourceCloudWatch,
		CloudWatch: CloudWatchConfig{
			Statistic: "Average",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
	}
}

// Policy returns the immutable scaling policy. It must only be called on a
// validated Config.
func (c *Config) Policy() types.Policy {
	return types.Policy{
		MinReplicas:        c.MinReplicas,
		MaxReplicas:        c.MaxReplicas,
		ScaleDownThreshold: *c.ScaleDownValue,
		ScaleUpThreshold:   *c.ScaleUpValue,
		ScaleDownStep:      c.ScaleDownCount,
		ScaleUpStep:        c.ScaleUpCount,
		ScaleDownCooldown:  c.ScaleDownCooldown.Std(),
		ScaleUpCooldown:    c.ScaleUpCooldown.Std(),
		PollInterval:       c.PollInterval.Std(),
		Window:             c.Window.Std(),
		DryRun:             c.DryRun,
	}
}

// Verbosity maps the log level onto klog's -v.
func (c *Config) Verbosity() int {
	switch strings.ToUpper(strings.TrimSpace(c.LogLevel)) {
	case "DEBUG":
		return 4
	case "INFO":
		return 2
	default:
		return 0
	}
}
