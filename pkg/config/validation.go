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

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/util/validation/field"
)

var supportedStatistics = []string{"Average", "Sum", "Minimum", "Maximum", "SampleCount"}

// Validate checks field constraints through struct tags and the cross-field
// invariants by hand. All problems are reported together.
func (c *Config) Validate() error {
	return multierr.Combine(
		validator.New().Struct(c),
		c.validatePolicy().ToAggregate(),
		c.validateTarget().ToAggregate(),
		c.validateSource().ToAggregate(),
	)
}

func (c *Config) validatePolicy() field.ErrorList {
	var allErrs field.ErrorList

	if c.MaxReplicas < c.MinReplicas {
		allErrs = append(allErrs,
			field.Invalid(field.NewPath("minReplicas"), c.MinReplicas, "cannot be greater than maxReplicas"),
			field.Invalid(field.NewPath("maxReplicas"), c.MaxReplicas, "cannot be less than minReplicas"),
		)
	}

	if c.ScaleDownValue != nil && c.ScaleUpValue != nil && *c.ScaleDownValue >= *c.ScaleUpValue {
		allErrs = append(allErrs,
			field.Invalid(field.NewPath("scaleDownValue"), *c.ScaleDownValue, "must be less than scaleUpValue"))
	}

	return allErrs
}

func (c *Config) validateTarget() field.ErrorList {
	var allErrs field.ErrorList
	targetPath := field.NewPath("target")
	t := c.Target

	if t.Endpoint != "" {
		if t.Name != "" || t.Kind != "" {
			allErrs = append(allErrs, field.Forbidden(targetPath.Child("endpoint"), "cannot be combined with kind/name"))
		}
		return allErrs
	}

	if t.Name == "" {
		allErrs = append(allErrs, field.Required(targetPath.Child("name"), "must be set when endpoint is empty"))
	}
	if t.Kind == "" {
		allErrs = append(allErrs, field.Required(targetPath.Child("kind"), "must be set when endpoint is empty"))
	}
	return allErrs
}

func (c *Config) validateSource() field.ErrorList {
	var allErrs field.ErrorList

	switch c.MetricSource {
	case SourceCloudWatch:
		cwPath := field.NewPath("cloudwatch")
		cw := c.CloudWatch
		if cw.Namespace == "" {
			allErrs = append(allErrs, field.Required(cwPath.Child("namespace"), "required for metricSource=cloudwatch"))
		}
		if cw.MetricName == "" {
			allErrs = append(allErrs, field.Required(cwPath.Child("metricName"), "required for metricSource=cloudwatch"))
		}
		if !lo.Contains(supportedStatistics, cw.Statistic) {
			allErrs = append(allErrs, field.NotSupported(cwPath.Child("statistic"), cw.Statistic, supportedStatistics))
		}
		for _, d := range strings.Fields(cw.Dimensions) {
			if !strings.HasPrefix(d, "Name=") || !strings.Contains(d, ",Value=") {
				allErrs = append(allErrs, field.Invalid(cwPath.Child("dimensions"), d, "expected Name=<name>,Value=<value>"))
			}
		}
	case SourcePrometheus:
		promPath := field.NewPath("prometheus")
		if c.Prometheus.Address == "" {
			allErrs = append(allErrs, field.Required(promPath.Child("address"), "required for metricSource=prometheus"))
		}
		if c.Prometheus.Query == "" {
			allErrs = append(allErrs, field.Required(promPath.Child("query"), "required for metricSource=prometheus"))
		}
	case SourceExternal:
		extPath := field.NewPath("external")
		if c.External.Name == "" {
			allErrs = append(allErrs, field.Required(extPath.Child("name"), "required for metricSource=external"))
		}
		if c.External.Selector != "" {
			if _, err := labels.Parse(c.External.Selector); err != nil {
				allErrs = append(allErrs, field.Invalid(extPath.Child("selector"), c.External.Selector, err.Error()))
			}
		}
	case SourceRedis:
		redisPath := field.NewPath("redis")
		if c.Redis.Addr == "" {
			allErrs = append(allErrs, field.Required(redisPath.Child("addr"), "required for metricSource=redis"))
		}
		if c.Redis.Key == "" {
			allErrs = append(allErrs, field.Required(redisPath.Child("key"), "required for metricSource=redis"))
		}
	default:
		allErrs = append(allErrs, field.NotSupported(field.NewPath("metricSource"), c.MetricSource, supportedSources))
	}

	return allErrs
}
