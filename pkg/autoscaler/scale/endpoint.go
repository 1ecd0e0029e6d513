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

package scale

import (
	"fmt"
	"net/url"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"

	"github.com/vllm-project/metric-autoscaler/pkg/config"
)

// TargetRef identifies the scaled workload. Either Kind or Resource must be
// set; a Resource is resolved to its Kind through the client's RESTMapper.
type TargetRef struct {
	APIVersion string
	Kind       string
	Resource   string
	Namespace  string
	Name       string
}

func (r TargetRef) String() string {
	kind := r.Kind
	if kind == "" {
		kind = r.Resource
	}
	return fmt.Sprintf("%s %s/%s", kind, r.Namespace, r.Name)
}

// deprecatedWorkloadGroups are served as apps/v1 by every supported cluster.
var deprecatedWorkloadGroups = map[string]bool{
	"apps/v1beta1":       true,
	"apps/v1beta2":       true,
	"extensions/v1beta1": true,
}

// ParseEndpoint parses a REST path such as
// apis/apps/v1/namespaces/default/deployments/web/scale or
// api/v1/namespaces/default/replicationcontrollers/web. A full URL is
// accepted too, only its path is used.
func ParseEndpoint(endpoint string) (TargetRef, error) {
	path := endpoint
	if u, err := url.Parse(endpoint); err == nil && u.Scheme != "" {
		path = u.Path
	}
	segments := strings.Split(strings.Trim(path, "/"), "/")

	var gv schema.GroupVersion
	var rest []string
	switch {
	case len(segments) >= 3 && segments[0] == "apis":
		gv = schema.GroupVersion{Group: segments[1], Version: segments[2]}
		rest = segments[3:]
	case len(segments) >= 2 && segments[0] == "api":
		gv = schema.GroupVersion{Version: segments[1]}
		rest = segments[2:]
	default:
		return TargetRef{}, fmt.Errorf("invalid endpoint %q: expected apis/<group>/<version>/... or api/<version>/...", endpoint)
	}

	// namespaces/<ns>/<resource>/<name>[/scale]
	if len(rest) < 4 || rest[0] != "namespaces" {
		return TargetRef{}, fmt.Errorf("invalid endpoint %q: expected namespaces/<namespace>/<resource>/<name>", endpoint)
	}
	if len(rest) > 5 || (len(rest) == 5 && rest[4] != "scale") {
		return TargetRef{}, fmt.Errorf("invalid endpoint %q: unexpected trailing path %q", endpoint, strings.Join(rest[4:], "/"))
	}
	for _, s := range rest[:4] {
		if s == "" {
			return TargetRef{}, fmt.Errorf("invalid endpoint %q: empty path segment", endpoint)
		}
	}

	apiVersion := gv.String()
	if deprecatedWorkloadGroups[apiVersion] {
		apiVersion = "apps/v1"
	}

	return TargetRef{
		APIVersion: apiVersion,
		Resource:   rest[2],
		Namespace:  rest[1],
		Name:       rest[3],
	}, nil
}

// TargetRefFromConfig builds the reference from the legacy endpoint when it is
// set, from the explicit fields otherwise.
func TargetRefFromConfig(cfg config.TargetConfig) (TargetRef, error) {
	if cfg.Endpoint != "" {
		return ParseEndpoint(cfg.Endpoint)
	}
	ref := TargetRef{
		APIVersion: cfg.APIVersion,
		Kind:       cfg.Kind,
		Namespace:  cfg.Namespace,
		Name:       cfg.Name,
	}
	if ref.APIVersion == "" {
		ref.APIVersion = "apps/v1"
	}
	if ref.Namespace == "" {
		ref.Namespace = "default"
	}
	return ref, nil
}
