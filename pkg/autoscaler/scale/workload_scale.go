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
	"context"
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/client-go/util/retry"
	"k8s.io/klog/v2"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// ScaleTarget reads and sets the replica count of one workload.
type ScaleTarget interface {
	// ReadCurrentReplicas returns the replica count recorded by the API server.
	ReadCurrentReplicas(ctx context.Context) (int32, error)

	// Apply sets the replica count to exactly replicas. Calling it again with
	// the same value is harmless.
	Apply(ctx context.Context, replicas int32) error
}

// ErrReplicasNotFound is returned when the workload has no spec.replicas field.
var ErrReplicasNotFound = errors.New("the 'replicas' field was not found in the workload spec")

// WorkloadScale implements ScaleTarget for any namespaced resource with a
// spec.replicas field (Deployment, StatefulSet, ReplicaSet, custom resources).
// It reads and patches the resource itself, so it only needs get and patch
// RBAC on the workload, not on its /scale subresource.
type WorkloadScale struct {
	client client.Client
	ref    TargetRef
	gvk    schema.GroupVersionKind
}

// NewWorkloadScale resolves the target's kind and returns a ScaleTarget for it.
func NewWorkloadScale(c client.Client, ref TargetRef) (*WorkloadScale, error) {
	gv, err := schema.ParseGroupVersion(ref.APIVersion)
	if err != nil {
		return nil, fmt.Errorf("invalid apiVersion %q: %w", ref.APIVersion, err)
	}
	if ref.Name == "" || ref.Namespace == "" {
		return nil, fmt.Errorf("target %s must have a namespace and a name", ref)
	}

	gvk := gv.WithKind(ref.Kind)
	if ref.Kind == "" {
		if ref.Resource == "" {
			return nil, fmt.Errorf("target %s must have a kind or a resource", ref)
		}
		gvk, err = c.RESTMapper().KindFor(gv.WithResource(ref.Resource))
		if err != nil {
			return nil, fmt.Errorf("failed to resolve kind of %s: %w", gv.WithResource(ref.Resource), err)
		}
		ref.Kind = gvk.Kind
	}

	return &WorkloadScale{client: c, ref: ref, gvk: gvk}, nil
}

// Ref returns the resolved target reference.
func (s *WorkloadScale) Ref() TargetRef {
	return s.ref
}

func (s *WorkloadScale) object() *unstructured.Unstructured {
	obj := &unstructured.Unstructured{}
	obj.SetGroupVersionKind(s.gvk)
	obj.SetNamespace(s.ref.Namespace)
	obj.SetName(s.ref.Name)
	return obj
}

func (s *WorkloadScale) ReadCurrentReplicas(ctx context.Context) (int32, error) {
	obj := s.object()
	if err := s.client.Get(ctx, client.ObjectKeyFromObject(obj), obj); err != nil {
		return 0, fmt.Errorf("failed to get %s: %w", s.ref, err)
	}

	replicas, found, err := unstructured.NestedInt64(obj.Object, "spec", "replicas")
	if err != nil {
		return 0, fmt.Errorf("failed to get 'replicas' from %s: %w", s.ref, err)
	}
	if !found {
		return 0, fmt.Errorf("%s: %w", s.ref, ErrReplicasNotFound)
	}
	return int32(replicas), nil
}

// Apply replaces spec.replicas with a JSON patch. The patch carries no
// resourceVersion, so concurrent writers to other fields never conflict.
func (s *WorkloadScale) Apply(ctx context.Context, replicas int32) error {
	payload := []byte(fmt.Sprintf(`[{"op":"replace","path":"/spec/replicas","value":%d}]`, replicas))
	klog.V(4).InfoS("Patching workload replicas", "target", s.ref.String(), "payload", string(payload))

	err := retry.OnError(retry.DefaultBackoff, isRetryable, func() error {
		return s.client.Patch(ctx, s.object(), client.RawPatch(types.JSONPatchType, payload))
	})
	if err != nil {
		return fmt.Errorf("failed to scale %s to %d: %w", s.ref, replicas, err)
	}

	klog.InfoS("Scaled resource", "kind", s.ref.Kind, "name", s.ref.Name, "ns", s.ref.Namespace, "replicas", replicas)
	return nil
}

func isRetryable(err error) bool {
	return apierrors.IsConflict(err) ||
		apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err)
}
