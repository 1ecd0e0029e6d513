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

// Package wrapper builds scalable workloads for tests.
package wrapper

import (
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/utils/ptr"
)

// DeploymentWrapper wraps a Deployment to provide a fluent API for test construction.
type DeploymentWrapper struct {
	deployment appsv1.Deployment
}

// MakeDeployment creates a Deployment with one replica and a single container.
func MakeDeployment(name, namespace string) *DeploymentWrapper {
	return &DeploymentWrapper{
		deployment: appsv1.Deployment{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
			},
			Spec: appsv1.DeploymentSpec{
				Replicas: ptr.To[int32](1),
				Selector: &metav1.LabelSelector{
					MatchLabels: map[string]string{"app": name},
				},
				Template: podTemplate(name),
			},
		},
	}
}

func (w *DeploymentWrapper) Obj() *appsv1.Deployment {
	return &w.deployment
}

func (w *DeploymentWrapper) Replicas(n int32) *DeploymentWrapper {
	w.deployment.Spec.Replicas = ptr.To(n)
	return w
}

// WithoutReplicas leaves spec.replicas unset.
func (w *DeploymentWrapper) WithoutReplicas() *DeploymentWrapper {
	w.deployment.Spec.Replicas = nil
	return w
}

// StatefulSetWrapper wraps a StatefulSet to provide a fluent API for test construction.
type StatefulSetWrapper struct {
	statefulSet appsv1.StatefulSet
}

func MakeStatefulSet(name, namespace string) *StatefulSetWrapper {
	return &StatefulSetWrapper{
		statefulSet: appsv1.StatefulSet{
			ObjectMeta: metav1.ObjectMeta{
				Name:      name,
				Namespace: namespace,
			},
			Spec: appsv1.StatefulSetSpec{
				Replicas:    ptr.To[int32](1),
				ServiceName: name,
				Selector: &metav1.LabelSelector{
					MatchLabels: map[string]string{"app": name},
				},
				Template: podTemplate(name),
			},
		},
	}
}

func (w *StatefulSetWrapper) Obj() *appsv1.StatefulSet {
	return &w.statefulSet
}

func (w *StatefulSetWrapper) Replicas(n int32) *StatefulSetWrapper {
	w.statefulSet.Spec.Replicas = ptr.To(n)
	return w
}

func podTemplate(name string) corev1.PodTemplateSpec {
	return corev1.PodTemplateSpec{
		ObjectMeta: metav1.ObjectMeta{
			Labels: map[string]string{"app": name},
		},
		Spec: corev1.PodSpec{
			Containers: []corev1.Container{
				{
					Name:            "worker",
					Image:           "busybox:1.36",
					ImagePullPolicy: corev1.PullIfNotPresent,
				},
			},
			RestartPolicy:                 corev1.RestartPolicyAlways,
			TerminationGracePeriodSeconds: ptr.To[int64](30),
		},
	}
}
