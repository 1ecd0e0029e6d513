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

package main

import (
	"flag"
	"os/signal"
	"strconv"
	"syscall"

	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	"k8s.io/klog/v2"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/metrics"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/monitor"
	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler/scale"
	"github.com/vllm-project/metric-autoscaler/pkg/config"
	"github.com/vllm-project/metric-autoscaler/pkg/server"
)

var (
	configFile string
	httpAddr   string
)

func main() {
	flag.StringVar(&configFile, "config", "", "Path to a YAML config file. Environment variables override it.")
	flag.StringVar(&httpAddr, "http-bind-address", ":8080", "The address the health, status and metrics endpoint binds to.")
	klog.InitFlags(flag.CommandLine)
	defer klog.Flush()
	flag.Parse()

	cfg, err := config.Load(configFile)
	if err != nil {
		klog.ErrorS(err, "Invalid configuration")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	applyVerbosity(flag.CommandLine, cfg.Verbosity())
	klog.V(4).InfoS("Loaded configuration", "file", configFile, "metricSource", cfg.MetricSource,
		"minReplicas", cfg.MinReplicas, "maxReplicas", cfg.MaxReplicas,
		"scaleDownValue", *cfg.ScaleDownValue, "scaleUpValue", *cfg.ScaleUpValue,
		"pollInterval", cfg.PollInterval.String(), "window", cfg.Window.String(), "dryRun", cfg.DryRun)

	restConfig, err := ctrl.GetConfig()
	if err != nil {
		klog.ErrorS(err, "Error building kubeconfig")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	k8sClient, err := client.New(restConfig, client.Options{Scheme: clientgoscheme.Scheme})
	if err != nil {
		klog.ErrorS(err, "Error creating kubernetes client")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}

	ref, err := scale.TargetRefFromConfig(cfg.Target)
	if err != nil {
		klog.ErrorS(err, "Invalid scale target")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	target, err := scale.NewWorkloadScale(k8sClient, ref)
	if err != nil {
		klog.ErrorS(err, "Unable to resolve scale target", "target", ref.String())
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}

	ctx, stop := signal.NotifyContext(ctrl.SetupSignalHandler(), syscall.SIGHUP, syscall.SIGQUIT)
	defer stop()

	source, closeSource, err := metrics.NewMetricSource(ctx, cfg, restConfig)
	if err != nil {
		klog.ErrorS(err, "Unable to create metric source", "source", cfg.MetricSource)
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	defer func() {
		if err := closeSource(); err != nil {
			klog.ErrorS(err, "Error closing metric source")
		}
	}()

	recorder := autoscaler.NewStatusRecorder(cfg.DryRun)
	httpServer := server.NewServer(httpAddr, recorder)
	if err := httpServer.Start(); err != nil {
		klog.ErrorS(err, "Failed to start status server")
		klog.FlushAndExit(klog.ExitFlushTimeout, 1)
	}
	defer func() {
		if err := httpServer.Stop(); err != nil {
			klog.ErrorS(err, "Error stopping status server")
		}
	}()

	klog.InfoS("Scaling workload", "target", target.Ref().String(), "source", cfg.MetricSource, "dryRun", cfg.DryRun)

	scaler := autoscaler.New(cfg.Policy(), source, target,
		autoscaler.WithMonitor(monitor.New()),
		autoscaler.WithStatusRecorder(recorder),
		autoscaler.WithRequestTimeout(cfg.RequestTimeout.Std()),
	)
	// Run only returns once ctx is done; the deferred calls then stop the
	// server and close the source.
	_ = scaler.Run(ctx)
}

// applyVerbosity sets -v from the configured log level unless -v was given
// on the command line.
func applyVerbosity(fs *flag.FlagSet, level int) {
	explicit := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "v" {
			explicit = true
		}
	})
	if explicit {
		return
	}
	if err := fs.Set("v", strconv.Itoa(level)); err != nil {
		klog.ErrorS(err, "Unable to set log verbosity", "level", level)
	}
}
