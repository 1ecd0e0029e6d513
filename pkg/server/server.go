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

// Package server exposes the autoscaler's health, readiness, self metrics
// and last tick status over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
	ctrlmetrics "sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/vllm-project/metric-autoscaler/pkg/autoscaler"
)

const shutdownTimeout = 5 * time.Second

// StatusProvider is read by the HTTP handlers. *autoscaler.StatusRecorder
// implements it.
type StatusProvider interface {
	Snapshot() autoscaler.Status
	Ready() bool
}

type Server struct {
	server *http.Server
	status StatusProvider
}

func NewServer(addr string, status StatusProvider) *Server {
	s := &Server{status: status}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.healthz).Methods("GET")
	r.HandleFunc("/readyz", s.readyz).Methods("GET")
	r.HandleFunc("/status", s.statusz).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(ctrlmetrics.Registry, promhttp.HandlerOpts{})).Methods("GET")

	s.server = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler is the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	klog.InfoS("Starting status server", "address", s.server.Addr)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			klog.ErrorS(err, "Failed to start status server")
		}
	}()

	return nil
}

func (s *Server) Stop() error {
	klog.Info("Shutting down status server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "healthy")
}

// readyz reports ready once the loop has completed its first tick.
func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if !s.status.Ready() {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "not ready: no tick completed yet")
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ready")
}

func (s *Server) statusz(w http.ResponseWriter, r *http.Request) {
	jsonBytes, err := json.Marshal(s.status.Snapshot())
	if err != nil {
		klog.ErrorS(err, "Failed to marshal status")
		http.Error(w, "error in processing status", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(jsonBytes)
}
