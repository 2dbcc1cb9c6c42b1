// Copyright 2024 The lamina Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// The lamina daemon: takes exclusive ownership of the six core
// performance counters on one cpu and reprograms them on request.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/eigenform/lamina/bridge"
	"github.com/eigenform/lamina/client"
	"github.com/eigenform/lamina/dispatch"
	"github.com/eigenform/lamina/healthz"
	"github.com/eigenform/lamina/machine"
	"github.com/eigenform/lamina/metrics"
	"github.com/eigenform/lamina/pmc"
	"github.com/eigenform/lamina/server"
	"github.com/eigenform/lamina/utils/msr"
	"github.com/eigenform/lamina/version"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"
)

var argSocketPath = flag.String("socket", client.DefaultSocketPath, "path of the unix socket accepting control commands")
var argTargetCPU = flag.Int("target_cpu", 0, "cpu whose counters this daemon owns; all programming happens there")
var argAdminAddr = flag.String("admin_addr", "localhost:9230", "address serving /healthz and metrics; empty disables the admin listener")
var prometheusEndpoint = flag.String("prometheus_endpoint", "/metrics", "endpoint to expose Prometheus metrics on")

var versionFlag = flag.Bool("version", false, "print laminad version and exit")

func main() {
	klog.InitFlags(nil)
	defer klog.Flush()
	// Default logging verbosity to V(2)
	_ = flag.Set("v", "2")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("laminad version %s (%s)\n", version.Info["version"], version.Info["revision"])
		os.Exit(0)
	}

	ops := msr.NewDev()
	defer ops.Close()

	// The safety gate must pass before anything is exposed: refuse to
	// own counters some other agent is actively using.
	if err := pmc.Initialize(machine.NewProber(), ops, *argTargetCPU); err != nil {
		klog.Fatalf("Failed to initialize counters on cpu %d: %v", *argTargetCPU, err)
	}

	execBridge := bridge.New(*argTargetCPU)
	if err := execBridge.Start(); err != nil {
		klog.Fatalf("Failed to start execution bridge: %v", err)
	}

	dispatcher := dispatch.New(execBridge, ops, *argTargetCPU)
	srv := server.New(*argSocketPath, dispatcher)
	if err := srv.Start(); err != nil {
		klog.Fatalf("Failed to register control socket: %v", err)
	}

	if *argAdminAddr != "" {
		startAdminServer(*argAdminAddr)
	}

	klog.V(1).Infof("Starting laminad version: %s-%s, counters on cpu %d, socket %q",
		version.Info["version"], version.Info["revision"], *argTargetCPU, *argSocketPath)

	// Block until a signal is received.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	sig := <-c

	// Counters are left as last programmed; only the entry point is
	// released.
	srv.Stop()
	execBridge.Stop()
	klog.Infof("Exiting given signal: %v", sig)
}

func startAdminServer(addr string) {
	mux := http.NewServeMux()
	if err := healthz.RegisterHandler(mux); err != nil {
		klog.Fatalf("Failed to register healthz handler: %s", err)
	}

	r := prometheus.NewRegistry()
	metrics.Register(r)
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mux.Handle(*prometheusEndpoint, promhttp.HandlerFor(r, promhttp.HandlerOpts{ErrorHandling: promhttp.ContinueOnError}))

	go func() {
		klog.Fatal(http.ListenAndServe(addr, mux))
	}()
}
