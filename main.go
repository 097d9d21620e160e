/*
Copyright 2022 The l7mp/stunner team.

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
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap/zapcore"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
	"sigs.k8s.io/controller-runtime/pkg/manager/signals"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/dflow/internal/buildinfo"
	"github.com/l7mp/dflow/pkg/job"
	"github.com/l7mp/dflow/pkg/metrics"
	"github.com/l7mp/dflow/pkg/visualize"
)

var (
	version    = "dev"
	commitHash = "n/a"
	buildDate  = "<unknown>"
)

func main() {
	var jobFile, output, render, metricsAddr string

	flag.StringVar(&jobFile, "job", "", "The job file to run.")
	flag.StringVar(&output, "output", "json", "Output format of the epoch results: json or yaml.")
	flag.StringVar(&render, "render", "",
		"Render the final state of a graph job as a diagram: dot or mermaid. Leave empty to skip.")
	flag.StringVar(&metricsAddr, "metrics-bind-address", "",
		"The address the metric endpoint binds to. Leave empty to disable the endpoint.")

	opts := zap.Options{
		Development:     true,
		DestWriter:      os.Stderr,
		StacktraceLevel: zapcore.Level(3),
		TimeEncoder:     zapcore.RFC3339NanoTimeEncoder,
	}
	opts.BindFlags(flag.CommandLine)
	flag.Parse()

	logger := zap.New(zap.UseFlagOptions(&opts)).WithName("dflow")
	setupLog := logger.WithName("setup")

	buildInfo := buildinfo.BuildInfo{Version: version, CommitHash: commitHash, BuildDate: buildDate}
	setupLog.Info(fmt.Sprintf("starting dflow %s", buildInfo.String()))

	if jobFile == "" {
		setupLog.Error(errors.New("missing -job"), "no job file given")
		os.Exit(1)
	}
	if output != "json" && output != "yaml" {
		setupLog.Error(fmt.Errorf("unknown output format %q", output), "invalid -output")
		os.Exit(1)
	}

	var gen visualize.Generator
	if render != "" {
		var err error
		if gen, err = visualize.NewGenerator(render); err != nil {
			setupLog.Error(err, "invalid -render")
			os.Exit(1)
		}
	}

	j, err := job.ReadFile(jobFile)
	if err != nil {
		setupLog.Error(err, "unable to read job")
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	if err != nil {
		setupLog.Error(err, "unable to set up metrics")
		os.Exit(1)
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		go func() {
			if err := http.ListenAndServe(metricsAddr, mux); err != nil { //nolint:gosec
				setupLog.Error(err, "metrics endpoint failed")
			}
		}()
	}

	runner, err := job.NewRunner(j, job.WithLogger(logger.WithName("job")), job.WithObserver(m))
	if err != nil {
		setupLog.Error(err, "unable to set up job")
		os.Exit(1)
	}

	ctx := signals.SetupSignalHandler()

	setupLog.Info("running job", "name", j.Name, "algorithm", j.Algorithm, "epochs", len(j.Epochs))
	for {
		result, ok, err := runner.Step(ctx)
		if err != nil {
			setupLog.Error(err, "job failed")
			os.Exit(1)
		}
		if !ok {
			break
		}

		if err := writeResult(output, result); err != nil {
			setupLog.Error(err, "cannot write result")
			os.Exit(1)
		}
	}

	if gen != nil {
		g, err := runner.Visualize()
		if err != nil {
			setupLog.Error(err, "cannot render job")
			os.Exit(1)
		}
		fmt.Fprint(os.Stdout, gen.Generate(g))
	}
}

func writeResult(format string, result *job.Result) error {
	var b []byte
	var err error
	if format == "yaml" {
		b, err = yaml.Marshal(result)
		if err == nil {
			b = append([]byte("---\n"), b...)
		}
	} else {
		b, err = json.Marshal(result)
		b = append(b, '\n')
	}
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(b)
	return err
}
