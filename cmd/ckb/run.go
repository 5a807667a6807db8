// Copyright 2026 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/internal/output"
	"github.com/kraklabs/ckb/internal/ui"
	"github.com/kraklabs/ckb/pkg/pipeline"
)

// runRun executes the 'run' CLI command: the full five-step pipeline
// (parse, analyze, enrich, vectorize, index) against the project.
//
// Flags:
//   - --patterns / --files / --exclude: File selection overrides
//   - --force-reparse: Bypass cached parse results
//   - --llm-model / --embedding-model: Model overrides
//   - --metrics-addr: HTTP address for Prometheus metrics (default: disabled)
//   - --timeout: Abort the run after this duration (default: no limit)
//
// Examples:
//
//	ckb run
//	ckb run --patterns '**/*.go' --llm-model llama3
//	ckb run --metrics-addr :9091
func runRun(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configOf := runConfigFlags(fs)
	metricsAddr := fs.String("metrics-addr", "", "HTTP listen address for Prometheus metrics (empty to disable)")
	timeout := fs.Duration("timeout", 0, "Abort the run after this duration (0 = no limit)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ckb run [options]

Runs the full pipeline using configuration from .ckb/project.yaml.
Results persist under <project>/.ckb/

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	info, config := openProject(globals)
	m := newManager(info, config, globals)
	defer m.Close()

	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr)
	}

	renderer := newStepRenderer(NewProgressConfig(globals))
	unsubscribe := m.Subscribe(renderer.Handle)
	defer unsubscribe()

	if !globals.JSON {
		ui.Header("Building Knowledge Base")
	}

	res, err := m.StartPipeline(configOf())
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot start the pipeline",
			err.Error(),
			"Another run may already be in progress",
			err,
		), globals.JSON)
	}

	// Ctrl-C cancels cooperatively: the in-flight step finishes first.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		if !globals.JSON {
			ui.Warning("Cancelling after the current step...")
		}
		_ = m.CancelPipeline(res.PipelineID)
	}()

	status := waitForRun(m, res.PipelineID, *timeout, globals)
	renderer.Close()
	persistErrorLog(m, info.DataDir)

	if globals.JSON {
		if err := output.JSON(status); err != nil {
			errors.FatalError(err, true)
		}
		if status.Status != pipeline.StatusCompleted {
			os.Exit(1)
		}
		return
	}

	printRunSummary(m, status)
	if status.Status != pipeline.StatusCompleted {
		os.Exit(1)
	}
}

// waitForRun polls the run until it reaches a terminal status.
func waitForRun(m *pipeline.Manager, id string, timeout time.Duration, globals GlobalFlags) *pipeline.InstanceStatus {
	var deadline time.Time
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		status, err := m.GetPipelineStatus(id)
		if err != nil {
			errors.FatalError(errors.NewInternalError(
				"Lost track of the running pipeline",
				err.Error(),
				"Re-run the command",
				err,
			), globals.JSON)
		}

		switch status.Status {
		case pipeline.StatusCompleted, pipeline.StatusFailed, pipeline.StatusCancelled:
			return status
		}

		if !deadline.IsZero() && time.Now().After(deadline) {
			_ = m.CancelPipeline(id)
			deadline = time.Time{} // cancel once, keep waiting for the terminal state
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// printRunSummary renders the human-readable end-of-run report.
func printRunSummary(m *pipeline.Manager, status *pipeline.InstanceStatus) {
	fmt.Println()
	switch status.Status {
	case pipeline.StatusCompleted:
		ui.Success("Pipeline completed")
	case pipeline.StatusCancelled:
		ui.Warning("Pipeline cancelled")
	default:
		ui.Errorf("Pipeline failed: %s", status.Error)
	}

	for _, step := range status.Steps {
		line := fmt.Sprintf("  %-10s %-10s %d/%d", step.Label, string(step.Status), step.ItemsProcessed, step.TotalItems)
		if step.Error != "" {
			line += "  " + ui.DimText(step.Error)
		}
		fmt.Println(line)
	}

	if stats := m.Tracker().Stats(); stats.ItemsProcessed > 0 {
		fmt.Println()
		fmt.Printf("  %s items processed in %s\n",
			ui.CountText(stats.ItemsProcessed), stats.AverageDuration.Round(time.Second))
	}

	if stats := m.GetErrorStatistics(time.Hour); stats.Total > 0 {
		fmt.Println()
		ui.Warningf("%d errors were recorded (see 'ckb errors')", stats.Total)
	}
}

// serveMetrics exposes Prometheus metrics over HTTP for the lifetime of
// the run.
func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	slog.Default().Info("metrics.http.start", "addr", addr, "path", "/metrics")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Default().Warn("metrics.http.error", "err", err)
	}
}
