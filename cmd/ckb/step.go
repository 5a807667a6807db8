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
	"os"
	"strconv"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/internal/output"
	"github.com/kraklabs/ckb/internal/ui"
	"github.com/kraklabs/ckb/pkg/pipeline"
)

// runStepCmd executes the 'step' CLI command: one pipeline step on the
// shared step table, independent of any full run. Re-running a finished
// step resets it first; its previous outcome stays in the history.
//
// Examples:
//
//	ckb step 3
//	ckb step enrich --llm-model llama3
//	ckb step vectorize --embedding-model nomic-embed-text
func runStepCmd(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("step", flag.ExitOnError)
	configOf := runConfigFlags(fs)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ckb step <1-5|name> [options]

Runs a single pipeline step. Steps by number or name:
  1 parse   2 analyze   3 enrich   4 vectorize   5 index

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() != 1 {
		fs.Usage()
		os.Exit(1)
	}
	stepID, err := resolveStepID(fs.Arg(0))
	if err != nil {
		errors.FatalError(errors.NewInputError(
			"Unknown pipeline step",
			err.Error(),
			"Use a step number 1-5 or one of: parse, analyze, enrich, vectorize, index",
		), globals.JSON)
	}

	info, config := openProject(globals)
	m := newManager(info, config, globals)
	defer m.Close()

	renderer := newStepRenderer(NewProgressConfig(globals))
	unsubscribe := m.Subscribe(renderer.Handle)
	defer unsubscribe()

	if err := m.RunStep(stepID, configOf()); err != nil {
		errors.FatalError(errors.NewInternalError(
			fmt.Sprintf("Cannot run step %q", pipeline.StepName(stepID)),
			err.Error(),
			"Wait for the running step to finish, then retry",
			err,
		), globals.JSON)
	}

	step := waitForStep(m, stepID)
	renderer.Close()
	persistErrorLog(m, info.DataDir)

	if globals.JSON {
		if err := output.JSON(step); err != nil {
			errors.FatalError(err, true)
		}
		if step.Status == pipeline.StepFailed {
			os.Exit(1)
		}
		return
	}

	if step.Status == pipeline.StepFailed {
		ui.Errorf("Step %s failed: %s", step.Name, step.Error)
		os.Exit(1)
	}
	ui.Successf("Step %s completed (%d/%d items)", step.Name, step.ItemsProcessed, step.TotalItems)
	if report := latestReport(m, stepID); report != "" {
		fmt.Println(ui.DimText("  " + report))
	}
	printSharedState(m)
}

// printSharedState summarizes what the shared step table has accumulated so
// far, so consecutive 'ckb step' invocations show where the run stands.
func printSharedState(m *pipeline.Manager) {
	state := m.SharedState()
	if state == nil {
		return
	}
	fmt.Printf("  %s units, %s edges, %s enrichments, %s vectors",
		ui.CountText(len(state.Units)), ui.CountText(len(state.Edges)),
		ui.CountText(len(state.Enrichments)), ui.CountText(len(state.Vectors)))
	if state.IndexedCount > 0 {
		fmt.Printf(", %s indexed (%s)", ui.CountText(state.IndexedCount), state.IndexBackend)
	}
	fmt.Println()
}

// resolveStepID accepts a step number (1-5) or a step name.
func resolveStepID(arg string) (int, error) {
	if n, err := strconv.Atoi(arg); err == nil {
		if n >= pipeline.StepParse && n <= pipeline.StepIndex {
			return n, nil
		}
		return 0, fmt.Errorf("step number %d out of range", n)
	}
	for id := pipeline.StepParse; id <= pipeline.StepIndex; id++ {
		if pipeline.StepName(id) == arg {
			return id, nil
		}
	}
	return 0, fmt.Errorf("no step named %q", arg)
}

// waitForStep polls the step history until the step settles. Watching the
// history (not the status table) guarantees the final history entry and
// checkpoint are written before we report.
func waitForStep(m *pipeline.Manager, stepID int) pipeline.Step {
	for {
		if history := m.GetGlobalStepsHistory(stepID, 1); len(history) > 0 {
			switch history[len(history)-1].Status {
			case pipeline.StepCompleted, pipeline.StepFailed:
				return m.GetGlobalStepsStatus()[stepID-1]
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
}

// latestReport returns the report of the newest history entry for the step.
func latestReport(m *pipeline.Manager, stepID int) string {
	history := m.GetGlobalStepsHistory(stepID, 1)
	if len(history) == 0 {
		return ""
	}
	return history[len(history)-1].Report
}
