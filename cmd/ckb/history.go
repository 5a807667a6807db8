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
	"sort"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/internal/output"
	"github.com/kraklabs/ckb/internal/ui"
	"github.com/kraklabs/ckb/pkg/pipeline"
)

// historyMaxLimit mirrors the manager's history cap: requests beyond it are
// clamped rather than rejected.
const historyMaxLimit = 1000

// runHistory executes the 'history' CLI command, listing step execution
// history from the persisted checkpoint.
//
// Flags:
//   - --step: Restrict to one step (1-5 or name); 0 means all steps
//   - --limit: Newest entries to show (default 50, clamped to 1000)
//
// Examples:
//
//	ckb history
//	ckb history --step enrich --limit 10
//	ckb history --json
func runHistory(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	stepArg := fs.String("step", "", "Restrict to one step (1-5 or name)")
	limit := fs.Int("limit", 50, "Newest entries to show (clamped to 1000)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ckb history [options]

Shows the step execution history recorded by 'ckb step' runs.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	stepID := 0
	if *stepArg != "" {
		var err error
		stepID, err = resolveStepID(*stepArg)
		if err != nil {
			errors.FatalError(errors.NewInputError(
				"Unknown pipeline step",
				err.Error(),
				"Use a step number 1-5 or one of: parse, analyze, enrich, vectorize, index",
			), globals.JSON)
		}
	}

	info, _ := openProject(globals)

	checkpoint, err := pipeline.NewCheckpointManager(info.DataDir).Load()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot read the pipeline checkpoint",
			err.Error(),
			"Remove .ckb/steps-checkpoint.json if it is corrupted",
			err,
		), globals.JSON)
	}

	var entries []pipeline.StepHistoryEntry
	if checkpoint != nil {
		for id, stepEntries := range checkpoint.History {
			if stepID != 0 && id != stepID {
				continue
			}
			entries = append(entries, stepEntries...)
		}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})

	n := *limit
	if n <= 0 || n > historyMaxLimit {
		n = historyMaxLimit
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}

	if globals.JSON {
		if err := output.JSON(entries); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if len(entries) == 0 {
		fmt.Println("No step history yet. Run 'ckb step <n>' to record some.")
		return
	}

	ui.Header("Step History")
	for _, e := range entries {
		line := fmt.Sprintf("  %s  %-10s %-10s %3d%%  %d/%d",
			e.Timestamp.Local().Format("2006-01-02 15:04:05"),
			pipeline.StepName(e.StepID),
			string(e.Status),
			e.Progress,
			e.ItemsProcessed, e.TotalItems)
		if e.Error != "" {
			line += "  " + ui.DimText(e.Error)
		} else if e.Report != "" {
			line += "  " + ui.DimText(e.Report)
		}
		fmt.Println(line)
	}
}
