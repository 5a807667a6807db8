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
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/internal/output"
	"github.com/kraklabs/ckb/internal/ui"
	"github.com/kraklabs/ckb/pkg/index"
	"github.com/kraklabs/ckb/pkg/pipeline"
)

// StatusResult represents the project status for JSON output.
type StatusResult struct {
	ProjectID string          `json:"project_id"`
	Root      string          `json:"root"`
	DataDir   string          `json:"data_dir"`
	Steps     []pipeline.Step `json:"steps"`
	Index     *index.Meta     `json:"index,omitempty"`
	Errors    int             `json:"errors"`
	Timestamp time.Time       `json:"timestamp"`
}

// runStatus executes the 'status' CLI command, displaying the persisted
// step table and index status. Reads only durable state (checkpoint, index
// sidecar, error log), so it works without a running pipeline.
//
// Examples:
//
//	ckb status           Display formatted status
//	ckb status --json    Output as JSON for programmatic use
func runStatus(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ckb status [options]

Shows the pipeline step table and the saved index, if any.
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	info, _ := openProject(globals)

	result := &StatusResult{
		ProjectID: info.ProjectID,
		Root:      info.Root,
		DataDir:   info.DataDir,
		Steps:     pipeline.DefaultStepTable(),
		Timestamp: time.Now(),
	}

	checkpoint, err := pipeline.NewCheckpointManager(info.DataDir).Load()
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot read the pipeline checkpoint",
			err.Error(),
			"Remove .ckb/steps-checkpoint.json if it is corrupted",
			err,
		), globals.JSON)
	}
	if checkpoint != nil && len(checkpoint.Steps) == pipeline.StepCount {
		result.Steps = checkpoint.Steps
	}

	if meta, err := index.ReadMeta(info.IndexDir); err == nil {
		result.Index = meta
	}

	if entries, err := loadErrorLog(info.DataDir); err == nil {
		result.Errors = len(entries)
	}

	if globals.JSON {
		if err := output.JSON(result); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Header("CKB Project Status")
	fmt.Printf("%s %s\n", ui.Label("Project:"), result.ProjectID)
	fmt.Printf("%s %s\n", ui.Label("Data:"), result.DataDir)
	fmt.Println()

	ui.SubHeader("Pipeline steps")
	for _, step := range result.Steps {
		fmt.Printf("  %d. %-10s %-10s %s\n", step.ID, step.Name, string(step.Status),
			ui.DimText(fmt.Sprintf("%d/%d items", step.ItemsProcessed, step.TotalItems)))
	}
	fmt.Println()

	ui.SubHeader("Index")
	if result.Index == nil {
		fmt.Println("  no saved index (run 'ckb run' first)")
	} else {
		fmt.Printf("  backend=%s vectors=%s dimension=%d saved=%s\n",
			result.Index.IndexType,
			ui.CountText(result.Index.Count),
			result.Index.Dimension,
			result.Index.SavedAt.Local().Format(time.RFC3339))
	}

	if result.Errors > 0 {
		fmt.Println()
		ui.Warningf("%d errors recorded by the last run (see 'ckb errors')", result.Errors)
	}
}
