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

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/internal/output"
	"github.com/kraklabs/ckb/internal/ui"
	"github.com/kraklabs/ckb/pkg/recovery"
)

// runErrors executes the 'errors' CLI command, reporting the errors the
// last run or step recorded. Run and step commands persist the error log to
// the project data dir on exit; this command only reads it.
//
// Flags:
//   - --limit: Newest entries to show (default 20)
//
// Examples:
//
//	ckb errors
//	ckb errors --limit 50 --json
func runErrors(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("errors", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Newest entries to show")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ckb errors [options]

Shows the errors recorded by the most recent run or step.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	info, _ := openProject(globals)

	entries, err := loadErrorLog(info.DataDir)
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Cannot read the error log",
			err.Error(),
			"Remove .ckb/errors.json if it is corrupted",
			err,
		), globals.JSON)
	}

	if *limit > 0 && len(entries) > *limit {
		entries = entries[len(entries)-*limit:]
	}

	if globals.JSON {
		if entries == nil {
			entries = []recovery.Entry{}
		}
		if err := output.JSON(entries); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if len(entries) == 0 {
		ui.Success("No errors recorded by the last run")
		return
	}

	byKind := make(map[recovery.Kind]int)
	for _, e := range entries {
		byKind[e.Kind]++
	}

	ui.Header("Recorded Errors")
	for kind, count := range byKind {
		fmt.Printf("  %-12s %s\n", string(kind), ui.CountText(count))
	}
	fmt.Println()

	for _, e := range entries {
		where := e.Context.Step
		if e.Context.File != "" {
			where += " " + e.Context.File
		}
		if e.Context.UnitID != "" {
			where += " " + e.Context.UnitID
		}
		fmt.Printf("  %s  [%s/%s]  %s\n",
			e.Timestamp.Local().Format("15:04:05"),
			string(e.Kind), string(e.Severity),
			e.Message)
		if where != "" {
			fmt.Println(ui.DimText("           at " + where))
		}
	}
}
