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
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/bootstrap"
	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/internal/output"
	"github.com/kraklabs/ckb/internal/ui"
	"github.com/kraklabs/ckb/pkg/model"
)

// runInit executes the 'init' CLI command, creating the .ckb/ project layout.
//
// Flags:
//   - --project-id: Project identifier (default: directory name)
//   - --patterns: Default glob patterns for pipeline runs
//   - --llm-model: Default completion model for enrichment
//   - --embedding-model: Default embedding model for vectorization
//   - --force: Overwrite an existing project.yaml
//
// Examples:
//
//	ckb init
//	ckb init --project-id kb --patterns '**/*.go' --patterns '**/*.py'
//	ckb init --embedding-model nomic-embed-text --llm-model llama3
func runInit(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	projectID := fs.String("project-id", "", "Project identifier (default: directory name)")
	patterns := fs.StringSlice("patterns", nil, "Default glob patterns for pipeline runs")
	llmModel := fs.String("llm-model", "", "Default completion model for enrichment")
	embeddingModel := fs.String("embedding-model", "", "Default embedding model for vectorization")
	force := fs.Bool("force", false, "Overwrite existing configuration")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ckb init [options]

Creates <project>/.ckb/ with project.yaml and the index directory.
Re-running is safe: an existing project.yaml is kept unless --force.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	config := bootstrap.ProjectConfig{
		ProjectID: *projectID,
		Defaults: model.RunConfig{
			FilePatterns:   *patterns,
			LLMModel:       *llmModel,
			EmbeddingModel: *embeddingModel,
		},
	}

	info, err := bootstrap.InitProject(globals.Root, config, slog.Default())
	if err != nil {
		errors.FatalError(errors.NewInternalError(
			"Project initialization failed",
			err.Error(),
			"Check that the project directory is writable",
			err,
		), globals.JSON)
	}

	if *force {
		config.ProjectID = info.ProjectID
		if *projectID != "" {
			config.ProjectID = *projectID
		}
		if config.Defaults.ProjectPath == "" {
			config.Defaults.ProjectPath = info.Root
		}
		if err := bootstrap.SaveConfig(info, &config); err != nil {
			errors.FatalError(errors.NewInternalError(
				"Cannot rewrite project configuration",
				err.Error(),
				"Check that .ckb/project.yaml is writable",
				err,
			), globals.JSON)
		}
	}

	if globals.JSON {
		if err := output.JSON(map[string]string{
			"project_id":  info.ProjectID,
			"root":        info.Root,
			"config_path": info.ConfigPath,
			"data_dir":    info.DataDir,
		}); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	ui.Header("CKB Project Initialized")
	fmt.Printf("%s %s\n", ui.Label("Project:"), info.ProjectID)
	fmt.Printf("%s %s\n", ui.Label("Config:"), info.ConfigPath)
	fmt.Printf("%s %s\n", ui.Label("Data:"), info.DataDir)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  ckb run       Build the knowledge base")
	fmt.Println("  ckb status    Check pipeline state")
}
