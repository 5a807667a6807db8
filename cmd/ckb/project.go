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
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/bootstrap"
	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/pkg/llm"
	"github.com/kraklabs/ckb/pkg/model"
	"github.com/kraklabs/ckb/pkg/pipeline"
	"github.com/kraklabs/ckb/pkg/recovery"
)

// errorLogName is where run/step commands persist recorded errors so that
// 'ckb errors' can report them after the process exits.
const errorLogName = "errors.json"

// openProject loads the project at globals.Root or exits with a friendly
// error pointing at 'ckb init'.
func openProject(globals GlobalFlags) (*bootstrap.ProjectInfo, *bootstrap.ProjectConfig) {
	info, config, err := bootstrap.OpenProject(globals.Root, slog.Default())
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Project is not initialized",
			err.Error(),
			"Run 'ckb init' in the project root first",
			err,
		), globals.JSON)
	}
	return info, config
}

// newManager wires the production pipeline for the project: LLM client from
// config/env, shared error handler, stage table, and the manager with its
// checkpoint directory.
func newManager(info *bootstrap.ProjectInfo, config *bootstrap.ProjectConfig, globals GlobalFlags) *pipeline.Manager {
	logger := slog.Default()

	client, err := llm.NewClient(llm.Config{Model: config.Defaults.LLMModel})
	if err != nil {
		errors.FatalError(errors.NewConfigError(
			"Cannot configure the LLM backend",
			err.Error(),
			"Check the llm settings in .ckb/project.yaml and your provider environment variables",
			err,
		), globals.JSON)
	}

	handler := recovery.NewHandler(logger)
	stages := pipeline.NewStages(pipeline.StageDeps{
		Logger:  logger,
		Handler: handler,
		LLM:     client,
		DataDir: info.DataDir,
	})

	return pipeline.NewManager(stages, handler, pipeline.ManagerOptions{
		DataDir:       info.DataDir,
		DefaultConfig: config.Defaults,
	}, logger)
}

// runConfigFlags registers the per-run override flags shared by 'run' and
// 'step' and returns a builder for the resulting RunConfig.
func runConfigFlags(fs *flag.FlagSet) func() model.RunConfig {
	patterns := fs.StringSlice("patterns", nil, "Glob patterns selecting files to process")
	files := fs.StringSlice("files", nil, "Restrict processing to these paths")
	exclude := fs.StringSlice("exclude", nil, "Paths/globs to skip")
	forceReparse := fs.Bool("force-reparse", false, "Bypass cached parse results")
	llmModel := fs.String("llm-model", "", "Completion model for enrichment")
	embeddingModel := fs.String("embedding-model", "", "Embedding model for vectorization")

	return func() model.RunConfig {
		return model.RunConfig{
			FilePatterns:   *patterns,
			SelectedFiles:  *files,
			ExcludedFiles:  *exclude,
			ForceReparse:   *forceReparse,
			LLMModel:       *llmModel,
			EmbeddingModel: *embeddingModel,
		}
	}
}

// persistErrorLog writes the manager's recorded errors to the project data
// dir for later inspection. An empty log removes the file.
func persistErrorLog(m *pipeline.Manager, dataDir string) {
	path := filepath.Join(dataDir, errorLogName)
	entries := m.GetRecentErrors(100)
	if len(entries) == 0 {
		_ = os.Remove(path)
		return
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		slog.Default().Warn("errors.log.marshal", "err", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		slog.Default().Warn("errors.log.write", "err", err)
	}
}

// loadErrorLog reads the persisted error log, returning nil when absent.
func loadErrorLog(dataDir string) ([]recovery.Entry, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, errorLogName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var entries []recovery.Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
