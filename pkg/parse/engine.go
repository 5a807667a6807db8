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

package parse

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sort"
	"sync"

	"log/slog"

	"github.com/kraklabs/ckb/pkg/model"
)

// NewParserForMode returns a parser implementation for the mode.
func NewParserForMode(mode Mode, logger *slog.Logger) Parser {
	switch mode {
	case ModeSimplified:
		return NewSimplifiedParser(logger)
	default:
		return NewTreeSitterParser(logger)
	}
}

// Result is the output of a full parse run.
type Result struct {
	Units       []model.CodeUnit
	FileCount   int
	FailedFiles []string
	Languages   map[string]int
	SkipReasons map[string]int
}

// Engine runs the full parse stage: walk the project, then parse files on a
// worker pool. Workers each own a parser instance since Tree-sitter parsers
// are not safe for concurrent use.
type Engine struct {
	logger  *slog.Logger
	loader  *Loader
	mode    Mode
	workers int

	// OnLoaded, when set, is called once the project walk finishes with the
	// number of files selected for parsing.
	OnLoaded func(fileCount int)

	// OnFileParsed, when set, is called after each file completes. Used for
	// progress reporting.
	OnFileParsed func(path string, units int, err error)
}

// NewEngine creates a parse engine. Worker count defaults to GOMAXPROCS,
// capped at 8.
func NewEngine(logger *slog.Logger, mode Mode) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if mode == "" {
		mode = DefaultMode
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > 8 {
		workers = 8
	}
	return &Engine{
		logger:  logger,
		loader:  NewLoader(logger),
		mode:    mode,
		workers: workers,
	}
}

// SetWorkers overrides the worker count.
func (e *Engine) SetWorkers(n int) {
	if n > 0 {
		e.workers = n
	}
}

type parseJob struct {
	file FileInfo
}

type parseOutcome struct {
	file  FileInfo
	units []model.CodeUnit
	err   error
}

// Run walks the project described by cfg and parses every selected file.
// Individual file failures are collected, not fatal; the error return is
// reserved for walk-level problems (missing project path, unreadable root).
func (e *Engine) Run(ctx context.Context, cfg model.RunConfig) (*Result, error) {
	if cfg.ProjectPath == "" {
		return nil, fmt.Errorf("project path not set")
	}

	loaded, err := e.loader.Load(cfg.ProjectPath, LoadOptions{
		Patterns: cfg.FilePatterns,
		Selected: cfg.SelectedFiles,
		Excluded: cfg.ExcludedFiles,
	})
	if err != nil {
		return nil, err
	}
	if e.OnLoaded != nil {
		e.OnLoaded(len(loaded.Files))
	}

	jobs := make(chan parseJob)
	outcomes := make(chan parseOutcome, len(loaded.Files))

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			parser := NewParserForMode(e.mode, e.logger)
			for job := range jobs {
				outcomes <- e.parseOne(parser, job.file)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range loaded.Files {
			select {
			case jobs <- parseJob{file: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(outcomes)
	}()

	result := &Result{
		FileCount:   len(loaded.Files),
		Languages:   loaded.Languages,
		SkipReasons: loaded.SkipReasons,
	}
	for outcome := range outcomes {
		if outcome.err != nil {
			e.logger.Warn("parse.file.error", "path", outcome.file.Path, "err", outcome.err)
			result.FailedFiles = append(result.FailedFiles, outcome.file.Path)
		} else {
			result.Units = append(result.Units, outcome.units...)
		}
		if e.OnFileParsed != nil {
			e.OnFileParsed(outcome.file.Path, len(outcome.units), outcome.err)
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Worker completion order is nondeterministic; sort for stable output.
	sort.Slice(result.Units, func(i, j int) bool {
		a, b := result.Units[i], result.Units[j]
		if a.FilePath != b.FilePath {
			return a.FilePath < b.FilePath
		}
		return a.StartLine < b.StartLine
	})

	e.logger.Info("parse.complete",
		"files", result.FileCount,
		"units", len(result.Units),
		"failed", len(result.FailedFiles),
	)
	return result, nil
}

func (e *Engine) parseOne(parser Parser, file FileInfo) parseOutcome {
	content, err := os.ReadFile(file.FullPath)
	if err != nil {
		return parseOutcome{file: file, err: fmt.Errorf("read file: %w", err)}
	}
	units, err := parser.ParseFile(file, content)
	return parseOutcome{file: file, units: units, err: err}
}
