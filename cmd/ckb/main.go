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

// Package main implements the CKB CLI for building and querying a
// vector-searchable code knowledge base.
//
// Usage:
//
//	ckb init                      Create .ckb/project.yaml configuration
//	ckb run                       Run the full pipeline (parse..index)
//	ckb step <n|name>             Run a single pipeline step
//	ckb status [--json]           Show step table and index status
//	ckb history [--step n]        Show step execution history
//	ckb search <query> [-k 10]    k-NN search against the built index
//	ckb errors                    Show errors recorded by the last run
package main

import (
	"fmt"
	"log/slog"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/ui"
)

// Version information (set via ldflags during build)
var (
	version = "dev"     // Version string
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// GlobalFlags are the flags shared by every subcommand.
type GlobalFlags struct {
	// JSON switches all output to machine-readable JSON.
	JSON bool

	// Quiet suppresses progress bars and info-level logging.
	Quiet bool

	// NoColor disables colored output.
	NoColor bool

	// Debug enables debug-level logging.
	Debug bool

	// Root is the project root directory.
	Root string
}

func main() {
	var globals GlobalFlags

	flag.BoolVar(&globals.JSON, "json", false, "Output as JSON")
	flag.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress output")
	flag.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	flag.BoolVar(&globals.Debug, "debug", false, "Enable debug logging")
	flag.StringVar(&globals.Root, "project", ".", "Project root directory")
	showVersion := flag.Bool("version", false, "Show version and exit")

	// Stop at the first non-flag so subcommands parse their own flags.
	flag.CommandLine.SetInterspersed(false)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `CKB - Code Knowledge Base

CKB ingests a polyglot codebase (Go, Python, TypeScript, JavaScript,
Java) and produces a vector-searchable knowledge base through a five
step pipeline: parse, analyze, enrich, vectorize, index.

Usage:
  ckb [global options] <command> [options]

Commands:
  init          Create .ckb/project.yaml configuration
  run           Run the full pipeline
  step          Run a single pipeline step (1-5 or by name)
  status        Show step table and index status
  history       Show step execution history
  search        k-NN search against the built index
  errors        Show errors recorded by the last run

Global Options:
  --project     Project root directory (default: .)
  --json        Output as JSON
  --debug       Enable debug logging
  --no-color    Disable colored output
  -q, --quiet   Suppress progress output
  --version     Show version and exit

Examples:
  ckb init
  ckb run
  ckb step enrich --llm-model llama3
  ckb search "parse configuration file" -k 5
  ckb status --json

Getting Started:
  1. Initialize the project:    ckb init
  2. Build the knowledge base:  ckb run
  3. Query it:                  ckb search "<natural language query>"

Data Storage:
  Everything persists under <project>/.ckb/

Environment Variables:
  OLLAMA_HOST        Ollama URL (default: http://localhost:11434)
  OPENAI_API_KEY     Enables the OpenAI embedding/completion backends
  ANTHROPIC_API_KEY  Enables the Anthropic completion backend
  CKB_INDEX_URL      Remote vector index endpoint (optional tier)

For detailed command help: ckb <command> --help

`)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("ckb version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	ui.InitColors(globals.NoColor || globals.JSON)
	setupLogging(globals)

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs, globals)
	case "run":
		runRun(cmdArgs, globals)
	case "step":
		runStepCmd(cmdArgs, globals)
	case "status":
		runStatus(cmdArgs, globals)
	case "history":
		runHistory(cmdArgs, globals)
	case "search":
		runSearch(cmdArgs, globals)
	case "errors":
		runErrors(cmdArgs, globals)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
}

// setupLogging installs the process-wide slog default. Info level normally,
// debug with --debug, warnings only in quiet or JSON mode.
func setupLogging(globals GlobalFlags) {
	level := slog.LevelInfo
	switch {
	case globals.Debug:
		level = slog.LevelDebug
	case globals.Quiet || globals.JSON:
		level = slog.LevelWarn
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}
