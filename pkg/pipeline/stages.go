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

package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"context"
	"log/slog"

	"github.com/kraklabs/ckb/pkg/analysis"
	"github.com/kraklabs/ckb/pkg/enrich"
	"github.com/kraklabs/ckb/pkg/index"
	"github.com/kraklabs/ckb/pkg/llm"
	"github.com/kraklabs/ckb/pkg/model"
	"github.com/kraklabs/ckb/pkg/parse"
	"github.com/kraklabs/ckb/pkg/recovery"
	"github.com/kraklabs/ckb/pkg/vectorize"
)

// ProgressFunc reports stage progress to the step executor.
type ProgressFunc func(itemsProcessed, totalItems int, message string)

// StageFunc executes one stage against the accumulated run state. Stages must
// tolerate missing upstream results: independent-step mode may invoke any
// step without its predecessors having run.
type StageFunc func(ctx context.Context, cfg model.RunConfig, state *RunState, report ProgressFunc) error

// RunState accumulates stage outputs across the steps of one run. Stage
// execution is serialized by the owning instance, so stages may read and
// write the state without further locking.
type RunState struct {
	Units       []model.CodeUnit
	Edges       []model.DependencyEdge
	Enrichments []model.Enrichment
	Vectors     [][]float32
	VectorIDs   []string

	FailedFiles  []string
	IndexedCount int
	IndexBackend string
}

// clear drops all accumulated results. Used by rollback; idempotent.
func (s *RunState) clear() {
	s.Units = nil
	s.Edges = nil
	s.Enrichments = nil
	s.Vectors = nil
	s.VectorIDs = nil
	s.FailedFiles = nil
	s.IndexedCount = 0
	s.IndexBackend = ""
}

// Stages maps step ids to their stage implementations. Tests substitute fake
// StageFuncs to drive the state machine without real work.
type Stages struct {
	funcs [StepCount]StageFunc
}

// run dispatches one step id to its stage.
func (s *Stages) run(ctx context.Context, stepID int, cfg model.RunConfig, state *RunState, report ProgressFunc) error {
	if stepID < StepParse || stepID > StepIndex {
		return fmt.Errorf("invalid step id %d", stepID)
	}
	fn := s.funcs[stepID-1]
	if fn == nil {
		return fmt.Errorf("step %d has no stage bound", stepID)
	}
	return fn(ctx, cfg, state, report)
}

// StageDeps wires the real stage components into a Stages table.
type StageDeps struct {
	Logger  *slog.Logger
	Handler *recovery.Handler

	// LLM is the completion client used by enrichment.
	LLM llm.Client

	// DataDir is where the index payload persists (e.g. .ckb/).
	DataDir string

	// ParseMode selects the parser implementation; empty means auto.
	ParseMode parse.Mode
}

// NewStages builds the production stage table. The enricher and the
// per-model vectorizers are created once and shared across runs so their
// caches are process-wide.
func NewStages(deps StageDeps) *Stages {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Handler == nil {
		deps.Handler = recovery.NewHandler(deps.Logger)
	}

	b := &stageBuilder{
		deps:        deps,
		enricher:    enrich.NewEnricher(deps.LLM, deps.Handler, deps.Logger),
		vectorizers: make(map[string]*vectorize.Vectorizer),
	}

	s := &Stages{}
	s.funcs[StepParse-1] = b.parseStage
	s.funcs[StepAnalyze-1] = b.analyzeStage
	s.funcs[StepEnrich-1] = b.enrichStage
	s.funcs[StepVectorize-1] = b.vectorizeStage
	s.funcs[StepIndex-1] = b.indexStage
	return s
}

// stageBuilder holds the long-lived stage components behind the StageFuncs.
type stageBuilder struct {
	deps     StageDeps
	enricher *enrich.Enricher

	mu          sync.Mutex
	vectorizers map[string]*vectorize.Vectorizer
}

// vectorizerFor reuses one vectorizer per embedding model, keeping the
// embedding cache process-wide.
func (b *stageBuilder) vectorizerFor(embeddingModel string) *vectorize.Vectorizer {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, ok := b.vectorizers[embeddingModel]
	if !ok {
		v = vectorize.NewVectorizer(embeddingModel, b.deps.Logger)
		b.vectorizers[embeddingModel] = v
	}
	return v
}

// indexDir is the index location for a run's data directory.
func (b *stageBuilder) indexDir() string {
	return filepath.Join(b.deps.DataDir, "index")
}

// =============================================================================
// STAGE 1: PARSE
// =============================================================================

func (b *stageBuilder) parseStage(ctx context.Context, cfg model.RunConfig, state *RunState, report ProgressFunc) error {
	engine := parse.NewEngine(b.deps.Logger, b.deps.ParseMode)

	var mu sync.Mutex
	total := 0
	processed := 0
	engine.OnLoaded = func(fileCount int) {
		mu.Lock()
		total = fileCount
		mu.Unlock()
		report(0, fileCount, "scanning project")
	}
	engine.OnFileParsed = func(path string, units int, err error) {
		mu.Lock()
		processed++
		done, all := processed, total
		mu.Unlock()
		report(done, all, path)
	}

	result, err := engine.Run(ctx, cfg)
	if err != nil {
		return err
	}

	state.Units = result.Units
	state.FailedFiles = result.FailedFiles
	return nil
}

// =============================================================================
// STAGE 2: ANALYZE
// =============================================================================

func (b *stageBuilder) analyzeStage(ctx context.Context, cfg model.RunConfig, state *RunState, report ProgressFunc) error {
	analyzer := analysis.NewAnalyzer(b.deps.Logger)

	if len(state.Units) == 0 {
		report(0, 0, "no units to analyze")
		return nil
	}

	var edges []model.DependencyEdge
	for i := range state.Units {
		if err := ctx.Err(); err != nil {
			return err
		}
		unitEdges := analyzer.Analyze(state.Units[i], state.Units)
		edges = append(edges, unitEdges...)

		deps := make([]string, 0, len(unitEdges))
		for _, e := range unitEdges {
			deps = append(deps, e.ToID)
		}
		state.Units[i].Dependencies = deps

		report(i+1, len(state.Units), state.Units[i].Name)
	}

	state.Edges = edges
	return nil
}

// =============================================================================
// STAGE 3: ENRICH
// =============================================================================

func (b *stageBuilder) enrichStage(ctx context.Context, cfg model.RunConfig, state *RunState, report ProgressFunc) error {
	if len(state.Units) == 0 {
		report(0, 0, "no units to enrich")
		return nil
	}
	if cfg.LLMModel != "" {
		b.enricher.SetModel(cfg.LLMModel)
	}

	enrichments, err := b.enricher.EnrichAll(ctx, state.Units, func(done, total int) {
		report(done, total, "")
	})
	if err != nil {
		return err
	}

	byUnit := make(map[string]model.Enrichment, len(enrichments))
	for _, e := range enrichments {
		byUnit[e.UnitID] = e
	}
	for i := range state.Units {
		if e, ok := byUnit[state.Units[i].ID]; ok {
			state.Units[i].Description = e.Description
		}
	}

	state.Enrichments = enrichments
	return nil
}

// =============================================================================
// STAGE 4: VECTORIZE
// =============================================================================

func (b *stageBuilder) vectorizeStage(ctx context.Context, cfg model.RunConfig, state *RunState, report ProgressFunc) error {
	if len(state.Units) == 0 {
		report(0, 0, "no units to vectorize")
		return nil
	}
	vectorizer := b.vectorizerFor(cfg.EmbeddingModel)

	texts := make([]string, len(state.Units))
	ids := make([]string, len(state.Units))
	for i, u := range state.Units {
		texts[i] = embeddingText(u)
		ids[i] = u.ID
	}
	report(0, len(texts), vectorizer.ProviderName())

	vectors, err := vectorizer.CreateEmbeddings(ctx, texts)
	if err != nil {
		return err
	}

	state.Vectors = vectors
	state.VectorIDs = ids
	report(len(vectors), len(texts), "")
	return nil
}

// embeddingText composes the text a unit is embedded from: its identity, the
// enrichment description when present, and the raw code.
func embeddingText(u model.CodeUnit) string {
	var b strings.Builder
	b.WriteString(string(u.Kind))
	b.WriteString(" ")
	b.WriteString(u.Name)
	b.WriteString(" in ")
	b.WriteString(u.FilePath)
	if u.Description != "" {
		b.WriteString("\n")
		b.WriteString(u.Description)
	}
	b.WriteString("\n")
	b.WriteString(u.Code)
	return b.String()
}

// =============================================================================
// STAGE 5: INDEX
// =============================================================================

// indexAddChunk bounds one AddVectors call so progress stays observable on
// large runs.
const indexAddChunk = 100

func (b *stageBuilder) indexStage(ctx context.Context, cfg model.RunConfig, state *RunState, report ProgressFunc) error {
	if len(state.Vectors) == 0 {
		report(0, 0, "no vectors to index")
		return nil
	}

	builder := index.NewBuilder(b.indexDir(), b.deps.Logger)
	if err := builder.Initialize(len(state.Vectors[0])); err != nil {
		return err
	}
	defer builder.Close()

	total := len(state.Vectors)
	for start := 0; start < total; start += indexAddChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + indexAddChunk
		if end > total {
			end = total
		}
		if err := builder.AddVectors(state.Vectors[start:end], state.VectorIDs[start:end]); err != nil {
			return err
		}
		report(end, total, "")
	}

	if err := builder.Optimize(); err != nil {
		b.deps.Logger.Warn("pipeline.index.optimize", "err", err)
	}
	if err := builder.Save(); err != nil {
		return err
	}

	state.IndexedCount = builder.Count()
	state.IndexBackend = builder.BackendName()
	return nil
}
