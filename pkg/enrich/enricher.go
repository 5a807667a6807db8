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

// Package enrich produces natural-language annotations for code units via an
// LLM, with caching, retry/backoff driven by the recovery handler, and a
// response-repair fallback when the model ignores the output contract.
package enrich

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/time/rate"

	"github.com/kraklabs/ckb/pkg/llm"
	"github.com/kraklabs/ckb/pkg/model"
	"github.com/kraklabs/ckb/pkg/recovery"
)

const (
	// DefaultMaxRetries bounds LLM attempts per unit.
	DefaultMaxRetries = 3

	// callsPerMinute caps enrichment throughput across all callers of one
	// enricher instance.
	callsPerMinute = 50

	// defaultPerCallDelay is the fixed pause between consecutive calls, on
	// top of the rate limiter.
	defaultPerCallDelay = 200 * time.Millisecond

	// maxOutputTokens caps the completion budget per unit.
	maxOutputTokens = 512

	// parsedConfidence scores a well-formed structured response.
	parsedConfidence = 0.9

	// fallbackConfidence scores a heuristic extraction from a malformed
	// response.
	fallbackConfidence = 0.3

	// syntheticConfidence scores the placeholder produced after retries
	// are exhausted.
	syntheticConfidence = 0.1
)

// envelope is the JSON contract the model is asked to produce.
type envelope struct {
	Description string   `json:"description"`
	Purpose     string   `json:"purpose"`
	Tags        []string `json:"tags"`
	Complexity  string   `json:"complexity"`
}

// Enricher annotates code units through an LLM client.
type Enricher struct {
	client       llm.Client
	handler      *recovery.Handler
	logger       *slog.Logger
	model        string
	maxRetries   int
	perCallDelay time.Duration
	limiter      *rate.Limiter

	mu    sync.Mutex
	cache map[string]model.Enrichment
}

// NewEnricher creates an enricher. handler may be nil, in which case a
// private recovery handler is used. A nil logger falls back to slog.Default.
func NewEnricher(client llm.Client, handler *recovery.Handler, logger *slog.Logger) *Enricher {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = recovery.NewHandler(logger)
	}
	return &Enricher{
		client:       client,
		handler:      handler,
		logger:       logger,
		maxRetries:   DefaultMaxRetries,
		perCallDelay: defaultPerCallDelay,
		limiter:      rate.NewLimiter(rate.Limit(float64(callsPerMinute)/60.0), 5),
		cache:        make(map[string]model.Enrichment),
	}
}

// SetModel overrides the completion model per request.
func (e *Enricher) SetModel(model string) { e.model = model }

// SetMaxRetries overrides the per-unit retry budget.
func (e *Enricher) SetMaxRetries(n int) {
	if n > 0 {
		e.maxRetries = n
	}
}

// SetPerCallDelay overrides the fixed inter-call pause. Tests set it to zero.
func (e *Enricher) SetPerCallDelay(d time.Duration) { e.perCallDelay = d }

// SetLimiter replaces the throughput limiter. Tests pass rate.NewLimiter
// (rate.Inf, 0) to disable pacing.
func (e *Enricher) SetLimiter(l *rate.Limiter) { e.limiter = l }

// CacheSize returns the number of cached enrichments.
func (e *Enricher) CacheSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.cache)
}

// ClearCache empties the enrichment cache.
func (e *Enricher) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]model.Enrichment)
}

// EnrichUnit annotates one unit. Cache hits short-circuit. Otherwise the LLM
// is called up to maxRetries times; call failures are classified by the
// recovery handler and its retry delay honored. Exhausting the budget
// returns the last error.
func (e *Enricher) EnrichUnit(ctx context.Context, unit model.CodeUnit) (model.Enrichment, error) {
	key := contentHash(unit)

	e.mu.Lock()
	cached, hit := e.cache[key]
	e.mu.Unlock()
	if hit {
		return cached, nil
	}

	var lastErr error
	for attempt := 0; attempt < e.maxRetries; attempt++ {
		if err := e.pace(ctx); err != nil {
			return model.Enrichment{}, err
		}

		resp, err := e.client.Complete(ctx, llm.CompletionRequest{
			System:      systemPrompt,
			Prompt:      buildPrompt(unit),
			Model:       e.model,
			MaxTokens:   maxOutputTokens,
			Temperature: 0.2,
		})
		if err != nil {
			lastErr = err
			entry := e.handler.Record(err, recovery.Context{Step: "enrich", UnitID: unit.ID, RetryCount: attempt})
			strategy := e.handler.StrategyFor(entry, attempt)
			decision, execErr := e.handler.Execute(ctx, entry, strategy, attempt)
			if execErr != nil {
				return model.Enrichment{}, execErr
			}
			if decision.Abort || !decision.ShouldRetry {
				break
			}
			continue
		}

		enrichment := e.parseResponse(unit, resp.Text)
		e.mu.Lock()
		e.cache[key] = enrichment
		e.mu.Unlock()
		return enrichment, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("enrichment failed for unit %s", unit.ID)
	}
	return model.Enrichment{}, lastErr
}

// EnrichAll annotates every unit, substituting a synthetic low-confidence
// enrichment when a unit's retries are exhausted: per-item failures degrade,
// they do not fail the batch. OnEnriched, when set, reports progress.
func (e *Enricher) EnrichAll(ctx context.Context, units []model.CodeUnit, onEnriched func(done, total int)) ([]model.Enrichment, error) {
	out := make([]model.Enrichment, 0, len(units))
	for i, unit := range units {
		enrichment, err := e.EnrichUnit(ctx, unit)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			e.logger.Warn("enrich.unit.degraded", "unit_id", unit.ID, "err", err)
			enrichment = syntheticEnrichment(unit, err)
		}
		out = append(out, enrichment)
		if onEnriched != nil {
			onEnriched(i+1, len(units))
		}
	}
	return out, nil
}

// pace waits for the limiter and the fixed per-call delay.
func (e *Enricher) pace(ctx context.Context) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}
	if e.perCallDelay > 0 {
		timer := time.NewTimer(e.perCallDelay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
	return nil
}

// parseResponse decodes the strict JSON envelope; on failure it falls back
// to a heuristic one-line extraction marked fallback with low confidence.
func (e *Enricher) parseResponse(unit model.CodeUnit, text string) model.Enrichment {
	now := time.Now()

	var env envelope
	if err := json.Unmarshal([]byte(stripFences(text)), &env); err == nil && env.Description != "" {
		return model.Enrichment{
			UnitID:      unit.ID,
			Description: env.Description,
			Summary:     env.Purpose,
			Tags:        env.Tags,
			Complexity:  normalizeComplexity(env.Complexity),
			Confidence:  parsedConfidence,
			GeneratedAt: now,
		}
	}

	e.logger.Warn("enrich.response.fallback", "unit_id", unit.ID)
	return model.Enrichment{
		UnitID:      unit.ID,
		Description: firstLine(text),
		Complexity:  model.ComplexityUnknown,
		Confidence:  fallbackConfidence,
		Fallback:    true,
		GeneratedAt: now,
	}
}

func syntheticEnrichment(unit model.CodeUnit, err error) model.Enrichment {
	return model.Enrichment{
		UnitID:      unit.ID,
		Description: fmt.Sprintf("Enrichment unavailable: %v", err),
		Complexity:  model.ComplexityUnknown,
		Confidence:  syntheticConfidence,
		Fallback:    true,
		GeneratedAt: time.Now(),
	}
}

// =============================================================================
// PROMPTS
// =============================================================================

const systemPrompt = `You are a code documentation assistant. Respond with a single JSON object and nothing else: {"description": one sentence, "purpose": one short paragraph, "tags": up to 5 lowercase strings, "complexity": "low"|"medium"|"high"}.`

// buildPrompt embeds the unit's code and its language-specific metadata.
func buildPrompt(unit model.CodeUnit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Describe this %s %s named %q from file %s.\n",
		unit.Language, unit.Kind, unit.Name, unit.FilePath)

	if len(unit.Metadata) > 0 {
		keys := make([]string, 0, len(unit.Metadata))
		for k := range unit.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Context:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "  %s: %s\n", k, unit.Metadata[k])
		}
	}

	b.WriteString("\nCode:\n```")
	b.WriteString(unit.Language)
	b.WriteString("\n")
	b.WriteString(unit.Code)
	b.WriteString("\n```\n")
	return b.String()
}

// =============================================================================
// HELPERS
// =============================================================================

// contentHash keys the cache by source text plus metadata, so whitespace or
// metadata changes re-enrich while identity changes alone do not.
func contentHash(unit model.CodeUnit) string {
	h := sha256.New()
	h.Write([]byte(unit.Code))
	if len(unit.Metadata) > 0 {
		keys := make([]string, 0, len(unit.Metadata))
		for k := range unit.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			h.Write([]byte(k))
			h.Write([]byte{0})
			h.Write([]byte(unit.Metadata[k]))
			h.Write([]byte{0})
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// stripFences removes a surrounding markdown code fence, if present.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}

// firstLine extracts a usable one-liner from free-form model output.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.Trim(line, "`#*- "))
		if line != "" {
			if len(line) > 200 {
				line = line[:197] + "..."
			}
			return line
		}
	}
	return "No description available"
}

func normalizeComplexity(s string) model.Complexity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return model.ComplexityLow
	case "medium":
		return model.ComplexityMedium
	case "high":
		return model.ComplexityHigh
	default:
		return model.ComplexityUnknown
	}
}
