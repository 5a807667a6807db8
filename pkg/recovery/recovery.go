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

// Package recovery centralizes error classification and recovery policy for
// the CKB pipeline. Stages never hardcode retry/backoff decisions: they hand
// errors to a Handler, which classifies the error into a kind and severity,
// records it, and returns the recovery strategy the caller should act on.
//
// The handler performs the strategy's delay but never retries the failed
// operation itself; the caller owns the retry loop.
package recovery

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an error by its origin.
type Kind string

const (
	KindParsing    Kind = "parsing"
	KindAPI        Kind = "api"
	KindFilesystem Kind = "filesystem"
	KindNetwork    Kind = "network"
	KindValidation Kind = "validation"
	KindResource   Kind = "resource"
	KindUnknown    Kind = "unknown"
)

// Severity scores how damaging an error is, independent of its kind.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Action is the recovery action chosen for an error.
type Action string

const (
	ActionRetryWithDelay     Action = "retry_with_delay"
	ActionPauseAndRetry      Action = "pause_and_retry"
	ActionExponentialBackoff Action = "exponential_backoff"
	ActionSkipFile           Action = "skip_file"
	ActionAbortPipeline      Action = "abort_pipeline"
	ActionRetry              Action = "retry"
)

// Entry is one recorded error. Entries live in a bounded ring buffer and are
// used only for reporting and statistics, never for control flow beyond the
// immediate recovery decision.
type Entry struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Context   Context   `json:"context"`
}

// Context carries where an error happened.
type Context struct {
	// Step is the pipeline step name ("parse", "analyze", "enrich",
	// "vectorize", "index"), or "" when unknown.
	Step string `json:"step,omitempty"`

	// UnitID is the code unit being processed, when applicable.
	UnitID string `json:"unit_id,omitempty"`

	// File is the source file being processed, when applicable.
	File string `json:"file,omitempty"`

	// RetryCount is how many times the failing operation has already been
	// retried.
	RetryCount int `json:"retry_count,omitempty"`
}

// Strategy is the recovery policy chosen for an error.
type Strategy struct {
	Action Action `json:"action"`

	// Delay to wait before the next attempt. Zero for skip/abort actions.
	Delay time.Duration `json:"delay"`

	// MaxRetries is the retry budget for this strategy. The caller compares
	// its own attempt counter against this.
	MaxRetries int `json:"max_retries"`
}

// Decision is the outcome of executing a strategy, for the caller to act on.
type Decision struct {
	// ShouldRetry tells the caller to re-attempt the failed operation.
	ShouldRetry bool `json:"should_retry"`

	// ShouldContinue tells the caller to skip the failed item and keep
	// processing the rest.
	ShouldContinue bool `json:"should_continue"`

	// Abort tells the caller to stop the whole pipeline run.
	Abort bool `json:"abort"`
}

// Retry/backoff constants. Preserved from the documented policy; not tuned
// against real provider limits.
const (
	rateLimitBaseDelay = 1000 * time.Millisecond
	rateLimitMaxDelay  = 30000 * time.Millisecond
	rateLimitRetries   = 5

	quotaPauseDelay = 60 * time.Second
	quotaRetries    = 3

	networkBaseDelay = 1000 * time.Millisecond
	networkMaxDelay  = 10000 * time.Millisecond
	networkRetries   = 3
)

// historyCap bounds the error ring buffer.
const historyCap = 100

// Handler classifies errors and decides recovery. Safe for concurrent use;
// one Handler is shared by all stages of all concurrent pipeline runs.
type Handler struct {
	mu      sync.Mutex
	history []Entry // most-recent-first, capped at historyCap
	logger  *slog.Logger
}

// NewHandler creates a Handler. A nil logger uses slog.Default().
func NewHandler(logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger}
}

// kindRules maps each kind to the message keywords that select it. Checked in
// kindOrder; the first kind with a matching keyword wins.
var kindRules = map[Kind][]string{
	KindParsing:    {"parse", "syntax", "unexpected token", "tokenize", "malformed source"},
	KindAPI:        {"rate limit", "quota", "api", "unauthorized", "authentication", "api key", "model", "completion", "llm", "embedding"},
	KindFilesystem: {"no such file", "file not found", "permission denied", "enoent", "read file", "write file", "is a directory"},
	KindNetwork:    {"network", "connection", "timeout", "timed out", "dns", "socket", "unreachable", "econnrefused", "reset by peer"},
	KindValidation: {"validation", "invalid", "schema", "required field", "out of range"},
	KindResource:   {"out of memory", "memory", "resource", "disk full", "too many open files", "exhausted"},
}

// kindOrder fixes classification priority; first match wins.
var kindOrder = []Kind{KindParsing, KindAPI, KindFilesystem, KindNetwork, KindValidation, KindResource}

// Classify maps an error to a Kind by keyword matching against its message.
func (h *Handler) Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, kind := range kindOrder {
		for _, kw := range kindRules[kind] {
			if strings.Contains(msg, kw) {
				return kind
			}
		}
	}
	return KindUnknown
}

// DetermineSeverity scores an error given its kind and context. Rules are
// evaluated in order; the first match wins. API rate-limit errors are scored
// medium even during enrichment: they are routine and fully recoverable,
// unlike other API failures in that step.
func (h *Handler) DetermineSeverity(err error, kind Kind, ectx Context) Severity {
	msg := ""
	if err != nil {
		msg = strings.ToLower(err.Error())
	}

	switch {
	case kind == KindResource:
		return SeverityCritical
	case kind == KindFilesystem && ectx.Step == "parse":
		return SeverityCritical
	case kind == KindAPI && isAuthMessage(msg):
		return SeverityCritical
	case kind == KindAPI && isRateLimitMessage(msg):
		return SeverityMedium
	case kind == KindParsing:
		return SeverityHigh
	case kind == KindAPI && ectx.Step == "enrich":
		return SeverityHigh
	case kind == KindValidation:
		return SeverityHigh
	case kind == KindNetwork:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

func isAuthMessage(msg string) bool {
	for _, kw := range []string{"unauthorized", "authentication", "api key", "forbidden", "invalid key"} {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}

func isRateLimitMessage(msg string) bool {
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "429") || strings.Contains(msg, "too many requests")
}

func isQuotaMessage(msg string) bool {
	return strings.Contains(msg, "quota") || strings.Contains(msg, "billing") || strings.Contains(msg, "insufficient_quota")
}

// Record classifies an error, appends an Entry to the bounded history, and
// returns the entry. Most recent entries come first.
func (h *Handler) Record(err error, ectx Context) Entry {
	kind := h.Classify(err)
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Message:   err.Error(),
		Kind:      kind,
		Severity:  h.DetermineSeverity(err, kind, ectx),
		Context:   ectx,
	}

	h.mu.Lock()
	h.history = append([]Entry{entry}, h.history...)
	if len(h.history) > historyCap {
		h.history = h.history[:historyCap]
	}
	h.mu.Unlock()

	h.logger.Warn("recovery.error.recorded",
		"kind", entry.Kind,
		"severity", entry.Severity,
		"step", ectx.Step,
		"err", err,
	)
	return entry
}

// StrategyFor maps a recorded error to its recovery strategy. retryCount is
// the number of attempts already made, used to scale retry delays.
func (h *Handler) StrategyFor(entry Entry, retryCount int) Strategy {
	msg := strings.ToLower(entry.Message)

	switch entry.Kind {
	case KindAPI:
		if isRateLimitMessage(msg) {
			return Strategy{
				Action:     ActionRetryWithDelay,
				Delay:      expDelay(rateLimitBaseDelay, retryCount, rateLimitMaxDelay),
				MaxRetries: rateLimitRetries,
			}
		}
		if isQuotaMessage(msg) {
			return Strategy{Action: ActionPauseAndRetry, Delay: quotaPauseDelay, MaxRetries: quotaRetries}
		}
	case KindNetwork:
		return Strategy{
			Action:     ActionExponentialBackoff,
			Delay:      expDelay(networkBaseDelay, retryCount, networkMaxDelay),
			MaxRetries: networkRetries,
		}
	case KindParsing:
		return Strategy{Action: ActionSkipFile}
	case KindFilesystem:
		if entry.Severity == SeverityCritical {
			return Strategy{Action: ActionAbortPipeline}
		}
		return Strategy{Action: ActionSkipFile}
	case KindValidation, KindResource:
		return Strategy{Action: ActionAbortPipeline}
	}

	return Strategy{Action: ActionRetry, MaxRetries: 1}
}

// expDelay computes base * 2^retryCount capped at max.
func expDelay(base time.Duration, retryCount int, max time.Duration) time.Duration {
	d := base
	for i := 0; i < retryCount; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}
	if d > max {
		return max
	}
	return d
}

// Execute performs the strategy's delay (honoring ctx cancellation) and
// translates the strategy into a Decision. Critical-severity entries always
// abort regardless of the strategy's retry budget.
func (h *Handler) Execute(ctx context.Context, entry Entry, strategy Strategy, retryCount int) (Decision, error) {
	if entry.Severity == SeverityCritical && strategy.Action != ActionPauseAndRetry {
		return Decision{Abort: true}, nil
	}

	switch strategy.Action {
	case ActionRetryWithDelay, ActionPauseAndRetry, ActionExponentialBackoff:
		if retryCount >= strategy.MaxRetries {
			return Decision{Abort: entry.Severity == SeverityCritical}, nil
		}
		if strategy.Delay > 0 {
			h.logger.Debug("recovery.delay", "action", strategy.Action, "delay_ms", strategy.Delay.Milliseconds(), "retry", retryCount)
			select {
			case <-ctx.Done():
				return Decision{}, ctx.Err()
			case <-time.After(strategy.Delay):
			}
		}
		return Decision{ShouldRetry: true}, nil

	case ActionSkipFile:
		h.logger.Warn("recovery.skip", "kind", entry.Kind, "file", entry.Context.File)
		return Decision{ShouldContinue: true}, nil

	case ActionAbortPipeline:
		return Decision{Abort: true}, nil

	case ActionRetry:
		if retryCount >= strategy.MaxRetries {
			return Decision{}, nil
		}
		return Decision{ShouldRetry: true}, nil
	}

	return Decision{}, nil
}

// Statistics aggregates recorded errors within the trailing window.
type Statistics struct {
	Total      int              `json:"total"`
	ByKind     map[Kind]int     `json:"by_kind"`
	BySeverity map[Severity]int `json:"by_severity"`
	Window     time.Duration    `json:"window"`
}

// GetStatistics counts recorded errors whose timestamp falls within the
// trailing window. A zero window matches nothing.
func (h *Handler) GetStatistics(window time.Duration) Statistics {
	stats := Statistics{
		ByKind:     make(map[Kind]int),
		BySeverity: make(map[Severity]int),
		Window:     window,
	}
	if window <= 0 {
		return stats
	}
	cutoff := time.Now().Add(-window)

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, e := range h.history {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.ByKind[e.Kind]++
		stats.BySeverity[e.Severity]++
	}
	return stats
}

// GetRecentErrors returns up to limit entries, most recent first.
func (h *Handler) GetRecentErrors(limit int) []Entry {
	h.mu.Lock()
	defer h.mu.Unlock()
	if limit <= 0 || limit > len(h.history) {
		limit = len(h.history)
	}
	out := make([]Entry, limit)
	copy(out, h.history[:limit])
	return out
}

// Clear drops all recorded errors.
func (h *Handler) Clear() {
	h.mu.Lock()
	h.history = nil
	h.mu.Unlock()
}
