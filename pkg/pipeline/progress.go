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
	"sync"
	"time"
)

// progressHistoryCap bounds the per-session delta log.
const progressHistoryCap = 500

// ProgressDelta is one recorded progress change.
type ProgressDelta struct {
	Timestamp      time.Time `json:"timestamp"`
	StepID         int       `json:"step_id"`
	Progress       int       `json:"progress"`
	ItemsProcessed int       `json:"items_processed"`
	TotalItems     int       `json:"total_items"`
}

// ProgressSession aggregates step progress, timing, and throughput for one
// run. Safe for concurrent use.
type ProgressSession struct {
	mu sync.Mutex

	pipelineID string
	startedAt  time.Time

	// stepProgress/items mirror the run's step table, kept here so derived
	// metrics don't need to reach into the instance.
	stepProgress [StepCount]int
	items        [StepCount]int
	totals       [StepCount]int

	deltas []ProgressDelta
}

// NewProgressSession creates a session for one run.
func NewProgressSession(pipelineID string) *ProgressSession {
	return &ProgressSession{pipelineID: pipelineID, startedAt: time.Now()}
}

// Update records a progress change for one step. The delta log is bounded;
// oldest entries are dropped.
func (s *ProgressSession) Update(stepID, progress, itemsProcessed, totalItems int) {
	if stepID < StepParse || stepID > StepIndex {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepProgress[stepID-1] = progress
	s.items[stepID-1] = itemsProcessed
	s.totals[stepID-1] = totalItems

	s.deltas = append(s.deltas, ProgressDelta{
		Timestamp:      time.Now(),
		StepID:         stepID,
		Progress:       progress,
		ItemsProcessed: itemsProcessed,
		TotalItems:     totalItems,
	})
	if len(s.deltas) > progressHistoryCap {
		s.deltas = s.deltas[len(s.deltas)-progressHistoryCap:]
	}
}

// Overall is the weighted average of step progress, 0..100.
func (s *ProgressSession) Overall() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var acc float64
	for i, def := range stepDefs {
		acc += float64(s.stepProgress[i]) * float64(def.weight)
	}
	return acc / 100.0
}

// ItemsPerSecond is the cumulative processing rate since the session started.
func (s *ProgressSession) ItemsPerSecond() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	elapsed := time.Since(s.startedAt).Seconds()
	if elapsed <= 0 {
		return 0
	}
	total := 0
	for _, n := range s.items {
		total += n
	}
	return float64(total) / elapsed
}

// ETA estimates remaining run time from overall progress and elapsed time.
// Returns 0 until there is enough signal to extrapolate.
func (s *ProgressSession) ETA() time.Duration {
	overall := s.Overall()
	if overall <= 0 {
		return 0
	}
	elapsed := time.Since(s.startedAt)
	remaining := elapsed.Seconds() * (100 - overall) / overall
	return time.Duration(remaining * float64(time.Second))
}

// Deltas returns a copy of the bounded delta log, oldest first.
func (s *ProgressSession) Deltas() []ProgressDelta {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProgressDelta, len(s.deltas))
	copy(out, s.deltas)
	return out
}

// =============================================================================
// CROSS-RUN TRACKER
// =============================================================================

// GlobalStats aggregates completed runs across the process lifetime.
type GlobalStats struct {
	TotalRuns       int           `json:"total_runs"`
	CompletedRuns   int           `json:"completed_runs"`
	FailedRuns      int           `json:"failed_runs"`
	CancelledRuns   int           `json:"cancelled_runs"`
	ItemsProcessed  int           `json:"items_processed"`
	AverageDuration time.Duration `json:"average_duration"`
}

// Tracker owns progress sessions and cross-run statistics.
type Tracker struct {
	mu       sync.Mutex
	sessions map[string]*ProgressSession

	stats         GlobalStats
	totalDuration time.Duration
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{sessions: make(map[string]*ProgressSession)}
}

// StartSession registers a new session for a run.
func (t *Tracker) StartSession(pipelineID string) *ProgressSession {
	session := NewProgressSession(pipelineID)
	t.mu.Lock()
	t.sessions[pipelineID] = session
	t.stats.TotalRuns++
	t.mu.Unlock()
	return session
}

// FinishSession folds a run's final state into the cross-run statistics and
// drops the session.
func (t *Tracker) FinishSession(pipelineID string, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()

	session, ok := t.sessions[pipelineID]
	if !ok {
		return
	}
	delete(t.sessions, pipelineID)

	switch status {
	case StatusCompleted:
		t.stats.CompletedRuns++
	case StatusFailed:
		t.stats.FailedRuns++
	case StatusCancelled:
		t.stats.CancelledRuns++
	}

	session.mu.Lock()
	for _, n := range session.items {
		t.stats.ItemsProcessed += n
	}
	duration := time.Since(session.startedAt)
	session.mu.Unlock()

	t.totalDuration += duration
	finished := t.stats.CompletedRuns + t.stats.FailedRuns + t.stats.CancelledRuns
	if finished > 0 {
		t.stats.AverageDuration = t.totalDuration / time.Duration(finished)
	}
}

// Stats returns a copy of the cross-run statistics.
func (t *Tracker) Stats() GlobalStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
