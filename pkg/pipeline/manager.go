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
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/semaphore"

	"github.com/kraklabs/ckb/pkg/model"
	"github.com/kraklabs/ckb/pkg/recovery"
)

// Sentinel errors returned by manager operations.
var (
	// ErrCapacity rejects a start when the running-instance limit is hit.
	ErrCapacity = errors.New("pipeline capacity reached")

	// ErrNotFound marks an unknown pipeline id.
	ErrNotFound = errors.New("pipeline not found")

	// ErrStepRunning rejects an independent-step run against a step that is
	// already executing.
	ErrStepRunning = errors.New("step already running")
)

const (
	// DefaultConcurrency caps simultaneously running instances.
	DefaultConcurrency = 3

	// stepHistoryCap bounds the per-step history log.
	stepHistoryCap = 1000

	// evictAfter is how long completed instances stay in the table.
	evictAfter = time.Hour
)

// StartResult is the immediate answer to a StartPipeline call; the run
// continues in the background.
type StartResult struct {
	PipelineID string    `json:"pipeline_id"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// Manager is the top-level orchestrator. It creates and limits concurrent run
// instances, exposes independent-step execution over one shared long-lived
// instance, and owns the global step history and event fan-out.
type Manager struct {
	logger  *slog.Logger
	stages  *Stages
	handler *recovery.Handler
	tracker *Tracker
	bus     *eventBus

	sem        *semaphore.Weighted
	limit      int
	defaultCfg model.RunConfig

	ctx    context.Context
	cancel context.CancelFunc

	checkpoints *CheckpointManager
	cron        *cron.Cron

	mu        sync.Mutex
	instances map[string]*Instance
	shared    *Instance
	history   map[int][]StepHistoryEntry
	wg        sync.WaitGroup
}

// ManagerOptions tune a Manager.
type ManagerOptions struct {
	// Concurrency caps running instances; 0 means DefaultConcurrency.
	Concurrency int

	// DataDir is where the step checkpoint persists. Empty disables
	// checkpointing.
	DataDir string

	// DefaultConfig seeds every run's configuration; per-call config is
	// merged on top.
	DefaultConfig model.RunConfig
}

// NewManager creates a Manager and starts its hourly housekeeping schedule.
// Callers must Close it.
func NewManager(stages *Stages, handler *recovery.Handler, opts ManagerOptions, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = recovery.NewHandler(logger)
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		logger:     logger,
		stages:     stages,
		handler:    handler,
		tracker:    NewTracker(),
		bus:        newEventBus(),
		sem:        semaphore.NewWeighted(int64(limit)),
		limit:      limit,
		defaultCfg: opts.DefaultConfig,
		ctx:        ctx,
		cancel:     cancel,
		instances:  make(map[string]*Instance),
		history:    make(map[int][]StepHistoryEntry),
	}
	if opts.DataDir != "" {
		m.checkpoints = NewCheckpointManager(opts.DataDir)
	}

	m.cron = cron.New()
	m.cron.AddFunc("@hourly", m.evictStale)
	m.cron.Start()
	return m
}

// Subscribe registers an event callback and returns its unsubscribe function.
// Callbacks run on pipeline goroutines and must not block.
func (m *Manager) Subscribe(fn func(Event)) func() {
	return m.bus.subscribe(fn)
}

// Tracker exposes cross-run progress statistics.
func (m *Manager) Tracker() *Tracker { return m.tracker }

// StartPipeline creates a run instance and begins executing it without
// blocking the caller. It fails with ErrCapacity when the configured number
// of instances is already running.
func (m *Manager) StartPipeline(cfg model.RunConfig) (*StartResult, error) {
	if !m.sem.TryAcquire(1) {
		recordRunRejected()
		return nil, fmt.Errorf("%w: %d pipelines already running", ErrCapacity, m.limit)
	}

	id := uuid.NewString()
	session := m.tracker.StartSession(id)
	in := newInstance(id, m.defaultCfg.Merge(cfg), m.stages, m.bus, session, m.logger)

	m.mu.Lock()
	m.instances[id] = in
	m.mu.Unlock()

	recordRunStarted()
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer m.sem.Release(1)
		in.Start(m.ctx)
		m.tracker.FinishSession(id, in.CurrentStatus())
	}()

	snap := in.StatusSnapshot()
	return &StartResult{PipelineID: id, Status: snap.Status, CreatedAt: snap.CreatedAt}, nil
}

// GetPipelineStatus returns a run's current state, failing with ErrNotFound
// for unknown ids.
func (m *Manager) GetPipelineStatus(id string) (*InstanceStatus, error) {
	m.mu.Lock()
	in, ok := m.instances[id]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	snap := in.StatusSnapshot()
	return &snap, nil
}

// CancelPipeline requests cooperative cancellation of a run.
func (m *Manager) CancelPipeline(id string) error {
	m.mu.Lock()
	in, ok := m.instances[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	in.Cancel()
	m.logger.Info("pipeline.cancel.requested", "pipeline_id", id)
	return nil
}

// =============================================================================
// INDEPENDENT-STEP MODE
// =============================================================================

// RunStep executes one step against the shared long-lived instance,
// fire-and-continue. A step that is currently running is rejected with
// ErrStepRunning and its status left unchanged; a previously finished step is
// reset to pending (recording a history entry) before restarting.
func (m *Manager) RunStep(stepID int, override model.RunConfig) error {
	if stepID < StepParse || stepID > StepIndex {
		return fmt.Errorf("invalid step id %d: must be 1..5", stepID)
	}

	m.mu.Lock()
	m.ensureSharedLocked()
	in := m.shared
	m.mu.Unlock()

	in.mu.Lock()
	step := in.steps[stepID-1]
	if step.Status == StepRunning {
		in.mu.Unlock()
		return fmt.Errorf("%w: step %d (%s)", ErrStepRunning, stepID, StepName(stepID))
	}
	if step.Status == StepCompleted || step.Status == StepFailed {
		step.reset()
		m.appendHistory(StepHistoryEntry{
			Timestamp: time.Now(),
			StepID:    stepID,
			Status:    StepPending,
			Report:    "reset for re-run",
		})
	}
	// Claim the step before releasing the lock so concurrent RunStep calls
	// observe it as running.
	step.Status = StepRunning
	in.mu.Unlock()

	in.mergeConfig(override)
	m.appendHistory(StepHistoryEntry{Timestamp: time.Now(), StepID: stepID, Status: StepRunning})

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		in.executeStep(m.ctx, stepID)

		snap := in.stepSnapshot(stepID)
		m.appendHistory(StepHistoryEntry{
			Timestamp:      time.Now(),
			StepID:         stepID,
			Status:         snap.Status,
			Progress:       snap.Progress,
			ItemsProcessed: snap.ItemsProcessed,
			TotalItems:     snap.TotalItems,
			Error:          snap.Error,
			Report:         stepReport(in.State(), stepID),
		})
		m.saveCheckpoint()
	}()
	return nil
}

// ensureSharedLocked lazily creates the shared instance and restores the
// checkpointed step table and history. Caller holds m.mu.
func (m *Manager) ensureSharedLocked() {
	if m.shared != nil {
		return
	}

	session := m.tracker.StartSession("shared")
	m.shared = newInstance("shared", m.defaultCfg, m.stages, m.bus, session, m.logger)

	if m.checkpoints == nil {
		return
	}
	checkpoint, err := m.checkpoints.Load()
	if err != nil {
		m.logger.Warn("pipeline.checkpoint.load", "err", err)
		return
	}
	if checkpoint == nil {
		return
	}

	for _, saved := range checkpoint.Steps {
		if saved.ID < StepParse || saved.ID > StepIndex {
			continue
		}
		step := m.shared.steps[saved.ID-1]
		*step = saved
		// A step checkpointed as running did not survive the restart.
		if step.Status == StepRunning {
			step.reset()
		}
	}
	m.history = checkpoint.History
	m.logger.Info("pipeline.checkpoint.restored", "entries", len(checkpoint.History))
}

// appendHistory appends to the bounded per-step log, dropping oldest entries.
func (m *Manager) appendHistory(entry StepHistoryEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := append(m.history[entry.StepID], entry)
	if len(log) > stepHistoryCap {
		log = log[len(log)-stepHistoryCap:]
	}
	m.history[entry.StepID] = log
}

// stepReport summarizes a step's output for the history log.
func stepReport(state *RunState, stepID int) string {
	switch stepID {
	case StepParse:
		return fmt.Sprintf("%d units from project (%d files failed)", len(state.Units), len(state.FailedFiles))
	case StepAnalyze:
		return fmt.Sprintf("%d dependency edges", len(state.Edges))
	case StepEnrich:
		return fmt.Sprintf("%d enrichments", len(state.Enrichments))
	case StepVectorize:
		return fmt.Sprintf("%d vectors", len(state.Vectors))
	case StepIndex:
		return fmt.Sprintf("%d vectors indexed (%s)", state.IndexedCount, state.IndexBackend)
	}
	return ""
}

// GetGlobalStepsStatus snapshots the shared instance's step table. Before the
// first RunStep call every step is pending.
func (m *Manager) GetGlobalStepsStatus() []Step {
	m.mu.Lock()
	in := m.shared
	m.mu.Unlock()

	if in == nil {
		out := make([]Step, 0, StepCount)
		for _, s := range newSteps() {
			out = append(out, *s)
		}
		return out
	}

	out := make([]Step, 0, StepCount)
	for id := StepParse; id <= StepIndex; id++ {
		out = append(out, in.stepSnapshot(id))
	}
	return out
}

// GetGlobalStepsHistory returns history entries, oldest first. stepID 0 means
// all steps merged chronologically. limit is clamped to the per-step cap.
func (m *Manager) GetGlobalStepsHistory(stepID, limit int) []StepHistoryEntry {
	if limit <= 0 || limit > stepHistoryCap {
		limit = stepHistoryCap
	}

	m.mu.Lock()
	var entries []StepHistoryEntry
	if stepID == 0 {
		for _, log := range m.history {
			entries = append(entries, log...)
		}
	} else {
		entries = append(entries, m.history[stepID]...)
	}
	m.mu.Unlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// SharedState exposes the shared instance's accumulated results, or nil
// before the first RunStep.
func (m *Manager) SharedState() *RunState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shared == nil {
		return nil
	}
	return m.shared.State()
}

// =============================================================================
// ERROR REPORTING
// =============================================================================

// GetErrorStatistics aggregates recorded errors within the trailing window.
func (m *Manager) GetErrorStatistics(window time.Duration) recovery.Statistics {
	return m.handler.GetStatistics(window)
}

// GetRecentErrors returns up to limit recorded errors, most recent first.
func (m *Manager) GetRecentErrors(limit int) []recovery.Entry {
	return m.handler.GetRecentErrors(limit)
}

// =============================================================================
// HOUSEKEEPING
// =============================================================================

// evictStale drops completed instances older than evictAfter from the table.
// History is never evicted.
func (m *Manager) evictStale() {
	cutoff := time.Now().Add(-evictAfter)

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, in := range m.instances {
		if in.CurrentStatus() != StatusCompleted {
			continue
		}
		if at := in.completedAtTime(); at != nil && at.Before(cutoff) {
			delete(m.instances, id)
			m.logger.Debug("pipeline.evicted", "pipeline_id", id)
		}
	}
}

// saveCheckpoint persists the shared step table and history.
func (m *Manager) saveCheckpoint() {
	if m.checkpoints == nil {
		return
	}

	m.mu.Lock()
	in := m.shared
	history := make(map[int][]StepHistoryEntry, len(m.history))
	for id, log := range m.history {
		history[id] = append([]StepHistoryEntry(nil), log...)
	}
	m.mu.Unlock()
	if in == nil {
		return
	}

	checkpoint := &Checkpoint{History: history}
	for id := StepParse; id <= StepIndex; id++ {
		checkpoint.Steps = append(checkpoint.Steps, in.stepSnapshot(id))
	}
	if err := m.checkpoints.Save(checkpoint); err != nil {
		m.logger.Warn("pipeline.checkpoint.save", "err", err)
	}
}

// Close stops housekeeping, cancels in-flight runs, and waits for their
// goroutines to settle.
func (m *Manager) Close() {
	m.cron.Stop()
	m.cancel()
	m.wg.Wait()
	m.saveCheckpoint()
}
