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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"log/slog"

	"github.com/kraklabs/ckb/pkg/model"
)

// Status is the lifecycle state of a run instance.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Instance is one pipeline run: five ordered steps over an accumulated run
// state. Full-run mode drives all steps in order with fail-fast semantics;
// independent-step mode executes single steps via the same executor.
type Instance struct {
	id      string
	logger  *slog.Logger
	stages  *Stages
	bus     *eventBus
	session *ProgressSession

	cancelled atomic.Bool

	// execMu serializes stage execution. Full runs drive steps in order on a
	// single goroutine, but independent-step mode may dispatch different steps
	// concurrently against the shared instance; only one stage at a time may
	// touch the run state.
	execMu sync.Mutex

	mu          sync.Mutex
	status      Status
	steps       [StepCount]*Step
	cfg         model.RunConfig
	state       *RunState
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	runErr      string
}

func newInstance(id string, cfg model.RunConfig, stages *Stages, bus *eventBus, session *ProgressSession, logger *slog.Logger) *Instance {
	if logger == nil {
		logger = slog.Default()
	}
	return &Instance{
		id:        id,
		logger:    logger,
		stages:    stages,
		bus:       bus,
		session:   session,
		status:    StatusIdle,
		steps:     newSteps(),
		cfg:       cfg,
		state:     &RunState{},
		createdAt: time.Now(),
	}
}

// ID returns the pipeline id.
func (in *Instance) ID() string { return in.id }

// Start executes steps 1..5 in order. Any step failure fails the run
// immediately and triggers rollback; cancellation is checked before each
// step boundary.
func (in *Instance) Start(ctx context.Context) error {
	in.mu.Lock()
	if in.status != StatusIdle {
		in.mu.Unlock()
		return fmt.Errorf("pipeline %s already started", in.id)
	}
	in.status = StatusRunning
	now := time.Now()
	in.startedAt = &now
	in.mu.Unlock()

	in.logger.Info("pipeline.run.start", "pipeline_id", in.id)

	for stepID := StepParse; stepID <= StepIndex; stepID++ {
		if in.cancelled.Load() || ctx.Err() != nil {
			in.finish(StatusCancelled, "")
			in.rollback()
			in.bus.emit(Event{Type: EventRunCancelled, PipelineID: in.id})
			recordRunFinished(StatusCancelled)
			return nil
		}
		if err := in.executeStep(ctx, stepID); err != nil {
			in.finish(StatusFailed, err.Error())
			in.rollback()
			in.bus.emit(Event{Type: EventRunFailed, PipelineID: in.id, StepID: stepID, StepName: StepName(stepID), Error: err.Error()})
			recordRunFinished(StatusFailed)
			return err
		}
	}

	in.finish(StatusCompleted, "")
	in.bus.emit(Event{Type: EventRunCompleted, PipelineID: in.id})
	recordRunFinished(StatusCompleted)
	in.logger.Info("pipeline.run.complete", "pipeline_id", in.id)
	return nil
}

// executeStep is the step execution routine shared by full-run and
// independent-step modes: mark running, delegate to the stage with a progress
// callback, and settle the step's final status.
func (in *Instance) executeStep(ctx context.Context, stepID int) error {
	in.execMu.Lock()
	defer in.execMu.Unlock()

	in.mu.Lock()
	step := in.steps[stepID-1]
	step.Status = StepRunning
	step.Progress = 0
	step.Error = ""
	now := time.Now()
	step.StartedAt = &now
	step.CompletedAt = nil
	cfg := in.cfg
	state := in.state
	in.mu.Unlock()

	in.logger.Info("pipeline.step.start", "pipeline_id", in.id, "step", step.Name)
	started := time.Now()

	report := func(itemsProcessed, totalItems int, message string) {
		in.mu.Lock()
		step.ItemsProcessed = itemsProcessed
		step.TotalItems = totalItems
		if totalItems > 0 {
			p := itemsProcessed * 100 / totalItems
			if p > 99 {
				p = 99 // 100 is reserved for completion
			}
			step.Progress = p
		}
		progress := step.Progress
		in.mu.Unlock()

		if in.session != nil {
			in.session.Update(stepID, progress, itemsProcessed, totalItems)
		}
		in.bus.emit(Event{
			Type:           EventProgress,
			PipelineID:     in.id,
			StepID:         stepID,
			StepName:       step.Name,
			Progress:       progress,
			ItemsProcessed: itemsProcessed,
			TotalItems:     totalItems,
			Message:        message,
		})
	}

	err := in.stages.run(ctx, stepID, cfg, state, report)

	in.mu.Lock()
	done := time.Now()
	step.CompletedAt = &done
	if err != nil {
		step.Status = StepFailed
		step.Error = err.Error()
	} else {
		step.Status = StepCompleted
		step.Progress = 100
	}
	in.mu.Unlock()

	if in.session != nil && err == nil {
		in.session.Update(stepID, 100, step.ItemsProcessed, step.TotalItems)
	}

	if err != nil {
		in.logger.Warn("pipeline.step.failed", "pipeline_id", in.id, "step", step.Name, "err", err)
		in.bus.emit(Event{Type: EventStepFailed, PipelineID: in.id, StepID: stepID, StepName: step.Name, Error: err.Error()})
		recordStepFinished(step.Name, false, time.Since(started))
		return err
	}

	in.logger.Info("pipeline.step.complete", "pipeline_id", in.id, "step", step.Name, "duration_ms", time.Since(started).Milliseconds())
	in.bus.emit(Event{Type: EventStepCompleted, PipelineID: in.id, StepID: stepID, StepName: step.Name, Progress: 100})
	recordStepFinished(step.Name, true, time.Since(started))
	return nil
}

// Cancel requests cooperative cancellation. A running instance finishes its
// in-flight step; the flag is honored at the next step boundary. An idle
// instance transitions immediately.
func (in *Instance) Cancel() {
	in.cancelled.Store(true)

	in.mu.Lock()
	idle := in.status == StatusIdle
	in.mu.Unlock()
	if idle {
		in.finish(StatusCancelled, "")
		in.rollback()
		in.bus.emit(Event{Type: EventRunCancelled, PipelineID: in.id})
	}
}

// finish settles the terminal run status.
func (in *Instance) finish(status Status, errMsg string) {
	in.mu.Lock()
	in.status = status
	now := time.Now()
	in.completedAt = &now
	if errMsg != "" {
		in.runErr = errMsg
	}
	in.mu.Unlock()
}

// rollback clears the accumulated in-memory results. Best-effort and
// idempotent; durable index payloads on disk are left in place.
func (in *Instance) rollback() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.state.clear()
	in.logger.Info("pipeline.rollback", "pipeline_id", in.id)
}

// InstanceStatus is a point-in-time view of a run.
type InstanceStatus struct {
	PipelineID     string     `json:"pipeline_id"`
	Status         Status     `json:"status"`
	Steps          []Step     `json:"steps"`
	Overall        float64    `json:"overall_progress"`
	ItemsPerSecond float64    `json:"items_per_second"`
	ETASeconds     float64    `json:"eta_seconds"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// StatusSnapshot returns a copy of the instance's current state.
func (in *Instance) StatusSnapshot() InstanceStatus {
	in.mu.Lock()
	out := InstanceStatus{
		PipelineID:  in.id,
		Status:      in.status,
		CreatedAt:   in.createdAt,
		StartedAt:   in.startedAt,
		CompletedAt: in.completedAt,
		Error:       in.runErr,
	}
	for _, s := range in.steps {
		out.Steps = append(out.Steps, s.snapshot())
	}
	in.mu.Unlock()

	if in.session != nil {
		out.Overall = in.session.Overall()
		out.ItemsPerSecond = in.session.ItemsPerSecond()
		out.ETASeconds = in.session.ETA().Seconds()
	}
	return out
}

// CurrentStatus returns just the run status.
func (in *Instance) CurrentStatus() Status {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.status
}

// State exposes the accumulated run state. Read-only use by callers.
func (in *Instance) State() *RunState {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.state
}

// stepSnapshot copies one step under the instance lock.
func (in *Instance) stepSnapshot(stepID int) Step {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.steps[stepID-1].snapshot()
}

// mergeConfig folds caller-supplied fields into the instance config (shallow
// merge, caller fields win). Used by independent-step mode.
func (in *Instance) mergeConfig(override model.RunConfig) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.cfg = in.cfg.Merge(override)
}

// completedAtTime reads the completion timestamp, or nil.
func (in *Instance) completedAtTime() *time.Time {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.completedAt
}
