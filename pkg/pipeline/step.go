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

// Package pipeline orchestrates the five CKB stages (parse, analyze, enrich,
// vectorize, index) as sequential steps of a run. A Manager creates and
// limits concurrent run instances, and separately exposes an independent-step
// mode backed by one shared long-lived instance with a bounded per-step
// history log.
package pipeline

import "time"

// StepStatus is the lifecycle state of one step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// Step ids. Steps always execute in this order within a run.
const (
	StepParse = iota + 1
	StepAnalyze
	StepEnrich
	StepVectorize
	StepIndex

	StepCount = 5
)

// stepDef is the static definition of one step.
type stepDef struct {
	id    int
	name  string
	label string

	// weight is this step's share of overall run progress. Weights sum
	// to 100.
	weight int
}

var stepDefs = [StepCount]stepDef{
	{id: StepParse, name: "parse", label: "Parsing sources", weight: 15},
	{id: StepAnalyze, name: "analyze", label: "Analyzing dependencies", weight: 10},
	{id: StepEnrich, name: "enrich", label: "Enriching units", weight: 35},
	{id: StepVectorize, name: "vectorize", label: "Creating embeddings", weight: 30},
	{id: StepIndex, name: "index", label: "Building index", weight: 10},
}

// StepName maps a step id to its stage name, or "" when out of range.
func StepName(id int) string {
	if id < StepParse || id > StepIndex {
		return ""
	}
	return stepDefs[id-1].name
}

// Step is the mutable state of one step within a run. Progress is 0..100 and
// reaches 100 exactly when the step completes.
type Step struct {
	ID             int        `json:"id"`
	Name           string     `json:"name"`
	Label          string     `json:"label"`
	Status         StepStatus `json:"status"`
	Progress       int        `json:"progress"`
	ItemsProcessed int        `json:"items_processed"`
	TotalItems     int        `json:"total_items"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	CompletedAt    *time.Time `json:"completed_at,omitempty"`
	Error          string     `json:"error,omitempty"`
}

// DefaultStepTable returns a fresh all-pending step table, for callers that
// render step state without a live manager.
func DefaultStepTable() []Step {
	out := make([]Step, 0, StepCount)
	for _, s := range newSteps() {
		out = append(out, s.snapshot())
	}
	return out
}

// newSteps returns a fresh pending step table.
func newSteps() [StepCount]*Step {
	var steps [StepCount]*Step
	for i, def := range stepDefs {
		steps[i] = &Step{ID: def.id, Name: def.name, Label: def.label, Status: StepPending}
	}
	return steps
}

// reset returns a step to pending, clearing all execution state.
func (s *Step) reset() {
	s.Status = StepPending
	s.Progress = 0
	s.ItemsProcessed = 0
	s.TotalItems = 0
	s.StartedAt = nil
	s.CompletedAt = nil
	s.Error = ""
}

// snapshot returns a copy safe to hand to callers.
func (s *Step) snapshot() Step {
	out := *s
	if s.StartedAt != nil {
		t := *s.StartedAt
		out.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

// StepHistoryEntry is one audit record of a step transition in
// independent-step mode. Entries live in a bounded per-step log.
type StepHistoryEntry struct {
	Timestamp      time.Time  `json:"timestamp"`
	StepID         int        `json:"step_id"`
	Status         StepStatus `json:"status"`
	Progress       int        `json:"progress"`
	ItemsProcessed int        `json:"items_processed"`
	TotalItems     int        `json:"total_items"`
	Error          string     `json:"error,omitempty"`
	Report         string     `json:"report,omitempty"`
}
