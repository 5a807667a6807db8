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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint is the durable execution record of independent-step mode: the
// global step-state table plus the bounded per-step history, surviving
// process restarts.
type Checkpoint struct {
	Steps          []Step                     `json:"steps"`
	History        map[int][]StepHistoryEntry `json:"history"`
	LastUpdateTime time.Time                  `json:"last_update_time"`
}

// CheckpointManager persists checkpoints with atomic writes.
type CheckpointManager struct {
	path string
}

// NewCheckpointManager persists under dir as steps-checkpoint.json.
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{path: filepath.Join(dir, "steps-checkpoint.json")}
}

// Load reads the checkpoint, returning (nil, nil) when none exists.
func (cm *CheckpointManager) Load() (*Checkpoint, error) {
	data, err := os.ReadFile(cm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	if checkpoint.History == nil {
		checkpoint.History = make(map[int][]StepHistoryEntry)
	}
	return &checkpoint, nil
}

// Save writes the checkpoint atomically (temp file + rename).
func (cm *CheckpointManager) Save(checkpoint *Checkpoint) error {
	checkpoint.LastUpdateTime = time.Now()

	if err := os.MkdirAll(filepath.Dir(cm.path), 0o755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(checkpoint, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := cm.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmpPath, cm.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// Clear removes the checkpoint file.
func (cm *CheckpointManager) Clear() error {
	if err := os.Remove(cm.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}
