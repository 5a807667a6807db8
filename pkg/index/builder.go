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

package index

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Builder accumulates vectors into whichever backend tier initializes
// successfully: sqlite first, then the remote collection store, then the
// in-memory brute-force index, which never fails.
type Builder struct {
	logger *slog.Logger
	dir    string

	mu      sync.Mutex
	backend Backend
}

// NewBuilder creates a builder persisting under dir. A nil logger falls back
// to slog.Default.
func NewBuilder(dir string, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Builder{logger: logger, dir: dir}
}

// candidateBackends lists the tiers in preference order. The memory tier is
// last and must always initialize.
func (b *Builder) candidateBackends() []Backend {
	candidates := []Backend{NewSQLiteBackend(b.dir)}
	if remote, err := NewRemoteBackend(); err == nil {
		candidates = append(candidates, remote)
	}
	return append(candidates, NewMemoryBackend())
}

// Initialize picks the first backend tier that accepts the dimension. Tier
// failures are logged and fall through; only an invalid dimension errors,
// since the memory tier accepts everything else.
func (b *Builder) Initialize(dimension int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.backend != nil {
		b.backend.Close()
		b.backend = nil
	}

	var lastErr error
	for _, candidate := range b.candidateBackends() {
		if err := candidate.Init(dimension); err != nil {
			lastErr = err
			b.logger.Warn("index.backend.fallback", "backend", candidate.Name(), "err", err)
			candidate.Close()
			continue
		}
		b.logger.Info("index.backend.selected", "backend", candidate.Name(), "dimension", dimension)
		b.backend = candidate
		return nil
	}
	return fmt.Errorf("no index backend available: %w", lastErr)
}

// AddVectors appends vectors with their unit ids.
func (b *Builder) AddVectors(vectors [][]float32, ids []string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return fmt.Errorf("index not initialized")
	}
	return b.backend.AddVectors(vectors, ids)
}

// Search runs a k-NN query against the active backend.
func (b *Builder) Search(query []float32, k int) (*SearchResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return nil, fmt.Errorf("index not initialized")
	}
	return b.backend.Search(query, k)
}

// Optimize compacts the active backend. Best-effort.
func (b *Builder) Optimize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return nil
	}
	return b.backend.Optimize()
}

// Save persists the backend payload and the meta sidecar under the builder's
// directory.
func (b *Builder) Save() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return fmt.Errorf("index not initialized")
	}
	if err := os.MkdirAll(b.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}
	if err := b.backend.Save(b.dir); err != nil {
		return err
	}
	meta := Meta{
		IndexType: b.backend.Name(),
		Dimension: b.backend.Dimension(),
		Count:     b.backend.Count(),
		SavedAt:   time.Now().UTC(),
	}
	if err := writeMeta(b.dir, meta); err != nil {
		return err
	}
	b.logger.Info("index.saved", "backend", meta.IndexType, "count", meta.Count, "dimension", meta.Dimension)
	return nil
}

// Load reads the meta sidecar, instantiates the recorded backend type, and
// restores its payload. Dimension and count come back exactly as saved.
func (b *Builder) Load() error {
	meta, err := readMeta(b.dir)
	if err != nil {
		return err
	}

	var backend Backend
	switch meta.IndexType {
	case "sqlite":
		backend = NewSQLiteBackend(b.dir)
	case "remote":
		remote, err := NewRemoteBackend()
		if err != nil {
			return fmt.Errorf("restore remote index: %w", err)
		}
		backend = remote
	case "memory":
		backend = NewMemoryBackend()
	default:
		return fmt.Errorf("unknown index type %q", meta.IndexType)
	}

	if err := backend.Load(b.dir); err != nil {
		return err
	}
	if backend.Dimension() != meta.Dimension {
		backend.Close()
		return fmt.Errorf("index payload dimension %d does not match sidecar %d", backend.Dimension(), meta.Dimension)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend != nil {
		b.backend.Close()
	}
	b.backend = backend
	b.logger.Info("index.loaded", "backend", meta.IndexType, "count", meta.Count, "dimension", meta.Dimension)
	return nil
}

// BackendName reports the active tier, or "" before initialization.
func (b *Builder) BackendName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return ""
	}
	return b.backend.Name()
}

// Count reports stored vectors in the active backend.
func (b *Builder) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return 0
	}
	return b.backend.Count()
}

// Dimension reports the active backend's vector dimension.
func (b *Builder) Dimension() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return 0
	}
	return b.backend.Dimension()
}

// Close releases the active backend.
func (b *Builder) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.backend == nil {
		return nil
	}
	err := b.backend.Close()
	b.backend = nil
	return err
}
