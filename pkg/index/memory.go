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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// MemoryBackend is the brute-force in-memory tier. Init never fails, which
// makes it the terminal fallback.
type MemoryBackend struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float32
	ids       []string
}

// NewMemoryBackend creates an empty in-memory index.
func NewMemoryBackend() *MemoryBackend { return &MemoryBackend{} }

func (m *MemoryBackend) Name() string { return "memory" }

func (m *MemoryBackend) Init(dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = dimension
	m.vectors = nil
	m.ids = nil
	return nil
}

func (m *MemoryBackend) AddVectors(vectors [][]float32, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := validateVectors(vectors, ids, m.dimension); err != nil {
		return err
	}
	m.vectors = append(m.vectors, vectors...)
	m.ids = append(m.ids, ids...)
	return nil
}

// Search ranks by descending cosine similarity; ties keep insertion order
// (stable sort). Distance is 1 - similarity.
func (m *MemoryBackend) Search(query []float32, k int) (*SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(query) != m.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), m.dimension)
	}
	if k <= 0 || len(m.vectors) == 0 {
		return &SearchResult{}, nil
	}

	type scored struct {
		idx        int
		similarity float32
	}
	all := make([]scored, len(m.vectors))
	for i, v := range m.vectors {
		all[i] = scored{idx: i, similarity: cosineSimilarity(query, v)}
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].similarity > all[j].similarity
	})

	if k > len(all) {
		k = len(all)
	}
	result := &SearchResult{
		Distances: make([]float32, k),
		Indices:   make([]int, k),
		IDs:       make([]string, k),
		Count:     k,
	}
	for i := 0; i < k; i++ {
		result.Distances[i] = 1 - all[i].similarity
		result.Indices[i] = all[i].idx
		result.IDs[i] = m.ids[all[i].idx]
	}
	return result, nil
}

func (m *MemoryBackend) Optimize() error { return nil }

// memoryPayload is the JSON persistence format.
type memoryPayload struct {
	Dimension int         `json:"dimension"`
	IDs       []string    `json:"ids"`
	Vectors   [][]float32 `json:"vectors"`
}

const memoryPayloadFile = "vectors.json"

func (m *MemoryBackend) Save(dir string) error {
	m.mu.RLock()
	payload := memoryPayload{Dimension: m.dimension, IDs: m.ids, Vectors: m.vectors}
	m.mu.RUnlock()

	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, memoryPayloadFile+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index payload: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, memoryPayloadFile)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename index payload: %w", err)
	}
	return nil
}

func (m *MemoryBackend) Load(dir string) error {
	data, err := os.ReadFile(filepath.Join(dir, memoryPayloadFile))
	if err != nil {
		return fmt.Errorf("read index payload: %w", err)
	}
	var payload memoryPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("decode index payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = payload.Dimension
	m.ids = payload.IDs
	m.vectors = payload.Vectors
	return nil
}

func (m *MemoryBackend) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.vectors)
}

func (m *MemoryBackend) Dimension() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dimension
}

func (m *MemoryBackend) Close() error { return nil }
