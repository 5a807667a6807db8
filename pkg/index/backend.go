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

// Package index accumulates embedding vectors into a searchable k-NN index.
// The exact backend is pluggable and selected by tier: a persistent SQLite
// flat index, a remote collection store, and an in-memory brute-force index
// that always works. All backends rank by cosine similarity and report
// distance = 1 - similarity.
package index

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Backend is one vector index implementation.
type Backend interface {
	// Name identifies the backend ("sqlite", "remote", "memory").
	Name() string

	// Init prepares the backend for vectors of the given dimension.
	Init(dimension int) error

	// AddVectors appends vectors with their unit ids. Lengths must match
	// and every vector must have the initialized dimension.
	AddVectors(vectors [][]float32, ids []string) error

	// Search returns the k nearest vectors by cosine similarity.
	Search(query []float32, k int) (*SearchResult, error)

	// Optimize compacts the backend after bulk loading. Best-effort.
	Optimize() error

	// Save persists the backend payload under dir.
	Save(dir string) error

	// Load restores the backend payload from dir.
	Load(dir string) error

	// Count is the number of stored vectors.
	Count() int

	// Dimension is the initialized vector length, 0 before Init.
	Dimension() int

	// Close releases backend resources.
	Close() error
}

// SearchResult is a ranked k-NN answer. Entries are ordered by ascending
// distance; ties keep insertion order.
type SearchResult struct {
	// Distances are 1 - cosine similarity, ascending.
	Distances []float32 `json:"distances"`

	// Indices are insertion positions of the matched vectors.
	Indices []int `json:"indices"`

	// IDs are the unit ids the matched vectors were stored under.
	IDs []string `json:"ids"`

	// Count is the number of entries returned (≤ k).
	Count int `json:"count"`
}

// Meta is the JSON sidecar written next to every saved index payload.
type Meta struct {
	IndexType string    `json:"index_type"`
	Dimension int       `json:"dimension"`
	Count     int       `json:"count"`
	SavedAt   time.Time `json:"saved_at"`
}

// metaFileName is the sidecar file name inside an index directory.
const metaFileName = "index.meta.json"

// writeMeta atomically writes the sidecar (temp file + rename).
func writeMeta(dir string, meta Meta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	tmp := filepath.Join(dir, metaFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write index meta: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, metaFileName)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename index meta: %w", err)
	}
	return nil
}

// ReadMeta loads the sidecar from dir without opening a backend. Useful
// for status reporting over a saved index.
func ReadMeta(dir string) (*Meta, error) {
	return readMeta(dir)
}

// readMeta loads the sidecar from dir.
func readMeta(dir string) (*Meta, error) {
	data, err := os.ReadFile(filepath.Join(dir, metaFileName))
	if err != nil {
		return nil, fmt.Errorf("read index meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode index meta: %w", err)
	}
	return &meta, nil
}

// cosineSimilarity computes the cosine of the angle between two equal-length
// vectors. Zero vectors yield similarity 0.
func cosineSimilarity(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// validateVectors checks dimension and id alignment before insertion.
func validateVectors(vectors [][]float32, ids []string, dimension int) error {
	if len(vectors) != len(ids) {
		return fmt.Errorf("vector/id count mismatch: %d vectors, %d ids", len(vectors), len(ids))
	}
	for i, v := range vectors {
		if len(v) != dimension {
			return fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(v), dimension)
		}
	}
	return nil
}
