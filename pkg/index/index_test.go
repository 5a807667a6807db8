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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedVectors() ([][]float32, []string) {
	return [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.9, 0.1, 0},
	}, []string{"unit:a", "unit:b", "unit:c"}
}

func TestMemoryBackend_SearchRanking(t *testing.T) {
	m := NewMemoryBackend()
	require.NoError(t, m.Init(3))

	vectors, ids := seedVectors()
	require.NoError(t, m.AddVectors(vectors, ids))

	result, err := m.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)

	// Exact match first: distance 1 - cos = 0.
	assert.Equal(t, "unit:a", result.IDs[0])
	assert.InDelta(t, 0.0, result.Distances[0], 1e-6)

	assert.Equal(t, "unit:c", result.IDs[1])
	assert.Greater(t, result.Distances[1], result.Distances[0])
	assert.Equal(t, []int{0, 2}, result.Indices)
}

func TestMemoryBackend_TiesKeepInsertionOrder(t *testing.T) {
	m := NewMemoryBackend()
	require.NoError(t, m.Init(2))

	// Three identical vectors tie exactly; stable sort must keep them in
	// insertion order.
	require.NoError(t, m.AddVectors([][]float32{{1, 1}, {1, 1}, {1, 1}}, []string{"first", "second", "third"}))

	result, err := m.Search([]float32{1, 1}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third"}, result.IDs)
	assert.Equal(t, []int{0, 1, 2}, result.Indices)
}

func TestMemoryBackend_Validation(t *testing.T) {
	m := NewMemoryBackend()
	require.NoError(t, m.Init(3))

	assert.Error(t, m.AddVectors([][]float32{{1, 2}}, []string{"short"}))
	assert.Error(t, m.AddVectors([][]float32{{1, 2, 3}}, []string{"a", "b"}))

	_, err := m.Search([]float32{1, 2}, 1)
	assert.Error(t, err)

	result, err := m.Search([]float32{1, 2, 3}, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Count)
}

func TestSQLiteBackend_RoundTrip(t *testing.T) {
	dir := t.TempDir()

	s := NewSQLiteBackend(dir)
	require.NoError(t, s.Init(3))
	t.Cleanup(func() { s.Close() })

	vectors, ids := seedVectors()
	require.NoError(t, s.AddVectors(vectors, ids))
	require.NoError(t, s.Save(dir))
	require.NoError(t, s.Close())

	restored := NewSQLiteBackend(dir)
	require.NoError(t, restored.Load(dir))
	t.Cleanup(func() { restored.Close() })

	assert.Equal(t, 3, restored.Count())
	assert.Equal(t, 3, restored.Dimension())

	result, err := restored.Search([]float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	assert.Equal(t, "unit:b", result.IDs[0])
	assert.InDelta(t, 0.0, result.Distances[0], 1e-6)
}

func TestSQLiteBackend_InitTruncates(t *testing.T) {
	dir := t.TempDir()

	s := NewSQLiteBackend(dir)
	require.NoError(t, s.Init(3))
	vectors, ids := seedVectors()
	require.NoError(t, s.AddVectors(vectors, ids))
	require.Equal(t, 3, s.Count())

	require.NoError(t, s.Init(3))
	t.Cleanup(func() { s.Close() })
	assert.Equal(t, 0, s.Count())
}

func TestVectorSerializationRoundTrip(t *testing.T) {
	in := []float32{0.25, -1.5, 3.14159, 0}
	out := deserializeVector(serializeVector(in))
	assert.Equal(t, in, out)
}

func TestBuilder_SaveLoadRestoresDimensionAndCount(t *testing.T) {
	dir := t.TempDir()

	b := NewBuilder(dir, nil)
	require.NoError(t, b.Initialize(3))
	t.Cleanup(func() { b.Close() })

	vectors, ids := seedVectors()
	require.NoError(t, b.AddVectors(vectors, ids))
	require.NoError(t, b.Save())

	meta, err := readMeta(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, meta.Dimension)
	assert.Equal(t, 3, meta.Count)
	assert.False(t, meta.SavedAt.IsZero())

	loaded := NewBuilder(dir, nil)
	require.NoError(t, loaded.Load())
	t.Cleanup(func() { loaded.Close() })

	assert.Equal(t, 3, loaded.Dimension())
	assert.Equal(t, 3, loaded.Count())
	assert.Equal(t, meta.IndexType, loaded.BackendName())
}

func TestBuilder_EmptyIndexRoundTrip(t *testing.T) {
	// An index saved before any vectors arrive must load back with its
	// dimension intact and stay usable.
	dir := t.TempDir()

	b := NewBuilder(dir, nil)
	require.NoError(t, b.Initialize(8))
	require.NoError(t, b.Save())
	require.NoError(t, b.Close())

	loaded := NewBuilder(dir, nil)
	require.NoError(t, loaded.Load())
	t.Cleanup(func() { loaded.Close() })

	assert.Equal(t, 8, loaded.Dimension())
	assert.Equal(t, 0, loaded.Count())

	vec := []float32{1, 0, 0, 0, 0, 0, 0, 0}
	require.NoError(t, loaded.AddVectors([][]float32{vec}, []string{"unit:a"}))
	result, err := loaded.Search(vec, 1)
	require.NoError(t, err)
	assert.Equal(t, "unit:a", result.IDs[0])
}

func TestSQLiteBackend_EmptyLoadKeepsDimension(t *testing.T) {
	dir := t.TempDir()

	s := NewSQLiteBackend(dir)
	require.NoError(t, s.Init(8))
	require.NoError(t, s.Save(dir))
	require.NoError(t, s.Close())

	restored := NewSQLiteBackend(dir)
	require.NoError(t, restored.Load(dir))
	t.Cleanup(func() { restored.Close() })

	assert.Equal(t, 0, restored.Count())
	assert.Equal(t, 8, restored.Dimension())
}

func TestBuilder_FallsBackToMemory(t *testing.T) {
	// The sqlite tier cannot create its directory when the path is an
	// existing file, and no remote endpoint is configured, so the builder
	// must land on the memory tier.
	parent := t.TempDir()
	blocked := filepath.Join(parent, "not-a-dir")
	require.NoError(t, os.WriteFile(blocked, []byte("x"), 0o644))

	b := NewBuilder(filepath.Join(blocked, "index"), nil)
	require.NoError(t, b.Initialize(4))
	t.Cleanup(func() { b.Close() })

	assert.Equal(t, "memory", b.BackendName())
	require.NoError(t, b.AddVectors([][]float32{{1, 0, 0, 0}}, []string{"unit:a"}))

	result, err := b.Search([]float32{1, 0, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "unit:a", result.IDs[0])
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, cosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-6)
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-6)
	assert.InDelta(t, -1.0, cosineSimilarity([]float32{1, 0}, []float32{-1, 0}), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
