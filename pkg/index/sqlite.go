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
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"
)

// sqliteFileName is the database file inside an index directory.
const sqliteFileName = "index.db"

// SQLiteBackend is the persistent flat-index tier. Vectors are stored as
// little-endian float32 blobs; search is brute force over a full scan.
type SQLiteBackend struct {
	dir       string
	db        *sql.DB
	dimension int
	count     int
}

// NewSQLiteBackend creates a backend storing its database under dir.
func NewSQLiteBackend(dir string) *SQLiteBackend {
	return &SQLiteBackend{dir: dir}
}

func (s *SQLiteBackend) Name() string { return "sqlite" }

func (s *SQLiteBackend) Init(dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	db, err := sql.Open("sqlite", filepath.Join(s.dir, sqliteFileName))
	if err != nil {
		return fmt.Errorf("open index db: %w", err)
	}
	// Single writer; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vectors (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			unit_id TEXT NOT NULL,
			vector BLOB NOT NULL
		);
		CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return fmt.Errorf("create index tables: %w", err)
	}

	// Fresh initialization truncates previous contents.
	if _, err := db.Exec("DELETE FROM vectors"); err != nil {
		db.Close()
		return fmt.Errorf("truncate vectors: %w", err)
	}

	// The dimension is recorded so an empty index still loads correctly.
	if _, err := db.Exec(
		"INSERT INTO settings (key, value) VALUES ('dimension', ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		fmt.Sprint(dimension),
	); err != nil {
		db.Close()
		return fmt.Errorf("record dimension: %w", err)
	}

	if s.db != nil {
		s.db.Close()
	}
	s.db = db
	s.dimension = dimension
	s.count = 0
	return nil
}

func (s *SQLiteBackend) AddVectors(vectors [][]float32, ids []string) error {
	if s.db == nil {
		return fmt.Errorf("index not initialized")
	}
	if err := validateVectors(vectors, ids, s.dimension); err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare("INSERT INTO vectors (unit_id, vector) VALUES (?, ?)")
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for i, v := range vectors {
		if _, err := stmt.Exec(ids[i], serializeVector(v)); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert vector: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.count += len(vectors)
	return nil
}

func (s *SQLiteBackend) Search(query []float32, k int) (*SearchResult, error) {
	if s.db == nil {
		return nil, fmt.Errorf("index not initialized")
	}
	if len(query) != s.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), s.dimension)
	}
	if k <= 0 {
		return &SearchResult{}, nil
	}

	rows, err := s.db.Query("SELECT unit_id, vector FROM vectors ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("scan vectors: %w", err)
	}
	defer rows.Close()

	type scored struct {
		idx        int
		id         string
		similarity float32
	}
	var all []scored
	idx := 0
	for rows.Next() {
		var id string
		var blob []byte
		if err := rows.Scan(&id, &blob); err != nil {
			return nil, err
		}
		all = append(all, scored{idx: idx, id: id, similarity: cosineSimilarity(query, deserializeVector(blob))})
		idx++
	}
	if err := rows.Err(); err != nil {
		return nil, err
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
		result.IDs[i] = all[i].id
	}
	return result, nil
}

func (s *SQLiteBackend) Optimize() error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.Exec("VACUUM")
	return err
}

// Save flushes WAL contents into the main database file. The payload
// already lives at the backend's directory.
func (s *SQLiteBackend) Save(dir string) error {
	if s.db == nil {
		return fmt.Errorf("index not initialized")
	}
	if dir != s.dir {
		return fmt.Errorf("sqlite index is bound to %s, cannot save to %s", s.dir, dir)
	}
	_, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}

func (s *SQLiteBackend) Load(dir string) error {
	db, err := sql.Open("sqlite", filepath.Join(dir, sqliteFileName))
	if err != nil {
		return fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)

	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM vectors").Scan(&count); err != nil {
		db.Close()
		return fmt.Errorf("count vectors: %w", err)
	}

	// The settings row is authoritative; databases written before it existed
	// fall back to the first stored vector.
	dimension := s.dimension
	var recorded string
	err = db.QueryRow("SELECT value FROM settings WHERE key = 'dimension'").Scan(&recorded)
	switch {
	case err == nil:
		n, convErr := strconv.Atoi(recorded)
		if convErr != nil {
			db.Close()
			return fmt.Errorf("corrupt dimension setting %q: %w", recorded, convErr)
		}
		dimension = n
	case count > 0:
		var blob []byte
		if err := db.QueryRow("SELECT vector FROM vectors ORDER BY seq LIMIT 1").Scan(&blob); err != nil {
			db.Close()
			return fmt.Errorf("read vector dimension: %w", err)
		}
		dimension = len(blob) / 4
	}

	if s.db != nil {
		s.db.Close()
	}
	s.db = db
	s.dir = dir
	s.count = count
	s.dimension = dimension
	return nil
}

func (s *SQLiteBackend) Count() int     { return s.count }
func (s *SQLiteBackend) Dimension() int { return s.dimension }

func (s *SQLiteBackend) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// serializeVector packs a float32 slice into a little-endian blob.
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector unpacks a little-endian blob into float32s.
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vector
}
