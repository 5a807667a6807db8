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
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Environment variables configuring the remote tier.
const (
	remoteURLEnv        = "CKB_INDEX_URL"
	remoteCollectionEnv = "CKB_INDEX_COLLECTION"

	defaultRemoteCollection = "ckb"
)

// RemoteBackend stores vectors in an external collection service speaking a
// minimal JSON protocol: PUT /collections/{name}, POST .../points,
// POST .../search. It is selected only when CKB_INDEX_URL is set.
type RemoteBackend struct {
	baseURL    string
	collection string
	httpClient *http.Client
	dimension  int
	count      int
}

// NewRemoteBackend reads its endpoint from the environment. It fails when
// CKB_INDEX_URL is unset, which lets the builder fall through to the next
// tier without a network round trip.
func NewRemoteBackend() (*RemoteBackend, error) {
	baseURL := os.Getenv(remoteURLEnv)
	if baseURL == "" {
		return nil, fmt.Errorf("%s not set", remoteURLEnv)
	}
	collection := os.Getenv(remoteCollectionEnv)
	if collection == "" {
		collection = defaultRemoteCollection
	}
	return &RemoteBackend{
		baseURL:    baseURL,
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (r *RemoteBackend) Name() string { return "remote" }

func (r *RemoteBackend) Init(dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension: %d", dimension)
	}
	body := map[string]any{"dimension": dimension, "distance": "cosine"}
	if err := r.call(http.MethodPut, r.collectionPath(""), body, nil); err != nil {
		return fmt.Errorf("create remote collection: %w", err)
	}
	r.dimension = dimension
	r.count = 0
	return nil
}

func (r *RemoteBackend) AddVectors(vectors [][]float32, ids []string) error {
	if r.dimension == 0 {
		return fmt.Errorf("index not initialized")
	}
	if err := validateVectors(vectors, ids, r.dimension); err != nil {
		return err
	}

	type point struct {
		ID     string    `json:"id"`
		Vector []float32 `json:"vector"`
	}
	points := make([]point, len(vectors))
	for i := range vectors {
		points[i] = point{ID: ids[i], Vector: vectors[i]}
	}
	if err := r.call(http.MethodPost, r.collectionPath("/points"), map[string]any{"points": points}, nil); err != nil {
		return fmt.Errorf("upload vectors: %w", err)
	}
	r.count += len(vectors)
	return nil
}

func (r *RemoteBackend) Search(query []float32, k int) (*SearchResult, error) {
	if r.dimension == 0 {
		return nil, fmt.Errorf("index not initialized")
	}
	if len(query) != r.dimension {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), r.dimension)
	}
	if k <= 0 {
		return &SearchResult{}, nil
	}

	var resp struct {
		Results []struct {
			ID    string  `json:"id"`
			Index int     `json:"index"`
			Score float32 `json:"score"`
		} `json:"results"`
	}
	body := map[string]any{"vector": query, "limit": k}
	if err := r.call(http.MethodPost, r.collectionPath("/search"), body, &resp); err != nil {
		return nil, fmt.Errorf("remote search: %w", err)
	}

	result := &SearchResult{Count: len(resp.Results)}
	for _, hit := range resp.Results {
		// Remote scores are cosine similarities; convert to distances.
		result.Distances = append(result.Distances, 1-hit.Score)
		result.Indices = append(result.Indices, hit.Index)
		result.IDs = append(result.IDs, hit.ID)
	}
	return result, nil
}

func (r *RemoteBackend) Optimize() error { return nil }

// Save writes nothing locally; the collection lives server-side.
func (r *RemoteBackend) Save(dir string) error { return nil }

// Load re-reads the collection's dimension and count from the server.
func (r *RemoteBackend) Load(dir string) error {
	var resp struct {
		Dimension int `json:"dimension"`
		Count     int `json:"count"`
	}
	if err := r.call(http.MethodGet, r.collectionPath(""), nil, &resp); err != nil {
		return fmt.Errorf("describe remote collection: %w", err)
	}
	r.dimension = resp.Dimension
	r.count = resp.Count
	return nil
}

func (r *RemoteBackend) Count() int     { return r.count }
func (r *RemoteBackend) Dimension() int { return r.dimension }
func (r *RemoteBackend) Close() error   { return nil }

func (r *RemoteBackend) collectionPath(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", r.baseURL, r.collection, suffix)
}

func (r *RemoteBackend) call(method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("remote index returned %d: %s", resp.StatusCode, string(data))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
