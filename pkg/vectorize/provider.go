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

// Package vectorize turns text into fixed-dimension embedding vectors. A
// remote provider is inferred from the configured model name; when none is
// configured or its initialization fails, a deterministic local TF-IDF
// transform takes over so vectorization always works offline.
package vectorize

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"log/slog"
)

// EmbeddingProvider generates one embedding vector per text.
type EmbeddingProvider interface {
	// Embed generates an embedding for the text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the fixed vector length this provider produces.
	Dimension() int

	// Name identifies the provider ("openai", "vertex", "local").
	Name() string
}

// Provider dimensions and pacing. The inter-batch delay and text cap are
// provider-specific to respect the remote API's rate and size limits.
const (
	openAIDimension = 1536
	vertexDimension = 768
	localDimension  = 384
)

// NewProviderForModel infers a provider from the embedding model name:
// "ada"/"embedding" substrings select OpenAI, "gecko" selects Vertex,
// anything else (including empty) selects the local TF-IDF fallback.
// A remote provider that cannot initialize (missing credential) silently
// downgrades to local; this never returns an error.
func NewProviderForModel(model string, logger *slog.Logger) EmbeddingProvider {
	if logger == nil {
		logger = slog.Default()
	}

	lower := strings.ToLower(model)
	switch {
	case strings.Contains(lower, "ada") || strings.Contains(lower, "embedding"):
		p, err := NewOpenAIProvider(model, "", "")
		if err != nil {
			logger.Warn("vectorize.provider.downgrade", "model", model, "provider", "openai", "err", err)
			return NewLocalProvider()
		}
		return p
	case strings.Contains(lower, "gecko"):
		p, err := NewVertexProvider(model, "")
		if err != nil {
			logger.Warn("vectorize.provider.downgrade", "model", model, "provider", "vertex", "err", err)
			return NewLocalProvider()
		}
		return p
	default:
		return NewLocalProvider()
	}
}

// =============================================================================
// OPENAI
// =============================================================================

// OpenAIProvider calls the OpenAI embeddings API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	model   string
	client  *http.Client
}

// NewOpenAIProvider creates an OpenAI embedding provider. The API key falls
// back to OPENAI_API_KEY; a missing key is an initialization error.
func NewOpenAIProvider(model, apiKey, baseURL string) (*OpenAIProvider, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedding provider: OPENAI_API_KEY not set")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{
		apiKey:  apiKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		model:   model,
		client:  &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (o *OpenAIProvider) Name() string   { return "openai" }
func (o *OpenAIProvider) Dimension() int { return openAIDimension }

func (o *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]any{
		"model": o.model,
		"input": text,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embed error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Data) == 0 {
		return nil, fmt.Errorf("openai embed returned no data")
	}
	if len(result.Data[0].Embedding) != openAIDimension {
		return nil, fmt.Errorf("openai embed dimension mismatch: got %d, want %d",
			len(result.Data[0].Embedding), openAIDimension)
	}
	return result.Data[0].Embedding, nil
}

// =============================================================================
// VERTEX (gecko)
// =============================================================================

// VertexProvider calls a Vertex AI text-embedding endpoint (gecko family).
type VertexProvider struct {
	endpoint string
	apiKey   string
	model    string
	client   *http.Client
}

// NewVertexProvider creates a Vertex embedding provider. The endpoint comes
// from VERTEX_EMBEDDING_URL and the credential from GOOGLE_API_KEY; either
// missing is an initialization error.
func NewVertexProvider(model, endpoint string) (*VertexProvider, error) {
	if endpoint == "" {
		endpoint = os.Getenv("VERTEX_EMBEDDING_URL")
	}
	if endpoint == "" {
		return nil, fmt.Errorf("vertex embedding provider: VERTEX_EMBEDDING_URL not set")
	}
	apiKey := os.Getenv("GOOGLE_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("vertex embedding provider: GOOGLE_API_KEY not set")
	}
	return &VertexProvider{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (v *VertexProvider) Name() string   { return "vertex" }
func (v *VertexProvider) Dimension() int { return vertexDimension }

func (v *VertexProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, _ := json.Marshal(map[string]any{
		"instances": []map[string]string{{"content": text}},
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+v.apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vertex embed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("vertex embed error (status %d): %s", resp.StatusCode, string(body))
	}

	var result struct {
		Predictions []struct {
			Embeddings struct {
				Values []float32 `json:"values"`
			} `json:"embeddings"`
		} `json:"predictions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if len(result.Predictions) == 0 {
		return nil, fmt.Errorf("vertex embed returned no predictions")
	}
	values := result.Predictions[0].Embeddings.Values
	if len(values) != vertexDimension {
		return nil, fmt.Errorf("vertex embed dimension mismatch: got %d, want %d", len(values), vertexDimension)
	}
	return values, nil
}
