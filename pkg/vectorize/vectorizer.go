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

package vectorize

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
	"sync"
	"time"

	"log/slog"
)

// DefaultBatchSize is the number of texts per embedding batch.
const DefaultBatchSize = 100

// providerPacing returns the inter-batch delay and max text length for a
// provider. Remote APIs get longer delays and larger text budgets.
func providerPacing(name string) (delay time.Duration, maxChars int) {
	switch name {
	case "openai":
		return 1000 * time.Millisecond, 8000
	case "vertex":
		return 500 * time.Millisecond, 6000
	default:
		return 100 * time.Millisecond, 2000
	}
}

// Vectorizer batches, caches, and paces embedding calls. The vector
// dimension is fixed at construction: every vector it returns, including
// zero vectors for failed batches, has that length.
type Vectorizer struct {
	provider  EmbeddingProvider
	model     string
	batchSize int
	delay     time.Duration
	maxChars  int
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[string][]float32
}

// NewVectorizer infers the provider from the model name (see
// NewProviderForModel) and configures pacing for it.
func NewVectorizer(model string, logger *slog.Logger) *Vectorizer {
	if logger == nil {
		logger = slog.Default()
	}
	return NewVectorizerWithProvider(NewProviderForModel(model, logger), model, logger)
}

// NewVectorizerWithProvider wires an explicit provider. Used by tests and by
// callers that manage provider construction themselves.
func NewVectorizerWithProvider(provider EmbeddingProvider, model string, logger *slog.Logger) *Vectorizer {
	if logger == nil {
		logger = slog.Default()
	}
	delay, maxChars := providerPacing(provider.Name())
	return &Vectorizer{
		provider:  provider,
		model:     model,
		batchSize: DefaultBatchSize,
		delay:     delay,
		maxChars:  maxChars,
		logger:    logger,
		cache:     make(map[string][]float32),
	}
}

// Dimension is the fixed vector length for this instance.
func (v *Vectorizer) Dimension() int { return v.provider.Dimension() }

// ProviderName identifies the active provider.
func (v *Vectorizer) ProviderName() string { return v.provider.Name() }

// SetBatchSize overrides the batch size.
func (v *Vectorizer) SetBatchSize(n int) {
	if n > 0 {
		v.batchSize = n
	}
}

// SetInterBatchDelay overrides the pacing delay. Tests set it to zero.
func (v *Vectorizer) SetInterBatchDelay(d time.Duration) { v.delay = d }

// CacheSize returns the number of cached embeddings.
func (v *Vectorizer) CacheSize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cache)
}

// ClearCache empties the embedding cache.
func (v *Vectorizer) ClearCache() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cache = make(map[string][]float32)
}

// CreateEmbeddings embeds the texts in order. Batches are processed
// sequentially with an inter-batch delay; a failure inside a batch degrades
// that whole batch to zero vectors instead of failing the call. The only
// error returned is context cancellation.
func (v *Vectorizer) CreateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += v.batchSize {
		end := start + v.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		if start > 0 && v.delay > 0 {
			timer := time.NewTimer(v.delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		if err := v.embedBatch(ctx, texts[start:end], results[start:end]); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			v.logger.Warn("vectorize.batch.degraded",
				"batch_start", start,
				"batch_size", end-start,
				"err", err,
			)
			for i := range results[start:end] {
				results[start+i] = make([]float32, v.Dimension())
			}
		}
	}

	return results, nil
}

// embedBatch fills out for one batch, serving repeats from the cache. Any
// provider failure fails the whole batch; the caller degrades it.
func (v *Vectorizer) embedBatch(ctx context.Context, texts []string, out [][]float32) error {
	for i, text := range texts {
		processed := v.Preprocess(text)
		key := v.cacheKey(processed)

		v.mu.Lock()
		cached, hit := v.cache[key]
		v.mu.Unlock()
		if hit {
			out[i] = cached
			continue
		}

		vec, err := v.provider.Embed(ctx, processed)
		if err != nil {
			return err
		}
		out[i] = vec

		v.mu.Lock()
		v.cache[key] = vec
		v.mu.Unlock()
	}
	return nil
}

var (
	embedStripRe    = regexp.MustCompile(`[^\w.\s-]+`)
	embedCollapseRe = regexp.MustCompile(`\s+`)
)

// Preprocess normalizes text before embedding: lowercase, strip everything
// but word characters/dots/hyphens, collapse whitespace, and truncate to the
// provider's budget with an ellipsis marker.
func (v *Vectorizer) Preprocess(text string) string {
	text = strings.ToLower(text)
	text = embedStripRe.ReplaceAllString(text, " ")
	text = embedCollapseRe.ReplaceAllString(text, " ")
	text = strings.TrimSpace(text)
	if len(text) > v.maxChars {
		text = text[:v.maxChars-3] + "..."
	}
	return text
}

// cacheKey is model + content hash of the preprocessed text.
func (v *Vectorizer) cacheKey(processed string) string {
	sum := sha256.Sum256([]byte(processed))
	return v.model + ":" + hex.EncodeToString(sum[:])
}
