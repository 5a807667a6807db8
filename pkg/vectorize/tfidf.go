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
	"math"
	"strings"
)

// tfidfVocabulary is the curated software-domain term list the local
// provider scores. Terms earlier in the list get slightly higher weight
// (rarer concepts first would be ideal; this ordering approximates it).
var tfidfVocabulary = []string{
	"function", "method", "class", "interface", "struct", "module",
	"import", "export", "return", "async", "await", "callback",
	"error", "exception", "retry", "timeout", "panic", "recover",
	"parse", "serialize", "deserialize", "encode", "decode", "marshal",
	"request", "response", "http", "api", "endpoint", "client",
	"server", "socket", "stream", "buffer", "channel", "queue",
	"database", "query", "transaction", "index", "cache", "storage",
	"config", "settings", "option", "parameter", "argument", "flag",
	"test", "mock", "assert", "validate", "verify", "check",
	"loop", "iterate", "map", "filter", "reduce", "sort",
	"string", "integer", "float", "boolean", "array", "list",
	"create", "read", "update", "delete", "insert", "remove",
	"auth", "token", "session", "user", "password", "login",
	"log", "metric", "trace", "event", "message", "handler",
	"thread", "process", "worker", "pool", "lock", "mutex",
}

// LocalProvider is the offline TF-IDF fallback. Vectors are deterministic:
// vocabulary terms score by weighted frequency in the leading dimensions and
// remaining tokens are feature-hashed into the tail dimensions, then the
// whole vector is normalized to unit L2 length.
type LocalProvider struct {
	termIndex map[string]int
}

// NewLocalProvider creates the TF-IDF provider. Always succeeds.
func NewLocalProvider() *LocalProvider {
	idx := make(map[string]int, len(tfidfVocabulary))
	for i, term := range tfidfVocabulary {
		idx[term] = i
	}
	return &LocalProvider{termIndex: idx}
}

func (l *LocalProvider) Name() string   { return "local" }
func (l *LocalProvider) Dimension() int { return localDimension }

// Embed computes the TF-IDF vector for the text. Never fails.
func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vector := make([]float32, localDimension)
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return vector, nil
	}

	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}

	total := float64(len(tokens))
	for tok, count := range counts {
		tf := float64(count) / total
		if i, ok := l.termIndex[tok]; ok {
			// Earlier vocabulary slots carry a slightly higher weight.
			idf := 1.0 + math.Log(float64(len(tfidfVocabulary))/float64(i+1))
			vector[i] += float32(tf * idf)
		} else {
			// Feature-hash unknown tokens into the tail dimensions so
			// vocabulary misses still contribute signal.
			slot := len(tfidfVocabulary) + int(djb2(tok)%uint64(localDimension-len(tfidfVocabulary)))
			vector[slot] += float32(tf * 0.5)
		}
	}

	return normalizeL2(vector), nil
}

// tokenize lowercases and splits on non-word runs, splitting camelCase and
// snake_case identifiers into their parts.
func tokenize(text string) []string {
	var tokens []string
	var b strings.Builder

	flush := func() {
		if b.Len() > 1 {
			tokens = append(tokens, strings.ToLower(b.String()))
		}
		b.Reset()
	}

	prevLower := false
	for _, r := range text {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			prevLower = true
		case r >= 'A' && r <= 'Z':
			if prevLower {
				flush()
			}
			b.WriteRune(r)
			prevLower = false
		default:
			flush()
			prevLower = false
		}
	}
	flush()
	return tokens
}

// normalizeL2 scales the vector to unit length. Zero vectors pass through.
func normalizeL2(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	norm := float32(math.Sqrt(sum))
	for i := range v {
		v[i] /= norm
	}
	return v
}

func djb2(s string) uint64 {
	var hash uint64 = 5381
	for _, c := range s {
		hash = ((hash << 5) + hash) + uint64(c)
	}
	return hash
}
