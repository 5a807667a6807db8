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

package enrich

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/kraklabs/ckb/pkg/llm"
	"github.com/kraklabs/ckb/pkg/model"
)

func newTestEnricher(client llm.Client) *Enricher {
	e := NewEnricher(client, nil, nil)
	e.SetPerCallDelay(0)
	e.SetLimiter(rate.NewLimiter(rate.Inf, 0))
	return e
}

func testUnit() model.CodeUnit {
	return model.CodeUnit{
		ID: "unit:x", Kind: model.UnitKindFunction, Language: "go",
		FilePath: "pkg/x/x.go", Name: "Run",
		Code:     "func Run() error { return nil }",
		Metadata: map[string]string{"parameters": "none"},
	}
}

func TestEnricher_StructuredResponse(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		assert.Contains(t, req.Prompt, "go function")
		assert.Contains(t, req.Prompt, "func Run()")
		return &llm.CompletionResponse{
			Text: `{"description": "Runs the thing.", "purpose": "Entry point.", "tags": ["runner"], "complexity": "low"}`,
		}, nil
	}}

	e := newTestEnricher(mock)
	got, err := e.EnrichUnit(context.Background(), testUnit())
	require.NoError(t, err)

	assert.Equal(t, "Runs the thing.", got.Description)
	assert.Equal(t, "Entry point.", got.Summary)
	assert.Equal(t, []string{"runner"}, got.Tags)
	assert.Equal(t, model.ComplexityLow, got.Complexity)
	assert.InDelta(t, 0.9, got.Confidence, 1e-9)
	assert.False(t, got.Fallback)
}

func TestEnricher_FencedResponse(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Text: "```json\n{\"description\": \"Fenced.\", \"complexity\": \"medium\"}\n```",
		}, nil
	}}

	got, err := newTestEnricher(mock).EnrichUnit(context.Background(), testUnit())
	require.NoError(t, err)
	assert.Equal(t, "Fenced.", got.Description)
	assert.Equal(t, model.ComplexityMedium, got.Complexity)
}

func TestEnricher_MalformedResponseFallback(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return &llm.CompletionResponse{
			Text: "\n\n## This function runs the thing and returns nil.\nMore rambling here.",
		}, nil
	}}

	got, err := newTestEnricher(mock).EnrichUnit(context.Background(), testUnit())
	require.NoError(t, err)

	assert.True(t, got.Fallback)
	assert.InDelta(t, 0.3, got.Confidence, 1e-9)
	assert.Equal(t, "This function runs the thing and returns nil.", got.Description)
	assert.Equal(t, model.ComplexityUnknown, got.Complexity)
}

func TestEnricher_CacheHit(t *testing.T) {
	mock := &llm.MockClient{}
	e := newTestEnricher(mock)

	unit := testUnit()
	_, err := e.EnrichUnit(context.Background(), unit)
	require.NoError(t, err)
	_, err = e.EnrichUnit(context.Background(), unit)
	require.NoError(t, err)

	assert.Equal(t, 1, mock.Calls, "second call must be served from cache")
	assert.Equal(t, 1, e.CacheSize())

	// Same identity, different code: cache miss.
	changed := unit
	changed.Code = "func Run() error { return errors.New(\"x\") }"
	_, err = e.EnrichUnit(context.Background(), changed)
	require.NoError(t, err)
	assert.Equal(t, 2, mock.Calls)

	e.ClearCache()
	assert.Equal(t, 0, e.CacheSize())
}

func TestEnricher_RetryThenSucceed(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("something odd happened")
	}}
	// Fail once, then succeed.
	calls := 0
	mock.CompleteFunc = func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("something odd happened")
		}
		return &llm.CompletionResponse{Text: `{"description": "Second try.", "complexity": "low"}`}, nil
	}

	got, err := newTestEnricher(mock).EnrichUnit(context.Background(), testUnit())
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Second try.", got.Description)
}

func TestEnricher_ExhaustedRetriesPropagates(t *testing.T) {
	// Parsing-kind errors map to a skip strategy, so the budget is cut
	// short and the last error surfaces.
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		return nil, errors.New("response contained a syntax error")
	}}

	_, err := newTestEnricher(mock).EnrichUnit(context.Background(), testUnit())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")
}

func TestEnricher_EnrichAll_SubstitutesSynthetic(t *testing.T) {
	mock := &llm.MockClient{CompleteFunc: func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
		if strings.Contains(req.Prompt, `"bad"`) {
			return nil, errors.New("response contained a syntax error")
		}
		return &llm.CompletionResponse{Text: `{"description": "Fine.", "complexity": "low"}`}, nil
	}}

	units := []model.CodeUnit{
		{ID: "unit:good", Name: "good", Code: "func good() {}", Language: "go", Kind: model.UnitKindFunction},
		{ID: "unit:bad", Name: "bad", Code: "func bad() {}", Language: "go", Kind: model.UnitKindFunction},
	}

	var progress []int
	e := newTestEnricher(mock)
	got, err := e.EnrichAll(context.Background(), units, func(done, total int) {
		progress = append(progress, done)
		assert.Equal(t, 2, total)
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Fine.", got[0].Description)

	assert.True(t, got[1].Fallback)
	assert.InDelta(t, 0.1, got[1].Confidence, 1e-9)
	assert.Contains(t, got[1].Description, "syntax error")

	assert.Equal(t, []int{1, 2}, progress)
}
