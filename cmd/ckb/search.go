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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/kraklabs/ckb/internal/errors"
	"github.com/kraklabs/ckb/internal/output"
	"github.com/kraklabs/ckb/internal/ui"
	"github.com/kraklabs/ckb/pkg/index"
	"github.com/kraklabs/ckb/pkg/vectorize"
)

// SearchHit is one ranked search result for JSON output.
type SearchHit struct {
	Rank     int     `json:"rank"`
	UnitID   string  `json:"unit_id"`
	Distance float32 `json:"distance"`
}

// runSearch executes the 'search' CLI command: embed the query with the
// project's embedding model and run k-NN against the saved index.
//
// Flags:
//   - -k/--top: Number of results (default 10)
//   - --embedding-model: Override the project's embedding model
//
// Examples:
//
//	ckb search "parse configuration file"
//	ckb search "http retry logic" -k 5
//	ckb search "auth middleware" --json
func runSearch(args []string, globals GlobalFlags) {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	topK := fs.IntP("top", "k", 10, "Number of results")
	embeddingModel := fs.String("embedding-model", "", "Override the project's embedding model")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: ckb search <query> [options]

Embeds the query and returns the nearest indexed code units.
The query must use the same embedding model the index was built with.

Options:
`)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	if fs.NArg() == 0 {
		fs.Usage()
		os.Exit(1)
	}
	query := strings.Join(fs.Args(), " ")

	info, config := openProject(globals)

	builder := index.NewBuilder(info.IndexDir, nil)
	if err := builder.Load(); err != nil {
		errors.FatalError(errors.NewIndexError(
			"Cannot load the search index",
			err.Error(),
			"Build it first with 'ckb run'",
			err,
		), globals.JSON)
	}
	defer builder.Close()

	model := *embeddingModel
	if model == "" {
		model = config.Defaults.EmbeddingModel
	}
	vectorizer := vectorize.NewVectorizer(model, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	embeddings, err := vectorizer.CreateEmbeddings(ctx, []string{query})
	if err != nil || len(embeddings) == 0 {
		errors.FatalError(errors.NewNetworkError(
			"Cannot embed the query",
			fmt.Sprintf("embedding provider %q failed: %v", vectorizer.ProviderName(), err),
			"Check the embedding provider is reachable (OLLAMA_HOST, OPENAI_API_KEY, ...)",
			err,
		), globals.JSON)
	}
	if len(embeddings[0]) != builder.Dimension() {
		errors.FatalError(errors.NewInputError(
			"Embedding model does not match the index",
			fmt.Sprintf("query dimension %d, index dimension %d", len(embeddings[0]), builder.Dimension()),
			"Use the embedding model the index was built with, or rebuild with 'ckb run'",
		), globals.JSON)
	}

	result, err := builder.Search(embeddings[0], *topK)
	if err != nil {
		errors.FatalError(errors.NewIndexError(
			"Search failed",
			err.Error(),
			"Rebuild the index with 'ckb run'",
			err,
		), globals.JSON)
	}

	hits := make([]SearchHit, 0, result.Count)
	for i := 0; i < result.Count; i++ {
		hits = append(hits, SearchHit{Rank: i + 1, UnitID: result.IDs[i], Distance: result.Distances[i]})
	}

	if globals.JSON {
		if err := output.JSON(hits); err != nil {
			errors.FatalError(err, true)
		}
		return
	}

	if len(hits) == 0 {
		fmt.Println("No results.")
		return
	}

	ui.Header(fmt.Sprintf("Results for %q", query))
	for _, hit := range hits {
		fmt.Printf("  %2d. %-60s %s\n", hit.Rank, hit.UnitID,
			ui.DimText(fmt.Sprintf("distance=%.4f", hit.Distance)))
	}
}
