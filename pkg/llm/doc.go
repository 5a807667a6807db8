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

// Package llm provides a unified completion interface over Large Language
// Model backends. The enrichment stage uses it to generate natural-language
// descriptions of parsed code units.
//
// # Supported Backends
//
//   - Ollama: Local models, no API key required (default)
//   - OpenAI: GPT models and OpenAI-compatible APIs
//   - Anthropic: Claude models
//   - Mock: For testing without real API calls
//
// # Quick Start
//
// Create a client explicitly:
//
//	client, err := llm.NewClient(llm.Config{
//	    Backend: "openai",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	resp, err := client.Complete(ctx, llm.CompletionRequest{
//	    Prompt: "Describe this Go function: ...",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(resp.Text)
//
// An empty Config selects Ollama and fills the endpoint from OLLAMA_HOST.
// All backends speak plain HTTP; there are no vendor SDK dependencies.
package llm
