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

// Package model defines the data types shared across the CKB pipeline stages:
// code units produced by parsing, dependency edges produced by analysis,
// enrichments produced by the LLM stage, and the run configuration that
// scopes a pipeline execution.
package model

import "time"

// UnitKind classifies a parsed code unit.
type UnitKind string

const (
	UnitKindFunction  UnitKind = "function"
	UnitKindClass     UnitKind = "class"
	UnitKindMethod    UnitKind = "method"
	UnitKindModule    UnitKind = "module"
	UnitKindInterface UnitKind = "interface"
	UnitKindStruct    UnitKind = "struct"
)

// CodeUnit is one parsed, addressable piece of source code.
// Units are produced by the parse stage and flow read-only through the
// remaining stages; only Description is filled in later (by enrichment).
type CodeUnit struct {
	// ID is a globally unique identifier, stable across runs for the same
	// file path and declaration.
	ID string `json:"id"`

	// Kind is the declaration kind (function, class, method, ...).
	Kind UnitKind `json:"kind"`

	// Language is the source language tag ("go", "python", "typescript",
	// "javascript", "java").
	Language string `json:"language"`

	// FilePath is the path of the defining source file, relative to the
	// project root.
	FilePath string `json:"file_path"`

	// Name is the declared name. Anonymous units get a synthetic name.
	Name string `json:"name"`

	// Code is the raw source text of the unit.
	Code string `json:"code"`

	// Description is the natural-language annotation filled in by the
	// enrichment stage. Empty until enriched.
	Description string `json:"description,omitempty"`

	// Dependencies lists identifiers of units this unit depends on.
	Dependencies []string `json:"dependencies,omitempty"`

	// StartLine and EndLine locate the unit in its file (1-based).
	StartLine int `json:"start_line"`
	EndLine   int `json:"end_line"`

	// Metadata carries language-specific details used by enrichment and
	// analysis: "class" (declaring class), "superclass", "interfaces"
	// (comma separated), "decorators", "modifiers", "async", "parameters".
	Metadata map[string]string `json:"metadata,omitempty"`
}

// DeclaringClass returns the name of the class this unit is declared in,
// or "" for top-level units.
func (u *CodeUnit) DeclaringClass() string {
	if u.Metadata == nil {
		return ""
	}
	return u.Metadata["class"]
}

// EdgeKind classifies a dependency edge.
type EdgeKind string

const (
	EdgeKindImport         EdgeKind = "import"
	EdgeKindCall           EdgeKind = "call"
	EdgeKindInheritance    EdgeKind = "inheritance"
	EdgeKindImplementation EdgeKind = "implementation"
	EdgeKindTypeReference  EdgeKind = "type_reference"
)

// DependencyEdge is one typed, confidence-scored relationship between two
// code units. Edges are produced fresh per analysis call and deduplicated
// by (Kind, FromID, ToID, Symbol).
type DependencyEdge struct {
	Kind   EdgeKind `json:"kind"`
	FromID string   `json:"from_id"`
	ToID   string   `json:"to_id"`

	// Symbol is the imported/called/referenced name, when applicable.
	Symbol string `json:"symbol,omitempty"`

	// Confidence is in [0,1]. Heuristic extraction yields false positives;
	// consumers may threshold on this.
	Confidence float64 `json:"confidence"`

	// Module is the raw import module path (import edges only).
	Module string `json:"module,omitempty"`
}

// DedupKey returns the uniqueness key for edge deduplication.
func (e DependencyEdge) DedupKey() string {
	return string(e.Kind) + "\x00" + e.FromID + "\x00" + e.ToID + "\x00" + e.Symbol
}

// Complexity is the enrichment-estimated complexity of a unit.
type Complexity string

const (
	ComplexityLow     Complexity = "low"
	ComplexityMedium  Complexity = "medium"
	ComplexityHigh    Complexity = "high"
	ComplexityUnknown Complexity = "unknown"
)

// Enrichment is the structured natural-language annotation the LLM stage
// produces for one code unit.
type Enrichment struct {
	UnitID      string     `json:"unit_id"`
	Description string     `json:"description"`
	Summary     string     `json:"summary,omitempty"`
	Tags        []string   `json:"tags,omitempty"`
	Complexity  Complexity `json:"complexity"`

	// Confidence is in [0,1]. Parse-fallback and synthetic enrichments
	// carry low confidence.
	Confidence float64 `json:"confidence"`

	// Fallback is true when the structured response could not be parsed
	// and a heuristic extraction was used instead.
	Fallback bool `json:"fallback,omitempty"`

	GeneratedAt time.Time `json:"generated_at"`
}

// RunConfig scopes one pipeline run. Zero values mean "use project defaults".
type RunConfig struct {
	// ProjectPath is the root directory of the codebase to process.
	ProjectPath string `json:"project_path,omitempty" yaml:"project_path,omitempty"`

	// FilePatterns are glob patterns selecting files to process.
	FilePatterns []string `json:"file_patterns,omitempty" yaml:"file_patterns,omitempty"`

	// SelectedFiles, when non-empty, restricts processing to these paths.
	SelectedFiles []string `json:"selected_files,omitempty" yaml:"selected_files,omitempty"`

	// ExcludedFiles are paths/globs to skip.
	ExcludedFiles []string `json:"excluded_files,omitempty" yaml:"excluded_files,omitempty"`

	// ForceReparse bypasses any cached parse results.
	ForceReparse bool `json:"force_reparse,omitempty" yaml:"force_reparse,omitempty"`

	// LLMModel names the completion model for enrichment.
	LLMModel string `json:"llm_model,omitempty" yaml:"llm_model,omitempty"`

	// EmbeddingModel names the embedding model; the Vectorizer infers the
	// provider from it.
	EmbeddingModel string `json:"embedding_model,omitempty" yaml:"embedding_model,omitempty"`
}

// Merge returns a copy of c with non-zero fields of override applied on top.
// Used by independent-step mode, where caller-supplied fields win.
func (c RunConfig) Merge(override RunConfig) RunConfig {
	out := c
	if override.ProjectPath != "" {
		out.ProjectPath = override.ProjectPath
	}
	if len(override.FilePatterns) > 0 {
		out.FilePatterns = override.FilePatterns
	}
	if len(override.SelectedFiles) > 0 {
		out.SelectedFiles = override.SelectedFiles
	}
	if len(override.ExcludedFiles) > 0 {
		out.ExcludedFiles = override.ExcludedFiles
	}
	if override.ForceReparse {
		out.ForceReparse = true
	}
	if override.LLMModel != "" {
		out.LLMModel = override.LLMModel
	}
	if override.EmbeddingModel != "" {
		out.EmbeddingModel = override.EmbeddingModel
	}
	return out
}
