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

// Package parse turns source files into code units. It supports Go, Python,
// TypeScript, JavaScript, and Java through Tree-sitter, with a simplified
// line-based fallback for builds without CGO.
package parse

import "github.com/kraklabs/ckb/pkg/model"

// Parser extracts code units from a single source file.
type Parser interface {
	// ParseFile parses one file and returns the units it declares.
	ParseFile(file FileInfo, content []byte) ([]model.CodeUnit, error)
}

// Ensure implementations satisfy the interface.
var _ Parser = (*TreeSitterParser)(nil)
var _ Parser = (*SimplifiedParser)(nil)

// Mode selects a parser implementation.
type Mode string

const (
	// ModeTreeSitter uses Tree-sitter for AST-based extraction.
	// Requires CGO and the bundled grammar libraries.
	ModeTreeSitter Mode = "treesitter"

	// ModeSimplified uses line/regex matching. No CGO, lower fidelity.
	ModeSimplified Mode = "simplified"

	// ModeAuto prefers Tree-sitter, falling back to simplified.
	ModeAuto Mode = "auto"
)

// DefaultMode is used when config does not name a parser.
const DefaultMode = ModeAuto
