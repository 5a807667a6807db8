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

// Package analysis derives typed, confidence-scored dependency edges between
// code units. The extraction is heuristic by design: false positives and
// negatives are expected and bounded by the confidence score, which
// consumers may threshold. It is not a semantic resolver.
package analysis

import (
	"regexp"
	"sort"
	"strings"

	"log/slog"

	"github.com/kraklabs/ckb/pkg/model"
)

// Edge confidences. Imports and inheritance come from explicit declarations;
// call sites and type references are pattern matches.
const (
	importConfidence      = 0.9
	callBaseConfidence    = 0.5
	callQualifierBoost    = 0.3
	callExactNameBoost    = 0.2
	inheritanceConfidence = 0.95
	typeRefConfidence     = 0.7
)

// Analyzer computes dependency edges for one unit against the full unit set.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer creates an analyzer. A nil logger falls back to slog.Default.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Analyzer{logger: logger}
}

// Analyze returns the deduplicated union of four edge sets for unit: imports,
// call sites, inheritance/implementation, and type references. No two edges
// in the result share the same (kind, from, to, symbol).
func (a *Analyzer) Analyze(unit model.CodeUnit, all []model.CodeUnit) []model.DependencyEdge {
	idx := buildIndex(all)

	var edges []model.DependencyEdge
	edges = append(edges, a.importEdges(unit, idx)...)
	edges = append(edges, a.callEdges(unit, idx)...)
	edges = append(edges, a.inheritanceEdges(unit, idx)...)
	edges = append(edges, a.typeReferenceEdges(unit, idx)...)

	return dedup(edges)
}

// AnalyzeAll runs Analyze for every unit and returns the combined edge set.
func (a *Analyzer) AnalyzeAll(units []model.CodeUnit) []model.DependencyEdge {
	idx := buildIndex(units)

	var edges []model.DependencyEdge
	for _, u := range units {
		edges = append(edges, a.importEdges(u, idx)...)
		edges = append(edges, a.callEdges(u, idx)...)
		edges = append(edges, a.inheritanceEdges(u, idx)...)
		edges = append(edges, a.typeReferenceEdges(u, idx)...)
	}

	out := dedup(edges)
	a.logger.Info("analysis.complete", "units", len(units), "edges", len(out))
	return out
}

// =============================================================================
// UNIT INDEX
// =============================================================================

// unitIndex accelerates the name and path lookups the edge sets share.
type unitIndex struct {
	all       []model.CodeUnit
	byName    map[string][]*model.CodeUnit // exact name
	byLowName map[string][]*model.CodeUnit // lowercased name
	pathKeys  []pathKey                    // normalized path -> unit
}

type pathKey struct {
	key  string
	unit *model.CodeUnit
}

func buildIndex(all []model.CodeUnit) *unitIndex {
	idx := &unitIndex{
		all:       all,
		byName:    make(map[string][]*model.CodeUnit, len(all)),
		byLowName: make(map[string][]*model.CodeUnit, len(all)),
	}
	for i := range all {
		u := &all[i]
		idx.byName[u.Name] = append(idx.byName[u.Name], u)
		low := strings.ToLower(u.Name)
		idx.byLowName[low] = append(idx.byLowName[low], u)
		if u.Kind == model.UnitKindModule {
			idx.pathKeys = append(idx.pathKeys, pathKey{key: normalizeModuleKey(u.FilePath), unit: u})
		}
	}
	return idx
}

// normalizeModuleKey flattens a path or module string for substring matching:
// quotes, slashes, dots, and the file extension are stripped, lowercased.
func normalizeModuleKey(s string) string {
	s = strings.Trim(s, `"'`)
	if i := strings.LastIndexByte(s, '.'); i > 0 && !strings.ContainsRune(s[i:], '/') {
		s = s[:i]
	}
	s = strings.ToLower(s)
	s = strings.NewReplacer("/", "", "\\", "", ".", "", "-", "_").Replace(s)
	return s
}

// =============================================================================
// IMPORT EDGES
// =============================================================================

type importRef struct {
	module string
	symbol string
}

var (
	pyImportRe     = regexp.MustCompile(`(?m)^\s*import\s+([\w.]+)`)
	pyFromImportRe = regexp.MustCompile(`(?m)^\s*from\s+([\w.]+)\s+import\s+([\w.,\s*]+)`)
	jsImportRe     = regexp.MustCompile(`(?m)^\s*import\s+(?:([\w{},*\s]+?)\s+from\s+)?['"]([^'"]+)['"]`)
	javaImportRe   = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+)\s*;`)
	goImportRe     = regexp.MustCompile(`(?m)^\s*(?:import\s+)?(?:\w+\s+)?"([\w./-]+)"`)
)

// importEdges links the unit to every unit whose name equals an imported
// symbol, or whose file path (normalized) contains the imported module.
func (a *Analyzer) importEdges(unit model.CodeUnit, idx *unitIndex) []model.DependencyEdge {
	refs := extractImports(unit)
	if len(refs) == 0 {
		return nil
	}

	var edges []model.DependencyEdge
	seen := make(map[string]bool)

	addEdge := func(target *model.CodeUnit, ref importRef) {
		if target.ID == unit.ID || target.FilePath == unit.FilePath {
			return
		}
		if seen[target.ID+"\x00"+ref.symbol] {
			return
		}
		seen[target.ID+"\x00"+ref.symbol] = true
		edges = append(edges, model.DependencyEdge{
			Kind:       model.EdgeKindImport,
			FromID:     unit.ID,
			ToID:       target.ID,
			Symbol:     ref.symbol,
			Module:     ref.module,
			Confidence: importConfidence,
		})
	}

	for _, ref := range refs {
		for _, target := range idx.byName[ref.symbol] {
			addEdge(target, ref)
		}
		modKey := normalizeModuleKey(ref.module)
		if modKey == "" {
			continue
		}
		for _, pk := range idx.pathKeys {
			if strings.Contains(pk.key, modKey) {
				addEdge(pk.unit, ref)
			}
		}
	}
	return edges
}

// extractImports reads the unit's import declarations. Module units carry
// them pre-extracted in metadata; other units are pattern-scanned.
func extractImports(unit model.CodeUnit) []importRef {
	var refs []importRef

	if unit.Kind == model.UnitKindModule {
		if unit.Metadata != nil && unit.Metadata["imports"] != "" {
			for _, mod := range strings.Split(unit.Metadata["imports"], ",") {
				mod = strings.TrimSpace(mod)
				if mod != "" {
					refs = append(refs, importRef{module: mod, symbol: trailingName(mod)})
				}
			}
		}
		return refs
	}

	switch unit.Language {
	case "python":
		for _, m := range pyImportRe.FindAllStringSubmatch(unit.Code, -1) {
			refs = append(refs, importRef{module: m[1], symbol: trailingName(m[1])})
		}
		for _, m := range pyFromImportRe.FindAllStringSubmatch(unit.Code, -1) {
			for _, sym := range strings.Split(m[2], ",") {
				sym = strings.TrimSpace(sym)
				if sym != "" && sym != "*" {
					refs = append(refs, importRef{module: m[1], symbol: sym})
				}
			}
		}
	case "typescript", "javascript":
		for _, m := range jsImportRe.FindAllStringSubmatch(unit.Code, -1) {
			names := strings.Trim(strings.TrimSpace(m[1]), "{}")
			if names == "" {
				refs = append(refs, importRef{module: m[2], symbol: trailingName(m[2])})
				continue
			}
			for _, sym := range strings.Split(names, ",") {
				sym = strings.TrimSpace(sym)
				if sym != "" && sym != "*" {
					refs = append(refs, importRef{module: m[2], symbol: sym})
				}
			}
		}
	case "java":
		for _, m := range javaImportRe.FindAllStringSubmatch(unit.Code, -1) {
			refs = append(refs, importRef{module: m[1], symbol: trailingName(m[1])})
		}
	case "go":
		for _, m := range goImportRe.FindAllStringSubmatch(unit.Code, -1) {
			refs = append(refs, importRef{module: m[1], symbol: trailingName(m[1])})
		}
	}
	return refs
}

// trailingName returns the last dot- or slash-separated segment.
func trailingName(module string) string {
	if i := strings.LastIndexAny(module, "./"); i >= 0 {
		return module[i+1:]
	}
	return module
}

// =============================================================================
// CALL EDGES
// =============================================================================

// callSiteRe matches bare calls and one/two-level method chains:
// foo(...), obj.foo(...), a.b.foo(...).
var callSiteRe = regexp.MustCompile(`(?:([A-Za-z_]\w*)\.)?(?:([A-Za-z_]\w*)\.)?([A-Za-z_]\w*)\s*\(`)

// callKeywords are control-flow words that look like call sites.
var callKeywords = map[string]bool{
	"if": true, "for": true, "while": true, "switch": true, "catch": true,
	"return": true, "func": true, "function": true, "def": true, "new": true,
	"super": true, "print": true, "println": true, "range": true, "make": true,
	"len": true, "append": true,
}

// callEdges links call sites in the unit's code to function/method units.
// Confidence starts at callBaseConfidence, boosted when the qualifier matches
// the target's declaring class and when the name matches case-exactly.
func (a *Analyzer) callEdges(unit model.CodeUnit, idx *unitIndex) []model.DependencyEdge {
	if unit.Code == "" {
		return nil
	}

	var edges []model.DependencyEdge
	for _, m := range callSiteRe.FindAllStringSubmatch(unit.Code, -1) {
		callee := m[3]
		if callKeywords[callee] || callee == unit.Name {
			continue
		}

		// Immediate qualifier: for a.b.foo() it is b, for obj.foo() it is obj.
		qualifier := m[2]
		if qualifier == "" {
			qualifier = m[1]
		}

		for _, target := range idx.byLowName[strings.ToLower(callee)] {
			if target.ID == unit.ID {
				continue
			}
			if target.Kind != model.UnitKindFunction && target.Kind != model.UnitKindMethod {
				continue
			}

			confidence := callBaseConfidence
			if qualifier != "" && qualifier == target.DeclaringClass() {
				confidence += callQualifierBoost
			}
			if callee == target.Name {
				confidence += callExactNameBoost
			}
			if confidence > 1.0 {
				confidence = 1.0
			}

			edges = append(edges, model.DependencyEdge{
				Kind:       model.EdgeKindCall,
				FromID:     unit.ID,
				ToID:       target.ID,
				Symbol:     callee,
				Confidence: confidence,
			})
		}
	}
	return edges
}

// =============================================================================
// INHERITANCE / IMPLEMENTATION EDGES
// =============================================================================

// inheritanceEdges reads explicit superclass/interfaces metadata from
// class-kind units. Nothing is inferred from code text here.
func (a *Analyzer) inheritanceEdges(unit model.CodeUnit, idx *unitIndex) []model.DependencyEdge {
	if unit.Kind != model.UnitKindClass || unit.Metadata == nil {
		return nil
	}

	var edges []model.DependencyEdge

	supers := unit.Metadata["bases"]
	if supers == "" {
		supers = unit.Metadata["superclass"]
	}
	for _, name := range splitCSV(supers) {
		for _, target := range idx.byName[name] {
			if target.ID == unit.ID || target.Kind != model.UnitKindClass {
				continue
			}
			edges = append(edges, model.DependencyEdge{
				Kind:       model.EdgeKindInheritance,
				FromID:     unit.ID,
				ToID:       target.ID,
				Symbol:     name,
				Confidence: inheritanceConfidence,
			})
		}
	}

	for _, name := range splitCSV(unit.Metadata["interfaces"]) {
		for _, target := range idx.byName[name] {
			if target.ID == unit.ID || target.Kind != model.UnitKindInterface {
				continue
			}
			edges = append(edges, model.DependencyEdge{
				Kind:       model.EdgeKindImplementation,
				FromID:     unit.ID,
				ToID:       target.ID,
				Symbol:     name,
				Confidence: inheritanceConfidence,
			})
		}
	}
	return edges
}

// =============================================================================
// TYPE-REFERENCE EDGES
// =============================================================================

var (
	tsAnnotationRe = regexp.MustCompile(`:\s*([A-Z]\w*)`)
	genericArgRe   = regexp.MustCompile(`<\s*([A-Z]\w*)`)
	extendsRe      = regexp.MustCompile(`\bextends\s+([A-Z]\w*)`)
	implementsRe   = regexp.MustCompile(`\bimplements\s+([\w,\s]+)`)
	javaNewRe      = regexp.MustCompile(`\bnew\s+([A-Z]\w*)`)
)

// typeReferenceEdges extracts type annotations, generic parameters, and
// extends/implements clauses. TypeScript and Java only; other languages lack
// the annotation syntax these patterns rely on.
func (a *Analyzer) typeReferenceEdges(unit model.CodeUnit, idx *unitIndex) []model.DependencyEdge {
	if unit.Language != "typescript" && unit.Language != "java" {
		return nil
	}
	if unit.Code == "" {
		return nil
	}

	names := make(map[string]bool)
	for _, re := range []*regexp.Regexp{tsAnnotationRe, genericArgRe, extendsRe, javaNewRe} {
		for _, m := range re.FindAllStringSubmatch(unit.Code, -1) {
			names[m[1]] = true
		}
	}
	for _, m := range implementsRe.FindAllStringSubmatch(unit.Code, -1) {
		for _, name := range splitCSV(m[1]) {
			names[name] = true
		}
	}

	// Sorted so the emitted edge order does not depend on map iteration.
	ordered := make([]string, 0, len(names))
	for name := range names {
		ordered = append(ordered, name)
	}
	sort.Strings(ordered)

	var edges []model.DependencyEdge
	for _, name := range ordered {
		for _, target := range idx.byName[name] {
			if target.ID == unit.ID {
				continue
			}
			switch target.Kind {
			case model.UnitKindClass, model.UnitKindInterface, model.UnitKindStruct:
				edges = append(edges, model.DependencyEdge{
					Kind:       model.EdgeKindTypeReference,
					FromID:     unit.ID,
					ToID:       target.ID,
					Symbol:     name,
					Confidence: typeRefConfidence,
				})
			}
		}
	}
	return edges
}

// =============================================================================
// SHARED
// =============================================================================

// dedup drops edges with duplicate (kind, from, to, symbol), keeping the
// highest confidence for each tuple. Result preserves first-seen order.
func dedup(edges []model.DependencyEdge) []model.DependencyEdge {
	best := make(map[string]int, len(edges))
	out := make([]model.DependencyEdge, 0, len(edges))

	for _, e := range edges {
		key := e.DedupKey()
		if i, ok := best[key]; ok {
			if e.Confidence > out[i].Confidence {
				out[i].Confidence = e.Confidence
				out[i].Module = e.Module
			}
			continue
		}
		best[key] = len(out)
		out = append(out, e)
	}
	return out
}

func splitCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
