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

package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ckb/pkg/model"
)

func edgesOfKind(edges []model.DependencyEdge, kind model.EdgeKind) []model.DependencyEdge {
	var out []model.DependencyEdge
	for _, e := range edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// An import by exact symbol match yields exactly one 0.9-confidence edge.
func TestAnalyzer_ImportEdge_ExactSymbol(t *testing.T) {
	a := NewAnalyzer(nil)

	unitA := model.CodeUnit{
		ID: "unit:a", Kind: model.UnitKindModule, Language: "python",
		FilePath: "app/main.py", Name: "main",
		Metadata: map[string]string{"imports": "helpers"},
	}
	unitB := model.CodeUnit{
		ID: "unit:b", Kind: model.UnitKindModule, Language: "python",
		FilePath: "app/helpers.py", Name: "helpers",
	}

	edges := a.Analyze(unitA, []model.CodeUnit{unitA, unitB})

	imports := edgesOfKind(edges, model.EdgeKindImport)
	require.Len(t, imports, 1)
	assert.Equal(t, "unit:a", imports[0].FromID)
	assert.Equal(t, "unit:b", imports[0].ToID)
	assert.Equal(t, "helpers", imports[0].Symbol)
	assert.Equal(t, "helpers", imports[0].Module)
	assert.InDelta(t, 0.9, imports[0].Confidence, 1e-9)
}

func TestAnalyzer_ImportEdge_FromCode(t *testing.T) {
	a := NewAnalyzer(nil)

	unitA := model.CodeUnit{
		ID: "unit:a", Kind: model.UnitKindFunction, Language: "typescript",
		FilePath: "src/main.ts", Name: "main",
		Code: `import { Store } from "./store";` + "\n" + `export function main() {}`,
	}
	store := model.CodeUnit{
		ID: "unit:store", Kind: model.UnitKindClass, Language: "typescript",
		FilePath: "src/store.ts", Name: "Store",
	}

	edges := a.Analyze(unitA, []model.CodeUnit{unitA, store})

	imports := edgesOfKind(edges, model.EdgeKindImport)
	require.Len(t, imports, 1)
	assert.Equal(t, "unit:store", imports[0].ToID)
	assert.Equal(t, "Store", imports[0].Symbol)
	assert.Equal(t, "./store", imports[0].Module)
}

func TestAnalyzer_ImportEdge_SkipsSameFile(t *testing.T) {
	a := NewAnalyzer(nil)

	unitA := model.CodeUnit{
		ID: "unit:a", Kind: model.UnitKindModule, Language: "python",
		FilePath: "app/main.py", Name: "main",
		Metadata: map[string]string{"imports": "main"},
	}

	edges := a.Analyze(unitA, []model.CodeUnit{unitA})
	assert.Empty(t, edgesOfKind(edges, model.EdgeKindImport))
}

func TestAnalyzer_CallEdges_ConfidenceBoosts(t *testing.T) {
	a := NewAnalyzer(nil)

	caller := model.CodeUnit{
		ID: "unit:caller", Kind: model.UnitKindFunction, Language: "python",
		FilePath: "app/main.py", Name: "run",
		Code: "def run():\n    db.connect()\n    helper()\n",
	}
	connect := model.CodeUnit{
		ID: "unit:connect", Kind: model.UnitKindMethod, Language: "python",
		FilePath: "app/db.py", Name: "connect",
		Metadata: map[string]string{"class": "db"},
	}
	helper := model.CodeUnit{
		ID: "unit:helper", Kind: model.UnitKindFunction, Language: "python",
		FilePath: "app/util.py", Name: "helper",
	}

	edges := a.Analyze(caller, []model.CodeUnit{caller, connect, helper})
	calls := edgesOfKind(edges, model.EdgeKindCall)
	require.Len(t, calls, 2)

	byTo := map[string]model.DependencyEdge{}
	for _, e := range calls {
		byTo[e.ToID] = e
	}

	// Qualifier matches declaring class (+0.3) and exact name (+0.2).
	assert.InDelta(t, 1.0, byTo["unit:connect"].Confidence, 1e-9)
	// Bare call, exact name only (+0.2).
	assert.InDelta(t, 0.7, byTo["unit:helper"].Confidence, 1e-9)
}

func TestAnalyzer_CallEdges_IgnoresKeywordsAndNonCallables(t *testing.T) {
	a := NewAnalyzer(nil)

	caller := model.CodeUnit{
		ID: "unit:caller", Kind: model.UnitKindFunction, Language: "go",
		FilePath: "a.go", Name: "run",
		Code: "func run() {\n\tif ready() {\n\t\tfor i := range items {\n\t\t}\n\t}\n}\n",
	}
	// Same name as a control keyword target should not produce an edge.
	classUnit := model.CodeUnit{
		ID: "unit:class", Kind: model.UnitKindStruct, Language: "go",
		FilePath: "b.go", Name: "ready",
	}

	edges := a.Analyze(caller, []model.CodeUnit{caller, classUnit})
	assert.Empty(t, edgesOfKind(edges, model.EdgeKindCall),
		"struct targets and keyword callees must not yield call edges")
}

func TestAnalyzer_InheritanceAndImplementation(t *testing.T) {
	a := NewAnalyzer(nil)

	base := model.CodeUnit{
		ID: "unit:animal", Kind: model.UnitKindClass, Language: "python",
		FilePath: "zoo/animal.py", Name: "Animal",
	}
	iface := model.CodeUnit{
		ID: "unit:speaker", Kind: model.UnitKindInterface, Language: "java",
		FilePath: "src/Speaker.java", Name: "Speaker",
	}
	dog := model.CodeUnit{
		ID: "unit:dog", Kind: model.UnitKindClass, Language: "python",
		FilePath: "zoo/dog.py", Name: "Dog",
		Metadata: map[string]string{"superclass": "Animal", "interfaces": "Speaker"},
	}

	edges := a.Analyze(dog, []model.CodeUnit{base, iface, dog})

	inh := edgesOfKind(edges, model.EdgeKindInheritance)
	require.Len(t, inh, 1)
	assert.Equal(t, "unit:animal", inh[0].ToID)
	assert.InDelta(t, 0.95, inh[0].Confidence, 1e-9)

	impl := edgesOfKind(edges, model.EdgeKindImplementation)
	require.Len(t, impl, 1)
	assert.Equal(t, "unit:speaker", impl[0].ToID)
	assert.InDelta(t, 0.95, impl[0].Confidence, 1e-9)
}

func TestAnalyzer_TypeReferences_TypeScriptOnly(t *testing.T) {
	a := NewAnalyzer(nil)

	store := model.CodeUnit{
		ID: "unit:store", Kind: model.UnitKindInterface, Language: "typescript",
		FilePath: "src/store.ts", Name: "Store",
	}
	tsUnit := model.CodeUnit{
		ID: "unit:fn", Kind: model.UnitKindFunction, Language: "typescript",
		FilePath: "src/use.ts", Name: "use",
		Code: "function use(s: Store): void {}",
	}
	pyUnit := model.CodeUnit{
		ID: "unit:py", Kind: model.UnitKindFunction, Language: "python",
		FilePath: "use.py", Name: "use_py",
		Code: "def use_py(s: Store):\n    pass\n",
	}

	tsEdges := a.Analyze(tsUnit, []model.CodeUnit{store, tsUnit})
	refs := edgesOfKind(tsEdges, model.EdgeKindTypeReference)
	require.Len(t, refs, 1)
	assert.Equal(t, "unit:store", refs[0].ToID)
	assert.InDelta(t, 0.7, refs[0].Confidence, 1e-9)

	pyEdges := a.Analyze(pyUnit, []model.CodeUnit{store, pyUnit})
	assert.Empty(t, edgesOfKind(pyEdges, model.EdgeKindTypeReference),
		"type references are only extracted for typescript and java")
}

// Multiple type references from one unit come back in the same order on
// every run.
func TestAnalyzer_TypeReferences_StableOrder(t *testing.T) {
	a := NewAnalyzer(nil)

	units := []model.CodeUnit{
		{
			ID: "unit:fn", Kind: model.UnitKindFunction, Language: "typescript",
			FilePath: "src/use.ts", Name: "use",
			Code: "function use(s: Store, c: Cache, l: Logger, r: Registry): void {}",
		},
		{ID: "unit:store", Kind: model.UnitKindInterface, Language: "typescript", FilePath: "src/store.ts", Name: "Store"},
		{ID: "unit:cache", Kind: model.UnitKindClass, Language: "typescript", FilePath: "src/cache.ts", Name: "Cache"},
		{ID: "unit:logger", Kind: model.UnitKindInterface, Language: "typescript", FilePath: "src/logger.ts", Name: "Logger"},
		{ID: "unit:registry", Kind: model.UnitKindClass, Language: "typescript", FilePath: "src/registry.ts", Name: "Registry"},
	}

	first := edgesOfKind(a.Analyze(units[0], units), model.EdgeKindTypeReference)
	require.Len(t, first, 4)
	assert.Equal(t, []string{"Cache", "Logger", "Registry", "Store"},
		[]string{first[0].Symbol, first[1].Symbol, first[2].Symbol, first[3].Symbol})

	for i := 0; i < 10; i++ {
		again := edgesOfKind(a.Analyze(units[0], units), model.EdgeKindTypeReference)
		assert.Equal(t, first, again)
	}
}

// Confidence stays within [0,1] and no (kind,from,to,symbol) tuple repeats.
func TestAnalyzer_EdgeInvariants(t *testing.T) {
	a := NewAnalyzer(nil)

	units := []model.CodeUnit{
		{
			ID: "unit:m", Kind: model.UnitKindModule, Language: "typescript",
			FilePath: "src/main.ts", Name: "main",
			Metadata: map[string]string{"imports": "./store,./store"},
		},
		{
			ID: "unit:store-mod", Kind: model.UnitKindModule, Language: "typescript",
			FilePath: "src/store.ts", Name: "store",
		},
		{
			ID: "unit:fn", Kind: model.UnitKindFunction, Language: "typescript",
			FilePath: "src/main.ts", Name: "boot",
			Code: "function boot(s: Store) {\n  init();\n  init();\n}\n",
		},
		{
			ID: "unit:init", Kind: model.UnitKindFunction, Language: "typescript",
			FilePath: "src/store.ts", Name: "init",
		},
		{
			ID: "unit:store", Kind: model.UnitKindInterface, Language: "typescript",
			FilePath: "src/store.ts", Name: "Store",
		},
	}

	edges := a.AnalyzeAll(units)
	require.NotEmpty(t, edges)

	seen := make(map[string]bool)
	for _, e := range edges {
		assert.GreaterOrEqual(t, e.Confidence, 0.0)
		assert.LessOrEqual(t, e.Confidence, 1.0)
		key := e.DedupKey()
		assert.False(t, seen[key], "duplicate edge tuple: %s", key)
		seen[key] = true
	}
}
