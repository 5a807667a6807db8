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

package parse

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/kraklabs/ckb/pkg/model"
)

// TreeSitterParser extracts code units via Tree-sitter ASTs.
// Not safe for concurrent use; create one per worker.
type TreeSitterParser struct {
	logger      *slog.Logger
	parsers     map[string]*sitter.Parser
	maxCodeSize int64
	truncated   int
}

// NewTreeSitterParser creates a parser with grammars for all supported
// languages. A nil logger falls back to slog.Default.
func NewTreeSitterParser(logger *slog.Logger) *TreeSitterParser {
	if logger == nil {
		logger = slog.Default()
	}

	parsers := make(map[string]*sitter.Parser, 5)
	for lang, language := range map[string]*sitter.Language{
		"go":         golang.GetLanguage(),
		"python":     python.GetLanguage(),
		"typescript": typescript.GetLanguage(),
		"javascript": javascript.GetLanguage(),
		"java":       java.GetLanguage(),
	} {
		p := sitter.NewParser()
		p.SetLanguage(language)
		parsers[lang] = p
	}

	return &TreeSitterParser{
		logger:      logger,
		parsers:     parsers,
		maxCodeSize: DefaultMaxFileSize,
	}
}

// SetMaxCodeTextSize caps the stored code text per unit (in bytes).
func (p *TreeSitterParser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeSize = size
	}
}

// TruncatedCount returns how many unit code texts were truncated.
func (p *TreeSitterParser) TruncatedCount() int { return p.truncated }

// ResetTruncatedCount resets the truncation counter.
func (p *TreeSitterParser) ResetTruncatedCount() { p.truncated = 0 }

// ParseFile parses one source file into code units. The first unit is always
// the file-level module unit carrying the import list in its metadata.
func (p *TreeSitterParser) ParseFile(file FileInfo, content []byte) ([]model.CodeUnit, error) {
	parser, ok := p.parsers[file.Language]
	if !ok {
		return nil, fmt.Errorf("unsupported language: %s", file.Language)
	}

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, fmt.Errorf("tree-sitter parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		p.logger.Warn("parse.treesitter.syntax_errors", "path", file.Path, "language", file.Language)
	}

	w := &tsWalk{
		parser:  p,
		file:    file,
		content: content,
	}
	w.walk(root)

	units := make([]model.CodeUnit, 0, len(w.units)+1)
	units = append(units, w.moduleUnit())
	units = append(units, w.units...)
	return units, nil
}

// tsWalk accumulates units and imports during one file's AST walk.
type tsWalk struct {
	parser  *TreeSitterParser
	file    FileInfo
	content []byte
	units   []model.CodeUnit
	imports []string
	pkgName string
}

func (w *tsWalk) walk(node *sitter.Node) {
	if node == nil {
		return
	}

	w.processNode(node)

	for i := 0; i < int(node.ChildCount()); i++ {
		w.walk(node.Child(i))
	}
}

func (w *tsWalk) processNode(node *sitter.Node) {
	switch w.file.Language {
	case "go":
		w.processGoNode(node)
	case "python":
		w.processPythonNode(node)
	case "typescript", "javascript":
		w.processJSNode(node)
	case "java":
		w.processJavaNode(node)
	}
}

// =============================================================================
// GO
// =============================================================================

func (w *tsWalk) processGoNode(node *sitter.Node) {
	switch node.Type() {
	case "package_clause":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if c := node.NamedChild(i); c != nil && c.Type() == "package_identifier" {
				w.pkgName = c.Content(w.content)
			}
		}

	case "import_spec":
		if path := node.ChildByFieldName("path"); path != nil {
			w.imports = append(w.imports, strings.Trim(path.Content(w.content), `"`))
		}

	case "function_declaration":
		w.addUnit(node, model.UnitKindFunction, w.nodeName(node), nil)

	case "method_declaration":
		meta := map[string]string{}
		if recv := node.ChildByFieldName("receiver"); recv != nil {
			if t := goReceiverType(recv, w.content); t != "" {
				meta["class"] = t
			}
		}
		w.addUnit(node, model.UnitKindMethod, w.nodeName(node), meta)

	case "type_spec":
		name := w.nodeName(node)
		typeNode := node.ChildByFieldName("type")
		if name == "" || typeNode == nil {
			return
		}
		switch typeNode.Type() {
		case "struct_type":
			w.addUnit(node, model.UnitKindStruct, name, nil)
		case "interface_type":
			w.addUnit(node, model.UnitKindInterface, name, nil)
		}
	}
}

// goReceiverType extracts the receiver type name from a Go method's
// parameter list, stripping pointers and type parameters.
func goReceiverType(recv *sitter.Node, content []byte) string {
	text := recv.Content(content)
	text = strings.Trim(text, "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	t := fields[len(fields)-1]
	t = strings.TrimPrefix(t, "*")
	if i := strings.IndexByte(t, '['); i > 0 {
		t = t[:i]
	}
	return t
}

// =============================================================================
// PYTHON
// =============================================================================

func (w *tsWalk) processPythonNode(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			c := node.NamedChild(i)
			switch c.Type() {
			case "dotted_name":
				w.imports = append(w.imports, c.Content(w.content))
			case "aliased_import":
				if name := c.ChildByFieldName("name"); name != nil {
					w.imports = append(w.imports, name.Content(w.content))
				}
			}
		}

	case "import_from_statement":
		if mod := node.ChildByFieldName("module_name"); mod != nil {
			w.imports = append(w.imports, mod.Content(w.content))
		}

	case "function_definition":
		kind := model.UnitKindFunction
		meta := map[string]string{}
		if class := enclosingName(node, w.content, "class_definition"); class != "" {
			kind = model.UnitKindMethod
			meta["class"] = class
		}
		w.addUnit(node, kind, w.nodeName(node), meta)

	case "class_definition":
		meta := map[string]string{}
		if sup := node.ChildByFieldName("superclasses"); sup != nil {
			bases := identifierList(sup, w.content)
			if len(bases) > 0 {
				meta["superclass"] = bases[0]
				meta["bases"] = strings.Join(bases, ",")
			}
		}
		w.addUnit(node, model.UnitKindClass, w.nodeName(node), meta)
	}
}

// =============================================================================
// TYPESCRIPT / JAVASCRIPT
// =============================================================================

func (w *tsWalk) processJSNode(node *sitter.Node) {
	switch node.Type() {
	case "import_statement":
		if src := node.ChildByFieldName("source"); src != nil {
			w.imports = append(w.imports, strings.Trim(src.Content(w.content), `"'`))
		}

	case "function_declaration":
		w.addUnit(node, model.UnitKindFunction, w.nodeName(node), nil)

	case "variable_declarator":
		// Arrow and function expressions assigned to a name.
		name := node.ChildByFieldName("name")
		value := node.ChildByFieldName("value")
		if name == nil || value == nil {
			return
		}
		switch value.Type() {
		case "arrow_function", "function_expression", "function":
			w.addUnit(node, model.UnitKindFunction, name.Content(w.content), nil)
		}

	case "method_definition":
		meta := map[string]string{}
		if class := enclosingName(node, w.content, "class_declaration", "class"); class != "" {
			meta["class"] = class
		}
		w.addUnit(node, model.UnitKindMethod, w.nodeName(node), meta)

	case "class_declaration", "class":
		if w.nodeName(node) == "" {
			return
		}
		meta := map[string]string{}
		if sup, ifaces := jsHeritage(node, w.content); sup != "" || len(ifaces) > 0 {
			if sup != "" {
				meta["superclass"] = sup
			}
			if len(ifaces) > 0 {
				meta["interfaces"] = strings.Join(ifaces, ",")
			}
		}
		w.addUnit(node, model.UnitKindClass, w.nodeName(node), meta)

	case "interface_declaration":
		w.addUnit(node, model.UnitKindInterface, w.nodeName(node), nil)
	}
}

// jsHeritage extracts extends/implements names from a class declaration.
func jsHeritage(node *sitter.Node, content []byte) (superclass string, interfaces []string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		c := node.NamedChild(i)
		switch c.Type() {
		case "class_heritage":
			for j := 0; j < int(c.NamedChildCount()); j++ {
				h := c.NamedChild(j)
				switch h.Type() {
				case "extends_clause":
					if ids := identifierList(h, content); len(ids) > 0 {
						superclass = ids[0]
					}
				case "implements_clause":
					interfaces = append(interfaces, identifierList(h, content)...)
				default:
					// Plain JS: class_heritage wraps the expression directly.
					if superclass == "" {
						superclass = h.Content(content)
					}
				}
			}
		}
	}
	return superclass, interfaces
}

// =============================================================================
// JAVA
// =============================================================================

func (w *tsWalk) processJavaNode(node *sitter.Node) {
	switch node.Type() {
	case "import_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if c := node.NamedChild(i); c.Type() == "scoped_identifier" || c.Type() == "identifier" {
				w.imports = append(w.imports, c.Content(w.content))
			}
		}

	case "package_declaration":
		for i := 0; i < int(node.NamedChildCount()); i++ {
			if c := node.NamedChild(i); c.Type() == "scoped_identifier" || c.Type() == "identifier" {
				w.pkgName = c.Content(w.content)
			}
		}

	case "class_declaration":
		meta := map[string]string{}
		if sup := node.ChildByFieldName("superclass"); sup != nil {
			if ids := identifierList(sup, w.content); len(ids) > 0 {
				meta["superclass"] = ids[0]
			}
		}
		if ifaces := node.ChildByFieldName("interfaces"); ifaces != nil {
			if ids := identifierList(ifaces, w.content); len(ids) > 0 {
				meta["interfaces"] = strings.Join(ids, ",")
			}
		}
		w.addUnit(node, model.UnitKindClass, w.nodeName(node), meta)

	case "interface_declaration":
		w.addUnit(node, model.UnitKindInterface, w.nodeName(node), nil)

	case "method_declaration", "constructor_declaration":
		meta := map[string]string{}
		if class := enclosingName(node, w.content, "class_declaration", "interface_declaration"); class != "" {
			meta["class"] = class
		}
		w.addUnit(node, model.UnitKindMethod, w.nodeName(node), meta)
	}
}

// =============================================================================
// SHARED HELPERS
// =============================================================================

// nodeName returns the text of the node's "name" field, or "".
func (w *tsWalk) nodeName(node *sitter.Node) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(w.content)
	}
	return ""
}

// enclosingName climbs the ancestor chain and returns the name of the first
// node matching one of the given types.
func enclosingName(node *sitter.Node, content []byte, types ...string) string {
	for p := node.Parent(); p != nil; p = p.Parent() {
		for _, t := range types {
			if p.Type() == t {
				if n := p.ChildByFieldName("name"); n != nil {
					return n.Content(content)
				}
				return ""
			}
		}
	}
	return ""
}

// identifierList collects identifier-like descendants in document order.
func identifierList(node *sitter.Node, content []byte) []string {
	var out []string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "identifier", "type_identifier", "scoped_identifier", "scoped_type_identifier", "attribute":
			out = append(out, n.Content(content))
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(node)
	return out
}

// addUnit appends a unit for the node. Anonymous units are skipped.
func (w *tsWalk) addUnit(node *sitter.Node, kind model.UnitKind, name string, meta map[string]string) {
	if name == "" {
		return
	}

	code := node.Content(w.content)
	if int64(len(code)) > w.parser.maxCodeSize {
		code = code[:w.parser.maxCodeSize]
		w.parser.truncated++
	}

	startLine := int(node.StartPoint().Row) + 1
	if len(meta) == 0 {
		meta = nil
	}

	w.units = append(w.units, model.CodeUnit{
		ID:        UnitID(w.file.Path, kind, name, startLine),
		Kind:      kind,
		Language:  w.file.Language,
		FilePath:  w.file.Path,
		Name:      name,
		Code:      code,
		StartLine: startLine,
		EndLine:   int(node.EndPoint().Row) + 1,
		Metadata:  meta,
	})
}

// moduleUnit builds the file-level unit carrying imports and package name.
func (w *tsWalk) moduleUnit() model.CodeUnit {
	name := w.pkgName
	if name == "" {
		name = moduleNameFromPath(w.file.Path)
	}

	meta := map[string]string{}
	if len(w.imports) > 0 {
		meta["imports"] = strings.Join(w.imports, ",")
	}
	if w.pkgName != "" {
		meta["package"] = w.pkgName
	}
	if len(meta) == 0 {
		meta = nil
	}

	return model.CodeUnit{
		ID:        UnitID(w.file.Path, model.UnitKindModule, name, 1),
		Kind:      model.UnitKindModule,
		Language:  w.file.Language,
		FilePath:  w.file.Path,
		Name:      name,
		StartLine: 1,
		Metadata:  meta,
	}
}

// moduleNameFromPath derives a module name from the file path stem.
func moduleNameFromPath(path string) string {
	base := path
	if i := strings.LastIndexByte(base, '/'); i >= 0 {
		base = base[i+1:]
	}
	if i := strings.LastIndexByte(base, '.'); i > 0 {
		base = base[:i]
	}
	return base
}
