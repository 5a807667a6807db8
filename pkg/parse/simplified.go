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
	"regexp"
	"strings"

	"log/slog"

	"github.com/kraklabs/ckb/pkg/model"
)

// SimplifiedParser extracts code units with line/regex matching. It trades
// fidelity for zero CGO: nested declarations, unusual formatting, and
// expression-level constructs are missed. Used when Tree-sitter is
// unavailable.
type SimplifiedParser struct {
	logger      *slog.Logger
	maxCodeSize int64
	truncated   int
}

// NewSimplifiedParser creates the fallback parser.
func NewSimplifiedParser(logger *slog.Logger) *SimplifiedParser {
	if logger == nil {
		logger = slog.Default()
	}
	return &SimplifiedParser{logger: logger, maxCodeSize: DefaultMaxFileSize}
}

// SetMaxCodeTextSize caps the stored code text per unit (in bytes).
func (p *SimplifiedParser) SetMaxCodeTextSize(size int64) {
	if size > 0 {
		p.maxCodeSize = size
	}
}

// TruncatedCount returns how many unit code texts were truncated.
func (p *SimplifiedParser) TruncatedCount() int { return p.truncated }

// ResetTruncatedCount resets the truncation counter.
func (p *SimplifiedParser) ResetTruncatedCount() { p.truncated = 0 }

var (
	goPackageRe   = regexp.MustCompile(`^package\s+(\w+)`)
	goFuncRe      = regexp.MustCompile(`^func\s+(?:\(([^)]+)\)\s+)?(\w+)`)
	goTypeRe      = regexp.MustCompile(`^type\s+(\w+)\s+(struct|interface)\b`)
	goImportRe    = regexp.MustCompile(`^\s*(?:\w+\s+)?"([^"]+)"`)
	pyDefRe       = regexp.MustCompile(`^(\s*)(?:async\s+)?def\s+(\w+)`)
	pyClassRe     = regexp.MustCompile(`^(\s*)class\s+(\w+)\s*(?:\(([^)]*)\))?`)
	pyImportRe    = regexp.MustCompile(`^import\s+([\w.]+)`)
	pyFromRe      = regexp.MustCompile(`^from\s+([\w.]+)\s+import`)
	jsFuncRe      = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?(?:async\s+)?function\s+(\w+)`)
	jsArrowRe     = regexp.MustCompile(`^(?:export\s+)?(?:const|let|var)\s+(\w+)\s*=\s*(?:async\s+)?(?:\([^)]*\)|\w+)\s*=>`)
	jsClassRe     = regexp.MustCompile(`^(?:export\s+)?(?:default\s+)?class\s+(\w+)(?:\s+extends\s+([\w.]+))?(?:\s+implements\s+([\w,.\s]+?))?\s*\{`)
	tsInterfaceRe = regexp.MustCompile(`^(?:export\s+)?interface\s+(\w+)`)
	jsImportRe    = regexp.MustCompile(`^import\s+.*?from\s+['"]([^'"]+)['"]|^import\s+['"]([^'"]+)['"]`)
	javaTypeRe    = regexp.MustCompile(`^(?:[\w\s]*\b)?(class|interface)\s+(\w+)(?:\s+extends\s+([\w.]+))?(?:\s+implements\s+([\w,.\s]+?))?\s*\{`)
	javaImportRe  = regexp.MustCompile(`^import\s+(?:static\s+)?([\w.]+(?:\.\*)?);`)
	javaMethodRe  = regexp.MustCompile(`^\s+(?:public|private|protected)[\w\s<>\[\],]*\s(\w+)\s*\([^;]*$`)
	jsMethodRe    = regexp.MustCompile(`^(?:async\s+)?(?:static\s+)?(\w+)\s*\([^)]*\)\s*\{`)
)

// ParseFile parses one source file into code units. The first unit is the
// file-level module unit, matching the Tree-sitter parser's contract.
func (p *SimplifiedParser) ParseFile(file FileInfo, content []byte) ([]model.CodeUnit, error) {
	lines := strings.Split(string(content), "\n")

	s := &simpleScan{parser: p, file: file, lines: lines}
	switch file.Language {
	case "go":
		s.scanGo()
	case "python":
		s.scanPython()
	case "typescript", "javascript":
		s.scanJS()
	case "java":
		s.scanJava()
	default:
		s.scanJS() // Closest syntax family for anything unexpected.
	}

	units := make([]model.CodeUnit, 0, len(s.units)+1)
	units = append(units, s.moduleUnit())
	units = append(units, s.units...)
	return units, nil
}

type simpleScan struct {
	parser  *SimplifiedParser
	file    FileInfo
	lines   []string
	units   []model.CodeUnit
	imports []string
	pkgName string
}

func (s *simpleScan) scanGo() {
	inImport := false

	for i, line := range s.lines {
		trimmed := strings.TrimSpace(line)

		if m := goPackageRe.FindStringSubmatch(line); m != nil {
			s.pkgName = m[1]
			continue
		}

		if strings.HasPrefix(line, "import (") {
			inImport = true
			continue
		}
		if inImport {
			if trimmed == ")" {
				inImport = false
			} else if m := goImportRe.FindStringSubmatch(line); m != nil {
				s.imports = append(s.imports, m[1])
			}
			continue
		}
		if strings.HasPrefix(line, "import ") {
			if m := goImportRe.FindStringSubmatch(strings.TrimPrefix(line, "import ")); m != nil {
				s.imports = append(s.imports, m[1])
			}
			continue
		}

		if m := goTypeRe.FindStringSubmatch(line); m != nil {
			kind := model.UnitKindStruct
			if m[2] == "interface" {
				kind = model.UnitKindInterface
			}
			s.add(kind, m[1], i, s.braceBlockEnd(i), nil)
			continue
		}

		if m := goFuncRe.FindStringSubmatch(line); m != nil {
			end := s.braceBlockEnd(i)
			if m[1] != "" {
				// Method: receiver type is the last token, pointers stripped.
				recv := strings.Fields(m[1])
				class := strings.TrimPrefix(recv[len(recv)-1], "*")
				s.add(model.UnitKindMethod, m[2], i, end, map[string]string{"class": class})
			} else {
				s.add(model.UnitKindFunction, m[2], i, end, nil)
			}
		}
	}
}

func (s *simpleScan) scanPython() {
	type openClass struct {
		name   string
		indent int
	}
	var classStack []openClass

	for i, line := range s.lines {
		if m := pyImportRe.FindStringSubmatch(line); m != nil {
			s.imports = append(s.imports, m[1])
			continue
		}
		if m := pyFromRe.FindStringSubmatch(line); m != nil {
			s.imports = append(s.imports, m[1])
			continue
		}

		if m := pyClassRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			for len(classStack) > 0 && classStack[len(classStack)-1].indent >= indent {
				classStack = classStack[:len(classStack)-1]
			}

			meta := map[string]string{}
			if bases := strings.TrimSpace(m[3]); bases != "" {
				parts := splitAndTrim(bases)
				meta["superclass"] = parts[0]
				meta["bases"] = strings.Join(parts, ",")
			}
			if len(meta) == 0 {
				meta = nil
			}
			end := s.indentBlockEnd(i, indent)
			s.add(model.UnitKindClass, m[2], i, end, meta)
			classStack = append(classStack, openClass{name: m[2], indent: indent})
			continue
		}

		if m := pyDefRe.FindStringSubmatch(line); m != nil {
			indent := len(m[1])
			for len(classStack) > 0 && classStack[len(classStack)-1].indent >= indent {
				classStack = classStack[:len(classStack)-1]
			}

			end := s.indentBlockEnd(i, indent)
			if len(classStack) > 0 {
				s.add(model.UnitKindMethod, m[2], i, end, map[string]string{"class": classStack[len(classStack)-1].name})
			} else {
				s.add(model.UnitKindFunction, m[2], i, end, nil)
			}
		}
	}
}

func (s *simpleScan) scanJS() {
	var currentClass string
	var classEnd int

	for i, line := range s.lines {
		trimmed := strings.TrimSpace(line)

		if m := jsImportRe.FindStringSubmatch(trimmed); m != nil {
			mod := m[1]
			if mod == "" {
				mod = m[2]
			}
			s.imports = append(s.imports, mod)
			continue
		}

		if i >= classEnd {
			currentClass = ""
		}

		if m := jsClassRe.FindStringSubmatch(trimmed); m != nil {
			meta := map[string]string{}
			if m[2] != "" {
				meta["superclass"] = m[2]
			}
			if m[3] != "" {
				meta["interfaces"] = strings.Join(splitAndTrim(m[3]), ",")
			}
			if len(meta) == 0 {
				meta = nil
			}
			end := s.braceBlockEnd(i)
			s.add(model.UnitKindClass, m[1], i, end, meta)
			currentClass = m[1]
			classEnd = end
			continue
		}

		if s.file.Language == "typescript" {
			if m := tsInterfaceRe.FindStringSubmatch(trimmed); m != nil {
				s.add(model.UnitKindInterface, m[1], i, s.braceBlockEnd(i), nil)
				continue
			}
		}

		if m := jsFuncRe.FindStringSubmatch(trimmed); m != nil {
			s.add(model.UnitKindFunction, m[1], i, s.braceBlockEnd(i), nil)
			continue
		}
		if m := jsArrowRe.FindStringSubmatch(trimmed); m != nil {
			s.add(model.UnitKindFunction, m[1], i, s.braceBlockEnd(i), nil)
			continue
		}

		// Shorthand methods inside a class body.
		if currentClass != "" && i > 0 {
			if m := jsMethodRe.FindStringSubmatch(trimmed); m != nil {
				if m[1] != "if" && m[1] != "for" && m[1] != "while" && m[1] != "switch" && m[1] != "catch" {
					s.add(model.UnitKindMethod, m[1], i, s.braceBlockEnd(i), map[string]string{"class": currentClass})
				}
			}
		}
	}
}

func (s *simpleScan) scanJava() {
	var currentClass string
	var classEnd int

	for i, line := range s.lines {
		trimmed := strings.TrimSpace(line)

		if m := javaImportRe.FindStringSubmatch(trimmed); m != nil {
			s.imports = append(s.imports, m[1])
			continue
		}
		if strings.HasPrefix(trimmed, "package ") {
			s.pkgName = strings.TrimSuffix(strings.TrimPrefix(trimmed, "package "), ";")
			continue
		}

		if i >= classEnd {
			currentClass = ""
		}

		if m := javaTypeRe.FindStringSubmatch(trimmed); m != nil {
			kind := model.UnitKindClass
			if m[1] == "interface" {
				kind = model.UnitKindInterface
			}
			meta := map[string]string{}
			if m[3] != "" {
				meta["superclass"] = m[3]
			}
			if m[4] != "" {
				meta["interfaces"] = strings.Join(splitAndTrim(m[4]), ",")
			}
			if len(meta) == 0 {
				meta = nil
			}
			end := s.braceBlockEnd(i)
			s.add(kind, m[2], i, end, meta)
			if kind == model.UnitKindClass {
				currentClass = m[2]
				classEnd = end
			}
			continue
		}

		if currentClass != "" {
			if m := javaMethodRe.FindStringSubmatch(line); m != nil {
				s.add(model.UnitKindMethod, m[1], i, s.braceBlockEnd(i), map[string]string{"class": currentClass})
			}
		}
	}
}

// braceBlockEnd returns the 0-based line index where the brace block opened
// at startLine closes. Falls back to startLine when no block is found.
func (s *simpleScan) braceBlockEnd(startLine int) int {
	depth := 0
	opened := false
	for i := startLine; i < len(s.lines); i++ {
		for _, ch := range s.lines[i] {
			switch ch {
			case '{':
				depth++
				opened = true
			case '}':
				depth--
				if opened && depth <= 0 {
					return i
				}
			}
		}
		// Declaration without a body (interface method, type alias line).
		if !opened && i > startLine {
			return startLine
		}
	}
	if opened {
		return len(s.lines) - 1
	}
	return startLine
}

// indentBlockEnd returns the last 0-based line of an indentation block
// (Python) opened at startLine with the given indent.
func (s *simpleScan) indentBlockEnd(startLine, indent int) int {
	end := startLine
	for i := startLine + 1; i < len(s.lines); i++ {
		line := s.lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		lineIndent := len(line) - len(strings.TrimLeft(line, " \t"))
		if lineIndent <= indent {
			break
		}
		end = i
	}
	return end
}

func (s *simpleScan) add(kind model.UnitKind, name string, startIdx, endIdx int, meta map[string]string) {
	if name == "" {
		return
	}
	if endIdx < startIdx {
		endIdx = startIdx
	}

	code := strings.Join(s.lines[startIdx:endIdx+1], "\n")
	if int64(len(code)) > s.parser.maxCodeSize {
		code = code[:s.parser.maxCodeSize]
		s.parser.truncated++
	}

	s.units = append(s.units, model.CodeUnit{
		ID:        UnitID(s.file.Path, kind, name, startIdx+1),
		Kind:      kind,
		Language:  s.file.Language,
		FilePath:  s.file.Path,
		Name:      name,
		Code:      code,
		StartLine: startIdx + 1,
		EndLine:   endIdx + 1,
		Metadata:  meta,
	})
}

func (s *simpleScan) moduleUnit() model.CodeUnit {
	name := s.pkgName
	if name == "" {
		name = moduleNameFromPath(s.file.Path)
	}

	meta := map[string]string{}
	if len(s.imports) > 0 {
		meta["imports"] = strings.Join(s.imports, ",")
	}
	if s.pkgName != "" {
		meta["package"] = s.pkgName
	}
	if len(meta) == 0 {
		meta = nil
	}

	return model.CodeUnit{
		ID:        UnitID(s.file.Path, model.UnitKindModule, name, 1),
		Kind:      model.UnitKindModule,
		Language:  s.file.Language,
		FilePath:  s.file.Path,
		Name:      name,
		StartLine: 1,
		EndLine:   len(s.lines),
		Metadata:  meta,
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
