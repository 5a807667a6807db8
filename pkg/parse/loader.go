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
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"log/slog"
)

// DefaultMaxFileSize is the largest source file the loader will pick up.
const DefaultMaxFileSize = 2 * 1024 * 1024 // 2MB

// defaultExcludeDirs are directory names skipped during the walk regardless
// of user-supplied exclude globs.
var defaultExcludeDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"dist":         true,
	"build":        true,
	"target":       true,
	".idea":        true,
	".vscode":      true,
}

// languageByExtension maps file extensions to language tags.
var languageByExtension = map[string]string{
	".go":   "go",
	".py":   "python",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".java": "java",
}

// DetectLanguage returns the language tag for a file path, or "" when the
// extension is not supported.
func DetectLanguage(path string) string {
	return languageByExtension[strings.ToLower(filepath.Ext(path))]
}

// FileInfo describes one source file selected for parsing.
type FileInfo struct {
	Path     string // Relative path from project root
	FullPath string // Absolute path
	Size     int64
	Language string
}

// LoadResult is the outcome of a project walk.
type LoadResult struct {
	RootPath    string
	Files       []FileInfo
	TotalSize   int64
	Languages   map[string]int // language -> file count
	SkipReasons map[string]int // reason -> count
}

// Loader walks a project directory and selects the source files to parse.
type Loader struct {
	logger      *slog.Logger
	maxFileSize int64
}

// NewLoader creates a project loader. A nil logger falls back to slog.Default.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{logger: logger, maxFileSize: DefaultMaxFileSize}
}

// SetMaxFileSize overrides the per-file size cap.
func (l *Loader) SetMaxFileSize(size int64) {
	if size > 0 {
		l.maxFileSize = size
	}
}

// LoadOptions filter which files the walk selects.
type LoadOptions struct {
	// Patterns are glob patterns matched against the relative path.
	// Empty means "all supported files".
	Patterns []string

	// Selected, when non-empty, restricts the result to exactly these
	// relative paths.
	Selected []string

	// Excluded are paths or globs to skip.
	Excluded []string
}

// Load walks root and returns the files to parse.
func (l *Loader) Load(root string, opts LoadOptions) (*LoadResult, error) {
	rootPath, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project path: %w", err)
	}
	info, err := os.Stat(rootPath)
	if err != nil {
		return nil, fmt.Errorf("stat project path: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project path is not a directory: %s", rootPath)
	}

	l.logger.Info("parse.load.start", "root", rootPath)

	selected := make(map[string]bool, len(opts.Selected))
	for _, s := range opts.Selected {
		selected[filepath.ToSlash(s)] = true
	}

	result := &LoadResult{
		RootPath:    rootPath,
		Languages:   make(map[string]int),
		SkipReasons: make(map[string]int),
	}

	err = filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			result.SkipReasons["unreadable"]++
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path != rootPath && (defaultExcludeDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(rootPath, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		language := DetectLanguage(rel)
		if language == "" {
			result.SkipReasons["unsupported_language"]++
			return nil
		}

		if len(selected) > 0 && !selected[rel] {
			result.SkipReasons["not_selected"]++
			return nil
		}

		if matchesAny(opts.Excluded, rel) {
			result.SkipReasons["excluded"]++
			return nil
		}

		if len(opts.Patterns) > 0 && !matchesAny(opts.Patterns, rel) {
			result.SkipReasons["pattern_mismatch"]++
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			result.SkipReasons["unreadable"]++
			return nil
		}
		if fi.Size() > l.maxFileSize {
			result.SkipReasons["too_large"]++
			l.logger.Warn("parse.load.skip_large", "path", rel, "size", fi.Size())
			return nil
		}

		result.Files = append(result.Files, FileInfo{
			Path:     rel,
			FullPath: path,
			Size:     fi.Size(),
			Language: language,
		})
		result.TotalSize += fi.Size()
		result.Languages[language]++
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk project: %w", err)
	}

	l.logger.Info("parse.load.complete",
		"files", len(result.Files),
		"total_size", result.TotalSize,
		"languages", len(result.Languages),
	)
	return result, nil
}

// matchesAny reports whether rel matches any of the globs. Globs match
// against the full relative path, the base name, and any path prefix, so
// "src/**" style intent works with stdlib glob semantics.
func matchesAny(globs []string, rel string) bool {
	base := filepath.Base(rel)
	for _, g := range globs {
		g = filepath.ToSlash(g)
		if g == rel {
			return true
		}
		if ok, _ := filepath.Match(g, rel); ok {
			return true
		}
		if ok, _ := filepath.Match(g, base); ok {
			return true
		}
		// Directory prefix: "internal/" or "internal" excludes the subtree.
		trimmed := strings.TrimSuffix(strings.TrimSuffix(g, "**"), "/")
		if trimmed != "" && trimmed != g && strings.HasPrefix(rel, trimmed+"/") {
			return true
		}
		if strings.HasPrefix(rel, g+"/") {
			return true
		}
	}
	return false
}
