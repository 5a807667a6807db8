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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeTree creates the files (relative path -> content) under root.
func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func relPaths(result *LoadResult) []string {
	out := make([]string, 0, len(result.Files))
	for _, f := range result.Files {
		out = append(out, f.Path)
	}
	return out
}

func TestLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":                   "package main\n",
		"lib/util.py":               "import os\n",
		"web/app.ts":                "export {}\n",
		"README.md":                 "# readme\n",
		"node_modules/dep/index.js": "module.exports = {}\n",
		".git/config":               "[core]\n",
	})

	result, err := NewLoader(nil).Load(root, LoadOptions{})
	require.NoError(t, err)

	paths := relPaths(result)
	assert.ElementsMatch(t, []string{"main.go", "lib/util.py", "web/app.ts"}, paths)
	assert.Equal(t, 1, result.Languages["go"])
	assert.Equal(t, 1, result.Languages["python"])
	assert.Equal(t, 1, result.Languages["typescript"])
	assert.Equal(t, 1, result.SkipReasons["unsupported_language"])
}

func TestLoader_Load_Excluded(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":            "package main\n",
		"gen/schema.go":      "package gen\n",
		"internal/helper.go": "package internal\n",
	})

	result, err := NewLoader(nil).Load(root, LoadOptions{
		Excluded: []string{"gen/**", "internal/helper.go"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"main.go"}, relPaths(result))
	assert.Equal(t, 2, result.SkipReasons["excluded"])
}

func TestLoader_Load_Patterns(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":     "package main\n",
		"lib/util.py": "import os\n",
	})

	result, err := NewLoader(nil).Load(root, LoadOptions{
		Patterns: []string{"*.py"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"lib/util.py"}, relPaths(result))
	assert.Equal(t, 1, result.SkipReasons["pattern_mismatch"])
}

func TestLoader_Load_Selected(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go": "package a\n",
		"b.go": "package b\n",
	})

	result, err := NewLoader(nil).Load(root, LoadOptions{
		Selected: []string{"b.go"},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"b.go"}, relPaths(result))
	assert.Equal(t, 1, result.SkipReasons["not_selected"])
}

func TestLoader_Load_TooLarge(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"big.go":   "package big\n" + string(make([]byte, 1024)),
		"small.go": "package small\n",
	})

	loader := NewLoader(nil)
	loader.SetMaxFileSize(100)

	result, err := loader.Load(root, LoadOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"small.go"}, relPaths(result))
	assert.Equal(t, 1, result.SkipReasons["too_large"])
}

func TestLoader_Load_NotADirectory(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "file.go")
	require.NoError(t, os.WriteFile(file, []byte("package x\n"), 0o644))

	_, err := NewLoader(nil).Load(file, LoadOptions{})
	assert.ErrorContains(t, err, "not a directory")
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"main.go", "go"},
		{"app.py", "python"},
		{"component.tsx", "typescript"},
		{"index.mjs", "javascript"},
		{"Main.java", "java"},
		{"style.css", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectLanguage(tt.path), tt.path)
	}
}
