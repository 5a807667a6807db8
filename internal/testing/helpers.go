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

package testing

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kraklabs/ckb/pkg/model"
)

// WriteProject materializes files (path -> content) under a fresh temp
// directory and returns its root. Paths may contain subdirectories.
//
// Example:
//
//	root := cktest.WriteProject(t, map[string]string{
//	    "main.go":      "package main\n\nfunc main() {}\n",
//	    "pkg/util.py":  "def helper():\n    pass\n",
//	})
func WriteProject(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for path, content := range files {
		full := filepath.Join(root, filepath.FromSlash(path))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("create fixture dir for %s: %v", path, err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write fixture %s: %v", path, err)
		}
	}
	return root
}

// GoProject returns a small but realistic Go project fixture: a main
// package calling into a helper, enough to exercise parse and analyze.
func GoProject(t *testing.T) string {
	t.Helper()
	return WriteProject(t, map[string]string{
		"main.go": `package main

import "fmt"

func main() {
	fmt.Println(Greet("world"))
}
`,
		"greet.go": `package main

import "fmt"

// Greet formats a greeting for name.
func Greet(name string) string {
	return fmt.Sprintf("hello, %s", name)
}
`,
	})
}

// Unit builds a CodeUnit with sensible defaults for tests that only care
// about a few fields.
func Unit(id, name string) model.CodeUnit {
	return model.CodeUnit{
		ID:        id,
		Kind:      model.UnitKindFunction,
		Language:  "go",
		FilePath:  "main.go",
		Name:      name,
		Code:      "func " + name + "() {}",
		StartLine: 1,
		EndLine:   1,
	}
}

// Units builds n distinct CodeUnits named fn0..fn(n-1).
func Units(n int) []model.CodeUnit {
	out := make([]model.CodeUnit, 0, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("fn%d", i)
		out = append(out, Unit("unit:"+name, name))
	}
	return out
}
