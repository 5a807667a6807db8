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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteProject_CreatesNestedFiles(t *testing.T) {
	root := WriteProject(t, map[string]string{
		"main.go":        "package main\n",
		"pkg/util/u.py":  "def u():\n    pass\n",
		"src/app/app.ts": "export const x = 1;\n",
	})

	for _, path := range []string{"main.go", "pkg/util/u.py", "src/app/app.ts"} {
		data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(path)))
		require.NoError(t, err)
		assert.NotEmpty(t, data)
	}
}

func TestGoProject_IsValidFixture(t *testing.T) {
	root := GoProject(t)

	data, err := os.ReadFile(filepath.Join(root, "greet.go"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "func Greet")
}

func TestUnits_DistinctIDs(t *testing.T) {
	units := Units(12)
	require.Len(t, units, 12)

	seen := make(map[string]bool)
	for _, u := range units {
		assert.False(t, seen[u.ID], "duplicate id %s", u.ID)
		seen[u.ID] = true
	}
}
