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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"

	"github.com/kraklabs/ckb/pkg/model"
)

// UnitID generates a deterministic unit ID.
// Strategy: hash(normalized_path | kind | name | start_line). Code text is
// NOT included so IDs remain stable across whitespace-only edits, letting
// downstream caches (enrichment, vectors) keyed by content hash invalidate
// independently of identity.
func UnitID(filePath string, kind model.UnitKind, name string, startLine int) string {
	idStr := fmt.Sprintf("%s|%s|%s|%d", normalizePath(filePath), kind, name, startLine)
	hash := sha256.Sum256([]byte(idStr))
	return fmt.Sprintf("unit:%s", hex.EncodeToString(hash[:16]))
}

// normalizePath normalizes a file path for consistent ID generation across
// platforms: strips leading ./, cleans, and forces forward slashes.
func normalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	return filepath.ToSlash(filepath.Clean(path))
}
