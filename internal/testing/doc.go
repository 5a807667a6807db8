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

// Package testing provides shared fixtures for CKB tests: on-disk project
// trees for the parse stage and pre-built code units for everything
// downstream of it.
//
// Import it aliased, since it shadows the standard library name:
//
//	cktest "github.com/kraklabs/ckb/internal/testing"
//
//	func TestParse(t *testing.T) {
//	    root := cktest.GoProject(t)
//	    // run the parser against root ...
//	}
package testing
