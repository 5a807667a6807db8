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

package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/ckb/pkg/recovery"
)

func TestLoadErrorLog_MissingFileIsEmpty(t *testing.T) {
	entries, err := loadErrorLog(t.TempDir())
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestLoadErrorLog_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := []recovery.Entry{
		{
			ID:        "e1",
			Timestamp: time.Now().UTC().Truncate(time.Second),
			Message:   "connection refused",
			Kind:      recovery.KindNetwork,
			Context:   recovery.Context{Step: "enrich", UnitID: "unit:fn0"},
		},
	}
	data, err := json.Marshal(want)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, errorLogName), data, 0o644))

	got, err := loadErrorLog(dir)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "connection refused", got[0].Message)
	assert.Equal(t, recovery.KindNetwork, got[0].Kind)
	assert.Equal(t, "enrich", got[0].Context.Step)
}

func TestLoadErrorLog_CorruptFileErrors(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, errorLogName), []byte("{not json"), 0o644))

	_, err := loadErrorLog(dir)
	assert.Error(t, err)
}
