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

package bootstrap

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kraklabs/ckb/pkg/model"
)

const (
	// ConfigDirName is the per-project directory holding config and data.
	ConfigDirName = ".ckb"

	configFileName = "project.yaml"
	indexDirName   = "index"
)

// ProjectConfig is the durable project configuration stored at
// <root>/.ckb/project.yaml.
type ProjectConfig struct {
	// ProjectID is the logical project identifier.
	// Defaults to the base name of the project root.
	ProjectID string `yaml:"project_id"`

	// Defaults are the run-config fields applied to every pipeline run
	// unless the caller overrides them.
	Defaults model.RunConfig `yaml:"defaults"`
}

// ProjectInfo describes an initialized project on disk.
type ProjectInfo struct {
	ProjectID  string
	Root       string
	ConfigPath string

	// DataDir holds everything the pipeline persists: the step
	// checkpoint and the index directory.
	DataDir  string
	IndexDir string
}

func paths(root string) (configPath, dataDir, indexDir string) {
	dataDir = filepath.Join(root, ConfigDirName)
	return filepath.Join(dataDir, configFileName), dataDir, filepath.Join(dataDir, indexDirName)
}

// InitProject initializes a project rooted at root. Idempotent: an existing
// project.yaml is kept as-is, and re-creating the data directories is safe.
//
// The function:
//  1. Creates <root>/.ckb/ and <root>/.ckb/index/
//  2. Writes project.yaml if it does not exist yet
func InitProject(root string, config ProjectConfig, logger *slog.Logger) (*ProjectInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}
	if config.ProjectID == "" {
		config.ProjectID = filepath.Base(absRoot)
	}
	if config.Defaults.ProjectPath == "" {
		config.Defaults.ProjectPath = absRoot
	}

	configPath, dataDir, indexDir := paths(absRoot)

	logger.Info("bootstrap.project.init.start",
		"project_id", config.ProjectID,
		"data_dir", dataDir,
	)

	if err := os.MkdirAll(indexDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeConfig(configPath, &config); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat project config: %w", err)
	} else {
		// Existing config wins; re-init never clobbers it.
		existing, err := readConfig(configPath)
		if err != nil {
			return nil, err
		}
		config = *existing
	}

	logger.Info("bootstrap.project.init.success",
		"project_id", config.ProjectID,
		"data_dir", dataDir,
	)

	return &ProjectInfo{
		ProjectID:  config.ProjectID,
		Root:       absRoot,
		ConfigPath: configPath,
		DataDir:    dataDir,
		IndexDir:   indexDir,
	}, nil
}

// OpenProject loads an existing project rooted at root.
func OpenProject(root string, logger *slog.Logger) (*ProjectInfo, *ProjectConfig, error) {
	if logger == nil {
		logger = slog.Default()
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve project root: %w", err)
	}

	configPath, dataDir, indexDir := paths(absRoot)
	config, err := readConfig(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("project not found at %s (run 'ckb init' first)", absRoot)
		}
		return nil, nil, err
	}

	logger.Debug("bootstrap.project.open",
		"project_id", config.ProjectID,
		"data_dir", dataDir,
	)

	return &ProjectInfo{
		ProjectID:  config.ProjectID,
		Root:       absRoot,
		ConfigPath: configPath,
		DataDir:    dataDir,
		IndexDir:   indexDir,
	}, config, nil
}

// SaveConfig rewrites the project config file atomically.
func SaveConfig(info *ProjectInfo, config *ProjectConfig) error {
	return writeConfig(info.ConfigPath, config)
}

func readConfig(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var config ProjectConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse project config: %w", err)
	}
	return &config, nil
}

func writeConfig(path string, config *ProjectConfig) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("marshal project config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write project config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename project config: %w", err)
	}
	return nil
}
