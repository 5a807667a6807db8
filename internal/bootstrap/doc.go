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

// Package bootstrap handles CKB project initialization and setup.
//
// A CKB project keeps its durable state under <root>/.ckb/: the
// project.yaml configuration, the pipeline step checkpoint, and the
// vector index directory.
//
// # Initialization Workflow
//
// A typical workflow for setting up a new project:
//
//	info, err := bootstrap.InitProject(".", bootstrap.ProjectConfig{
//	    ProjectID: "myproject",
//	}, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Project initialized at: %s\n", info.DataDir)
//
//	// Later, open the project for pipeline runs and queries
//	info, config, err := bootstrap.OpenProject(".", logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Idempotency
//
// InitProject is idempotent: calling it multiple times on the same root is
// safe. An existing project.yaml is never overwritten by re-initialization,
// so the function is suitable for scripts and automated workflows.
//
// # Configuration
//
// ProjectConfig controls the initialization behavior:
//
//   - ProjectID: Optional. Logical identifier for the project. Defaults to
//     the base name of the project root.
//   - Defaults: Optional. Run-config fields (file patterns, models, ...)
//     applied to every pipeline run unless overridden per call.
package bootstrap
