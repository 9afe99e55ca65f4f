// SPDX-License-Identifier: MPL-2.0

// Package testutil provides helper functions for tests that handle errors
// appropriately, reducing boilerplate and ensuring consistent error handling.
//
// Common helpers include build-file fixtures (WriteBuildFile, RequireBash),
// environment variable management (MustSetenv), directory operations
// (MustChdir, MustMkdirAll) and resource cleanup (MustClose, DeferClose).
package testutil
