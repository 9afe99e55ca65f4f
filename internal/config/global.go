// SPDX-License-Identifier: MPL-2.0

package config

// configDirOverride replaces the XDG lookup in ConfigDir when set.
var configDirOverride string

// Reset clears test overrides. Call from test cleanup to restore defaults.
func Reset() {
	configDirOverride = ""
}

// SetConfigDirOverride sets a custom config directory path. Tests use it to
// keep Save and CreateDefaultConfig away from the real home directory.
func SetConfigDirOverride(dir string) {
	configDirOverride = dir
}
