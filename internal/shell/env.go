// SPDX-License-Identifier: MPL-2.0

package shell

import (
	"maps"
	"slices"
	"strings"
)

// filteredPrefixes are variables that would run code or change lookup
// behavior before the helper gets control.
var filteredPrefixes = []string{
	"BASH_ENV=", "ENV=", "BASH_FUNC_", "CDPATH=", "SHELLOPTS=", "BASHOPTS=", "GLOBIGNORE=",
}

// FilterEnv drops startup-hook and option variables from env.
func FilterEnv(env []string) []string {
	out := make([]string, 0, len(env))
	for _, kv := range env {
		skip := false
		for _, p := range filteredPrefixes {
			if strings.HasPrefix(kv, p) {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, kv)
		}
	}
	return out
}

// EnvToSlice converts a map to KEY=value pairs sorted by key.
func EnvToSlice(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for _, k := range slices.Sorted(maps.Keys(env)) {
		out = append(out, k+"="+env[k])
	}
	return out
}
