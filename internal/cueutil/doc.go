// SPDX-License-Identifier: MPL-2.0

// Package cueutil compiles a CUE document against an embedded schema
// definition and turns CUE errors into path-prefixed messages.
package cueutil
