// SPDX-License-Identifier: MPL-2.0

// Package unpack links fetched sources into the build's source directory and
// extracts the archives among them.
package unpack
