// SPDX-License-Identifier: MPL-2.0

// Package config loads pkgbake settings from a CUE file through Viper.
//
// The file lives at $XDG_CONFIG_HOME/pkgbake/config.cue (or the platform
// equivalent reported by adrg/xdg). It is validated against the embedded
// #Config schema before being merged over the defaults, so an unknown key or
// a mistyped value fails the load instead of being silently ignored.
package config
