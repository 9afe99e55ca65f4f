// SPDX-License-Identifier: MPL-2.0

// Package fetch downloads declared sources into the source cache.
//
// A Scheduler plans every entry up front: local files are checked in place,
// cached files with matching digests are skipped, and the rest become jobs.
// A bounded set of transfer goroutines pulls jobs and hands finished
// transfers to a verifier pool, which either moves the file into place or
// re-queues the job with exponential backoff. The first job to exhaust its
// attempts cancels every sibling through the shared context.
package fetch
