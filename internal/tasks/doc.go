// Package tasks runs long bulk operations with real-time progress reporting.
//
// # Prefetch
//
// [Prefetcher.Run] resolves a list of tracks ahead of playback so the
// resolution cache is warm when the queue starts:
//
//  1. Duplicate ids are dropped, keeping the first occurrence.
//  2. A producer feeds ids to a bounded worker pool through a rate limiter.
//  3. Each worker resolves through the same [Resolver] used for playback.
//  4. Results are collected in input order into a [models.PrefetchReport].
//
// A failed track never aborts the run. Cancelling the context stops the
// producer; tracks that were never attempted are reported as canceled.
//
// # Progress Reporting
//
// Operations accept an optional progress channel. Updates are sent with
// select and default, so a slow reader drops updates instead of stalling
// the workers.
package tasks
