// Package repositories implements SQLite persistence for cached streams and playback history.
//
// Key Implementations:
//   - [StreamCacheRepository] : a durable [cache.FormatCache] keyed by track id
//   - [EventRepository] : recovery decisions recorded per session and track
//
// Both expect the schema created by [shared.RunMigrations].
package repositories
