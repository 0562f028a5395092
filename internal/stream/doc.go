// Package stream turns a track id into a playable, time-limited audio URL.
//
// The [Resolver] walks the [Registry] of client profiles: it asks the metadata API for a
// descriptor with the primary profile, retries age-gated tracks once with the creator profile
// when the session is signed in, then scans the fallback profiles in priority order. For each
// usable descriptor it picks a format with [SelectFormat], turns it into a URL with the
// [Deobfuscator] strategy chain, applies the n-parameter transform and origin token for profiles
// that need them, and probes the URL with the [Validator] unless it is the last resort.
//
// Profiles are tried strictly one after another. Concurrent resolutions of the same track are
// collapsed into one call.
package stream
