// Package models defines the domain types shared by the resolver, the recovery loop and the cache backends.
//
// The package contains three groups of types:
//
// 1. Identity and policy
//   - [TrackID] : opaque remote or local track identifier
//   - [QualityPolicy] : audio quality preference (auto, low, high)
//   - [ClientProfile] : a remote client identity with capability flags
//
// 2. Metadata API results
//   - [PlaybackDescriptor] : per-attempt response with status and candidate formats
//   - [Format] : one candidate audio/video format
//
// 3. Resolution artifacts
//   - [ResolvedStream] : the playable URL with its wall-clock expiry
//   - [CachedFormat] : the persisted subset of a resolution, keyed by track
package models
