// Package services talks to the metadata proxy that answers player requests.
//
// # Player requests
//
// [PlayerService] is the single call contract the resolver depends on: given a track, an optional
// playlist context, a [models.ClientProfile], the current signature timestamp and an optional
// origin token, it returns a [models.PlaybackDescriptor]. [YouTubeService] implements it over HTTP
// against the proxy's /api/player endpoint.
//
// # Authentication
//
// [Credentials] carries the session cookie imported with `ytplay setup cookie` and/or an
// [oauth2.TokenSource]. Authenticated sessions unlock client profiles that require sign-in and the
// creator retry for age-gated tracks.
//
// # Throttling
//
// Every request waits on a [rate.Limiter] so bulk prefetching cannot trip the proxy's limits.
//
// # Error Handling
//
// Non-2xx responses become [APIError], which matches the shared sentinels:
//   - [shared.ErrUnauthorized] : 401 and 403
//   - [shared.ErrRateLimited] : 429
//   - [shared.ErrServiceUnavailable] : 5xx
//   - [shared.ErrTrackNotFound] : 404
//   - [shared.ErrTimeout] : 408 and 504, and requests that run out of time
//   - [shared.ErrAPIRequest] : everything else
//
// Player refuses auth-only profiles with [shared.ErrNotAuthenticated] when the session is signed out.
package services
