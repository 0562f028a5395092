// Package playback keeps a playback session alive when its audio pipeline fails.
//
// Pipeline failures are classified into a small set of categories ([Classify]). The
// [Controller] turns each classified failure into a delayed retry of the current track, a
// skip to the next queue item, or a pause once too many tracks in a row have failed. A
// [Session] ties a resolver, a pipeline and a controller together for the lifetime of one
// listening session and reports what happens as [Event]s.
package playback
