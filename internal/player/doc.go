// Package player drives mpv over a queue of tracks.
//
// [Player] implements the pipeline the recovery controller expects. Stream URLs come from a
// [Source] (the playback session) and state changes go back to a [Listener]. When mpv exits
// with an error the player probes the stream URL once so the failure can be reported as an
// HTTP status or a network error instead of an opaque exit code.
package player
