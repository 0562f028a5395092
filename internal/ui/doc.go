// Package ui implements the now-playing terminal view using bubbletea's Elm architecture.
//
// The [Model] shows the queue with a per-track status, a spinner while a
// stream is resolving or a retry is pending, and a short log of recent
// recovery decisions. It has two views:
//  1. [PlayingView] : the live queue while the session runs
//  2. [FinishedView] : a summary once the queue is exhausted or playback stops
//
// Session events arrive through a channel that the model drains one message
// at a time, the same way a long-running task reports progress.
//
// Keyboard bindings: space (pause/resume), n (next), ? (help), q (quit).
package ui
