package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/ytplay/internal/playback"
)

// MsgKind enumerates all message types in the application.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgSessionEvent MsgKind = iota
	MsgSessionClosed
	MsgQueueFinished
	MsgControlDone
)

// sessionEventMsg is the constructor for [MsgSessionEvent]
func sessionEventMsg(e playback.Event) Msg {
	return Msg{kind: MsgSessionEvent, data: e}
}

// sessionClosedMsg is the constructor for [MsgSessionClosed]
func sessionClosedMsg() Msg {
	return Msg{kind: MsgSessionClosed}
}

// queueFinishedMsg is the constructor for [MsgQueueFinished]
func queueFinishedMsg() Msg {
	return Msg{kind: MsgQueueFinished}
}

// controlDoneMsg is the constructor for [MsgControlDone]
func controlDoneMsg(action string, err error) Msg {
	return Msg{
		kind: MsgControlDone,
		data: struct {
			action string
			err    error
		}{action, err},
	}
}
