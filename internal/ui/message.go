package ui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/crawlmix/internal/tasks"
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
	MsgProgressUpdate MsgKind = iota
	MsgSessionComplete
	MsgBrowserOpened
)

type sessionOutcome struct {
	result *tasks.Result
	err    error
}

// progressUpdateMsg is the constructor for [MsgProgressUpdate]
func progressUpdateMsg(update tasks.ProgressUpdate) Msg {
	return Msg{kind: MsgProgressUpdate, data: update}
}

// sessionCompleteMsg is the constructor for [MsgSessionComplete]
func sessionCompleteMsg(result *tasks.Result, err error) Msg {
	return Msg{kind: MsgSessionComplete, data: sessionOutcome{result, err}}
}

// browserOpenedMsg is the constructor for [MsgBrowserOpened]
func browserOpenedMsg(err error) Msg {
	return Msg{kind: MsgBrowserOpened, data: err}
}
