package main

import (
	"aria/beep"
	"aria/session"
)

// tuiSink forwards controller events to the Bubble Tea program. The
// controller calls it from the capture callback and the receive loop, so
// everything goes through tuiSend which is safe to call from any goroutine.
type tuiSink struct{}

func (tuiSink) StateChanged(s session.State) {
	tuiSend(StateMsg{State: s})
	switch s {
	case session.Connected:
		go beep.PlayConnect()
	case session.Disconnected:
		go beep.PlayDisconnect()
	case session.Errored:
		go beep.PlayError()
	}
}

func (tuiSink) ModelSpeaking(on bool) {
	tuiSend(SpeakingMsg{On: on})
}

func (tuiSink) Capturing(on bool) {
	tuiSend(CapturingMsg{On: on})
}

func (tuiSink) AudioLevel(level float64) {
	tuiSend(AudioLevelMsg{Level: level})
}

func (tuiSink) ToolAction(name, result string) {
	tuiSend(ToolActionMsg{Name: name, Text: result})
}

func (tuiSink) Notify(msg string) {
	tuiSend(NoticeMsg{Text: msg})
}
