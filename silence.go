package main

import "time"

const (
	tickInterval     = 100 * time.Millisecond
	silenceWarnEvery = 15 * time.Second
	silenceHangupDur = 90 * time.Second
	speechMinRatio   = 0.05
	speechClearRatio = 0.15 // higher threshold to clear warning (hysteresis)
)

type SilenceEvent int

const (
	SilenceNone      SilenceEvent = iota
	SilenceWarn                   // no voice picked up while connected
	SilenceWarnClear              // speech resumed after warning
	SilenceRepeat                 // repeat reminder (every 15s)
	SilenceHangup                 // 90s of dead air, disconnect
)

// silenceMonitor watches the per-tick speech signal while a conversation is
// up. A quiet mic usually means a muted or wrong input device, so it warns
// early and hangs up once the whole window has been dead air.
type silenceMonitor struct {
	warnAt   int
	windowSz int

	ticks       int
	window      []bool
	speechCount int
	warned      bool
	lastWarn    int
}

func newSilenceMonitor() *silenceMonitor {
	warnAt := int(silenceWarnEvery / tickInterval)
	windowSz := int(silenceHangupDur / tickInterval)
	return &silenceMonitor{
		warnAt:   warnAt,
		windowSz: windowSz,
		window:   make([]bool, windowSz),
	}
}

func (m *silenceMonitor) ratio(n int) float64 {
	if m.ticks < n {
		n = m.ticks
	}
	if n == 0 {
		return 1.0
	}
	count := 0
	for i := 0; i < n; i++ {
		if m.window[(m.ticks-1-i+m.windowSz)%m.windowSz] {
			count++
		}
	}
	return float64(count) / float64(n)
}

func (m *silenceMonitor) Tick(hasSpeech bool) SilenceEvent {
	idx := m.ticks % m.windowSz
	if m.ticks >= m.windowSz && m.window[idx] {
		m.speechCount--
	}
	m.window[idx] = hasSpeech
	if hasSpeech {
		m.speechCount++
	}
	m.ticks++

	r := m.ratio(m.warnAt)

	// Warn: 15s window below threshold
	if m.ticks >= m.warnAt && r < speechMinRatio && !m.warned {
		m.warned = true
		m.lastWarn = m.ticks
		return SilenceWarn
	}
	// Clear: speech ratio above clear threshold
	if m.warned && r >= speechClearRatio {
		m.warned = false
		return SilenceWarnClear
	}

	// Hang up: full window below threshold (checked before repeat)
	if m.ticks >= m.windowSz && float64(m.speechCount)/float64(m.windowSz) < speechMinRatio {
		return SilenceHangup
	}

	// Repeat the reminder every 15s while still quiet
	if m.warned && m.ticks-m.lastWarn >= m.warnAt {
		m.lastWarn = m.ticks
		return SilenceRepeat
	}

	return SilenceNone
}

// Reset clears accumulated history, for a fresh conversation.
func (m *silenceMonitor) Reset() {
	m.ticks = 0
	m.speechCount = 0
	m.warned = false
	m.lastWarn = 0
	for i := range m.window {
		m.window[i] = false
	}
}
