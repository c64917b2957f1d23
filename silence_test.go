package main

import "testing"

func feedN(m *silenceMonitor, speech bool, n int) SilenceEvent {
	var last SilenceEvent
	for i := 0; i < n; i++ {
		last = m.Tick(speech)
	}
	return last
}

func TestSilenceWarnAfter15s(t *testing.T) {
	m := newSilenceMonitor()
	// 149 ticks of silence — no warning yet
	for i := 0; i < 149; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d: %d", i, ev)
		}
	}
	// 150th tick triggers warning (15s)
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn at tick 150, got %d", ev)
	}
}

func TestSilenceWarnClearsOnSpeech(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 150) // triggers warn

	// Sustained speech clears warning (need 15% of the 150-tick window)
	for i := 0; i < 150; i++ {
		ev := m.Tick(true)
		if ev == SilenceWarnClear {
			return
		}
	}
	t.Fatal("expected SilenceWarnClear after speech")
}

func TestNoWarnDuringSpeech(t *testing.T) {
	m := newSilenceMonitor()
	for i := 0; i < 400; i++ {
		if ev := m.Tick(true); ev == SilenceWarn {
			t.Fatalf("unexpected warn during speech at tick %d", i)
		}
	}
}

func TestSilenceRepeatReminder(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 150) // warn at tick 150

	// Next 149 ticks of continued silence stay quiet
	for i := 0; i < 149; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d after warn: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceRepeat {
		t.Fatalf("expected SilenceRepeat at 30s, got %d", ev)
	}
}

func TestSilenceHangupAfterDeadAir(t *testing.T) {
	m := newSilenceMonitor()
	var got SilenceEvent
	for i := 0; i < 900; i++ {
		got = m.Tick(false)
	}
	if got != SilenceHangup {
		t.Fatalf("expected SilenceHangup at tick 900, got %d", got)
	}
}

func TestNoHangupWithOccasionalSpeech(t *testing.T) {
	m := newSilenceMonitor()
	// One speech tick every 10 keeps the ratio at 10%, above the 5% floor
	for i := 0; i < 1200; i++ {
		if ev := m.Tick(i%10 == 0); ev == SilenceHangup {
			t.Fatalf("unexpected hangup at tick %d", i)
		}
	}
}

func TestSilenceMonitorReset(t *testing.T) {
	m := newSilenceMonitor()
	feedN(m, false, 150) // warn
	m.Reset()
	// Fresh window: no event for another 149 ticks
	for i := 0; i < 149; i++ {
		if ev := m.Tick(false); ev != SilenceNone {
			t.Fatalf("unexpected event at tick %d after reset: %d", i, ev)
		}
	}
	if ev := m.Tick(false); ev != SilenceWarn {
		t.Fatalf("expected SilenceWarn after reset window, got %d", ev)
	}
}
