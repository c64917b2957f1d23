package player

import (
	"testing"

	"aria/audio"
	"aria/codec"
)

func newTestScheduler(t *testing.T) (*Scheduler, *audio.FakePlayback) {
	t.Helper()
	ctx := audio.NewFakeContext()
	s, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s, ctx.Playback()
}

func constFrame(value float32, n int) codec.Frame {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = value
	}
	return codec.Frame{Samples: samples, Rate: codec.PlaybackRate, Channels: 1}
}

func TestGaplessBackToBack(t *testing.T) {
	s, dev := newTestScheduler(t)
	s.Enqueue(constFrame(0.1, 100))
	s.Enqueue(constFrame(0.2, 50))
	s.Enqueue(constFrame(0.3, 30))

	if got := []int64{s.sources[0].start, s.sources[1].start, s.sources[2].start}; got[0] != 0 || got[1] != 100 || got[2] != 150 {
		t.Fatalf("start times %v, want [0 100 150]", got)
	}

	out := dev.Pump(180)
	for i, want := range map[int]float32{0: 0.1, 99: 0.1, 100: 0.2, 149: 0.2, 150: 0.3, 179: 0.3} {
		if out[i] != want {
			t.Errorf("sample %d = %f, want %f", i, out[i], want)
		}
	}
	if s.Active() != 0 {
		t.Errorf("%d sources still active after full render", s.Active())
	}
}

func TestEnqueueAfterDrainStartsNow(t *testing.T) {
	s, dev := newTestScheduler(t)
	s.Enqueue(constFrame(0.5, 40))
	dev.Pump(100) // clock now 100, queue drained, stale nextStart would be 40

	s.Enqueue(constFrame(0.7, 20))
	if s.sources[0].start != 100 {
		t.Fatalf("start %d, want clock position 100", s.sources[0].start)
	}
	out := dev.Pump(30)
	if out[0] != 0.7 || out[19] != 0.7 || out[20] != 0 {
		t.Errorf("frame not rendered at clock position: %v...", out[:3])
	}
}

func TestInterruptStopsAllAndResetsCursor(t *testing.T) {
	s, dev := newTestScheduler(t)
	s.Enqueue(constFrame(0.1, 1000))
	s.Enqueue(constFrame(0.2, 1000))
	s.Enqueue(constFrame(0.3, 1000))
	dev.Pump(10)

	s.Interrupt()
	if s.Active() != 0 {
		t.Fatalf("%d sources active after interrupt", s.Active())
	}

	out := dev.Pump(50)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("audio after interrupt at sample %d", i)
		}
	}

	// Next enqueue plays immediately, not at the stale offset 3000.
	s.Enqueue(constFrame(0.9, 10))
	if s.sources[0].start != 60 {
		t.Fatalf("start %d, want 60 (current clock)", s.sources[0].start)
	}
}

func TestInterruptEmptyIsNoop(t *testing.T) {
	s, _ := newTestScheduler(t)
	s.Interrupt()
	s.Interrupt()
	if s.Active() != 0 {
		t.Fatal("active set not empty")
	}
}

func TestIdleSignalOnDrain(t *testing.T) {
	ctx := audio.NewFakeContext()
	idle := 0
	s, err := New(ctx, func() { idle++ })
	if err != nil {
		t.Fatal(err)
	}
	dev := ctx.Playback()

	dev.Pump(100) // silence: no idle signal without playback
	if idle != 0 {
		t.Fatalf("idle fired with nothing played")
	}

	s.Enqueue(constFrame(0.4, 50))
	dev.Pump(30)
	if idle != 0 {
		t.Fatalf("idle fired mid-playback")
	}
	dev.Pump(30)
	if idle != 1 {
		t.Fatalf("idle = %d after drain, want 1", idle)
	}
	dev.Pump(30)
	if idle != 1 {
		t.Fatalf("idle re-fired while empty: %d", idle)
	}
}

func TestTeardownReleasesDevice(t *testing.T) {
	ctx := audio.NewFakeContext()
	s, err := New(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	s.Enqueue(constFrame(0.1, 10))
	s.Teardown()
	s.Teardown() // idempotent
	if !ctx.Playback().Closed() {
		t.Fatal("playback device not closed")
	}
	s.Enqueue(constFrame(0.1, 10)) // ignored after teardown
	if s.Active() != 0 {
		t.Fatal("enqueue accepted after teardown")
	}
}
