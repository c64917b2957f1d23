// Package player schedules decoded audio frames for gapless playback. The
// output device pulls samples on its own clock; a running cursor (nextStart)
// places each enqueued frame either right after the previous one ends or at
// the current clock position when the queue has drained.
package player

import (
	"fmt"
	"sync"

	"aria/audio"
	"aria/codec"
)

type source struct {
	samples []float32
	start   int64 // sample index on the device clock
}

type Scheduler struct {
	dev    audio.PlaybackDevice
	onIdle func()

	mu        sync.Mutex
	clock     int64 // samples rendered so far
	nextStart int64
	sources   []*source
	torn      bool
}

// New opens the playback device and starts pulling. onIdle fires each time
// the active set drains to empty after playing something.
func New(ctx audio.Context, onIdle func()) (*Scheduler, error) {
	s := &Scheduler{onIdle: onIdle}
	dev, err := ctx.NewPlayback(audio.PlaybackConfig{
		SampleRate: codec.PlaybackRate,
		Channels:   codec.Channels,
	}, s.render)
	if err != nil {
		return nil, fmt.Errorf("playback device: %w", err)
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		return nil, fmt.Errorf("playback start: %w", err)
	}
	s.dev = dev
	return s, nil
}

// Enqueue schedules a frame at max(nextStart, now) and advances nextStart by
// the frame's length. Call order must match arrival order.
func (s *Scheduler) Enqueue(f codec.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.torn || len(f.Samples) == 0 {
		return
	}
	start := s.nextStart
	if s.clock > start {
		start = s.clock
	}
	s.sources = append(s.sources, &source{samples: f.Samples, start: start})
	s.nextStart = start + int64(len(f.Samples))
}

// Interrupt force-stops everything queued or playing and resets the cursor
// so the next frame starts immediately. No-op when nothing is active.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources = nil
	s.nextStart = s.clock
}

// Active reports the number of scheduled-or-playing sources.
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sources)
}

// Teardown interrupts and releases the output device. Safe to call twice.
func (s *Scheduler) Teardown() {
	s.mu.Lock()
	if s.torn {
		s.mu.Unlock()
		return
	}
	s.torn = true
	s.sources = nil
	s.nextStart = s.clock
	dev := s.dev
	s.mu.Unlock()
	if dev != nil {
		dev.Stop()
		dev.Close()
	}
}

// render is the device pull callback. It advances the clock by len(out) and
// copies every overlapping source into the buffer, zero elsewhere.
func (s *Scheduler) render(out []float32) {
	for i := range out {
		out[i] = 0
	}

	s.mu.Lock()
	now := s.clock
	end := now + int64(len(out))
	s.clock = end

	played := false
	keep := s.sources[:0]
	for _, src := range s.sources {
		srcEnd := src.start + int64(len(src.samples))
		from, to := src.start, srcEnd
		if from < now {
			from = now
		}
		if to > end {
			to = end
		}
		for i := from; i < to; i++ {
			out[i-now] = src.samples[i-src.start]
		}
		if srcEnd <= end {
			played = true // reached natural end this cycle
		} else {
			keep = append(keep, src)
		}
	}
	drained := played && len(keep) == 0
	s.sources = keep
	onIdle := s.onIdle
	s.mu.Unlock()

	if drained && onIdle != nil {
		onIdle()
	}
}
