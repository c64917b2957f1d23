package audio

import (
	"fmt"
	"sync"

	"aria/codec"
)

// Pipeline re-chunks the capture device's callback stream into fixed
// BlockSize frames and hands each one to the sink. The device clock drives
// cadence; the pipeline is a passive event source once started.
type Pipeline struct {
	dev CaptureDevice

	mu      sync.Mutex
	started bool
	buf     []float32
	sink    func(codec.Frame)
}

func NewPipeline(dev CaptureDevice) *Pipeline {
	return &Pipeline{dev: dev}
}

// Start begins invoking sink once per captured block. On device failure the
// pipeline remains un-started.
func (p *Pipeline) Start(sink func(codec.Frame)) error {
	p.mu.Lock()
	if p.started {
		p.mu.Unlock()
		return fmt.Errorf("capture pipeline already started")
	}
	p.started = true
	p.sink = sink
	p.buf = p.buf[:0]
	p.mu.Unlock()

	p.dev.SetCallback(p.onData)

	if err := p.dev.Start(); err != nil {
		p.dev.ClearCallback()
		p.mu.Lock()
		p.started = false
		p.sink = nil
		p.mu.Unlock()
		return err
	}
	return nil
}

// Stop releases the device. No sink invocation happens after Stop returns:
// the callback is cleared before the device stops, and any invocation already
// in flight completes under the mutex Stop acquires last.
func (p *Pipeline) Stop() {
	p.dev.ClearCallback()
	p.dev.Stop()

	p.mu.Lock()
	p.started = false
	p.sink = nil
	p.buf = nil
	p.mu.Unlock()
}

func (p *Pipeline) onData(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.buf = append(p.buf, samples...)
	for len(p.buf) >= codec.BlockSize {
		block := make([]float32, codec.BlockSize)
		copy(block, p.buf[:codec.BlockSize])
		p.buf = p.buf[codec.BlockSize:]
		p.sink(codec.Frame{Samples: block, Rate: codec.CaptureRate, Channels: codec.Channels})
	}
}
