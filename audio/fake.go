package audio

import (
	"sync"
)

// FakeContext is an in-memory backend for tests: capture frames are pushed
// by hand and playback is pumped by reading from the pull callback.
type FakeContext struct {
	mu        sync.Mutex
	captures  []*FakeCapture
	playbacks []*FakePlayback

	FailCapture  bool // NewCapture returns ErrDevice
	FailPlayback bool // NewPlayback returns ErrDevice
	FailStart    bool // CaptureDevice.Start returns ErrDevice
}

func NewFakeContext() *FakeContext {
	return &FakeContext{}
}

func (f *FakeContext) Devices() ([]DeviceInfo, error) {
	return []DeviceInfo{{ID: "fake0", Name: "fake mic"}}, nil
}

func (f *FakeContext) NewCapture(_ *DeviceInfo, _ CaptureConfig) (CaptureDevice, error) {
	if f.FailCapture {
		return nil, ErrDevice
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	c := &FakeCapture{failStart: f.FailStart}
	f.captures = append(f.captures, c)
	return c, nil
}

func (f *FakeContext) NewPlayback(config PlaybackConfig, pull PullCallback) (PlaybackDevice, error) {
	if f.FailPlayback {
		return nil, ErrDevice
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := &FakePlayback{pull: pull, channels: config.Channels}
	f.playbacks = append(f.playbacks, p)
	return p, nil
}

func (f *FakeContext) Close() {}

func (f *FakeContext) Capture() *FakeCapture {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.captures) == 0 {
		return nil
	}
	return f.captures[len(f.captures)-1]
}

func (f *FakeContext) Playback() *FakePlayback {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.playbacks) == 0 {
		return nil
	}
	return f.playbacks[len(f.playbacks)-1]
}

type FakeCapture struct {
	failStart bool

	mu      sync.Mutex
	cb      DataCallback
	running bool
	closed  bool
}

func (c *FakeCapture) Start() error {
	if c.failStart {
		return ErrDevice
	}
	c.mu.Lock()
	c.running = true
	c.mu.Unlock()
	return nil
}

func (c *FakeCapture) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
}

func (c *FakeCapture) Close() {
	c.mu.Lock()
	c.running = false
	c.closed = true
	c.mu.Unlock()
}

func (c *FakeCapture) SetCallback(cb DataCallback) {
	c.mu.Lock()
	c.cb = cb
	c.mu.Unlock()
}

func (c *FakeCapture) ClearCallback() {
	c.mu.Lock()
	c.cb = nil
	c.mu.Unlock()
}

func (c *FakeCapture) DeviceName() string { return "fake mic" }

func (c *FakeCapture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *FakeCapture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Push simulates the device clock delivering captured samples.
func (c *FakeCapture) Push(samples []float32) {
	c.mu.Lock()
	cb := c.cb
	running := c.running
	c.mu.Unlock()
	if cb != nil && running {
		cb(samples)
	}
}

type FakePlayback struct {
	pull     PullCallback
	channels int

	mu      sync.Mutex
	running bool
	closed  bool
}

func (p *FakePlayback) Start() error {
	p.mu.Lock()
	p.running = true
	p.mu.Unlock()
	return nil
}

func (p *FakePlayback) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

func (p *FakePlayback) Close() {
	p.mu.Lock()
	p.running = false
	p.closed = true
	p.mu.Unlock()
}

func (p *FakePlayback) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Pump simulates the device requesting n samples and returns them.
func (p *FakePlayback) Pump(n int) []float32 {
	out := make([]float32, n)
	p.pull(out)
	return out
}
