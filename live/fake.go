package live

import (
	"context"
	"io"
	"sync"
)

// FakeDialer hands out scripted connections for tests.
type FakeDialer struct {
	DialErr error

	mu    sync.Mutex
	conns []*FakeConn
}

func NewFakeDialer() *FakeDialer {
	return &FakeDialer{}
}

func (f *FakeDialer) Name() string { return "fake" }

func (f *FakeDialer) Dial(_ context.Context, cfg SessionConfig) (Conn, error) {
	if f.DialErr != nil {
		return nil, f.DialErr
	}
	c := &FakeConn{
		Config: cfg,
		events: make(chan Event, 64),
		done:   make(chan struct{}),
	}
	f.mu.Lock()
	f.conns = append(f.conns, c)
	f.mu.Unlock()
	return c, nil
}

// Conn returns the most recently dialed connection.
func (f *FakeDialer) Conn() *FakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func (f *FakeDialer) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.conns)
}

type FakeConn struct {
	Config SessionConfig

	events chan Event
	done   chan struct{}

	mu       sync.Mutex
	doneOnce sync.Once
	sent     []string
	results  []ToolResult
	failErr  error
	closed   bool
}

// Emit delivers an event to the next Recv.
func (c *FakeConn) Emit(ev Event) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

// Fail makes the next Recv return err, simulating a transport error.
func (c *FakeConn) Fail(err error) {
	c.mu.Lock()
	c.failErr = err
	c.mu.Unlock()
	c.closeDone()
}

func (c *FakeConn) SendAudio(payload string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, payload)
	return nil
}

func (c *FakeConn) SendToolResults(results []ToolResult) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, results...)
	return nil
}

func (c *FakeConn) Recv() (Event, error) {
	select {
	case ev := <-c.events:
		return ev, nil
	case <-c.done:
		// Drain anything emitted before the close.
		select {
		case ev := <-c.events:
			return ev, nil
		default:
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.failErr != nil {
			return Event{}, c.failErr
		}
		return Event{}, io.EOF
	}
}

func (c *FakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.closeDone()
	return nil
}

func (c *FakeConn) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *FakeConn) SentAudio() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func (c *FakeConn) Results() []ToolResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]ToolResult(nil), c.results...)
}

func (c *FakeConn) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
