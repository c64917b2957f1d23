package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"aria/audio"
	"aria/codec"
	"aria/live"
	"aria/tools"
)

type recordSink struct {
	mu       sync.Mutex
	states   []State
	speaking []bool
	notices  []string
	levels   int
}

func (s *recordSink) StateChanged(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, st)
}

func (s *recordSink) ModelSpeaking(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speaking = append(s.speaking, on)
}

func (s *recordSink) Capturing(bool) {}

func (s *recordSink) ToolAction(string, string) {}

func (s *recordSink) AudioLevel(float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.levels++
}

func (s *recordSink) Notify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notices = append(s.notices, msg)
}

func (s *recordSink) States() []State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]State(nil), s.states...)
}

func (s *recordSink) Notices() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notices...)
}

func (s *recordSink) LastSpeaking() (bool, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.speaking) == 0 {
		return false, false
	}
	return s.speaking[len(s.speaking)-1], true
}

type stubKB struct{}

func (stubKB) Query(_ context.Context, query, _ string) (string, error) {
	return "kb: " + query, nil
}

type stubLogger struct{}

func (stubLogger) Log(context.Context, tools.ActionEvent) error { return nil }

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func newTestController(actx *audio.FakeContext, dialer *live.FakeDialer, sink EventSink) *Controller {
	router := tools.NewRouter(stubKB{}, stubLogger{}, "sess-test")
	return New(actx, dialer, router, Config{Model: "m", Voice: "v"}, sink)
}

func TestConnectStreamsCapturedAudio(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != Connected {
		t.Fatalf("state = %v, want Connected", got)
	}

	mic := actx.Capture()
	if mic == nil || !mic.Running() {
		t.Fatal("capture device not running")
	}

	samples := make([]float32, codec.BlockSize)
	for i := range samples {
		samples[i] = 0.25
	}
	mic.Push(samples)

	conn := dialer.Conn()
	waitFor(t, "sent audio", func() bool { return len(conn.SentAudio()) == 1 })

	frame, err := codec.Decode(conn.SentAudio()[0], codec.CaptureRate, codec.Channels)
	if err != nil {
		t.Fatal(err)
	}
	if len(frame.Samples) != codec.BlockSize {
		t.Errorf("sent frame has %d samples, want %d", len(frame.Samples), codec.BlockSize)
	}

	states := sink.States()
	if len(states) < 2 || states[0] != Connecting || states[1] != Connected {
		t.Errorf("state sequence = %v, want [Connecting Connected ...]", states)
	}
}

func TestConnectDialFailure(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	dialer.DialErr = errors.New("refused")
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if got := c.State(); got != Errored {
		t.Fatalf("state = %v, want Errored", got)
	}
	if mic := actx.Capture(); mic == nil || !mic.Closed() {
		t.Error("capture device not released after failed dial")
	}
	if pb := actx.Playback(); pb == nil || !pb.Closed() {
		t.Error("playback device not released after failed dial")
	}
	notices := sink.Notices()
	if len(notices) == 0 || !strings.HasPrefix(notices[0], "Error: ") {
		t.Errorf("notices = %v, want one with Error: prefix", notices)
	}
}

// hookDialer runs a callback before delegating, letting tests interleave
// controller calls into the middle of a connect.
type hookDialer struct {
	inner  live.Dialer
	before func()
}

func (d hookDialer) Name() string { return d.inner.Name() }

func (d hookDialer) Dial(ctx context.Context, cfg live.SessionConfig) (live.Conn, error) {
	d.before()
	return d.inner.Dial(ctx, cfg)
}

func TestDisconnectDuringFailedConnectStaysQuiet(t *testing.T) {
	actx := audio.NewFakeContext()
	inner := live.NewFakeDialer()
	inner.DialErr = errors.New("refused")
	sink := &recordSink{}
	router := tools.NewRouter(stubKB{}, stubLogger{}, "sess-test")

	var c *Controller
	c = New(actx, hookDialer{inner, func() { c.Disconnect() }}, router,
		Config{Model: "m", Voice: "v"}, sink)

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if got := c.State(); got != Disconnected {
		t.Fatalf("state = %v, want Disconnected", got)
	}
	if notices := sink.Notices(); len(notices) != 0 {
		t.Errorf("notices = %v, want none after hangup", notices)
	}
}

func TestConnectCaptureFailure(t *testing.T) {
	actx := audio.NewFakeContext()
	actx.FailCapture = true
	dialer := live.NewFakeDialer()
	c := newTestController(actx, dialer, &recordSink{})

	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected connect error")
	}
	if got := c.State(); got != Errored {
		t.Fatalf("state = %v, want Errored", got)
	}
	if dialer.Dials() != 0 {
		t.Error("dialed despite capture failure")
	}
}

func TestConnectWhileConnectedIsNoOp(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	c := newTestController(actx, dialer, &recordSink{})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := dialer.Dials(); got != 1 {
		t.Errorf("dials = %d, want 1", got)
	}
}

func TestModelAudioIsScheduled(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := dialer.Conn()

	samples := []float32{0.5, 0.5, 0.5, 0.5}
	conn.Emit(live.Event{Audio: []string{codec.Encode(samples)}})

	waitFor(t, "model speaking", func() bool {
		on, ok := sink.LastSpeaking()
		return ok && on
	})

	out := actx.Playback().Pump(4)
	for i, v := range out {
		if v == 0 {
			t.Fatalf("rendered sample %d is zero, want scheduled audio", i)
		}
	}
}

func TestMalformedChunkIsDropped(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := dialer.Conn()

	// One bad chunk then one good one in the same event: the bad chunk is
	// skipped, the good one still plays.
	conn.Emit(live.Event{Audio: []string{"!!!not-base64!!!", codec.Encode([]float32{0.5, 0.5})}})

	waitFor(t, "model speaking", func() bool {
		on, ok := sink.LastSpeaking()
		return ok && on
	})
	if got := c.State(); got != Connected {
		t.Fatalf("state = %v, want Connected after dropped chunk", got)
	}
	out := actx.Playback().Pump(2)
	if out[0] == 0 || out[1] == 0 {
		t.Error("good chunk after malformed one was not scheduled")
	}
}

func TestInterruptStopsPlayback(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := dialer.Conn()

	conn.Emit(live.Event{Audio: []string{codec.Encode([]float32{0.5, 0.5, 0.5, 0.5})}})
	waitFor(t, "model speaking", func() bool {
		on, ok := sink.LastSpeaking()
		return ok && on
	})

	conn.Emit(live.Event{Interrupted: true})
	waitFor(t, "speaking cleared", func() bool {
		on, ok := sink.LastSpeaking()
		return ok && !on
	})

	out := actx.Playback().Pump(4)
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %v after interrupt, want silence", i, v)
		}
	}
}

func TestToolCallAnswered(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	c := newTestController(actx, dialer, &recordSink{})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := dialer.Conn()

	conn.Emit(live.Event{ToolCalls: []live.ToolCall{
		{ID: "call-1", Name: "book_meeting", Args: map[string]any{"attendee_name": "Ada"}},
	}})

	waitFor(t, "tool result", func() bool { return len(conn.Results()) == 1 })
	res := conn.Results()[0]
	if res.ID != "call-1" {
		t.Errorf("result id = %q, want call-1", res.ID)
	}
	if !strings.Contains(res.Text, "appointment request has been logged") {
		t.Errorf("result text = %q, want the booking confirmation", res.Text)
	}
}

func TestRemoteCloseDisconnects(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	dialer.Conn().Close()

	waitFor(t, "disconnected", func() bool { return c.State() == Disconnected })
	waitFor(t, "capture closed", func() bool { return actx.Capture().Closed() })
	if notices := sink.Notices(); len(notices) != 0 {
		t.Errorf("clean close produced notices: %v", notices)
	}
}

func TestTransportErrorSurfaces(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	dialer.Conn().Fail(errors.New("stream reset"))

	waitFor(t, "error state", func() bool { return c.State() == Errored })
	waitFor(t, "error notice", func() bool { return len(sink.Notices()) > 0 })
	if notices := sink.Notices(); !strings.Contains(notices[0], "stream reset") {
		t.Errorf("notices = %v, want transport error surfaced", notices)
	}
}

func TestDisconnectIdempotent(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	c := newTestController(actx, dialer, &recordSink{})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := dialer.Conn()

	c.Disconnect()
	c.Disconnect()

	if got := c.State(); got != Disconnected {
		t.Fatalf("state = %v, want Disconnected", got)
	}
	if !conn.IsClosed() {
		t.Error("conn not closed")
	}
	if mic := actx.Capture(); !mic.Closed() {
		t.Error("capture device not closed")
	}
	if pb := actx.Playback(); !pb.Closed() {
		t.Error("playback device not closed")
	}
}

func TestDisconnectWhileDisconnectedIsNoOp(t *testing.T) {
	c := newTestController(audio.NewFakeContext(), live.NewFakeDialer(), &recordSink{})
	c.Disconnect()
	if got := c.State(); got != Disconnected {
		t.Fatalf("state = %v, want Disconnected", got)
	}
}

func TestReconnectAfterErrorStartsFresh(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	sink := &recordSink{}
	c := newTestController(actx, dialer, sink)

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	dialer.Conn().Fail(errors.New("boom"))
	waitFor(t, "error state", func() bool { return c.State() == Errored })

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := c.State(); got != Connected {
		t.Fatalf("state = %v, want Connected", got)
	}
	if got := dialer.Dials(); got != 2 {
		t.Errorf("dials = %d, want 2", got)
	}

	// The fresh conversation streams through the new conn only.
	mic := actx.Capture()
	samples := make([]float32, codec.BlockSize)
	for i := range samples {
		samples[i] = 0.1
	}
	mic.Push(samples)
	conn := dialer.Conn()
	waitFor(t, "sent audio on new conn", func() bool { return len(conn.SentAudio()) == 1 })
}

func TestStaleToolResultDiscarded(t *testing.T) {
	actx := audio.NewFakeContext()
	dialer := live.NewFakeDialer()
	c := newTestController(actx, dialer, &recordSink{})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	conn := dialer.Conn()

	// Tear down before dispatching against the old conversation directly.
	c.mu.Lock()
	conv := c.conv
	c.mu.Unlock()
	c.Disconnect()
	c.dispatchTool(conv, live.ToolCall{ID: "late", Name: "book_meeting"})

	if got := len(conn.Results()); got != 0 {
		t.Errorf("stale result was sent, results = %d", got)
	}
}
