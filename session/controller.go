// Package session owns the conversation lifecycle: one controller, one live
// connection at a time, with capture and playback torn down together.
package session

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"aria/audio"
	"aria/codec"
	"aria/live"
	"aria/log"
	"aria/player"
	"aria/tools"
)

// State is the controller's connection state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Errored
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Errored:
		return "error"
	}
	return "unknown"
}

// EventSink receives UI-facing updates. Calls may arrive from the capture
// callback or the receive loop, so implementations must be safe for
// concurrent use.
type EventSink interface {
	StateChanged(s State)
	ModelSpeaking(on bool)
	Capturing(on bool)
	AudioLevel(level float64)
	ToolAction(name, result string)
	Notify(msg string)
}

type nopSink struct{}

func (nopSink) StateChanged(State)        {}
func (nopSink) ModelSpeaking(bool)        {}
func (nopSink) Capturing(bool)            {}
func (nopSink) AudioLevel(float64)        {}
func (nopSink) ToolAction(string, string) {}
func (nopSink) Notify(string)             {}

// Config carries the per-controller settings fixed at construction.
type Config struct {
	Device      *audio.DeviceInfo
	Model       string
	Voice       string
	Instruction string

	// Tap observes every outbound capture frame. Used by the app shell for
	// speech detection; may be nil.
	Tap func(f codec.Frame)
}

// conversation bundles everything built by one successful Connect. It is
// replaced wholesale on reconnect; the generation number lets stale
// callbacks from a previous conversation recognize themselves and bail.
type conversation struct {
	gen      uint64
	capture  audio.CaptureDevice
	pipeline *audio.Pipeline
	sched    *player.Scheduler
	conn     live.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	started  time.Time

	sentFrames    atomic.Uint64
	recvEvents    atomic.Uint64
	recvChunks    atomic.Uint64
	interruptions atomic.Uint64
	toolCalls     atomic.Uint64
	droppedFrames atomic.Uint64
	sentBytes     atomic.Uint64
}

// Controller drives connect/disconnect and routes transport events to the
// playback scheduler and tool router.
type Controller struct {
	actx   audio.Context
	dialer live.Dialer
	router *tools.Router
	cfg    Config
	sink   EventSink

	mu    sync.Mutex
	state State
	gen   uint64
	conv  *conversation
}

// New builds a controller. A nil sink is replaced with a no-op one.
func New(actx audio.Context, dialer live.Dialer, router *tools.Router, cfg Config, sink EventSink) *Controller {
	if sink == nil {
		sink = nopSink{}
	}
	return &Controller{
		actx:   actx,
		dialer: dialer,
		router: router,
		cfg:    cfg,
		sink:   sink,
		state:  Disconnected,
	}
}

// SetDevice changes the capture device used by the next Connect. It does
// not touch a conversation that is already up.
func (c *Controller) SetDevice(dev *audio.DeviceInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Device = dev
}

// State returns the current connection state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect acquires the capture device, playback scheduler and live channel,
// then starts streaming. It is a no-op while already connecting or
// connected; from the error state it starts fresh.
func (c *Controller) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state == Connecting || c.state == Connected {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	cfg := c.cfg
	c.setStateLocked(Connecting)
	c.mu.Unlock()

	conv, err := c.buildConversation(ctx, gen, cfg)
	if err != nil {
		c.mu.Lock()
		held := c.gen == gen
		if held {
			c.setStateLocked(Errored)
		}
		c.mu.Unlock()
		log.Errorf("connect failed: %v", err)
		if held {
			c.sink.Notify("Error: " + err.Error())
		}
		return err
	}

	c.mu.Lock()
	if c.gen != gen {
		// Disconnect raced us; discard everything we just built.
		c.mu.Unlock()
		conv.teardown()
		return nil
	}
	c.conv = conv
	c.setStateLocked(Connected)
	c.mu.Unlock()

	log.SessionStart(c.dialer.Name(), cfg.Model, cfg.Voice, c.router.SessionID())
	go c.receiveLoop(conv)
	return nil
}

func (c *Controller) buildConversation(ctx context.Context, gen uint64, cfg Config) (*conversation, error) {
	capture, err := c.actx.NewCapture(cfg.Device, audio.CaptureConfig{
		SampleRate: codec.CaptureRate,
		Channels:   codec.Channels,
	})
	if err != nil {
		return nil, err
	}

	conv := &conversation{gen: gen, capture: capture, started: time.Now()}
	conv.ctx, conv.cancel = context.WithCancel(context.Background())

	conv.sched, err = player.New(c.actx, func() {
		if c.holds(gen) {
			c.sink.ModelSpeaking(false)
		}
	})
	if err != nil {
		conv.teardown()
		return nil, err
	}

	scfg := live.SessionConfig{
		Model:       cfg.Model,
		Voice:       cfg.Voice,
		Instruction: cfg.Instruction,
		Tools:       tools.Declarations(),
	}
	conv.conn, err = c.dialer.Dial(ctx, scfg)
	if err != nil {
		conv.teardown()
		return nil, err
	}

	conv.pipeline = audio.NewPipeline(capture)
	if err := conv.pipeline.Start(func(f codec.Frame) {
		c.onCaptureFrame(conv, f)
	}); err != nil {
		conv.teardown()
		return nil, err
	}
	return conv, nil
}

// holds reports whether gen is still the live conversation.
func (c *Controller) holds(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen == gen && c.conv != nil
}

func (c *Controller) onCaptureFrame(conv *conversation, f codec.Frame) {
	if !c.holds(conv.gen) {
		return
	}
	if c.cfg.Tap != nil {
		c.cfg.Tap(f)
	}
	payload := codec.Encode(f.Samples)
	if err := conv.conn.SendAudio(payload); err != nil {
		conv.droppedFrames.Add(1)
		log.Warnf("send audio: %v", err)
		return
	}
	conv.sentFrames.Add(1)
	conv.sentBytes.Add(uint64(len(payload)))
	c.sink.AudioLevel(rms(f.Samples))
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func (c *Controller) receiveLoop(conv *conversation) {
	for {
		ev, err := conv.conn.Recv()
		if err != nil {
			c.finish(conv, err)
			return
		}
		if !c.holds(conv.gen) {
			return
		}
		conv.recvEvents.Add(1)
		c.handleEvent(conv, ev)
	}
}

func (c *Controller) handleEvent(conv *conversation, ev live.Event) {
	if ev.Interrupted {
		conv.interruptions.Add(1)
		conv.sched.Interrupt()
		c.sink.ModelSpeaking(false)
		log.Info("model_interrupted")
	}
	for _, payload := range ev.Audio {
		frame, err := codec.Decode(payload, codec.PlaybackRate, codec.Channels)
		if err != nil {
			// A malformed chunk is dropped; the stream continues.
			log.Warnf("audio chunk dropped: %v", err)
			continue
		}
		conv.recvChunks.Add(1)
		conv.sched.Enqueue(frame)
		c.sink.ModelSpeaking(true)
	}
	for _, call := range ev.ToolCalls {
		conv.toolCalls.Add(1)
		go c.dispatchTool(conv, call)
	}
}

// dispatchTool runs one tool call and sends its result as soon as it is
// ready. Results from a torn-down conversation are discarded.
func (c *Controller) dispatchTool(conv *conversation, call live.ToolCall) {
	result := c.router.Dispatch(conv.ctx, call)
	if !c.holds(conv.gen) {
		return
	}
	c.sink.ToolAction(result.Name, result.Text)
	if err := conv.conn.SendToolResults([]live.ToolResult{result}); err != nil {
		log.Warnf("send tool result: %v", err)
	}
}

// finish handles receive-loop exit: a clean remote close lands in
// Disconnected, anything else in Errored with the message surfaced.
func (c *Controller) finish(conv *conversation, err error) {
	c.mu.Lock()
	if c.gen != conv.gen || c.conv == nil {
		c.mu.Unlock()
		return
	}
	c.gen++
	c.conv = nil
	if errors.Is(err, io.EOF) {
		c.setStateLocked(Disconnected)
	} else {
		c.setStateLocked(Errored)
	}
	c.mu.Unlock()

	c.closeOut(conv)
	if !errors.Is(err, io.EOF) {
		log.Errorf("session error: %v", err)
		c.sink.Notify("Error: " + err.Error())
	}
}

// Disconnect tears down the current conversation. Calling it again, or
// while disconnected, does nothing.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	conv := c.conv
	if conv == nil {
		if c.state != Disconnected {
			c.gen++
			c.setStateLocked(Disconnected)
		}
		c.mu.Unlock()
		return
	}
	c.gen++
	c.conv = nil
	c.setStateLocked(Disconnected)
	c.mu.Unlock()

	c.closeOut(conv)
}

func (c *Controller) closeOut(conv *conversation) {
	conv.teardown()
	c.sink.ModelSpeaking(false)
	c.sink.Capturing(false)
	c.sink.AudioLevel(0)
	log.SessionStats(log.Stats{
		DurationS:     time.Since(conv.started).Seconds(),
		SentFrames:    int(conv.sentFrames.Load()),
		SentKB:        float64(conv.sentBytes.Load()) / 1024.0,
		RecvEvents:    int(conv.recvEvents.Load()),
		RecvChunks:    int(conv.recvChunks.Load()),
		Interruptions: int(conv.interruptions.Load()),
		ToolCalls:     int(conv.toolCalls.Load()),
		DroppedFrames: int(conv.droppedFrames.Load()),
	})
}

// setStateLocked requires c.mu held.
func (c *Controller) setStateLocked(s State) {
	if c.state == s {
		return
	}
	log.State(c.state.String(), s.String())
	c.state = s
	c.sink.StateChanged(s)
}

// teardown releases whatever parts of the conversation were built, in the
// reverse order they came up. Safe on a partially built conversation.
func (v *conversation) teardown() {
	if v.cancel != nil {
		v.cancel()
	}
	if v.pipeline != nil {
		v.pipeline.Stop()
	}
	if v.capture != nil {
		v.capture.Close()
	}
	if v.sched != nil {
		v.sched.Teardown()
	}
	if v.conn != nil {
		v.conn.Close()
	}
}
