// Package live provides the bidirectional speech transport: microphone audio
// goes up as encoded realtime input, synthesized speech, interruption signals
// and tool calls come back as events.
package live

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrTransport reports a failure opening or using the streaming channel.
var ErrTransport = errors.New("transport failure")

// SessionConfig is the fixed configuration the channel is opened with.
type SessionConfig struct {
	Model       string
	Voice       string
	Instruction string
	Tools       []ToolDecl
}

type ToolDecl struct {
	Name        string
	Description string
	Params      map[string]Param
	Required    []string
}

type Param struct {
	Type        string
	Description string
}

// ToolCall is a model-issued request to invoke a named action. Consumed
// exactly once; answered by exactly one ToolResult with the same ID.
type ToolCall struct {
	ID   string
	Name string
	Args map[string]any
}

type ToolResult struct {
	ID   string
	Name string
	Text string
}

// Event is one inbound transport message. Audio payloads are base64 PCM16LE
// at the playback rate, in arrival order.
type Event struct {
	Audio        []string
	Interrupted  bool
	ToolCalls    []ToolCall
	TurnComplete bool
}

// Conn is a live streaming channel. Recv blocks for the next event and
// returns io.EOF on clean close; any other error is a transport error.
type Conn interface {
	SendAudio(payload string) error
	SendToolResults(results []ToolResult) error
	Recv() (Event, error)
	Close() error
}

type Dialer interface {
	Name() string
	Dial(ctx context.Context, cfg SessionConfig) (Conn, error)
}

// New picks the transport from the environment.
func New() (Dialer, error) {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return NewGemini(key), nil
	}
	return nil, fmt.Errorf("set GEMINI_API_KEY environment variable")
}
