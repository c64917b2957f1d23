package live

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"

	"nhooyr.io/websocket"
)

const (
	geminiEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	DefaultModel = "models/gemini-2.0-flash-live-001"
	DefaultVoice = "Puck"

	captureMime = "audio/pcm;rate=16000"

	// Audio-bearing server messages run well past the library default.
	readLimit = 1 << 24
)

type Gemini struct {
	apiKey string
}

func NewGemini(apiKey string) *Gemini {
	return &Gemini{apiKey: apiKey}
}

func (g *Gemini) Name() string { return "gemini" }

// Wire types for BidiGenerateContent. Only the fields this client touches.

type wireContent struct {
	Role  string     `json:"role,omitempty"`
	Parts []wirePart `json:"parts"`
}

type wirePart struct {
	Text       string    `json:"text,omitempty"`
	InlineData *wireBlob `json:"inlineData,omitempty"`
}

type wireBlob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type wireSchema struct {
	Type        string                `json:"type"`
	Properties  map[string]wireSchema `json:"properties,omitempty"`
	Required    []string              `json:"required,omitempty"`
	Description string                `json:"description,omitempty"`
}

type wireFunctionDecl struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Parameters  *wireSchema `json:"parameters,omitempty"`
}

type setupMessage struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			ResponseModalities []string `json:"responseModalities"`
			SpeechConfig       *struct {
				VoiceConfig struct {
					PrebuiltVoiceConfig struct {
						VoiceName string `json:"voiceName"`
					} `json:"prebuiltVoiceConfig"`
				} `json:"voiceConfig"`
			} `json:"speechConfig,omitempty"`
		} `json:"generationConfig"`
		SystemInstruction *wireContent `json:"systemInstruction,omitempty"`
		Tools             []struct {
			FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
		} `json:"tools,omitempty"`
	} `json:"setup"`
}

type realtimeInputMessage struct {
	RealtimeInput struct {
		MediaChunks []wireBlob `json:"mediaChunks"`
	} `json:"realtimeInput"`
}

type toolResponseMessage struct {
	ToolResponse struct {
		FunctionResponses []wireFunctionResponse `json:"functionResponses"`
	} `json:"toolResponse"`
}

type wireFunctionResponse struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

type serverMessage struct {
	SetupComplete *struct{} `json:"setupComplete"`
	ServerContent *struct {
		ModelTurn    *wireContent `json:"modelTurn"`
		Interrupted  bool         `json:"interrupted"`
		TurnComplete bool         `json:"turnComplete"`
	} `json:"serverContent"`
	ToolCall *struct {
		FunctionCalls []struct {
			ID   string         `json:"id"`
			Name string         `json:"name"`
			Args map[string]any `json:"args"`
		} `json:"functionCalls"`
	} `json:"toolCall"`
}

func buildSetup(cfg SessionConfig) setupMessage {
	var msg setupMessage
	msg.Setup.Model = cfg.Model
	if msg.Setup.Model == "" {
		msg.Setup.Model = DefaultModel
	}
	msg.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	voice := cfg.Voice
	if voice == "" {
		voice = DefaultVoice
	}
	sc := &struct {
		VoiceConfig struct {
			PrebuiltVoiceConfig struct {
				VoiceName string `json:"voiceName"`
			} `json:"prebuiltVoiceConfig"`
		} `json:"voiceConfig"`
	}{}
	sc.VoiceConfig.PrebuiltVoiceConfig.VoiceName = voice
	msg.Setup.GenerationConfig.SpeechConfig = sc

	if cfg.Instruction != "" {
		msg.Setup.SystemInstruction = &wireContent{Parts: []wirePart{{Text: cfg.Instruction}}}
	}
	if len(cfg.Tools) > 0 {
		decls := make([]wireFunctionDecl, 0, len(cfg.Tools))
		for _, t := range cfg.Tools {
			decl := wireFunctionDecl{Name: t.Name, Description: t.Description}
			if len(t.Params) > 0 {
				props := make(map[string]wireSchema, len(t.Params))
				for name, p := range t.Params {
					props[name] = wireSchema{Type: p.Type, Description: p.Description}
				}
				decl.Parameters = &wireSchema{Type: "object", Properties: props, Required: t.Required}
			}
			decls = append(decls, decl)
		}
		msg.Setup.Tools = []struct {
			FunctionDeclarations []wireFunctionDecl `json:"functionDeclarations"`
		}{{FunctionDeclarations: decls}}
	}
	return msg
}

// Dial opens the websocket, sends the setup message and waits for the
// server's setup acknowledgment, so a returned Conn is fully open.
func (g *Gemini) Dial(ctx context.Context, cfg SessionConfig) (Conn, error) {
	endpoint, err := url.Parse(geminiEndpoint)
	if err != nil {
		return nil, err
	}
	q := endpoint.Query()
	q.Set("key", g.apiKey)
	endpoint.RawQuery = q.Encode()

	streamCtx, cancel := context.WithCancel(context.Background())
	conn, _, err := websocket.Dial(ctx, endpoint.String(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: dial: %v", ErrTransport, err)
	}
	conn.SetReadLimit(readLimit)

	c := &geminiConn{conn: conn, ctx: streamCtx, cancel: cancel}

	setup, err := json.Marshal(buildSetup(cfg))
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := conn.Write(ctx, websocket.MessageText, setup); err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: setup: %v", ErrTransport, err)
	}

	_, data, err := conn.Read(ctx)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("%w: setup ack: %v", ErrTransport, err)
	}
	var ack serverMessage
	if err := json.Unmarshal(data, &ack); err != nil || ack.SetupComplete == nil {
		c.Close()
		return nil, fmt.Errorf("%w: unexpected setup response", ErrTransport)
	}

	return c, nil
}

type geminiConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func (c *geminiConn) SendAudio(payload string) error {
	var msg realtimeInputMessage
	msg.RealtimeInput.MediaChunks = []wireBlob{{MimeType: captureMime, Data: payload}}
	return c.writeJSON(msg)
}

func (c *geminiConn) SendToolResults(results []ToolResult) error {
	if len(results) == 0 {
		return nil
	}
	var msg toolResponseMessage
	for _, r := range results {
		msg.ToolResponse.FunctionResponses = append(msg.ToolResponse.FunctionResponses, wireFunctionResponse{
			ID:       r.ID,
			Name:     r.Name,
			Response: map[string]any{"result": r.Text},
		})
	}
	return c.writeJSON(msg)
}

func (c *geminiConn) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := c.conn.Write(c.ctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	return nil
}

func (c *geminiConn) Recv() (Event, error) {
	for {
		_, data, err := c.conn.Read(c.ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return Event{}, io.EOF
			}
			if c.ctx.Err() != nil {
				return Event{}, io.EOF
			}
			return Event{}, fmt.Errorf("%w: %v", ErrTransport, err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return Event{}, fmt.Errorf("%w: decode: %v", ErrTransport, err)
		}

		ev, ok := decodeServerMessage(msg)
		if !ok {
			continue // keepalive or unhandled message kind
		}
		return ev, nil
	}
}

func decodeServerMessage(msg serverMessage) (Event, bool) {
	var ev Event
	hit := false
	if sc := msg.ServerContent; sc != nil {
		if sc.ModelTurn != nil {
			for _, part := range sc.ModelTurn.Parts {
				if part.InlineData != nil && part.InlineData.Data != "" {
					ev.Audio = append(ev.Audio, part.InlineData.Data)
				}
			}
		}
		ev.Interrupted = sc.Interrupted
		ev.TurnComplete = sc.TurnComplete
		hit = true
	}
	if tc := msg.ToolCall; tc != nil {
		for _, fc := range tc.FunctionCalls {
			ev.ToolCalls = append(ev.ToolCalls, ToolCall{ID: fc.ID, Name: fc.Name, Args: fc.Args})
		}
		hit = true
	}
	return ev, hit
}

func (c *geminiConn) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
