package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	convFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		if !filepath.IsAbs(flagPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, flagPath), nil
		}
		return flagPath, nil
	}

	// Priority 2: ARIA_LOG_PATH environment variable
	envPath := os.Getenv("ARIA_LOG_PATH")
	if envPath != "" {
		if !filepath.IsAbs(envPath) {
			wd, err := os.Getwd()
			if err != nil {
				return "", err
			}
			return filepath.Join(wd, envPath), nil
		}
		return envPath, nil
	}

	// Priority 3: Default OS-specific location
	return getDefaultDir()
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}

	pid = os.Getpid()

	var err error

	diagPath := filepath.Join(dir, "diagnostics_log.txt")
	diagFile, err = os.OpenFile(diagPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}

	convPath := filepath.Join(dir, "conversation_log.txt")
	convFile, err = os.OpenFile(convPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		diagFile.Close()
		return err
	}

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	if convFile != nil {
		convFile.Close()
		convFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

// State records a connection state transition.
func State(from, to string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("from", from).
		Str("to", to).
		Msg("state")
}

// SessionStart records the transport configuration a session opened with.
func SessionStart(transport, model, voice, sessionID string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("transport", transport).
		Str("model", model).
		Str("voice", voice).
		Str("session_id", sessionID).
		Msg("session_start")
}

// SessionStats records the lifetime counters of a finished session.
func SessionStats(s Stats) {
	if !logReady {
		return
	}
	diagLog.Info().
		Float64("duration_s", s.DurationS).
		Int("sent_frames", s.SentFrames).
		Float64("sent_kb", s.SentKB).
		Int("recv_events", s.RecvEvents).
		Int("recv_chunks", s.RecvChunks).
		Int("interruptions", s.Interruptions).
		Int("tool_calls", s.ToolCalls).
		Int("dropped_frames", s.DroppedFrames).
		Msg("session_end")
}

type Stats struct {
	DurationS     float64
	SentFrames    int
	SentKB        float64
	RecvEvents    int
	RecvChunks    int
	Interruptions int
	ToolCalls     int
	DroppedFrames int
}

// ToolCall appends one line per dispatched tool call to the conversation
// log, alongside the structured diagnostics entry.
func ToolCall(name, id string, ok bool) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("tool", name).
		Str("call_id", id).
		Bool("ok", ok).
		Msg("tool_call")

	logMu.Lock()
	defer logMu.Unlock()
	if convFile == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	line := fmt.Sprintf("%s\t[%d]\t%s\t%s\t%s\n", time.Now().Format("2006-01-02 15:04:05"), pid, name, id, status)
	convFile.WriteString(line)
}
