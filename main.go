package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"aria/audio"
	"aria/beep"
	"aria/codec"
	"aria/doctor"
	"aria/live"
	"aria/log"
	"aria/session"
	"aria/shutdown"
	"aria/tools"
)

var version = "dev"

const defaultInstruction = "You are Aria, a friendly voice assistant for our company. " +
	"Answer questions using the query_knowledge_base tool, book meetings with " +
	"book_meeting, open support tickets with create_support_ticket and record " +
	"sales interest with log_sales_interest. Keep answers short and spoken-word " +
	"friendly. Confirm details back to the caller before booking or logging anything."

var (
	connectChan      = make(chan struct{}, 1)
	disconnectChan   = make(chan struct{}, 1)
	deviceSelectChan = make(chan struct{}, 1)
)

func requestConnect() {
	select {
	case connectChan <- struct{}{}:
	default:
	}
}

func requestDisconnect() {
	select {
	case disconnectChan <- struct{}{}:
	default:
	}
}

func requestDeviceSelect() {
	select {
	case deviceSelectChan <- struct{}{}:
	default:
	}
}

var shutdownOnce sync.Once

func gracefulShutdown(ctrl *session.Controller) {
	shutdownOnce.Do(func() {
		if ctrl != nil {
			ctrl.Disconnect()
		}
		log.Close()
		tuiMu.Lock()
		p := tuiProgram
		tuiMu.Unlock()
		if p != nil {
			p.Quit()
		}
		os.Exit(0)
	})
}

func deviceLineText(dev *audio.DeviceInfo) string {
	name := "system default"
	suffix := ""
	if dev != nil {
		name = dev.Name
		if audio.IsBluetooth(dev.Name) {
			suffix = " (BT!)"
		}
	}
	return "mic: " + name + suffix + " (ctrl+g)"
}

func modeLineText(transport, model, voice string) string {
	return fmt.Sprintf("[%s | %s | %s]", transport, model, voice)
}

func main() {
	run()
}

func run() {
	// A .env next to the binary is the easiest way to carry keys around.
	_ = godotenv.Load()

	setupFlag := flag.Bool("setup", false, "Select microphone device (otherwise uses system default)")
	deviceFlag := flag.String("device", "", "Use named microphone device")
	modelFlag := flag.String("model", live.DefaultModel, "Model id for the live session")
	voiceFlag := flag.String("voice", live.DefaultVoice, "Voice name for synthesized speech")
	promptFlag := flag.String("prompt", "", "Path to a system instruction file (default: built-in persona)")
	autoConnectFlag := flag.Bool("connect", false, "Connect immediately on startup")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	doctorFlag := flag.Bool("doctor", false, "Run system diagnostics and exit")
	crashFlag := flag.Bool("crash", false, "Trigger synthetic panic for testing crash logging")
	logPathFlag := flag.String("logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	profileFlag := flag.String("profile", "", "Enable pprof profiling server (e.g., :6060 or localhost:6060)")
	tuiFlag := flag.Bool("tui", true, "Run with terminal UI")
	flag.Parse()

	// Resolve log directory early
	logPath, err := log.ResolveDir(*logPathFlag)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)

	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}

	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err == nil {
		fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
		debug.SetCrashOutput(crashFile, debug.CrashOptions{})
	}

	if *profileFlag != "" {
		go func() {
			fmt.Fprintf(os.Stderr, "pprof server listening on http://%s/debug/pprof/\n", *profileFlag)
			if err := http.ListenAndServe(*profileFlag, nil); err != nil {
				fmt.Fprintf(os.Stderr, "pprof server error: %v\n", err)
			}
		}()
	}

	if *crashFlag {
		panic("TEST CRASH: synthetic panic to verify crash logging")
	}

	if *versionFlag {
		fmt.Printf("aria %s\n", version)
		os.Exit(0)
	}

	if *doctorFlag {
		os.Exit(doctor.Run())
	}

	instruction := defaultInstruction
	if *promptFlag != "" {
		data, err := os.ReadFile(*promptFlag)
		if err != nil {
			fmt.Printf("Error reading prompt file: %v\n", err)
			os.Exit(1)
		}
		instruction = string(data)
	}

	dialer, err := live.New()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	backend, err := tools.NewBackend()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	sessionID := uuid.NewString()
	router := tools.NewRouter(backend, backend, sessionID)

	actx, err := audio.NewContext()
	if err != nil {
		log.Errorf("audio context init error: %v", err)
		fmt.Printf("Error initializing audio context: %v\n", err)
		os.Exit(1)
	}
	defer actx.Close()

	var selectedDevice *audio.DeviceInfo
	if *deviceFlag != "" {
		if devices, err := actx.Devices(); err == nil {
			for i := range devices {
				if devices[i].Name == *deviceFlag {
					selectedDevice = &devices[i]
					break
				}
			}
		}
	} else if *setupFlag {
		selectedDevice, err = audio.SelectDevice(actx)
		if err != nil {
			log.Warnf("device selection failed: %v", err)
			fmt.Printf("Warning: device selection failed: %v\n", err)
			fmt.Println("Falling back to default device")
			selectedDevice = nil
		}
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}

	vp, err := newVADProcessor()
	if err != nil {
		log.Errorf("VAD init error: %v", err)
		fmt.Printf("Error initializing voice detection: %v\n", err)
		os.Exit(1)
	}

	ctrl := session.New(actx, dialer, router, session.Config{
		Device:      selectedDevice,
		Model:       *modelFlag,
		Voice:       *voiceFlag,
		Instruction: instruction,
		Tap:         func(f codec.Frame) { vp.Process(f.Samples) },
	}, tuiSink{})

	// Start TUI
	if !*tuiFlag {
		tuiReadyOnce.Do(func() { close(tuiReady) })
	} else {
		tuiMu.Lock()
		tuiProgram = NewTUIProgram()
		tuiMu.Unlock()

		go func() {
			if _, err := tuiProgram.Run(); err != nil {
				log.Errorf("TUI error: %v", err)
				os.Exit(1)
			}
			gracefulShutdown(ctrl)
		}()

		<-tuiReady
	}

	sigChan := make(chan os.Signal, 1)
	shutdown.Notify(sigChan)
	go func() {
		<-sigChan
		gracefulShutdown(ctrl)
	}()

	go beep.Init()

	tuiSend(ModeLineMsg{Text: modeLineText(dialer.Name(), *modelFlag, *voiceFlag)})
	tuiSend(DeviceLineMsg{Text: deviceLineText(selectedDevice)})

	connect := func() {
		vp.Reset()
		go func() { _ = ctrl.Connect(context.Background()) }()
	}

	if *autoConnectFlag {
		connect()
	}

	mon := newSilenceMonitor()
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	connectedAt := time.Now()
	wasConnected := false

	for {
		select {
		case <-connectChan:
			connect()

		case <-disconnectChan:
			ctrl.Disconnect()

		case <-deviceSelectChan:
			if ctrl.State() == session.Connected || ctrl.State() == session.Connecting {
				tuiSend(NoticeMsg{Text: "Hang up before switching the microphone."})
				continue
			}
			selectedDevice = handleDeviceSwitch(actx, selectedDevice)
			ctrl.SetDevice(selectedDevice)
			tuiSend(DeviceLineMsg{Text: deviceLineText(selectedDevice)})

		case <-ticker.C:
			connected := ctrl.State() == session.Connected
			if connected && !wasConnected {
				connectedAt = time.Now()
				mon.Reset()
				vp.Reset()
			}
			wasConnected = connected
			if !connected {
				continue
			}

			tuiSend(SessionTickMsg{Duration: time.Since(connectedAt).Seconds()})
			hasSpeech := vp.HasSpeechTick()
			tuiSend(CapturingMsg{On: hasSpeech})

			switch mon.Tick(hasSpeech) {
			case SilenceWarn:
				log.Info("no_voice_warning")
				tuiSend(NoVoiceWarningMsg{})
				go beep.PlayError()
			case SilenceWarnClear:
				tuiSend(VoiceClearedMsg{})
			case SilenceRepeat:
				log.Info("silence_during_warning")
				tuiSend(NoVoiceWarningMsg{})
				go beep.PlayError()
			case SilenceHangup:
				log.Info("silence_hangup")
				tuiSend(NoticeMsg{Text: "No voice picked up for a while, hanging up."})
				ctrl.Disconnect()
			}
		}
	}
}

func handleDeviceSwitch(actx audio.Context, current *audio.DeviceInfo) *audio.DeviceInfo {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()
	if p != nil {
		p.ReleaseTerminal()
	}
	newDevice, err := audio.SelectDevice(actx)
	if p != nil {
		p.RestoreTerminal()
	}

	if err != nil {
		log.Warnf("device selection failed: %v", err)
		return current
	}
	if newDevice == nil {
		return current
	}
	log.Info("device_switch: " + newDevice.Name)
	return newDevice
}
