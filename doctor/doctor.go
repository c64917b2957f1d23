// Package doctor runs interactive system diagnostics: environment,
// microphone capture, speaker playback and backend reachability.
package doctor

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"aria/audio"
	"aria/codec"
	"aria/tools"
)

// Run executes the diagnostic checks and returns an exit code (0=all pass,
// 1=any fail).
func Run() int {
	resetTerminal()
	setupInterruptHandler()

	fmt.Println("aria doctor - interactive system diagnostics")
	fmt.Println("============================================")

	allPass := true

	if !checkEnvironment() {
		allPass = false
	}
	if allPass && !checkMicrophone() {
		allPass = false
	}
	if allPass && !checkSpeaker() {
		allPass = false
	}
	if allPass && !checkBackend() {
		allPass = false
	}

	fmt.Println()
	if allPass {
		fmt.Println("All checks passed!")
	} else {
		fmt.Println("Some checks failed. See details above.")
	}

	if allPass {
		return 0
	}
	return 1
}

func checkEnvironment() bool {
	fmt.Println()
	fmt.Println("[1/4] Environment")

	pass := true
	if os.Getenv("GEMINI_API_KEY") == "" {
		fmt.Println("  FAIL: GEMINI_API_KEY is not set")
		pass = false
	} else {
		fmt.Println("  PASS: GEMINI_API_KEY is set")
	}
	if os.Getenv("ARIA_BACKEND_URL") == "" {
		fmt.Println("  FAIL: ARIA_BACKEND_URL is not set")
		pass = false
	} else {
		fmt.Println("  PASS: ARIA_BACKEND_URL is set")
	}
	if os.Getenv("ARIA_BACKEND_KEY") == "" {
		fmt.Println("  Warning: ARIA_BACKEND_KEY is not set, backend calls go out unauthenticated")
	}
	return pass
}

func checkMicrophone() bool {
	fmt.Println()
	fmt.Println("[2/4] Microphone capture")

	reader := bufio.NewReader(os.Stdin)

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	devices, err := ctx.Devices()
	if err != nil {
		fmt.Printf("  FAIL: cannot list devices: %v\n", err)
		return false
	}
	if len(devices) == 0 {
		fmt.Println("  FAIL: no capture devices found")
		return false
	}

	var device *audio.DeviceInfo
	if len(devices) == 1 {
		device = &devices[0]
		fmt.Printf("Using device: %s\n", device.Name)
	} else {
		fmt.Println()
		fmt.Println("Select input device:")
		for i, d := range devices {
			fmt.Printf("  %d. %s\n", i+1, d.Name)
		}
		fmt.Printf("Choice [1-%d]: ", len(devices))

		devChoice, _ := reader.ReadString('\n')
		devChoice = strings.TrimSpace(devChoice)
		idx := 0
		if devChoice != "" {
			fmt.Sscanf(devChoice, "%d", &idx)
			idx--
		}
		if idx < 0 || idx >= len(devices) {
			fmt.Printf("  FAIL: invalid choice\n")
			return false
		}
		device = &devices[idx]
		fmt.Printf("Selected: %s\n", device.Name)
	}

	fmt.Println()
	fmt.Print("Press Enter and speak for 3 seconds...")
	reader.ReadString('\n')

	peak, frames, err := recordPeak(ctx, device, 3*time.Second)
	if err != nil {
		fmt.Printf("  FAIL: recording error: %v\n", err)
		return false
	}
	if frames == 0 {
		fmt.Println("  FAIL: no audio captured")
		return false
	}

	fmt.Printf("  Captured %d frames, peak level %.3f\n", frames, peak)
	if peak < 0.01 {
		fmt.Println("  FAIL: microphone picked up only silence")
		return false
	}
	fmt.Println("  PASS: microphone capture verified")
	return true
}

func recordPeak(ctx audio.Context, device *audio.DeviceInfo, dur time.Duration) (float64, int, error) {
	var mu sync.Mutex
	var peak float64
	var frames int

	captureDevice, err := ctx.NewCapture(device, audio.CaptureConfig{
		SampleRate: codec.CaptureRate,
		Channels:   codec.Channels,
	})
	if err != nil {
		return 0, 0, err
	}
	defer captureDevice.Close()

	pipeline := audio.NewPipeline(captureDevice)
	if err := pipeline.Start(func(f codec.Frame) {
		mu.Lock()
		frames++
		for _, s := range f.Samples {
			if v := math.Abs(float64(s)); v > peak {
				peak = v
			}
		}
		mu.Unlock()
	}); err != nil {
		return 0, 0, err
	}

	fmt.Print("  Recording")
	done := make(chan struct{})
	ticker := time.NewTicker(500 * time.Millisecond)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				fmt.Print(".")
			}
		}
	}()

	time.Sleep(dur)
	close(done)
	pipeline.Stop()
	fmt.Println(" done")

	mu.Lock()
	defer mu.Unlock()
	return peak, frames, nil
}

func checkSpeaker() bool {
	fmt.Println()
	fmt.Println("[3/4] Speaker playback")

	ctx, err := audio.NewContext()
	if err != nil {
		fmt.Printf("  FAIL: cannot connect to audio: %v\n", err)
		return false
	}
	defer ctx.Close()

	// 440Hz tone, one second at the playback rate
	tone := make([]float32, codec.PlaybackRate)
	for i := range tone {
		tone[i] = 0.3 * float32(math.Sin(2*math.Pi*440*float64(i)/float64(codec.PlaybackRate)))
	}

	var mu sync.Mutex
	pos := 0
	dev, err := ctx.NewPlayback(audio.PlaybackConfig{
		SampleRate: codec.PlaybackRate,
		Channels:   codec.Channels,
	}, func(out []float32) {
		mu.Lock()
		n := copy(out, tone[pos:])
		pos += n
		mu.Unlock()
		for i := n; i < len(out); i++ {
			out[i] = 0
		}
	})
	if err != nil {
		fmt.Printf("  FAIL: cannot open playback device: %v\n", err)
		return false
	}
	if err := dev.Start(); err != nil {
		dev.Close()
		fmt.Printf("  FAIL: cannot start playback: %v\n", err)
		return false
	}
	fmt.Println("  Playing a one second test tone...")
	time.Sleep(1500 * time.Millisecond)
	dev.Stop()
	dev.Close()

	confirmReader := bufio.NewReader(os.Stdin)
	fmt.Print("Did you hear the tone? [y/n]: ")
	confirm, _ := confirmReader.ReadString('\n')
	confirm = strings.TrimSpace(strings.ToLower(confirm))

	if confirm == "y" || confirm == "yes" {
		fmt.Println("  PASS: playback verified by user")
		return true
	}
	fmt.Println("  FAIL: playback not confirmed")
	return false
}

func checkBackend() bool {
	fmt.Println()
	fmt.Println("[4/4] Backend reachability")

	backend, err := tools.NewBackend()
	if err != nil {
		fmt.Printf("  FAIL: %v\n", err)
		return false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	answer, err := backend.Query(ctx, "ping", "doctor")
	if err != nil {
		fmt.Printf("  FAIL: knowledge base query: %v\n", err)
		return false
	}
	if strings.TrimSpace(answer) == "" {
		fmt.Println("  Warning: backend reachable but returned an empty answer")
	}
	fmt.Println("  PASS: backend reachable")
	return true
}
