package main

import (
	"encoding/binary"
	"sync"
	"time"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"

	"aria/codec"
)

const (
	vadMode       = 3
	vadFrameMs    = 20
	vadFrameLen   = codec.CaptureRate * vadFrameMs / 1000 // samples per VAD frame
	vadDebounce   = 3                                     // consecutive speech frames to confirm voice
	speechTickMin = 0.10                                  // fraction of speech frames per tick to count as "speaking"
)

// vadProcessor chops the capture stream into 20ms frames and runs them
// through WebRTC VAD to drive the listening indicator and the silence
// monitor.
type vadProcessor struct {
	vad *webrtcvad.VAD

	mu            sync.Mutex
	buf           []float32
	pcm           []byte
	voiceDetected bool
	lastVoiceTime time.Time
	speechRun     int
	totalFrames   int
	speechFrames  int
	tickTotal     int
	tickSpeech    int
}

func newVADProcessor() (*vadProcessor, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, err
	}
	if err := v.SetMode(vadMode); err != nil {
		return nil, err
	}
	return &vadProcessor{vad: v, pcm: make([]byte, vadFrameLen*2)}, nil
}

func (p *vadProcessor) Process(samples []float32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.buf = append(p.buf, samples...)
	for len(p.buf) >= vadFrameLen {
		frame := p.buf[:vadFrameLen]
		p.buf = p.buf[vadFrameLen:]

		for i, s := range frame {
			if s > 1 {
				s = 1
			} else if s < -1 {
				s = -1
			}
			binary.LittleEndian.PutUint16(p.pcm[i*2:], uint16(int16(s*32767)))
		}

		active, err := p.vad.Process(codec.CaptureRate, p.pcm)
		if err != nil {
			continue
		}
		p.totalFrames++
		if active {
			p.speechFrames++
			p.speechRun++
			if p.voiceDetected {
				p.lastVoiceTime = time.Now()
			} else if p.speechRun >= vadDebounce {
				p.voiceDetected = true
				p.lastVoiceTime = time.Now()
			}
		} else {
			p.speechRun = 0
		}
	}
}

func (p *vadProcessor) VoiceDetected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voiceDetected
}

func (p *vadProcessor) LastVoiceTime() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastVoiceTime
}

// HasSpeechTick reports whether enough of the frames seen since the last
// call were speech. One call per supervision tick.
func (p *vadProcessor) HasSpeechTick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	t := p.totalFrames - p.tickTotal
	s := p.speechFrames - p.tickSpeech
	p.tickTotal, p.tickSpeech = p.totalFrames, p.speechFrames
	if t == 0 {
		return false
	}
	return float64(s)/float64(t) >= speechTickMin
}

func (p *vadProcessor) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf = p.buf[:0]
	p.voiceDetected = false
	p.lastVoiceTime = time.Time{}
	p.speechRun = 0
	p.tickTotal = p.totalFrames
	p.tickSpeech = p.speechFrames
}
