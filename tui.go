package main

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"aria/session"
)

// TUI message types
type StateMsg struct{ State session.State }
type SpeakingMsg struct{ On bool }
type CapturingMsg struct{ On bool }
type AudioLevelMsg struct{ Level float64 }
type NoticeMsg struct{ Text string }
type ToolActionMsg struct {
	Name string
	Text string
}
type SessionTickMsg struct{ Duration float64 }
type ModeLineMsg struct{ Text string }
type DeviceLineMsg struct{ Text string }
type NoVoiceWarningMsg struct{}
type VoiceClearedMsg struct{}
type tickMsg time.Time

type toolRecord struct {
	Name string
	Text string
}

type tuiModel struct {
	state           session.State
	speaking        bool
	capturing       bool
	frame           int
	sessionDuration float64
	audioLevel      float64
	width, height   int
	modeLine        string // "[gemini | Puck]"
	deviceLine      string // microphone device name
	notice          string // last error or info line
	noVoice         bool   // silence warning active
	actions         []toolRecord
	actionCount     int
}

var (
	tuiProgram   *tea.Program
	tuiMu        sync.Mutex
	tuiReady     = make(chan struct{})
	tuiReadyOnce sync.Once
)

// Pre-computed pixel styles to avoid allocations in render loop.
// One palette per mood: cool blue while listening, warm amber while the
// model is speaking, dim gray offline.
var (
	pixelColorsSpeak  = []string{"", "230", "229", "223", "216", "208", "202", "166", "130", "94", "236", "236", "236", "236", "255", "249"}
	pixelColorsListen = []string{"", "195", "159", "123", "87", "45", "39", "33", "27", "19", "236", "236", "236", "236", "255", "249"}
	pixelColorsIdle   = []string{"", "255", "252", "250", "248", "245", "243", "241", "239", "237", "236", "236", "236", "236", "255", "249"}
	pixelStylesSpeak  [16]lipgloss.Style
	pixelStylesListen [16]lipgloss.Style
	pixelStylesIdle   [16]lipgloss.Style
	pixelBgSpeak      [16][16]lipgloss.Style
	pixelBgListen     [16][16]lipgloss.Style
	pixelBgIdle       [16][16]lipgloss.Style
)

func init() {
	build := func(colors []string, styles *[16]lipgloss.Style, bg *[16][16]lipgloss.Style) {
		for i, c := range colors {
			if c != "" {
				styles[i] = lipgloss.NewStyle().Foreground(lipgloss.Color(c))
			}
		}
		for i, fg := range colors {
			for j, bgc := range colors {
				if fg != "" && bgc != "" {
					bg[i][j] = lipgloss.NewStyle().Foreground(lipgloss.Color(fg)).Background(lipgloss.Color(bgc))
				}
			}
		}
	}
	build(pixelColorsSpeak, &pixelStylesSpeak, &pixelBgSpeak)
	build(pixelColorsListen, &pixelStylesListen, &pixelBgListen)
	build(pixelColorsIdle, &pixelStylesIdle, &pixelBgIdle)
}

func NewTUIProgram() *tea.Program {
	m := tuiModel{state: session.Disconnected}
	return tea.NewProgram(m, tea.WithAltScreen())
}

func tuiTick() tea.Cmd {
	return tea.Tick(60*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m tuiModel) Init() tea.Cmd {
	tuiReadyOnce.Do(func() { close(tuiReady) })
	return tuiTick()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c", "enter":
			requestConnect()
		case "d", "esc":
			requestDisconnect()
		case "ctrl+g":
			requestDeviceSelect()
		}

	case tickMsg:
		m.frame++
		return m, tuiTick()

	case StateMsg:
		m.state = msg.State
		if msg.State != session.Connected {
			m.speaking = false
			m.capturing = false
			m.audioLevel = 0
			m.noVoice = false
		}
		if msg.State == session.Connecting {
			m.sessionDuration = 0
			m.notice = ""
		}

	case SpeakingMsg:
		m.speaking = msg.On

	case CapturingMsg:
		m.capturing = msg.On

	case AudioLevelMsg:
		if m.state == session.Connected {
			m.audioLevel = m.audioLevel*0.6 + msg.Level*0.4
		}

	case SessionTickMsg:
		m.sessionDuration = msg.Duration

	case NoticeMsg:
		m.notice = msg.Text

	case ToolActionMsg:
		m.actionCount++
		m.actions = append(m.actions, toolRecord{Name: msg.Name, Text: msg.Text})
		if len(m.actions) > 8 {
			m.actions = m.actions[len(m.actions)-8:]
		}

	case ModeLineMsg:
		m.modeLine = msg.Text

	case DeviceLineMsg:
		m.deviceLine = msg.Text

	case NoVoiceWarningMsg:
		m.noVoice = true

	case VoiceClearedMsg:
		m.noVoice = false
	}
	return m, nil
}

func (m tuiModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	const orbWidth = 45
	connected := m.state == session.Connected
	level := m.audioLevel
	if !connected {
		level = 0
	}
	if m.speaking {
		// The orb pulses on its own while the model talks.
		level = 0.04 + 0.03*math.Sin(float64(m.frame)*0.5)
	}

	orb := renderOrb(m.frame, level, connected, m.speaking)

	var infoLines []string

	switch m.state {
	case session.Connected:
		status := lipgloss.NewStyle().
			Foreground(lipgloss.Color("45")).
			Bold(true).
			Render(fmt.Sprintf("● LIVE %s", fmtDuration(m.sessionDuration)))
		infoLines = append(infoLines, status)
		switch {
		case m.speaking:
			infoLines = append(infoLines, lipgloss.NewStyle().
				Foreground(lipgloss.Color("214")).
				Render("  ▶ assistant speaking"))
		case m.capturing:
			infoLines = append(infoLines, lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Render("  ● listening"))
		default:
			infoLines = append(infoLines, lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				Render("  ○ waiting"))
		}
		if m.noVoice {
			infoLines = append(infoLines, lipgloss.NewStyle().
				Foreground(lipgloss.Color("208")).
				Render("  ⚠ no voice picked up"))
		}
	case session.Connecting:
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("226")).
			Render("◌ CONNECTING"))
	case session.Errored:
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true).
			Render("✕ ERROR"))
	default:
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("○ OFFLINE"))
	}

	if m.modeLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Render(m.modeLine))
	}

	if m.deviceLine != "" {
		infoLines = append(infoLines, lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render(m.deviceLine))
	}

	infoLines = append(infoLines, "")

	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	boldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Bold(true)
	if connected || m.state == session.Connecting {
		infoLines = append(infoLines, boldStyle.Render("d")+helpStyle.Render(" hang up  ")+boldStyle.Render("q")+helpStyle.Render(" quit"))
	} else {
		infoLines = append(infoLines, boldStyle.Render("c")+helpStyle.Render(" connect  ")+boldStyle.Render("ctrl+g")+helpStyle.Render(" mic  ")+boldStyle.Render("q")+helpStyle.Render(" quit"))
	}
	infoLines = append(infoLines, helpStyle.Render("aria "+version))

	for _, line := range infoLines {
		orb += line + "\n"
	}

	orbLines := strings.Split(orb, "\n")

	logWidth := m.width - orbWidth - 1
	if logWidth < 20 {
		logWidth = 20
	}

	var logContent strings.Builder
	wrapWidth := logWidth - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	if m.notice != "" {
		noticeStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("208"))
		for _, line := range wrapText(m.notice, wrapWidth) {
			logContent.WriteString(noticeStyle.Render(line) + "\n")
		}
		logContent.WriteString("\n")
	}

	if len(m.actions) > 0 {
		title := lipgloss.NewStyle().
			Foreground(lipgloss.Color("246")).
			Render(fmt.Sprintf("Actions (%d)", m.actionCount))
		logContent.WriteString(title + "\n\n")

		nameStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
		textStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
		for i := len(m.actions) - 1; i >= 0; i-- {
			a := m.actions[i]
			logContent.WriteString(nameStyle.Render(a.Name) + "\n")
			for _, line := range wrapText(a.Text, wrapWidth) {
				logContent.WriteString(textStyle.Render("  "+line) + "\n")
			}
		}
	} else if m.notice == "" {
		placeholder := lipgloss.NewStyle().
			Foreground(lipgloss.Color("241")).
			Render("No actions yet")
		logContent.WriteString(placeholder)
	}

	logPanel := lipgloss.NewStyle().
		Width(logWidth).
		Height(m.height).
		PaddingLeft(1).
		Render(logContent.String())

	// Pad orb panel to full height (orb at top)
	orbPadded := make([]string, m.height)
	for i := range orbPadded {
		if i < len(orbLines) {
			orbPadded[i] = orbLines[i]
		} else {
			orbPadded[i] = strings.Repeat(" ", orbWidth-1)
		}
	}

	orbPanel := lipgloss.NewStyle().
		Width(orbWidth - 1).
		Height(m.height).
		Render(strings.Join(orbPadded, "\n"))

	return lipgloss.JoinHorizontal(lipgloss.Top, orbPanel, logPanel)
}

func fmtDuration(seconds float64) string {
	s := int(seconds)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// renderOrb draws the assistant face: concentric rings rendered two pixels
// per character cell, breathing with whoever is talking.
func renderOrb(frame int, level float64, connected, speaking bool) string {
	const charsW = 44
	const charsH = 15
	const pixW = charsW
	const pixH = charsH * 2

	centerX := float64(pixW) / 2
	centerY := float64(pixH) / 2

	var breathe float64
	if connected {
		breathe = math.Sin(float64(frame)*0.10)*0.03 + level*10.0 - 0.05
	} else {
		breathe = math.Sin(float64(frame)*0.05)*0.02 - 0.05
	}

	pixels := make([][]int, pixH)
	for i := range pixels {
		pixels[i] = make([]int, pixW)
	}

	type ring struct {
		radius     float64
		breatheAmt float64
		colorIdx   int
	}

	rings := []ring{
		{0.6, 0.10, 1},
		{1.3, 0.12, 2},
		{2.0, 0.15, 3},
		{2.8, 0.35, 4}, // mid rings: high reactivity
		{3.5, 0.40, 5},
		{4.2, 0.38, 6},
		{5.0, 0.30, 7},
		{5.8, 0.15, 8},
		{6.5, 0.03, 9},
		{7.2, 0.0, 10},
		{8.0, 0.0, 11},
		{10.0, 0.0, 12},
		{12.0, 0.0, 13},
	}

	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			dx := float64(x) - centerX
			dy := float64(y) - centerY
			dist := math.Sqrt(dx*dx + dy*dy)
			for _, r := range rings {
				radius := r.radius + breathe*r.breatheAmt*20
				if radius > 10.0 {
					radius = 10.0
				}
				if dist < radius {
					pixels[y][x] = r.colorIdx
					break
				}
			}
		}
	}

	// Glass reflections
	type spot struct {
		ox, oy float64
		radius float64
		color  int
	}
	dSide := 9.0
	dSide2 := 7.2
	dTop := 10.0
	dTop2 := 8.2
	spots := []spot{
		{-dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{-dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -dTop, 0.8, 14},
		{0, -dTop2, 0.6, 15},
		{dSide * 0.707, -dSide * 0.707, 0.7, 14},
		{dSide2 * 0.707, -dSide2 * 0.707, 0.4, 15},
		{0, -2.0, 0.6, 14},
	}
	for y := 0; y < pixH; y++ {
		for x := 0; x < pixW; x++ {
			px := float64(x) - centerX
			py := float64(y) - centerY
			for _, s := range spots {
				dx := px - s.ox
				dy := py - s.oy
				rLen := math.Sqrt(s.ox*s.ox + s.oy*s.oy)
				if rLen < 0.001 {
					rLen = 1
				}
				tx, ty := -s.oy/rLen, s.ox/rLen
				dt := dx*tx + dy*ty
				dn := dx*(-ty) + dy*tx
				if (dt*dt)/9.0+dn*dn < s.radius*s.radius {
					pixels[y][x] = s.color
				}
			}
		}
	}

	var styles *[16]lipgloss.Style
	var bgStyles *[16][16]lipgloss.Style
	switch {
	case speaking:
		styles = &pixelStylesSpeak
		bgStyles = &pixelBgSpeak
	case connected:
		styles = &pixelStylesListen
		bgStyles = &pixelBgListen
	default:
		styles = &pixelStylesIdle
		bgStyles = &pixelBgIdle
	}

	var result strings.Builder
	for cy := 0; cy < charsH; cy++ {
		for cx := 0; cx < charsW; cx++ {
			topY := cy * 2
			botY := cy*2 + 1
			top := 0
			bot := 0
			if topY < pixH {
				top = pixels[topY][cx]
			}
			if botY < pixH {
				bot = pixels[botY][cx]
			}
			if top == 0 && bot == 0 {
				result.WriteString(" ")
			} else if top == bot {
				result.WriteString(styles[top].Render("█"))
			} else if top != 0 && bot == 0 {
				result.WriteString(styles[top].Render("▀"))
			} else if top == 0 && bot != 0 {
				result.WriteString(styles[bot].Render("▄"))
			} else {
				result.WriteString(bgStyles[top][bot].Render("▀"))
			}
		}
		result.WriteString("\n")
	}
	return result.String()
}

func tuiSend(msg tea.Msg) {
	tuiMu.Lock()
	p := tuiProgram
	tuiMu.Unlock()

	if p != nil {
		p.Send(msg)
	}
}

func wrapText(text string, width int) []string {
	if len(text) == 0 {
		return []string{""}
	}
	if width <= 0 {
		width = 1
	}

	var lines []string
	for len(text) > width {
		// Find last space within width
		splitAt := width
		for i := width; i > 0; i-- {
			if text[i] == ' ' {
				splitAt = i
				break
			}
		}
		lines = append(lines, text[:splitAt])
		text = strings.TrimLeft(text[splitAt:], " ")
	}
	if len(text) > 0 {
		lines = append(lines, text)
	}
	return lines
}
