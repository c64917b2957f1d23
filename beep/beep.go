// Package beep plays short connection cues so the user can hear state
// changes without watching the terminal.
package beep

var disabled bool

func Disable() { disabled = true }

const (
	sampleRate = 44100

	// Connect/disconnect cue: two-tone chime. The connect chime rises,
	// the disconnect chime is the same pair reversed.
	chimeLowFreq  = 660.0
	chimeHighFreq = 990.0
	chimeVolume   = 0.5
	chimeDecay    = 25.0

	// Error cue: low pitch double-beep
	errorFreq   = 350.0
	errorVolume = 0.6
	errorDecay  = 30.0
)
