//go:build !windows

// Package shutdown registers the signals that should end a call cleanly.
package shutdown

import (
	"os"
	"os/signal"
	"syscall"
)

// Notify routes interrupt, termination and terminal-hangup signals to ch.
// SIGHUP matters here: closing the terminal mid-conversation should tear
// the session down like any other hangup instead of orphaning the devices.
func Notify(ch chan os.Signal) {
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
}
