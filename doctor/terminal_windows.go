//go:build windows

package doctor

import (
	"os"
	"os/signal"
)

// resetTerminal is a no-op on Windows; the console is never put in raw mode.
func resetTerminal() {
}

func setupInterruptHandler() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		println("\naborted")
		os.Exit(130)
	}()
}
