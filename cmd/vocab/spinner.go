package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerTick = 80 * time.Millisecond

// runWithSpinner runs op while a braille spinner animates on w. Nothing is
// drawn unless stdout is a terminal.
func runWithSpinner(w io.Writer, message string, op func() error) error {
	if !isTTY() {
		return op()
	}

	quit := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		style := lipgloss.NewStyle().Foreground(colorPrimary)
		ticker := time.NewTicker(spinnerTick)
		defer ticker.Stop()
		for i := 0; ; i++ {
			fmt.Fprintf(w, "\r%s %s…", style.Render(spinnerFrames[i%len(spinnerFrames)]), message)
			select {
			case <-quit:
				// Frames render about two columns wide.
				fmt.Fprint(w, "\r"+strings.Repeat(" ", len(message)+6)+"\r")
				return
			case <-ticker.C:
			}
		}
	}()

	err := op()
	close(quit)
	<-done
	return err
}
