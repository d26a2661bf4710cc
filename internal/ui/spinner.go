package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// IsTerminal reports whether w is an interactive terminal
func IsTerminal(w any) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Spinner represents a loading spinner. It only draws on a terminal.
type Spinner struct {
	out     io.Writer
	frames  []string
	current int
	message string
	active  bool

	stopOnce sync.Once
	done     chan struct{}
	wg       sync.WaitGroup
}

// NewSpinner creates a new spinner
func NewSpinner(out io.Writer, message string) *Spinner {
	return &Spinner{
		out:     out,
		frames:  []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"},
		message: message,
		active:  IsTerminal(out),
		done:    make(chan struct{}),
	}
}

// Frame returns the next spinner frame
func (s *Spinner) Frame() string {
	frame := s.frames[s.current]
	s.current = (s.current + 1) % len(s.frames)
	return fmt.Sprintf("\r%s %s", Cyan(frame), s.message)
}

// Start begins drawing in the background
func (s *Spinner) Start() {
	if !s.active {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			fmt.Fprint(s.out, s.Frame())
			select {
			case <-s.done:
				fmt.Fprint(s.out, "\r"+strings.Repeat(" ", len(s.message)+2)+"\r")
				return
			case <-ticker.C:
			}
		}
	}()
}

// Stop clears the spinner line. Safe to call more than once.
func (s *Spinner) Stop() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
	})
}
