package cliui

import (
	"fmt"
	"io"
	"sync"
	"time"
)

var spinnerFrames = []string{"⣾", "⣽", "⣻", "⢿", "⡿", "⣟", "⣯", "⣷"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a single status line on w until Stop is called.
type Spinner struct {
	w     io.Writer
	msg   string
	start time.Time

	mu      sync.Mutex
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

// StartSpinner draws the first frame and keeps animating in the background.
func StartSpinner(w io.Writer, msg string) *Spinner {
	s := &Spinner{
		w:       w,
		msg:     msg,
		start:   time.Now(),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go s.animate()
	return s
}

func (s *Spinner) animate() {
	defer close(s.stopped)

	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame++ {
		s.mu.Lock()
		fmt.Fprintf(s.w, "\r  %s %s", successStyle.Render(spinnerFrames[frame%len(spinnerFrames)]), s.msg)
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		case <-ticker.C:
		}
	}
}

// Stop ends the animation and replaces the line with the outcome mark and
// the elapsed time. Later calls are no-ops.
func (s *Spinner) Stop(err error) {
	s.once.Do(func() {
		close(s.done)
		<-s.stopped

		s.mu.Lock()
		defer s.mu.Unlock()
		fmt.Fprintf(s.w, "\r  %s %s %s\n",
			Mark(err),
			s.msg,
			StepStyle.Render("("+FormatDuration(time.Since(s.start))+")"),
		)
	})
}

// Step runs fn behind a spinner and returns its error.
func Step(w io.Writer, msg string, fn func() error) error {
	s := StartSpinner(w, msg)
	err := fn()
	s.Stop(err)
	return err
}

// FormatDuration formats a duration for display, e.g. "12ms" or "3.2s".
func FormatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
