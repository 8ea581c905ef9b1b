// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package shared

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/term"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner shows progress with elapsed time on a terminal. On other outputs
// it prints the message once.
type Spinner struct {
	mu      sync.Mutex
	out     io.Writer
	isTTY   bool
	message string
	started time.Time
	frame   int
	done    chan struct{}
}

// NewSpinner creates a spinner that writes to stderr.
func NewSpinner() *Spinner {
	return &Spinner{out: os.Stderr, isTTY: term.IsTerminal(int(os.Stderr.Fd()))}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	s.message = message
	s.started = time.Now()
	s.done = make(chan struct{})

	if !s.isTTY {
		fmt.Fprintln(s.out, message)
		return
	}
	s.render()
	go s.animate(s.done)
}

// Stop ends the animation, clears the line and returns the elapsed time.
func (s *Spinner) Stop() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return 0
	}
	close(s.done)
	s.done = nil
	if s.isTTY {
		fmt.Fprint(s.out, "\r\033[K")
	}
	return time.Since(s.started)
}

func (s *Spinner) animate(done <-chan struct{}) {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.mu.Lock()
			if s.done != nil {
				s.frame = (s.frame + 1) % len(spinnerFrames)
				s.render()
			}
			s.mu.Unlock()
		}
	}
}

// render must be called with mu held.
func (s *Spinner) render() {
	frame := spinnerFrames[s.frame]
	if !ColorEnabled() {
		frame = "..."
	}
	fmt.Fprintf(s.out, "\r\033[K%s %s %s", s.message, RenderMuted(frame),
		RenderMuted("("+FormatElapsed(time.Since(s.started))+")"))
}

// FormatElapsed renders d as "12s" or "1m 23s".
func FormatElapsed(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	if seconds == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
