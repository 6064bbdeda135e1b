package device

import (
	"context"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// Simulated is an in-memory session with canned responses. It records every
// exchange so tests can assert on what a script sent.
type Simulated struct {
	mu         sync.Mutex
	current    string
	responses  map[string]map[string]string
	buffers    map[string]string
	transcript []Exchange
	known      map[string]bool // nil accepts any device name
}

func NewSimulated() *Simulated {
	return &Simulated{
		responses: make(map[string]map[string]string),
		buffers:   make(map[string]string),
	}
}

// Restrict makes SwitchDevice fail for names outside devices.
func (s *Simulated) Restrict(devices ...string) *Simulated {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.known = make(map[string]bool, len(devices))
	for _, d := range devices {
		s.known[d] = true
	}
	return s
}

// Respond registers the output device produces for command. An empty device
// name matches every device.
func (s *Simulated) Respond(device, command, output string) *Simulated {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.responses[device] == nil {
		s.responses[device] = make(map[string]string)
	}
	s.responses[device][command] = output
	return s
}

// Emit appends unsolicited output to a device's receive buffer.
func (s *Simulated) Emit(device, output string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buffers[device] += output
}

func (s *Simulated) SwitchDevice(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.known != nil && !s.known[name] {
		return fmt.Errorf("%w: unknown device %q", ErrFatal, name)
	}
	s.current = name
	return nil
}

func (s *Simulated) SendCommand(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out, ok := s.responses[s.current][text]
	if !ok {
		out = s.responses[""][text]
	}
	s.buffers[s.current] += out
	s.transcript = append(s.transcript, Exchange{Device: s.current, Command: text, Output: out})
	return out, nil
}

// AwaitPattern matches against the buffered output and consumes it up to the
// end of the match. Nothing arrives while waiting, so the timeout is not
// slept through.
func (s *Simulated) AwaitPattern(ctx context.Context, pattern string, _ time.Duration, clear bool) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if clear {
		s.buffers[s.current] = ""
	}
	buf := s.buffers[s.current]
	loc := re.FindStringIndex(buf)
	if loc == nil {
		return false, nil
	}
	s.buffers[s.current] = buf[loc[1]:]
	return true, nil
}

// Current is the active device name.
func (s *Simulated) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Transcript returns a copy of every exchange so far.
func (s *Simulated) Transcript() []Exchange {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Exchange(nil), s.transcript...)
}

// Commands lists the command texts sent, in order.
func (s *Simulated) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.transcript))
	for i, e := range s.transcript {
		out[i] = e.Command
	}
	return out
}
