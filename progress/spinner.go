package progress

import (
	"strings"
	"sync/atomic"
	"time"
)

type Spinner struct {
	message string

	parts []string

	value   atomic.Int64
	stopped atomic.Bool
}

func NewSpinner(message string) *Spinner {
	s := &Spinner{
		message: message,
		parts: []string{
			"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏",
		},
	}
	go s.start()
	return s
}

func (s *Spinner) String() string {
	var sb strings.Builder
	if message := strings.TrimSpace(s.message); message != "" {
		sb.WriteString(message)
		sb.WriteString(" ")
	}

	if !s.stopped.Load() {
		sb.WriteString(s.parts[s.value.Load()%int64(len(s.parts))])
		sb.WriteString(" ")
	}

	return sb.String()
}

func (s *Spinner) start() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for range ticker.C {
		if s.stopped.Load() {
			return
		}
		s.value.Add(1)
	}
}

func (s *Spinner) Stop() {
	s.stopped.Store(true)
}
