package progress

import (
	"fmt"
	"strings"
	"sync/atomic"
)

const maxStepBarWidth = 40

// StepBar displays step-based progress, e.g. samples through the generator.
type StepBar struct {
	message string
	current atomic.Int64
	total   int
}

func NewStepBar(message string, total int) *StepBar {
	return &StepBar{message: message, total: total}
}

func (s *StepBar) Set(current int) {
	s.current.Store(int64(min(current, s.total)))
}

func (s *StepBar) String() string {
	current := int(s.current.Load())

	var percent float64
	if s.total > 0 {
		percent = float64(current) / float64(s.total) * 100
	}

	width := min(s.total, maxStepBarWidth)
	filled := 0
	if s.total > 0 {
		filled = current * width / s.total
	}

	// "network forward  50% ▕████    ▏ 8/16"
	return fmt.Sprintf("%s %3.0f%% ▕%s%s▏ %d/%d",
		s.message, percent,
		strings.Repeat("█", filled), strings.Repeat(" ", width-filled),
		current, s.total)
}
