package progress

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"
	"time"

	"github.com/stylegans/stylegans/format"
)

// Bar tracks a byte count, e.g. a checkpoint being written.
type Bar struct {
	message string

	maxValue     int64
	currentValue atomic.Int64

	started time.Time
}

func NewBar(message string, maxValue int64) *Bar {
	return &Bar{
		message:  message,
		maxValue: maxValue,
		started:  time.Now(),
	}
}

// formatDuration limits the rendering of a time.Duration to 2 units
func formatDuration(d time.Duration) string {
	if d >= 100*time.Hour {
		return "99h+"
	}

	if d >= time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}

	return d.Round(time.Second).String()
}

func (b *Bar) String() string {
	var pre, mid, suf strings.Builder

	if message := strings.TrimSpace(b.message); message != "" {
		fmt.Fprintf(&pre, "%s ", message)
	}

	fmt.Fprintf(&pre, "%3.0f%% ", math.Floor(b.percent()))

	current := b.currentValue.Load()
	fmt.Fprintf(&suf, " %s/%s", format.HumanBytes(current), format.HumanBytes(b.maxValue))
	if current < b.maxValue {
		fmt.Fprintf(&suf, " [%s]", formatDuration(time.Since(b.started)))
	}

	// 2 boundary characters
	f := termWidth() - pre.Len() - suf.Len() - 2
	n := int(float64(f) * b.percent() / 100)

	if f > 0 {
		mid.WriteString("▕")
		mid.WriteString(strings.Repeat("█", n))
		mid.WriteString(strings.Repeat(" ", f-n))
		mid.WriteString("▏")
	}

	return pre.String() + mid.String() + suf.String()
}

func (b *Bar) Set(value int64) {
	b.currentValue.Store(min(value, b.maxValue))
}

// Write counts p towards the bar so it can sit behind an io.MultiWriter.
func (b *Bar) Write(p []byte) (int, error) {
	b.Set(b.currentValue.Load() + int64(len(p)))
	return len(p), nil
}

func (b *Bar) percent() float64 {
	if b.maxValue > 0 {
		return float64(b.currentValue.Load()) / float64(b.maxValue) * 100
	}

	return 0
}
