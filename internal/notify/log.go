package notify

import (
	"fmt"
	"sync"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
)

// Strike records one delivered pattern.
type Strike struct {
	Boundary  bell.Boundary
	Pattern   bell.Pattern
	Ringer    string
	Timestamp time.Time
}

// Log keeps a FIFO of recent strikes for display.
type Log struct {
	mu       sync.Mutex
	items    []Strike
	maxStore int
}

// NewLog creates a strike log with the given buffer size.
func NewLog(maxStore int) *Log {
	if maxStore <= 0 {
		maxStore = 1
	}
	return &Log{
		items:    make([]Strike, 0, maxStore),
		maxStore: maxStore,
	}
}

// Push adds a strike, trimming the oldest if at capacity.
func (l *Log) Push(s Strike) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, s)
	if len(l.items) > l.maxStore {
		l.items = l.items[len(l.items)-l.maxStore:]
	}
}

// Visible returns the most recent strikes (max 2), oldest first.
func (l *Log) Visible() []Strike {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := len(l.items)
	if n > 2 {
		n = 2
	}
	out := make([]Strike, n)
	copy(out, l.items[len(l.items)-n:])
	return out
}

// Len returns the number of buffered strikes.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Render formats the visible strikes within the given width.
func (l *Log) Render(width int, now time.Time) string {
	visible := l.Visible()
	if len(visible) == 0 {
		return ""
	}

	result := ""
	for i, s := range visible {
		if i > 0 {
			result += " │ "
		}
		result += formatStrike(s, now)
	}

	runes := []rune(result)
	if len(runes) > width {
		if width > 1 {
			result = string(runes[:width-1]) + "…"
		} else if width > 0 {
			result = string(runes[:width])
		} else {
			result = ""
		}
	}
	return result
}

func formatStrike(s Strike, now time.Time) string {
	age := now.Sub(s.Timestamp).Truncate(time.Second)
	var ageStr string
	if age < time.Minute {
		ageStr = fmt.Sprintf("%ds ago", int(age.Seconds()))
	} else if age < time.Hour {
		ageStr = fmt.Sprintf("%dm ago", int(age.Minutes()))
	} else {
		ageStr = fmt.Sprintf("%dh ago", int(age.Hours()))
	}

	secs := s.Boundary.Seconds()
	return fmt.Sprintf("● %02d:%02d %s (%s, %s)", secs/3600, secs%3600/60, s.Pattern.Name(), s.Ringer, ageStr)
}

// PlayerFunc adapts a function to the Player interface.
type PlayerFunc func(p bell.Pattern)

// Play calls f(p).
func (f PlayerFunc) Play(p bell.Pattern) { f(p) }
