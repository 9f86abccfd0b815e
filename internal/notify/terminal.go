package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"go.uber.org/zap"
)

// Player produces the sound for a strike pattern. Play must not block
// the caller for the duration of the pattern.
type Player interface {
	Play(p bell.Pattern)
}

// Default pauses between rings.
const (
	DefaultStrikeGap = 350 * time.Millisecond
	DefaultGroupGap  = 900 * time.Millisecond
)

// sequencer plays patterns one at a time in the background, pausing
// between rings of a group and longer between groups.
type sequencer struct {
	strikeGap time.Duration
	groupGap  time.Duration
	sleep     func(time.Duration)

	mu        sync.Mutex // serialises patterns
	stateMu   sync.Mutex
	suspended bool
	wg        sync.WaitGroup
}

func (s *sequencer) configure(strikeGap, groupGap time.Duration) {
	if strikeGap <= 0 {
		strikeGap = DefaultStrikeGap
	}
	if groupGap <= 0 {
		groupGap = DefaultGroupGap
	}
	s.strikeGap = strikeGap
	s.groupGap = groupGap
	s.sleep = time.Sleep
}

func (s *sequencer) play(p bell.Pattern, ring func()) bool {
	if s.IsSuspended() || len(p) == 0 {
		return false
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, group := range p {
			if i > 0 {
				s.sleep(s.groupGap)
			}
			for j := 0; j < group; j++ {
				if j > 0 {
					s.sleep(s.strikeGap)
				}
				ring()
			}
		}
	}()
	return true
}

// Wait blocks until every pattern started so far has finished.
func (s *sequencer) Wait() {
	s.wg.Wait()
}

// Suspend mutes playback until Resume.
func (s *sequencer) Suspend() {
	s.stateMu.Lock()
	s.suspended = true
	s.stateMu.Unlock()
}

// Resume re-enables playback.
func (s *sequencer) Resume() {
	s.stateMu.Lock()
	s.suspended = false
	s.stateMu.Unlock()
}

// IsSuspended returns whether playback is currently suspended.
func (s *sequencer) IsSuspended() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.suspended
}

// Striker rings the terminal bell once per strike.
type Striker struct {
	sequencer
	out io.Writer
}

// NewStriker creates a Striker writing BEL characters to out (stderr if nil).
func NewStriker(out io.Writer, strikeGap, groupGap time.Duration) *Striker {
	if out == nil {
		out = os.Stderr
	}
	s := &Striker{out: out}
	s.configure(strikeGap, groupGap)
	return s
}

// Play rings the pattern in the background.
func (s *Striker) Play(p bell.Pattern) {
	s.play(p, func() {
		fmt.Fprint(s.out, "\a")
	})
}

// CommandPlayer runs an external command once per strike, e.g.
// ["aplay", "-q", "bell.wav"].
type CommandPlayer struct {
	sequencer
	command []string
	timeout time.Duration
	log     *zap.Logger
}

// NewCommandPlayer creates a player for the given argv.
func NewCommandPlayer(command []string, strikeGap, groupGap time.Duration, log *zap.Logger) (*CommandPlayer, error) {
	if len(command) == 0 {
		return nil, fmt.Errorf("empty strike command")
	}
	if _, err := exec.LookPath(command[0]); err != nil {
		return nil, fmt.Errorf("strike command %q not found in PATH", command[0])
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &CommandPlayer{
		command: command,
		timeout: 5 * time.Second,
		log:     log,
	}
	c.configure(strikeGap, groupGap)
	return c, nil
}

// Play runs the command for every strike of the pattern in the background.
func (c *CommandPlayer) Play(p bell.Pattern) {
	c.play(p, func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()
		if err := exec.CommandContext(ctx, c.command[0], c.command[1:]...).Run(); err != nil {
			c.log.Warn("strike command failed", zap.Strings("command", c.command), zap.Error(err))
		}
	})
}

var (
	_ Player = (*Striker)(nil)
	_ Player = (*CommandPlayer)(nil)
)
