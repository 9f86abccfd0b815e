package tui

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/coordinator"
	"github.com/JPM1118/shipsbell/internal/metrics"
	"github.com/JPM1118/shipsbell/internal/notify"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	minWidth  = 60
	minHeight = 14
	logSize   = 16
)

// Lifecycle is the part of the coordinator the dashboard drives.
type Lifecycle interface {
	MoveToForeground(ctx context.Context)
	MoveToBackground(ctx context.Context)
	RefreshGrants(ctx context.Context)
	Snapshot() coordinator.State
	Updates() <-chan coordinator.State
}

// Muter silences the bell without changing which ringer is responsible.
type Muter interface {
	Suspend()
	Resume()
	IsSuspended() bool
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithMuter enables the mute key.
func WithMuter(m Muter) Option {
	return func(d *Dashboard) { d.muter = m }
}

// Messages

type stateMsg coordinator.State

type strikeMsg notify.Strike

type transitionMsg struct{}

// focusQueue applies lifecycle transitions one at a time. Update records
// the wanted phase before returning the command, and each command moves
// the coordinator to whatever is wanted when it runs, so the last
// command to run always leaves the coordinator matching the last
// focus event.
type focusQueue struct {
	mu         sync.Mutex
	foreground bool

	run sync.Mutex
}

func (q *focusQueue) want(foreground bool) {
	q.mu.Lock()
	q.foreground = foreground
	q.mu.Unlock()
}

func (q *focusQueue) apply(ctx context.Context, life Lifecycle) {
	q.run.Lock()
	defer q.run.Unlock()

	q.mu.Lock()
	foreground := q.foreground
	q.mu.Unlock()

	if foreground {
		life.MoveToForeground(ctx)
	} else {
		life.MoveToBackground(ctx)
	}
}

// Dashboard is the main Bubble Tea model.
type Dashboard struct {
	ctx        context.Context
	life       Lifecycle
	deliveries <-chan notify.Strike
	strikes    *notify.Log
	muter      Muter
	focus      *focusQueue
	state      coordinator.State
	now        func() time.Time
	width      int
	height     int
	focused    bool
	suspended  bool
}

// NewDashboard creates a dashboard over life. deliveries may be nil; when
// set, bells rung by the deferred dispatcher are shown in the strike log.
func NewDashboard(ctx context.Context, life Lifecycle, deliveries <-chan notify.Strike, opts ...Option) Dashboard {
	d := Dashboard{
		ctx:        ctx,
		life:       life,
		deliveries: deliveries,
		strikes:    notify.NewLog(logSize),
		focus:      &focusQueue{foreground: true},
		state:      life.Snapshot(),
		now:        time.Now,
		focused:    true,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// State returns the last coordinator state received.
func (d Dashboard) State() coordinator.State {
	return d.state
}

// Init starts listening for coordinator updates and deliveries.
func (d Dashboard) Init() tea.Cmd {
	return tea.Batch(d.waitForState(), d.waitForStrike())
}

func (d Dashboard) waitForState() tea.Cmd {
	ch := d.life.Updates()
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg(s)
	}
}

func (d Dashboard) waitForStrike() tea.Cmd {
	if d.deliveries == nil {
		return nil
	}
	ch := d.deliveries
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return strikeMsg(s)
	}
}

func (d Dashboard) foreground() tea.Cmd {
	return d.transition(true)
}

func (d Dashboard) background() tea.Cmd {
	return d.transition(false)
}

func (d Dashboard) transition(foreground bool) tea.Cmd {
	d.focus.want(foreground)
	ctx, life, q := d.ctx, d.life, d.focus
	return func() tea.Msg {
		q.apply(ctx, life)
		return transitionMsg{}
	}
}

// suspend hands the bells to the deferred ringer before the process is
// stopped.
func (d Dashboard) suspend() tea.Cmd {
	d.focus.want(false)
	ctx, life, q := d.ctx, d.life, d.focus
	return func() tea.Msg {
		q.apply(ctx, life)
		return tea.Suspend()
	}
}

// Update handles messages.
func (d Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return d.handleKey(msg)

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		return d, nil

	case tea.FocusMsg:
		d.focused = true
		return d, d.foreground()

	case tea.BlurMsg:
		d.focused = false
		return d, d.background()

	case tea.ResumeMsg:
		d.suspended = false
		return d, d.foreground()

	case stateMsg:
		s := coordinator.State(msg)
		d.state = s
		if s.Rang {
			d.strikes.Push(notify.Strike{
				Boundary:  s.LastRung,
				Pattern:   bell.Due(s.LastRung),
				Ringer:    metrics.RingerActive,
				Timestamp: d.now(),
			})
		}
		return d, d.waitForState()

	case strikeMsg:
		d.strikes.Push(notify.Strike(msg))
		return d, d.waitForStrike()

	case transitionMsg:
		return d, nil
	}

	return d, nil
}

func (d Dashboard) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return d, tea.Quit

	case "ctrl+z":
		d.suspended = true
		return d, d.suspend()

	case "m":
		if d.muter == nil {
			return d, nil
		}
		if d.muter.IsSuspended() {
			d.muter.Resume()
		} else {
			d.muter.Suspend()
		}
		return d, nil

	case "r":
		ctx, life := d.ctx, d.life
		return d, func() tea.Msg {
			life.RefreshGrants(ctx)
			return transitionMsg{}
		}
	}

	return d, nil
}

// View renders the dashboard.
func (d Dashboard) View() string {
	if d.width < minWidth || d.height < minHeight {
		return fmt.Sprintf("\n  Terminal too small (need %dx%d, got %dx%d)\n", minWidth, minHeight, d.width, d.height)
	}

	var b strings.Builder

	b.WriteString(d.renderHeader())
	b.WriteString("\n")
	b.WriteString(d.renderSubheader())
	b.WriteString("\n\n")

	b.WriteString(d.renderClock())
	b.WriteString("\n\n")

	b.WriteString(d.renderDetails())

	used := strings.Count(b.String(), "\n")
	for i := used; i < d.height-2; i++ {
		b.WriteString("\n")
	}

	b.WriteString(d.renderStrikeBar())
	b.WriteString("\n")
	b.WriteString(d.renderStatusBar())

	return b.String()
}

func (d Dashboard) renderHeader() string {
	title := headerStyle.Render("Ship's Bell")
	right := modeStyle(d.state.Mode).Render(strings.ToUpper(d.state.Mode.String()))
	if d.muted() {
		right = mutedStyle.Render("MUTED ") + right
	}

	gap := d.width - lipgloss.Width(title) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return title + strings.Repeat(" ", gap) + right
}

func (d Dashboard) renderSubheader() string {
	return subheaderStyle.Render(d.state.Watch.String())
}

func (d Dashboard) renderClock() string {
	return clockStyle.Render("  " + formatTimeOfDay(d.state.TimeOfDay))
}

func (d Dashboard) renderDetails() string {
	s := d.state
	next := bell.Boundary(int(s.Boundary) + 1)
	until := next.Seconds() - s.TimeOfDay
	if until <= 0 {
		until += bell.SecondsPerDay
	}
	nextLabel := fmt.Sprintf("%s at %s (in %s)",
		bell.Due(next).Name(), formatHHMM(next.Seconds()), formatCountdown(until))

	rows := [][2]string{
		{"Last bell", bell.Due(s.LastRung).Name() + " at " + formatHHMM(s.LastRung.Seconds())},
		{"Next bell", nextLabel},
		{"Lifecycle", s.Phase.String()},
		{"Notifications", grantLabel(s.NotificationsAuthorized)},
		{"Location", grantLabel(s.LocationAuthorized)},
		{"Position", fixLabel(s)},
	}
	if s.Mode == coordinator.ModeDeferred {
		rows = append(rows, [2]string{"Scheduled", fmt.Sprintf("%d deferred bells", s.Scheduled)})
	}

	var b strings.Builder
	for _, r := range rows {
		b.WriteString("  ")
		b.WriteString(labelStyle.Render(padRight(r[0], 15)))
		b.WriteString(r[1])
		b.WriteString("\n")
	}
	return b.String()
}

func (d Dashboard) renderStrikeBar() string {
	text := d.strikes.Render(d.width-4, d.now())
	return notificationBarStyle.Render("  " + text)
}

func (d Dashboard) renderStatusBar() string {
	keys := "  r:refresh grants  ctrl+z:suspend  q:quit"
	if d.muter != nil {
		keys = "  m:mute  r:refresh grants  ctrl+z:suspend  q:quit"
	}
	return statusBarStyle.Render(keys)
}

func (d Dashboard) muted() bool {
	return d.muter != nil && d.muter.IsSuspended()
}

// Helpers

func formatTimeOfDay(secs int) string {
	return fmt.Sprintf("%02d:%02d:%02d", secs/3600, secs%3600/60, secs%60)
}

func formatHHMM(secs int) string {
	secs = bell.NormalizeSeconds(secs)
	return fmt.Sprintf("%02d:%02d", secs/3600, secs%3600/60)
}

func formatCountdown(secs int) string {
	if secs >= 3600 {
		return fmt.Sprintf("%dh%02dm", secs/3600, secs%3600/60)
	}
	return fmt.Sprintf("%dm%02ds", secs/60, secs%60)
}

func grantLabel(ok bool) string {
	if ok {
		return grantedStyle.Render("granted")
	}
	return deniedStyle.Render("not granted")
}

func fixLabel(s coordinator.State) string {
	if !s.LocationAuthorized {
		return subheaderStyle.Render("off")
	}
	if !s.HasFix {
		return subheaderStyle.Render("no fix")
	}
	f := s.Fix
	return fmt.Sprintf("%.4f, %.4f  %.1f kn", f.Latitude, f.Longitude, f.SpeedKnots)
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s[:width]
	}
	return s + strings.Repeat(" ", width-len(s))
}
