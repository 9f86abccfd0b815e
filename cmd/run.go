package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JPM1118/shipsbell/internal/coordinator"
	"github.com/JPM1118/shipsbell/internal/deferred"
	"github.com/JPM1118/shipsbell/internal/metrics"
	"github.com/JPM1118/shipsbell/internal/notify"
	"github.com/JPM1118/shipsbell/internal/proximity"
	"github.com/JPM1118/shipsbell/internal/ringer"
	"github.com/JPM1118/shipsbell/internal/tui"
	"github.com/JPM1118/shipsbell/internal/watchclock"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch the bell clock (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClock()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runClock() error {
	log, err := newLogger(true)
	if err != nil {
		return err
	}
	defer log.Sync()

	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	cal, err := watchclock.NewSystemCalendar(cfg.Clock.Timezone)
	if err != nil {
		return err
	}
	player, err := newPlayer(log)
	if err != nil {
		return err
	}
	m := metrics.New(nil)

	deferredRinger := ringer.NewDeferred(
		store.Notifier(deferred.DefaultSource, log),
		ringer.DeferredConfig{Horizon: cfg.Notifications.Horizon, Now: cal.Time},
		log,
	)
	opts := []coordinator.Option{coordinator.WithMetrics(m)}
	if mon := newMonitor(store, log); mon != nil {
		opts = append(opts, coordinator.WithProximity(mon))
	}
	coord := coordinator.New(
		watchclock.New(cal, log),
		ringer.NewActive(player),
		deferredRinger,
		coordinator.NewTimerTicks(),
		coordinator.Config{TickInterval: cfg.Clock.TickInterval.Duration},
		log,
		opts...,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deliveries := make(chan notify.Strike, 8)
	if cfg.Dispatcher.Embedded {
		d := deferred.NewDispatcher(store, player, dispatcherConfig(), log, deliveryHook(m, deliveries))
		d.Start(ctx)
	}
	go func() {
		if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
			log.Error("metrics endpoint", zap.String("addr", cfg.Metrics.Addr), zap.Error(err))
		}
	}()

	coord.PrepareForStart(ctx)
	coord.MoveToForeground(ctx)

	model := tui.NewDashboard(ctx, coord, deliveries, tui.WithMuter(player))
	program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithReportFocus())
	go func() {
		<-ctx.Done()
		program.Quit()
	}()

	_, runErr := program.Run()

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	coord.PrepareForShutdown(shutdownCtx)
	cancel()
	player.Wait()

	if runErr != nil {
		return fmt.Errorf("clock: %w", runErr)
	}
	return nil
}

// newMonitor returns nil when location tracking is disabled or the
// position command is missing.
func newMonitor(store *deferred.Store, log *zap.Logger) *proximity.Monitor {
	lc := cfg.Location
	if !lc.Enabled {
		return nil
	}

	var src proximity.PositionSource
	if lc.File != "" {
		src = &proximity.FileSource{Path: lc.File}
	} else {
		if err := proximity.CheckCommand(lc.Command); err != nil {
			log.Warn("location disabled", zap.Error(err))
			return nil
		}
		src = &proximity.CommandSource{Command: lc.Command}
	}

	return proximity.New(src, store.Permission(deferred.Location, log), proximity.Config{
		PollInterval: lc.PollInterval.Duration,
		ReadTimeout:  lc.ReadTimeout.Duration,
	}, log)
}
