package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/JPM1118/shipsbell/internal/config"
	"github.com/JPM1118/shipsbell/internal/deferred"
	"github.com/JPM1118/shipsbell/internal/logging"
	"github.com/JPM1118/shipsbell/internal/metrics"
	"github.com/JPM1118/shipsbell/internal/notify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	dbPath     string
	logLevel   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "shipsbell",
	Short: "Ship's bell watch clock for the terminal",
	Long: `shipsbell strikes the traditional ship's bell every half hour:
one bell at 00:30 up to eight bells at the end of each four-hour watch.

Run without arguments to launch the clock. While the clock is in the
background, upcoming bells are handed to the deferred dispatcher.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClock()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default $XDG_CONFIG_HOME/shipsbell/config.yml)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "deferred delivery database (overrides notifications.database)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func loadConfig() error {
	path := configPath
	if path == "" {
		path = config.Path()
	}
	loaded, err := config.LoadFrom(path)
	if err != nil {
		return err
	}
	if dbPath != "" {
		loaded.Notifications.Database = dbPath
	}
	if logLevel != "" {
		loaded.Log.Level = logLevel
	}
	cfg = loaded
	return nil
}

// newLogger logs to the configured file when toFile is set, stderr otherwise.
func newLogger(toFile bool) (*zap.Logger, error) {
	lc := logging.Config{Level: cfg.Log.Level}
	if toFile {
		lc.File = cfg.Log.File
	}
	return logging.New(lc)
}

func openStore() (*deferred.Store, error) {
	path := cfg.Notifications.Database
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return deferred.New(path,
		deferred.WithPolicy(deferred.Notifications, deferred.GrantState(cfg.Notifications.OnRequest)),
		deferred.WithPolicy(deferred.Location, deferred.GrantState(cfg.Location.OnRequest)),
	)
}

// strikePlayer is a Player whose queued strikes can be awaited and
// which can be muted.
type strikePlayer interface {
	notify.Player
	Wait()
	Suspend()
	Resume()
	IsSuspended() bool
}

func newPlayer(log *zap.Logger) (strikePlayer, error) {
	a := cfg.Audio
	if a.Player == "command" {
		return notify.NewCommandPlayer(a.Command, a.StrikeGap.Duration, a.GroupGap.Duration, log)
	}
	return notify.NewStriker(os.Stderr, a.StrikeGap.Duration, a.GroupGap.Duration), nil
}

func dispatcherConfig() deferred.DispatcherConfig {
	return deferred.DispatcherConfig{
		Interval: cfg.Dispatcher.Interval.Duration,
		Grace:    cfg.Dispatcher.Grace.Duration,
		Batch:    cfg.Dispatcher.Batch,
	}
}

// deliveryHook counts deferred deliveries and forwards played ones to
// out without blocking. out may be nil.
func deliveryHook(m *metrics.Metrics, out chan<- notify.Strike) deferred.DispatcherOption {
	return deferred.OnDeliver(func(d deferred.Delivery) {
		if !d.Played {
			m.DeferredDropped.Inc()
			return
		}
		m.BellsRung.WithLabelValues(metrics.RingerDeferred).Inc()
		if out == nil {
			return
		}
		select {
		case out <- notify.Strike{
			Boundary:  d.Request.Boundary,
			Pattern:   d.Request.Pattern,
			Ringer:    metrics.RingerDeferred,
			Timestamp: d.At,
		}:
		default:
		}
	})
}
