package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/JPM1118/shipsbell/internal/deferred"
	"github.com/JPM1118/shipsbell/internal/metrics"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dispatchCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Ring deferred bells while the clock is not running",
	Long: `Run the deferred-delivery dispatcher in the foreground. It strikes
every bell the clock scheduled before it was suspended or backgrounded,
and drops bells that are more than dispatcher.grace late.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(false)
		if err != nil {
			return err
		}
		defer log.Sync()

		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		player, err := newPlayer(log)
		if err != nil {
			return err
		}

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		m := metrics.New(nil)
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Error("metrics endpoint", zap.String("addr", cfg.Metrics.Addr), zap.Error(err))
			}
		}()

		logDispatchStart(ctx, store, log)

		deferred.NewDispatcher(store, player, dispatcherConfig(), log, deliveryHook(m, nil)).Run(ctx)
		player.Wait()
		log.Info("dispatcher stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dispatchCmd)
}

func logDispatchStart(ctx context.Context, store *deferred.Store, log *zap.Logger) {
	pending, err := store.CountPending(ctx)
	if err != nil {
		log.Warn("count pending deferred bells", zap.Error(err))
	}
	log.Info("dispatcher started",
		zap.String("database", cfg.Notifications.Database),
		zap.Int("pending", pending),
		zap.Duration("grace", cfg.Dispatcher.Grace.Duration))
}
