package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/watchclock"
	"github.com/spf13/cobra"
)

var strikeCmd = &cobra.Command{
	Use:   "strike [boundary|HH:MM]",
	Short: "Strike the bell due at a boundary (default: the last one crossed)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(false)
		if err != nil {
			return err
		}
		defer log.Sync()

		var b bell.Boundary
		if len(args) == 1 {
			if b, err = parseBoundary(args[0]); err != nil {
				return err
			}
		} else {
			cal, err := watchclock.NewSystemCalendar(cfg.Clock.Timezone)
			if err != nil {
				return err
			}
			b = bell.BoundaryOf(watchclock.New(cal, log).Refresh())
		}

		player, err := newPlayer(log)
		if err != nil {
			return err
		}
		p := bell.Due(b)
		fmt.Fprintf(cmd.OutOrStdout(), "%02d:%02d  %s  %s\n", b.Seconds()/3600, b.Seconds()%3600/60, p.Name(), p)
		player.Play(p)
		player.Wait()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(strikeCmd)
}

// parseBoundary accepts a boundary index (0-47) or a half-hour mark
// such as "04:00" or "16:30".
func parseBoundary(s string) (bell.Boundary, error) {
	if !strings.Contains(s, ":") {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 || n >= bell.BoundariesPerDay {
			return 0, fmt.Errorf("boundary must be 0-%d or HH:MM, got %q", bell.BoundariesPerDay-1, s)
		}
		return bell.Boundary(n), nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q: %w", s, err)
	}
	if t.Minute()%30 != 0 {
		return 0, fmt.Errorf("%s is not on a half-hour mark", s)
	}
	return bell.BoundaryOf(t.Hour()*3600 + t.Minute()*60), nil
}
