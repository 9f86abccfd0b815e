package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/JPM1118/shipsbell/internal/bell"
	"github.com/JPM1118/shipsbell/internal/deferred"
	"github.com/JPM1118/shipsbell/internal/watchclock"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the watch, next bell and pending deferred bells (non-interactive)",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(false)
		if err != nil {
			return err
		}
		defer log.Sync()

		cal, err := watchclock.NewSystemCalendar(cfg.Clock.Timezone)
		if err != nil {
			return err
		}
		store, err := openStore()
		if err != nil {
			return err
		}
		defer store.Close()

		ctx := cmd.Context()

		secs := watchclock.New(cal, log).Refresh()
		b := bell.BoundaryOf(secs)
		next := b + 1

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "Time\t%02d:%02d:%02d\n", secs/3600, secs%3600/60, secs%60)
		fmt.Fprintf(w, "Watch\t%s\n", bell.WatchOf(secs))
		fmt.Fprintf(w, "Boundary\t%d (%s)\n", b, bell.Due(b).Name())
		fmt.Fprintf(w, "Next bell\t%s at %02d:%02d\n", bell.Due(next).Name(), next.Seconds()/3600, next.Seconds()%3600/60)
		for _, c := range []deferred.Capability{deferred.Notifications, deferred.Location} {
			state, err := store.Grant(ctx, c)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\n", capitalize(string(c)), state)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		pending, err := store.Pending(ctx, "")
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("\nNo deferred bells pending.")
			return nil
		}

		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "FIRES AT\tBELL\tPATTERN\tID")
		fmt.Fprintln(w, "────────\t────\t───────\t──")
		for _, r := range pending {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				r.FireAt.In(cal.Location).Format("Mon 15:04"), r.Pattern.Name(), r.Pattern, r.ID)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
