package cmd

import (
	"fmt"

	"github.com/JPM1118/shipsbell/internal/deferred"
	"github.com/spf13/cobra"
)

var grantCmd = &cobra.Command{
	Use:       "grant <notifications|location>",
	Short:     "Allow a capability",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(deferred.Notifications), string(deferred.Location)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return setGrant(cmd, args[0], deferred.Granted)
	},
}

var revokeCmd = &cobra.Command{
	Use:   "revoke <notifications|location>",
	Short: "Deny a capability; revoking notifications cancels pending bells",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setGrant(cmd, args[0], deferred.Denied)
	},
}

func init() {
	rootCmd.AddCommand(grantCmd)
	rootCmd.AddCommand(revokeCmd)
}

func setGrant(cmd *cobra.Command, name string, state deferred.GrantState) error {
	c, err := deferred.ParseCapability(name)
	if err != nil {
		return err
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	if err := store.SetGrant(ctx, c, state); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", c, state)

	if c != deferred.Notifications || state != deferred.Denied {
		return nil
	}
	pending, err := store.Pending(ctx, "")
	if err != nil {
		return err
	}
	ids := make([]string, len(pending))
	for i, r := range pending {
		ids[i] = r.ID
	}
	n, err := store.Cancel(ctx, ids)
	if err != nil {
		return err
	}
	if n > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "cancelled %d pending bells\n", n)
	}
	return nil
}
