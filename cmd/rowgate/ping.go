package rowgate

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/edgeflare/rowgate/pkg/db"
	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the database is reachable",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		store, err := db.Connect(ctx, cfg.Connection())
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			os.Exit(1)
		}
		defer store.Close()

		if !store.IsConnected(ctx) {
			fmt.Fprintln(cmd.OutOrStdout(), "disconnected")
			os.Exit(1)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "connected")
	},
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
