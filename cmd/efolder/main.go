// Command efolder runs eFolder Express: the web service, the optional Redis
// worker, and a few operator commands.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "efolder: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "efolder",
		Short: "eFolder Express",
		Long: `eFolder Express downloads every document in a Veteran's eFolder from the
records system and packages them as a single zip file.

Configuration is read from EFOLDER_* environment variables, an optional .env
file, and the YAML file named by EFOLDER_CONFIG.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newStatusCmd(),
		newArchiveCmd(),
		newKeygenCmd(),
	)
	return cmd
}
