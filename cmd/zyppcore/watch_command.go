package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensuse-zypp/zyppcore/pkg/cli"
)

// watchCmd blocks, reconciling in-memory known-repo/known-service state
// against whatever another process (a concurrent zypper invocation, a
// config-management tool) writes directly under reposdir/servicesdir,
// until interrupted. It is the one long-running command in an otherwise
// one-shot CLI, so it's also the one place SetupSignalHandler earns its
// keep: Ctrl-C stops the watch cleanly instead of leaving the fsnotify
// watcher's goroutine to die with the process.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch known repositories/services for external changes and reload them",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := cli.SetupSignalHandler()
		fmt.Fprintln(cmd.OutOrStdout(), "watching for external changes, press Ctrl-C to stop")
		return a.manager.Watch(ctx, func(err error) {
			a.logger.Warn("reload after external change failed", "error", err)
		})
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
