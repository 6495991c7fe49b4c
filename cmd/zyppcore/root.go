package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes, spec.md §6.
const (
	exitOK               = 0
	exitGenericFailure   = 1
	exitBadArguments     = 2
	exitNotFound         = 3
	exitAlreadyExists    = 4
	exitLocked           = 5
	exitSignatureRejected = 6
	exitCancelled        = 7
)

var (
	configPath     string
	rootDir        string
	lockTimeout    int
	readOnly       bool
	nonInteractive bool
)

var rootCmd = &cobra.Command{
	Use:   "zyppcore",
	Short: "Repository/service management, keyring, and package provisioning core",
	Long: `zyppcore discovers, authenticates, caches, and refreshes software
repositories and services, and provides individual package artifacts from
them with provenance guarantees (repository metadata, signature
verification against a trusted keyring, delta reconstruction).`,
	Version: Version,
}

// Execute runs the root command, translating the returned error (if any)
// into one of spec.md §6's exit codes.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		os.Exit(exitOK)
	}
	fmt.Fprintln(os.Stderr, err)
	os.Exit(exitCodeFor(err))
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file (default: $ZYPP_CONF or /etc/zypp/zypp.conf.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "/", "target system root")
	rootCmd.PersistentFlags().IntVar(&lockTimeout, "lock-timeout", 0, "seconds to wait for the exclusion lock (0=try once, <0=forever)")
	rootCmd.PersistentFlags().BoolVar(&readOnly, "read-only", false, "skip the exclusion lock and cache cleanups (ZYPP_READONLY_HACK)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "answer prompts from a fixed auto-policy instead of reading stdin")
}
