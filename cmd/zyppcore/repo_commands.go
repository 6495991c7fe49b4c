package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/repomanager"
	"github.com/opensuse-zypp/zyppcore/pkg/variables"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

var (
	addRepoURL      string
	addRepoType     string
	addRepoPriority int
	addRepoDisabled bool
)

var addRepositoryCmd = &cobra.Command{
	Use:   "addRepository <alias>",
	Short: "Add a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		info := repo.New(args[0])
		info.Type = repo.ParseType(addRepoType)
		info.Enabled = !addRepoDisabled
		if addRepoPriority > 0 {
			info.Priority = addRepoPriority
		}
		if addRepoURL != "" {
			info.BaseURLs = []variables.Pair{variables.NewPair(addRepoURL, nil)}
		}
		if err := a.manager.AddRepository(info); err != nil {
			return err
		}
		fmt.Printf("Added repository '%s'\n", info.Alias)
		return nil
	},
}

var removeRepositoryCmd = &cobra.Command{
	Use:   "removeRepository <alias>",
	Short: "Remove a known repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.RemoveRepository(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed repository '%s'\n", args[0])
		return nil
	},
}

var (
	modifyRepoEnable   bool
	modifyRepoDisable  bool
	modifyRepoPriority int
)

var modifyRepositoryCmd = &cobra.Command{
	Use:   "modifyRepository <alias>",
	Short: "Modify a known repository's settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		existing, ok := a.manager.GetRepositoryInfo(args[0])
		if !ok {
			return fmt.Errorf("unknown repository '%s'", args[0])
		}
		patch := existing
		if modifyRepoEnable {
			patch.Enabled = true
		}
		if modifyRepoDisable {
			patch.Enabled = false
		}
		if modifyRepoPriority > 0 {
			patch.Priority = modifyRepoPriority
		}
		if err := a.manager.ModifyRepository(args[0], patch); err != nil {
			return err
		}
		fmt.Printf("Modified repository '%s'\n", args[0])
		return nil
	},
}

var refreshForce bool

var refreshCmd = &cobra.Command{
	Use:   "refresh [alias]",
	Short: "Refresh one repository's metadata, or all enabled autorefresh repositories",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		policy := repomanager.RefreshIfNeeded
		if refreshForce {
			policy = repomanager.RefreshForce
		}

		ctx := context.Background()
		if len(args) == 1 {
			info, ok := a.manager.GetRepositoryInfo(args[0])
			if !ok {
				return fmt.Errorf("unknown repository '%s'", args[0])
			}
			return a.refreshOne(ctx, info, policy)
		}

		var errs []error
		for _, info := range a.manager.KnownRepositories() {
			if !info.Enabled || !info.Autorefresh {
				continue
			}
			if err := a.refreshOne(ctx, info, policy); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", info.Alias, err))
			}
		}
		return ziperr.NewBatchError("refresh", errs)
	},
}

// refreshOne runs RefreshMetadata for a single repo with this app's wired
// mirrorlist fetcher, HTTP downloader, and signature verifier.
func (a *app) refreshOne(ctx context.Context, info repo.RepoInfo, policy repomanager.RefreshPolicy) error {
	start := time.Now()
	err := a.manager.RefreshMetadata(ctx, info.Alias, policy, a.mirrors, a.auth, a.download, a.verifier)
	status := "refreshed"
	if err != nil {
		status = "error"
	}
	a.metrics.RecordRefresh(info.Alias, status, time.Since(start))
	return err
}

var cleanCmd = &cobra.Command{
	Use:   "clean [alias]",
	Short: "Remove cached metadata/packages for one repository, or prune cache garbage",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 1 {
			info, ok := a.manager.GetRepositoryInfo(args[0])
			if !ok {
				return fmt.Errorf("unknown repository '%s'", args[0])
			}
			if err := a.manager.CleanMetadata(info); err != nil {
				return err
			}
			return a.manager.CleanPackages(info)
		}
		return a.manager.PruneCacheGarbage(a.ctx.ReadOnly())
	},
}

func init() {
	addRepositoryCmd.Flags().StringVar(&addRepoURL, "url", "", "base URL")
	addRepositoryCmd.Flags().StringVar(&addRepoType, "type", "", "metadata type (rpm-md, yast2, plaindir)")
	addRepositoryCmd.Flags().IntVar(&addRepoPriority, "priority", 0, "repository priority (1-99)")
	addRepositoryCmd.Flags().BoolVar(&addRepoDisabled, "disable", false, "add the repository disabled")

	modifyRepositoryCmd.Flags().BoolVar(&modifyRepoEnable, "enable", false, "enable the repository")
	modifyRepositoryCmd.Flags().BoolVar(&modifyRepoDisable, "disable", false, "disable the repository")
	modifyRepositoryCmd.Flags().IntVar(&modifyRepoPriority, "priority", 0, "repository priority (1-99)")

	refreshCmd.Flags().BoolVar(&refreshForce, "force", false, "refresh even if the current metadata is still fresh")

	rootCmd.AddCommand(addRepositoryCmd, removeRepositoryCmd, modifyRepositoryCmd, refreshCmd, cleanCmd)
}
