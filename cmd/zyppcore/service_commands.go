package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/opensuse-zypp/zyppcore/pkg/repo"
	"github.com/opensuse-zypp/zyppcore/pkg/repomanager"
	"github.com/opensuse-zypp/zyppcore/pkg/ziperr"
)

var addServiceDisabled bool

var addServiceCmd = &cobra.Command{
	Use:   "addService <alias> <url>",
	Short: "Add a service",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		svc := repo.NewService(args[0])
		svc.URL = args[1]
		svc.Enabled = !addServiceDisabled
		if err := a.manager.AddService(svc); err != nil {
			return err
		}
		fmt.Printf("Added service '%s'\n", svc.Alias)
		return nil
	},
}

var removeServiceCmd = &cobra.Command{
	Use:   "removeService <alias>",
	Short: "Remove a service and every repository it owns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.manager.RemoveService(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed service '%s'\n", args[0])
		return nil
	},
}

var (
	modifyServiceEnable  bool
	modifyServiceDisable bool
)

var modifyServiceCmd = &cobra.Command{
	Use:   "modifyService <alias>",
	Short: "Modify a service's settings",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		existing, ok := a.manager.GetServiceInfo(args[0])
		if !ok {
			return fmt.Errorf("unknown service '%s'", args[0])
		}
		patch := existing
		if modifyServiceEnable {
			patch.Enabled = true
		}
		if modifyServiceDisable {
			patch.Enabled = false
		}
		if err := a.manager.ModifyService(args[0], patch); err != nil {
			return err
		}
		fmt.Printf("Modified service '%s'\n", args[0])
		return nil
	},
}

var refreshServicesForce bool

var refreshServicesCmd = &cobra.Command{
	Use:   "refreshServices [alias]",
	Short: "Fetch one service's (or every service's) repository index and reconcile owned repositories",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		ctx := context.Background()
		if len(args) == 1 {
			svc, ok := a.manager.GetServiceInfo(args[0])
			if !ok {
				return fmt.Errorf("unknown service '%s'", args[0])
			}
			if !repomanager.ServiceNeedsRefresh(svc, refreshServicesForce) {
				return nil
			}
			return a.refreshService(ctx, svc)
		}

		var errs []error
		for _, svc := range a.manager.KnownServices() {
			if !svc.Enabled || svc.IsPlugin() {
				continue
			}
			if !repomanager.ServiceNeedsRefresh(svc, refreshServicesForce) {
				continue
			}
			if err := a.refreshService(ctx, svc); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", svc.Alias, err))
			}
		}
		return ziperr.NewBatchError("refreshServices", errs)
	},
}

// refreshService downloads a service's repository index document (the
// same .repo INI format RepoManager persists known repos in, per
// spec.md §4.6's "plugin and plain services are distinguished only by the
// fetch mechanism") and hands the parsed repos to Manager.RefreshService.
func (a *app) refreshService(ctx context.Context, svc repo.ServiceInfo) error {
	dest := filepath.Join(os.TempDir(), uuid.NewString()+".repo")
	defer os.Remove(dest)

	scheme := schemeOfURL(svc.URL)
	if _, err := a.registry.Fetch(ctx, scheme, svc.URL, dest, a.auth); err != nil {
		return fmt.Errorf("fetch service index for '%s': %w", svc.Alias, err)
	}

	f, err := os.Open(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	repos, err := repo.ParseRepoFile(f, nil)
	if err != nil {
		return fmt.Errorf("parse service index for '%s': %w", svc.Alias, err)
	}

	return a.manager.RefreshService(svc.Alias, repos)
}

func schemeOfURL(rawURL string) string {
	for i := 0; i < len(rawURL); i++ {
		if rawURL[i] == ':' {
			return rawURL[:i]
		}
		if rawURL[i] == '/' {
			break
		}
	}
	return ""
}

func init() {
	addServiceCmd.Flags().BoolVar(&addServiceDisabled, "disable", false, "add the service disabled")

	modifyServiceCmd.Flags().BoolVar(&modifyServiceEnable, "enable", false, "enable the service")
	modifyServiceCmd.Flags().BoolVar(&modifyServiceDisable, "disable", false, "disable the service")

	refreshServicesCmd.Flags().BoolVar(&refreshServicesForce, "force", false, "refresh even if the service's ttl has not elapsed")

	rootCmd.AddCommand(addServiceCmd, removeServiceCmd, modifyServiceCmd, refreshServicesCmd)
}
