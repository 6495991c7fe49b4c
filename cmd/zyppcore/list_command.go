package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/opensuse-zypp/zyppcore/pkg/cli"
)

var (
	listRepositoriesOutput string
	listServicesOutput     string
)

// repoRow/serviceRow are the display shape listRepositories/listServices
// feed to a cli.Formatter — narrower than repo.RepoInfo/ServiceInfo so JSON
// output doesn't leak internal fields (contentKeywords, sourceFiles) that
// have no meaning outside the Manager.
type repoRow struct {
	Alias       string `json:"alias"`
	Name        string `json:"name,omitempty"`
	Enabled     bool   `json:"enabled"`
	Autorefresh bool   `json:"autorefresh"`
	Priority    int    `json:"priority"`
	Service     string `json:"service,omitempty"`
}

type serviceRow struct {
	Alias       string `json:"alias"`
	Name        string `json:"name,omitempty"`
	Enabled     bool   `json:"enabled"`
	Autorefresh bool   `json:"autorefresh"`
	URL         string `json:"url,omitempty"`
	TTLSeconds  int64  `json:"ttl_seconds"`
}

var listRepositoriesCmd = &cobra.Command{
	Use:   "listRepositories",
	Short: "List every known repository",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		infos := a.manager.KnownRepositories()
		rows := make([]repoRow, len(infos))
		for i, info := range infos {
			rows[i] = repoRow{
				Alias:       info.Alias,
				Name:        info.Name,
				Enabled:     info.Enabled,
				Autorefresh: info.Autorefresh,
				Priority:    info.Priority,
				Service:     info.Service,
			}
		}
		return cli.NewFormatter(cli.OutputFormat(listRepositoriesOutput)).FormatTo(os.Stdout, rows)
	},
}

var listServicesCmd = &cobra.Command{
	Use:   "listServices",
	Short: "List every known service",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		svcs := a.manager.KnownServices()
		rows := make([]serviceRow, len(svcs))
		for i, svc := range svcs {
			rows[i] = serviceRow{
				Alias:       svc.Alias,
				Name:        svc.Name,
				Enabled:     svc.Enabled,
				Autorefresh: svc.Autorefresh,
				URL:         svc.URL,
				TTLSeconds:  int64(svc.TTL.Seconds()),
			}
		}
		return cli.NewFormatter(cli.OutputFormat(listServicesOutput)).FormatTo(os.Stdout, rows)
	},
}

func init() {
	listRepositoriesCmd.Flags().StringVar(&listRepositoriesOutput, "output", string(cli.FormatText), "output format (text, json; csv returns an error)")
	listServicesCmd.Flags().StringVar(&listServicesOutput, "output", string(cli.FormatText), "output format (text, json; csv returns an error)")

	rootCmd.AddCommand(listRepositoriesCmd, listServicesCmd)
}
