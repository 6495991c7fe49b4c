package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opensuse-zypp/zyppcore/pkg/packageprovider"
)

var (
	provideURL      string
	provideChecksum string
	provideSize     int64
)

var providePackageCmd = &cobra.Command{
	Use:   "providePackage <repo-alias> <relative-path>",
	Short: "Download, verify, and provide a single package artifact from a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		repoAlias, relPath := args[0], args[1]
		info, ok := a.manager.GetRepositoryInfo(repoAlias)
		if !ok {
			return fmt.Errorf("unknown repository '%s'", repoAlias)
		}

		item := packageprovider.PackageItem{
			RelPath:  relPath,
			URL:      provideURL,
			Scheme:   schemeOfURL(provideURL),
			Checksum: provideChecksum,
			Size:     provideSize,
		}

		handle, err := a.provide.Provide(context.Background(), info, item, nil, a.auth)
		if err != nil {
			return err
		}
		fmt.Println(handle.Path)
		return nil
	},
}

func init() {
	providePackageCmd.Flags().StringVar(&provideURL, "url", "", "absolute URL to fetch the package from if not already cached")
	providePackageCmd.Flags().StringVar(&provideChecksum, "checksum", "", "expected sha256 hex digest")
	providePackageCmd.Flags().Int64Var(&provideSize, "size", 0, "expected size in bytes")
	_ = providePackageCmd.MarkFlagRequired("url")

	rootCmd.AddCommand(providePackageCmd)
}
