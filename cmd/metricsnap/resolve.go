package main

import (
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [page-path]",
	Short: "Show where the snapshot is read from",
	Example: `  metricsnap resolve /tenants/acme/dashboard/index.html
  metricsnap resolve --page /dashboard/`,
	Args: cobra.MaximumNArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	page := cfg.Cache.PagePath
	if len(args) == 1 {
		page = args[0]
	}

	resolved := apiClient.Resolver.Resolve(page)
	result := map[string]interface{}{
		"page":    page,
		"path":    resolved,
		"backend": cfg.Cache.Backend,
		"mode":    apiClient.Metrics.GetMode(),
	}
	if len(args) == 0 {
		result["location"] = apiClient.SnapshotLocation()
	}

	output(result, func() {
		printInfo("Page:     %s", page)
		printInfo("Snapshot: %s", resolved)
		if loc, ok := result["location"]; ok {
			printInfo("Location: %s", loc)
		}
	})
	return nil
}
