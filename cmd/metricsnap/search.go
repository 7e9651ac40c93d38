package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/metricsnap/internal/snapshot"
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search discovered entities",
	Long: `Search matches the query against discovered entities. In cache mode this
is a case-insensitive substring match over entity fields; in live mode the
query is sent to the query endpoint.`,
	Example: `  metricsnap search london
  metricsnap search "spring gala" --type campaign --limit 5`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

var (
	searchLimit int
	searchTypes []string
	searchExtra map[string]string
)

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 0,
		"Maximum number of results (0 = no limit)")
	searchCmd.Flags().StringSliceVarP(&searchTypes, "type", "t", nil,
		"Restrict to entity types")
	searchCmd.Flags().StringToStringVar(&searchExtra, "option", nil,
		"Extra key=value options sent with live queries")
}

func runSearch(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	opts := snapshot.SearchOptions{
		Limit:       searchLimit,
		EntityTypes: searchTypes,
		Extra:       make(map[string]any, len(searchExtra)),
	}
	for k, v := range searchExtra {
		opts.Extra[k] = v
	}

	results, err := apiClient.Metrics.Search(ctx, args[0], opts)
	if err != nil {
		report(err)
		return err
	}

	output(results, func() {
		for _, r := range results {
			fmt.Printf("[%v] %v\n", r["entity_type"], r["name"])
		}
		printSuccess("%d results", len(results))
	})
	return nil
}
