package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
)

var metricsCmd = &cobra.Command{
	Use:   "metrics <period>...",
	Short: "Print metrics for one or more periods",
	Long: `Metrics prints the metrics recorded for each period. A period missing
from the snapshot is served by the nearest broader period in its fallback
chain.`,
	Example: `  metricsnap metrics this_month
  metricsnap metrics today this_week --json
  metricsnap metrics this_year --mode live`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMetrics,
}

var metricsFull bool

func init() {
	rootCmd.AddCommand(metricsCmd)

	metricsCmd.Flags().BoolVar(&metricsFull, "full", false,
		"Print the whole period record, not only its metrics")
}

func runMetrics(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	results := make(map[string]interface{}, len(args))
	records := make(map[string]*models.PeriodRecord, len(args))

	for _, period := range args {
		rec, err := apiClient.Metrics.GetPeriodRecord(events.WithPeriod(ctx, period), period)
		if err != nil {
			report(err)
			return err
		}
		records[period] = rec
		if metricsFull {
			results[period] = rec
		} else {
			results[period] = rec.Metrics
		}
	}

	output(results, func() {
		for _, period := range args {
			printInfo("%s", period)
			printMapping(records[period].Metrics, "  ")
		}
	})
	return nil
}

// printMapping prints keys in sorted order, one per line.
func printMapping(m map[string]interface{}, indent string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]interface{}:
			fmt.Printf("%s%s:\n", indent, k)
			printMapping(v, indent+"  ")
		default:
			fmt.Printf("%s%s: %v\n", indent, k, v)
		}
	}
}
