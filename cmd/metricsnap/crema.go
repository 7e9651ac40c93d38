package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var cremaCmd = &cobra.Command{
	Use:   "crema",
	Short: "Print discovery data",
	Long: `Crema prints the discovery sub-document: data sources, categories,
data types and collection statistics. Tenants without discovery data get an
empty result, not an error.`,
	Example: `  metricsnap crema
  metricsnap crema --json`,
	Args: cobra.NoArgs,
	RunE: runCrema,
}

var entitiesCmd = &cobra.Command{
	Use:   "entities <type>",
	Short: "List discovered entities of one type",
	Example: `  metricsnap entities donor
  metricsnap entities donor --filter city=London --filter tier=gold`,
	Args: cobra.ExactArgs(1),
	RunE: runEntities,
}

var entityFilters map[string]string

func init() {
	rootCmd.AddCommand(cremaCmd)
	rootCmd.AddCommand(entitiesCmd)

	entitiesCmd.Flags().StringToStringVarP(&entityFilters, "filter", "f", nil,
		"Exact-match filter key=value (repeatable)")
}

func runCrema(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	crema, err := apiClient.Metrics.GetCremaData(ctx)
	if err != nil {
		report(err)
		return err
	}

	if crema == nil {
		output(map[string]interface{}{"crema": nil}, func() {
			printWarning("No discovery data available")
		})
		return nil
	}

	output(crema, func() {
		printInfo("Sources")
		printList(crema.Sources())
		printInfo("Categories")
		printList(crema.Categories())
		printInfo("Data types")
		printList(crema.DataTypes())
		printInfo("Collection stats")
		printMapping(crema.CollectionStats(), "  ")
		printInfo("Entity types")
		for _, t := range crema.EntityTypes() {
			fmt.Printf("  %s (%d)\n", t, len(crema.Entities(t)))
		}
	})
	return nil
}

func runEntities(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)

	filters := make(map[string]any, len(entityFilters))
	for k, v := range entityFilters {
		filters[k] = v
	}

	entities, err := apiClient.Metrics.GetEntityData(ctx, args[0], filters)
	if err != nil {
		report(err)
		return err
	}

	output(entities, func() {
		for i, entity := range entities {
			if i > 0 {
				fmt.Println()
			}
			printMapping(entity, "")
		}
		printSuccess("%d %s entities", len(entities), args[0])
	})
	return nil
}

func printList(items []any) {
	for _, item := range items {
		if m, ok := item.(map[string]interface{}); ok {
			if name, ok := m["name"]; ok {
				fmt.Printf("  - %v\n", name)
				continue
			}
		}
		fmt.Printf("  - %v\n", item)
	}
}
