package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/TheMichaelB/metricsnap/internal/client"
	"github.com/TheMichaelB/metricsnap/internal/config"
	"github.com/TheMichaelB/metricsnap/internal/events"
	"github.com/TheMichaelB/metricsnap/internal/models"
)

var (
	cfg        *config.Config
	logger     *events.Logger
	apiClient  *client.Client
	configFile string
	jsonOutput bool
	modeFlag   string
	pageFlag   string
	tenantFlag string
)

var rootCmd = &cobra.Command{
	Use:   "metricsnap",
	Short: "Read encrypted time-range metrics snapshots",
	Long: `metricsnap reads the consolidated metrics snapshot published for a
tenant dashboard, decrypts protected fields and prints period metrics,
discovery data and search results.

In live mode the same commands query the metrics API directly.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if apiClient != nil {
			return apiClient.Close()
		}
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFile, "config", "c", "", "Config file (default: ./metricsnap.yaml)")
	flags.BoolVar(&jsonOutput, "json", false, "Print JSON output")
	flags.StringVar(&modeFlag, "mode", "", "Override mode (cache or live)")
	flags.StringVar(&pageFlag, "page", "", "Page path used to locate the snapshot")
	flags.StringVar(&tenantFlag, "tenant", "", "Override tenant id")
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.NewLoader(configFile).Load()
	if err != nil {
		printError("%v", err)
		return err
	}

	if modeFlag != "" {
		cfg.Cache.Mode = modeFlag
	}
	if pageFlag != "" {
		cfg.Cache.PagePath = pageFlag
	}
	if tenantFlag != "" {
		cfg.Tenant.ID = tenantFlag
	}

	logger, err = events.NewLogger(&cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	events.SetDefault(logger)

	apiClient, err = client.New(cmd.Context(), cfg, logger)
	if err != nil {
		report(err)
		return err
	}
	return nil
}

// commandContext tags the command context with the tenant.
func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = events.WithLogger(ctx, logger)
	return events.WithTenantID(ctx, cfg.Tenant.ID)
}

// report prints err with its error code.
func report(err error) {
	if jsonOutput {
		printJSON(map[string]interface{}{
			"success": false,
			"code":    models.ErrorCode(err),
			"error":   err.Error(),
		})
		return
	}
	printError("[%s] %v", models.ErrorCode(err), err)
}

// output prints v as JSON or through the text renderer.
func output(v interface{}, text func()) {
	if jsonOutput {
		printJSON(v)
		return
	}
	text()
}

func printJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
	}
}

func printError(format string, args ...interface{}) {
	color.New(color.FgRed).Fprintf(os.Stderr, "Error: "+format+"\n", args...)
}

func printSuccess(format string, args ...interface{}) {
	color.New(color.FgGreen).Printf(format+"\n", args...)
}

func printWarning(format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(os.Stderr, format+"\n", args...)
}

func printInfo(format string, args ...interface{}) {
	color.New(color.FgCyan).Printf(format+"\n", args...)
}
