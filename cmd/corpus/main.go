// corpus manages the legal text collection that the legal_search tool queries.
//
// Usage:
//
//	corpus import -f texts.yaml [--dry-run]
//	corpus search "unfair termination" [--jurisdiction=SA] [--limit=5]
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"basegraph.app/counsel/common/logger"
	"basegraph.app/counsel/common/typesense"
	"basegraph.app/counsel/core/config"
)

var rootFlags struct {
	verbose bool
}

var rootCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Manage the legal text corpus used for citations",
	Long:  "corpus loads statutes, regulations and precedents into Typesense\nand lets you check what a legal_search query would return.",
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, _ []string) {
		env := "cli"
		if rootFlags.verbose {
			env = "development"
		}
		slog.SetDefault(slog.New(logger.NewHandler(config.Config{Env: env}, cmd.ErrOrStderr())))
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&rootFlags.verbose, "verbose", "v", false, "Log every indexed document")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(searchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func typesenseConfig() (typesense.Config, error) {
	cfg := config.LoadTypesense()
	if !cfg.Enabled() {
		return typesense.Config{}, fmt.Errorf("TYPESENSE_URL and TYPESENSE_API_KEY are required")
	}
	return typesense.Config{
		URL:        cfg.URL,
		APIKey:     cfg.APIKey,
		Collection: cfg.Collection,
	}, nil
}
