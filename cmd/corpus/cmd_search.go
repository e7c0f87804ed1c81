package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"basegraph.app/counsel/common/typesense"
	"basegraph.app/counsel/internal/legal"
)

var searchFlags struct {
	jurisdiction string
	limit        int
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Show the research context a legal_search query produces",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringVar(&searchFlags.jurisdiction, "jurisdiction", "", "Restrict results to one jurisdiction code")
	f.IntVar(&searchFlags.limit, "limit", 5, "Maximum number of legal texts")
}

func runSearch(cmd *cobra.Command, args []string) error {
	tsCfg, err := typesenseConfig()
	if err != nil {
		return err
	}
	client, err := typesense.New(tsCfg)
	if err != nil {
		return err
	}

	searcher := legal.NewTypesenseSearcher(client, searchFlags.limit)
	sources, err := searcher.Search(cmd.Context(), strings.Join(args, " "), searchFlags.jurisdiction)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(sources) == 0 {
		fmt.Fprintln(out, "No legal texts matched.")
		return nil
	}
	fmt.Fprintln(out, legal.FormatContext(sources))
	return nil
}
