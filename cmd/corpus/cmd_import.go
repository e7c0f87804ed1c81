package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"basegraph.app/counsel/common/typesense"
	"basegraph.app/counsel/internal/legal"
)

var importFlags struct {
	file   string
	dryRun bool
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Index legal texts from a YAML corpus file",
	RunE:  runImport,
}

func init() {
	f := importCmd.Flags()
	f.StringVarP(&importFlags.file, "file", "f", "", "Corpus YAML file (required)")
	f.BoolVar(&importFlags.dryRun, "dry-run", false, "Validate the file without indexing")

	_ = importCmd.MarkFlagRequired("file")
}

func runImport(cmd *cobra.Command, _ []string) error {
	f, err := os.Open(importFlags.file)
	if err != nil {
		return fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()

	docs, err := legal.LoadCorpus(f)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if importFlags.dryRun {
		fmt.Fprintf(out, "%s: %d legal texts valid\n", importFlags.file, len(docs))
		return nil
	}

	tsCfg, err := typesenseConfig()
	if err != nil {
		return err
	}
	idx, err := typesense.NewIndexer(tsCfg)
	if err != nil {
		return err
	}

	n, err := legal.ImportCorpus(cmd.Context(), idx, docs)
	fmt.Fprintf(out, "Indexed %d/%d legal texts into %s\n", n, len(docs), tsCfg.Collection)
	if err != nil {
		return fmt.Errorf("import stopped: %w", err)
	}
	return nil
}
