package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pearls-cli/internal/core/services"
	"github.com/custodia-labs/pearls-cli/internal/corpus/statpearls"
)

var parseCmd = &cobra.Command{
	Use:   "parse <corpus-dir> <parts-dir>",
	Short: "Decompose the corpus archive into document parts",
	Long: `Walks an extracted StatPearls archive and writes one content and one
metadata file per article section into the parts directory. Malformed
documents are skipped and counted; repeated runs on the same archive
produce identical part ids.`,
	Args: cobra.ExactArgs(2),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)
}

func runParse(cmd *cobra.Command, args []string) error {
	corpusDir, partsDir := args[0], args[1]

	store, err := newPartStore(partsDir)
	if err != nil {
		return err
	}
	parser := statpearls.New(corpusDir)
	if err := parser.Validate(); err != nil {
		return err
	}

	orch := services.NewBuildOrchestrator(parser, store, nil, nil, nil, 0)
	report, err := orch.ParseCorpus(cmd.Context())
	printStage(cmd, "parse", report)
	if err != nil {
		return fmt.Errorf("parse failed: %w", err)
	}
	return nil
}
