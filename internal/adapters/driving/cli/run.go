package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/services"
	"github.com/custodia-labs/pearls-cli/internal/corpus/statpearls"
)

var runCmd = &cobra.Command{
	Use:   "run <corpus-dir> <parts-dir> <db-dir>",
	Short: "Run all three pipeline stages",
	Long: `Parses the corpus, embeds every segment, and assembles a database
version in one invocation. A run with non-fatal failures still
publishes a valid, smaller database and reports what was skipped or
failed at each stage.`,
	Args: cobra.ExactArgs(3),
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&buildVersion, "version", "", "version label for this build (required)")
	runCmd.Flags().StringSliceVar(&buildSkipParts, "skip", nil, "part ids to exclude (repeatable)")
	runCmd.Flags().StringVar(&buildSkipVersion, "skip-version", "", "prior version whose parts are excluded")
	runCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	corpusDir, partsDir, dbDir := args[0], args[1], args[2]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newPartStore(partsDir)
	if err != nil {
		return err
	}
	parser := statpearls.New(corpusDir)
	if err := parser.Validate(); err != nil {
		return err
	}
	splitter, err := newSplitter(cfg)
	if err != nil {
		return err
	}
	embedder, err := newEmbedder(cfg, store)
	if err != nil {
		return err
	}
	database, err := newDatabase(dbDir)
	if err != nil {
		return err
	}

	orch := services.NewBuildOrchestrator(parser, store, splitter, embedder, database, cfg.PCADims)
	skip, err := skipSet(cmd.Context(), orch, cfg)
	if err != nil {
		return err
	}

	report, err := orch.Run(cmd.Context(), buildVersion, skip)
	if report != nil {
		printReport(cmd, report)
	}
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}
	cmd.Printf("Database version %s published.\n", buildVersion)
	return nil
}

// printReport writes the aggregate build report.
func printReport(cmd *cobra.Command, report *domain.BuildReport) {
	printStage(cmd, "parse", report.Parse)
	printStage(cmd, "chunk", report.Chunk)
	printStage(cmd, "embed", report.Embed)
	printStage(cmd, "assemble", report.Assemble)
	for _, key := range report.FailedKeys {
		cmd.Printf("failed: %s[%d]\n", key.PartID, key.Index)
	}
	for _, id := range report.IncompleteParts {
		cmd.Printf("incomplete: %s\n", id)
	}
}
