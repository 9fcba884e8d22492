package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/pearls-cli/internal/core/services"
)

var embedCmd = &cobra.Command{
	Use:   "embed <parts-dir>",
	Short: "Compute embeddings for stored document parts",
	Long: `Chunks every stored part under the configured token budget and
computes embeddings for segments that do not have a vector yet.
Segments whose vectors already exist are skipped, so a failed run can
be resumed by re-running the command.`,
	Args: cobra.ExactArgs(1),
	RunE: runEmbed,
}

func init() {
	rootCmd.AddCommand(embedCmd)
}

func runEmbed(cmd *cobra.Command, args []string) error {
	partsDir := args[0]

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := newPartStore(partsDir)
	if err != nil {
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

	orch := services.NewBuildOrchestrator(nil, store, splitter, embedder, nil, 0)
	report, failedKeys, err := orch.EmbedParts(cmd.Context())
	printStage(cmd, "embed", report)
	for _, key := range failedKeys {
		cmd.Printf("failed: %s[%d]\n", key.PartID, key.Index)
	}
	if err != nil {
		return fmt.Errorf("embed failed: %w", err)
	}
	return nil
}
