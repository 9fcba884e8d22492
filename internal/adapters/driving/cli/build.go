package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/pearls-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/pearls-cli/internal/core/ports/driving"
	"github.com/custodia-labs/pearls-cli/internal/core/services"
)

var (
	buildVersion     string
	buildSkipParts   []string
	buildSkipVersion string
)

var buildCmd = &cobra.Command{
	Use:   "build <parts-dir> <db-dir>",
	Short: "Assemble a versioned database from parts and embeddings",
	Long: `Merges stored parts, their segments and their embeddings into one
database version. Parts listed in the skip set (explicitly, or derived
from a prior version) are excluded; parts with missing embeddings are
excluded and reported. The version is published with a single atomic
rename, so readers never observe a partial build.`,
	Args: cobra.ExactArgs(2),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVar(&buildVersion, "version", "", "version label for this build (required)")
	buildCmd.Flags().StringSliceVar(&buildSkipParts, "skip", nil, "part ids to exclude (repeatable)")
	buildCmd.Flags().StringVar(&buildSkipVersion, "skip-version", "", "prior version whose parts are excluded")
	buildCmd.MarkFlagRequired("version")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	partsDir, dbDir := args[0], args[1]

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
	database, err := newDatabase(dbDir)
	if err != nil {
		return err
	}

	orch := services.NewBuildOrchestrator(nil, store, splitter, nil, database, cfg.PCADims)
	skip, err := skipSet(cmd.Context(), orch, cfg)
	if err != nil {
		return err
	}

	report, incomplete, err := orch.AssembleDatabase(cmd.Context(), buildVersion, skip)
	printStage(cmd, "assemble", report)
	for _, id := range incomplete {
		cmd.Printf("incomplete: %s\n", id)
	}
	if err != nil {
		return fmt.Errorf("build failed: %w", err)
	}
	cmd.Printf("Database version %s published.\n", buildVersion)
	return nil
}

// skipSet merges the configured skip ids with the flags and, when a
// prior version is named, the part ids stored in it.
func skipSet(ctx context.Context, orch driving.BuildOrchestrator, cfg configfile.Config) (map[string]struct{}, error) {
	skip := make(map[string]struct{})
	for _, id := range cfg.SkipParts {
		skip[id] = struct{}{}
	}
	for _, id := range buildSkipParts {
		skip[id] = struct{}{}
	}

	prior := buildSkipVersion
	if prior == "" {
		prior = cfg.SkipVersion
	}
	if prior != "" {
		derived, err := orch.SkipFromVersion(ctx, prior)
		if err != nil {
			return nil, err
		}
		for id := range derived {
			skip[id] = struct{}{}
		}
	}
	return skip, nil
}
