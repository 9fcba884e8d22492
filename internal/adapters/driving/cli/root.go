// Package cli implements the pearls command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	configfile "github.com/custodia-labs/pearls-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/pearls-cli/internal/adapters/driven/embedding/openai"
	"github.com/custodia-labs/pearls-cli/internal/adapters/driven/storage/parts"
	"github.com/custodia-labs/pearls-cli/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/pearls-cli/internal/adapters/driven/tokenizer/tiktoken"
	"github.com/custodia-labs/pearls-cli/internal/chunker"
	"github.com/custodia-labs/pearls-cli/internal/core/domain"
	"github.com/custodia-labs/pearls-cli/internal/core/services"
	"github.com/custodia-labs/pearls-cli/internal/logger"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "pearls",
	Short: "Build a versioned embedding database from the StatPearls corpus",
	Long: `pearls decomposes an extracted StatPearls archive into document parts,
computes embeddings for each part via an embedding provider, and
assembles a versioned, queryable database of parts and vectors.

The three stages (parse, embed, build) run independently over
intermediate artifacts on disk, so an interrupted pipeline can be
restarted at any stage.`,
	SilenceUsage: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to TOML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig loads and eagerly validates the configuration.
func loadConfig() (configfile.Config, error) {
	cfg, err := configfile.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// newPartStore opens the intermediate part store.
func newPartStore(dir string) (*parts.Store, error) {
	return parts.NewStore(dir)
}

// newSplitter builds the token-aware chunker.
func newSplitter(cfg configfile.Config) (*chunker.Splitter, error) {
	tok, err := tiktoken.New(cfg.Encoding)
	if err != nil {
		return nil, err
	}
	return chunker.New(tok, chunker.WithMaxTokens(cfg.MaxSegmentTokens)), nil
}

// newEmbedder builds the embedding builder over the configured
// provider, with the shared rate gate.
func newEmbedder(cfg configfile.Config, store *parts.Store) (*services.EmbeddingBuilder, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY is not set", domain.ErrInvalidConfig)
	}
	provider, err := openai.NewEmbeddingService(openai.Config{
		APIKey:  apiKey,
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
	})
	if err != nil {
		return nil, err
	}
	gate := rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	return services.NewEmbeddingBuilder(provider, store,
		services.WithBatchSize(cfg.BatchSize),
		services.WithMaxInFlight(cfg.MaxInFlight),
		services.WithMaxRetries(cfg.MaxRetries),
		services.WithRateGate(gate),
	), nil
}

// newDatabase opens the versioned database root.
func newDatabase(dir string) (*sqlite.Database, error) {
	return sqlite.NewDatabase(dir)
}

// printStage writes one stage summary line.
func printStage(cmd *cobra.Command, name string, report domain.StageReport) {
	cmd.Printf("%-9s total %d, succeeded %d, skipped %d, failed %d\n",
		name+":", report.Total, report.Succeeded, report.Skipped, report.Failed)
}
