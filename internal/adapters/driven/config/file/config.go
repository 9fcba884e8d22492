// Package file loads build configuration from a TOML file. All
// recognized options have defaults; whatever the file sets is
// validated eagerly at build start, never at first use.
package file

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/custodia-labs/pearls-cli/internal/core/domain"
)

// Default configuration values.
const (
	DefaultMaxSegmentTokens = 512
	DefaultBatchSize        = 8
	DefaultMaxInFlight      = 4
	DefaultMaxRetries       = 5
	DefaultRateLimit        = 2.0
)

// Config is the full configuration surface of the build pipeline.
type Config struct {
	// MaxSegmentTokens is the per-segment token budget.
	MaxSegmentTokens int `toml:"max_segment_tokens"`

	// BatchSize is the maximum segments per provider call.
	BatchSize int `toml:"batch_size"`

	// MaxInFlight is the number of concurrent provider calls.
	MaxInFlight int `toml:"max_in_flight"`

	// MaxRetries bounds retries per batch for retryable failures.
	MaxRetries int `toml:"max_retries"`

	// RateLimit is the aggregate provider request rate (requests per
	// second) across all workers.
	RateLimit float64 `toml:"rate_limit"`

	// SkipParts lists part ids to exclude from the build.
	SkipParts []string `toml:"skip_parts"`

	// SkipVersion names a prior database version whose part ids are
	// added to the skip set.
	SkipVersion string `toml:"skip_version"`

	// Model is the embedding model name.
	Model string `toml:"model"`

	// BaseURL is the embedding provider endpoint.
	BaseURL string `toml:"base_url"`

	// Encoding is the tokenizer encoding name.
	Encoding string `toml:"encoding"`

	// PCADims, when > 0, projects stored vectors to this many
	// dimensions at assembly.
	PCADims int `toml:"pca_dims"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		MaxSegmentTokens: DefaultMaxSegmentTokens,
		BatchSize:        DefaultBatchSize,
		MaxInFlight:      DefaultMaxInFlight,
		MaxRetries:       DefaultMaxRetries,
		RateLimit:        DefaultRateLimit,
	}
}

// Load reads a TOML config file over the defaults. An empty path
// returns the defaults; a named file must exist and parse.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every option eagerly and reports all problems.
func (c *Config) Validate() error {
	var errs []error
	if c.MaxSegmentTokens <= 0 {
		errs = append(errs, fmt.Errorf("max_segment_tokens must be positive, got %d", c.MaxSegmentTokens))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be positive, got %d", c.BatchSize))
	}
	if c.MaxInFlight <= 0 {
		errs = append(errs, fmt.Errorf("max_in_flight must be positive, got %d", c.MaxInFlight))
	}
	if c.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries))
	}
	if c.RateLimit <= 0 {
		errs = append(errs, fmt.Errorf("rate_limit must be positive, got %g", c.RateLimit))
	}
	if c.PCADims < 0 {
		errs = append(errs, fmt.Errorf("pca_dims must not be negative, got %d", c.PCADims))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", domain.ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}
