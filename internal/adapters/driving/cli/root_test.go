package cli

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	configfile "github.com/custodia-labs/pearls-cli/internal/adapters/driven/config/file"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "pearls version dev\n", out)
}

func TestBuildCommand_RequiresVersionFlag(t *testing.T) {
	_, err := execute(t, "build", t.TempDir(), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "version")
}

func TestParseCommand_RequiresArgs(t *testing.T) {
	_, err := execute(t, "parse")
	assert.Error(t, err)
}

func TestSkipSet_MergesConfigAndFlags(t *testing.T) {
	buildSkipParts = []string{"b#s", "c#s"}
	buildSkipVersion = ""
	t.Cleanup(func() { buildSkipParts = nil })

	cfg := configfile.Default()
	cfg.SkipParts = []string{"a#s", "b#s"}

	skip, err := skipSet(context.Background(), nil, cfg)
	require.NoError(t, err)
	assert.Len(t, skip, 3)
	for _, id := range []string{"a#s", "b#s", "c#s"} {
		assert.Contains(t, skip, id)
	}
}
