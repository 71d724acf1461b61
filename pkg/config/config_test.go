package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValues(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "first", cfg.MatchPolicy)
	assert.Equal(t, "rv1_nosched", cfg.MatchFormat)
	assert.Equal(t, []string{"containment"}, cfg.Subsystems)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluxion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("match-policy: high\nreserve-vtx-vec: 4\n"), 0o644))

	cfg := Default()
	require.NoError(t, LoadFile(cfg, path))
	assert.Equal(t, "high", cfg.MatchPolicy)
	assert.Equal(t, int64(4), cfg.ReserveVtxVec)
}

func TestMissingConfigFileIsNotAnError(t *testing.T) {
	cfg := Default()
	require.NoError(t, LoadFile(cfg, "/nonexistent/fluxion.yaml"))
}

func TestApplyTokensOverridesDefaults(t *testing.T) {
	cfg := Default()
	require.NoError(t, ApplyTokens(cfg, []string{"match-policy=locality", "prune-filters=ANY:core,ANY:gpu"}))
	assert.Equal(t, "locality", cfg.MatchPolicy)
	assert.Equal(t, []string{"ANY:core", "ANY:gpu"}, cfg.PruneFilters)
}

func TestApplyTokensRejectsUnknownKey(t *testing.T) {
	cfg := Default()
	err := ApplyTokens(cfg, []string{"bogus-key=1"})
	require.Error(t, err)
}

func TestApplyTokensRejectsMalformedInteger(t *testing.T) {
	cfg := Default()
	err := ApplyTokens(cfg, []string{"update-interval=not-a-number"})
	require.Error(t, err)
}

func TestLoadMergesAllThreeSourcesInPrecedenceOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fluxion.yaml")
	require.NoError(t, os.WriteFile(path, []byte("match-policy: high\nmatch-format: rv1exec\n"), 0o644))

	cfg, err := Load(path, []string{"match-policy=locality"})
	require.NoError(t, err)
	assert.Equal(t, "locality", cfg.MatchPolicy) // token beats file
	assert.Equal(t, "rv1exec", cfg.MatchFormat)  // file beats default
	assert.Equal(t, "simple", cfg.TraverserPolicy) // default survives untouched
}
