package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultWeights_SumsToOne(t *testing.T) {
	require.InDelta(t, 1.0, DefaultWeights().Sum(), 1e-9)
}

func TestLoadWeightsFile_MissingPathReturnsDefaults(t *testing.T) {
	w, err := LoadWeightsFile("")
	require.NoError(t, err)
	require.Equal(t, DefaultWeights(), w)
}

func TestLoadWeightsFile_MissingFileReturnsDefaults(t *testing.T) {
	w, err := LoadWeightsFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, DefaultWeights(), w)
}

func TestLoadWeightsFile_OverridesFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	yaml := "technical: 0.40\npatterns: 0.15\ncycle: 0.15\nderivatives: 0.15\nfear_greed: 0.10\nonchain: 0.05\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	w, err := LoadWeightsFile(path)
	require.NoError(t, err)
	require.Equal(t, 0.40, w.Technical)
}

func TestLoadWeightsFile_RejectsBadSum(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	yaml := "technical: 0.90\npatterns: 0.20\ncycle: 0.15\nderivatives: 0.15\nfear_greed: 0.10\nonchain: 0.10\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := LoadWeightsFile(path)
	require.Error(t, err)
}
