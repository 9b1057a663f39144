package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kristofer/nutshell/internal/config"
)

func TestLoadMissingFileReturnsZeroValueConfig(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "does-not-exist.toml"))
	require.NoError(t, err)
	require.Equal(t, config.Config{}, cfg)
}

func TestLoadParsesFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nutshell.toml")
	contents := `
HeapGCThreshold = 2048
StackFrames = 4096
ModulePaths = ["./lib", "./vendor/lib"]
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, 2048, cfg.HeapGCThreshold)
	require.Equal(t, 4096, cfg.StackFrames)
	require.Equal(t, []string{"./lib", "./vendor/lib"}, cfg.ModulePaths)
}

func TestLoadRejectsMalformedToml(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("this is not = = toml"), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
