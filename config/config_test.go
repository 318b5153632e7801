package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultConfigAndKeystore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.NotEmpty(t, cfg.DataDir)
	require.Len(t, cfg.Engine.Assets, 2)
	require.Equal(t, "WETH", cfg.Engine.Assets[0].Symbol)
	require.FileExists(t, path)
	require.FileExists(t, cfg.OperatorKeystorePath)

	// A second load reads the file it just wrote.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.RPCAddress, reloaded.RPCAddress)
}

func TestLoadNormalisesEngineSection(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	raw := `
RPCAddress = ""
Env = "test"

[engine]
MaxQuoteAgeSeconds = 0

[[engine.assets]]
Symbol = " weth "
FeedURL = "http://oracle.local/price"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:8645", cfg.RPCAddress)
	require.Equal(t, int64(300), cfg.Engine.MaxQuoteAgeSeconds)
	require.Equal(t, "WETH", cfg.Engine.Assets[0].Symbol)
	require.Equal(t, uint8(18), cfg.Engine.Assets[0].Decimals)
}

func TestLoadRejectsEmptyAssetList(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	raw := `
RPCAddress = "127.0.0.1:9000"
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o644))

	_, err := Load(path)
	require.ErrorContains(t, err, "no collateral assets")
}
