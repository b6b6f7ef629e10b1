package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsAndFlags(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse([]string{"-port", "9001", "-data-dir", dir})
	require.NoError(t, err)
	require.Equal(t, 9001, cfg.Port)
	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "keybundle.json"), cfg.KeyBundlePath)
	require.Equal(t, filepath.Join(dir, "node.db"), cfg.DBPath())
}

func TestNodeSecretsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.enc")
	pass := []byte("correct horse battery staple")

	created, err := CreateNodeSecrets(path, pass)
	require.NoError(t, err)

	loaded, err := LoadNodeSecrets(path, pass)
	require.NoError(t, err)
	require.Equal(t, created.DiscoverySeedB64, loaded.DiscoverySeedB64)
	require.Equal(t, created.DiscoverySeed, loaded.DiscoverySeed)
	require.NotZero(t, loaded.DiscoverySeed)

	_, err = LoadNodeSecrets(path, []byte("wrong passphrase"))
	require.Error(t, err)
}
