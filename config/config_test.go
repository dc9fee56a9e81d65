package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(nil)
	require.NoError(t, err)
	require.Equal(t, defaultListenPort, cfg.ListenPort)
	require.Equal(t, defaultLogLevel, cfg.LogLevel)
}

func TestLoadFlagOverridesDefault(t *testing.T) {
	cfg, err := Load([]string{"--listenport=9000"})
	require.NoError(t, err)
	require.Equal(t, 9000, cfg.ListenPort)
}

func TestLoadFlagOverridesIniFile(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "amiko.conf")
	require.NoError(t, os.WriteFile(confPath, []byte("listenport=1111\n"), 0600))

	cfg, err := Load([]string{"--configfile=" + confPath, "--listenport=2222"})
	require.NoError(t, err)
	require.Equal(t, 2222, cfg.ListenPort)
}

func TestLoadReadsIniFileWhenNoFlagOverride(t *testing.T) {
	dir := t.TempDir()
	confPath := filepath.Join(dir, "amiko.conf")
	require.NoError(t, os.WriteFile(confPath, []byte("listenport=3333\n"), 0600))

	cfg, err := Load([]string{"--configfile=" + confPath})
	require.NoError(t, err)
	require.Equal(t, 3333, cfg.ListenPort)
}

func TestStatePathsDeriveFromDataDir(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/tmp/amiko-data"
	require.Equal(t, "/tmp/amiko-data/state.json", cfg.StatePath())
	require.Equal(t, "/tmp/amiko-data/paylog.json", cfg.PayLogPath())
}
