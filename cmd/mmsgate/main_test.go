package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/mmsgate/internal/adapters/fs"
	"github.com/bft-labs/mmsgate/internal/adapters/guard"
	"github.com/bft-labs/mmsgate/internal/adapters/sqlite"
	"github.com/bft-labs/mmsgate/internal/cliconfig"
)

func testCommand(cfg *cliconfig.Config) *cobra.Command {
	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	cmd.Flags().StringVar(&cfg.Interface, "interface", cfg.Interface, "")
	cmd.Flags().StringVar(&cfg.EndpointURL, "endpoint-url", cfg.EndpointURL, "")
	return cmd
}

func TestLoadConfig_Precedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
state_dir = "`+dir+`"
interface = "wwan-file"
endpoint_url = "http://file.example/mms"
`), 0o600))
	t.Setenv("MMSGATE_INTERFACE", "wwan-env")

	cfg := cliconfig.DefaultConfig()
	cmd := testCommand(&cfg)
	require.NoError(t, cmd.Flags().Parse([]string{"--endpoint-url", "http://flag.example/mms"}))

	require.NoError(t, loadConfig(cmd, &cfg, path))
	assert.Equal(t, "wwan-env", cfg.Interface)
	assert.Equal(t, "http://flag.example/mms", cfg.EndpointURL)
	assert.Equal(t, filepath.Join(dir, "mmsgate.db"), cfg.StorePath)
	assert.Equal(t, filepath.Join(dir, "spool"), cfg.SpoolDir)
}

func TestLoadConfig_Invalid(t *testing.T) {
	cfg := cliconfig.DefaultConfig()
	cfg.StateDir = t.TempDir()
	cmd := testCommand(&cfg)
	assert.Error(t, loadConfig(cmd, &cfg, filepath.Join(t.TempDir(), "missing.toml")))
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()

	cfg := cliconfig.Config{StoreDriver: cliconfig.StoreFile, StorePath: dir}
	s, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &fs.MessageFileStore{}, s)
	require.NoError(t, s.Close())

	cfg = cliconfig.Config{StoreDriver: cliconfig.StoreSQLite, StorePath: filepath.Join(dir, "m.db")}
	s, err = openStore(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())
}

func TestOpenGuard(t *testing.T) {
	g, closeFn, err := openGuard(cliconfig.Config{WakeLock: cliconfig.WakeLockMemory})
	require.NoError(t, err)
	assert.IsType(t, &guard.Memory{}, g)
	closeFn()

	g, closeFn, err = openGuard(cliconfig.Config{WakeLock: cliconfig.WakeLockNone})
	require.NoError(t, err)
	assert.Nil(t, g)
	closeFn()
}
