package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/gridsync/internal/config"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "gridsync", cmd.Use)
	assert.Contains(t, cmd.Long, "batch")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"push", "delete", "pull", "refresh", "tables", "validate", "serve", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	configFlag := cmd.PersistentFlags().Lookup("config")
	require.NotNil(t, configFlag)
	assert.Equal(t, config.DefaultPath, configFlag.DefValue)
}

func TestPassCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"push", "delete", "refresh"} {
		sub, _, err := cmd.Find([]string{name})
		require.NoError(t, err)
		rows := sub.Flags().Lookup("rows")
		require.NotNil(t, rows, name)
		assert.Equal(t, "r", rows.Shorthand)
	}

	del, _, err := cmd.Find([]string{"delete"})
	require.NoError(t, err)
	assert.NotNil(t, del.Flags().Lookup("yes"))

	pull, _, err := cmd.Find([]string{"pull"})
	require.NoError(t, err)
	assert.Nil(t, pull.Flags().Lookup("rows"), "pull loads the whole table")
}

func TestServeCommandFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)

	for _, name := range []string{"listen", "db", "seed-catalog"} {
		assert.NotNil(t, serve.Flags().Lookup(name), name)
	}
}

func TestInvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetArgs([]string{"--format", "xml", "tables"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid format")
}

func TestConfigFlagOverrides(t *testing.T) {
	t.Setenv(config.EnvEndpoint, "")
	t.Setenv(config.EnvCallerID, "")
	path := filepath.Join(t.TempDir(), "gridsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("endpoint: http://file:9000\ncaller_id: file-user\n"), 0o600))

	opts := &RootOptions{ConfigPath: path, CallerID: "flag-user"}
	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, "http://file:9000", cfg.Endpoint)
	assert.Equal(t, "flag-user", cfg.CallerID)

	again, err := opts.Config()
	require.NoError(t, err)
	assert.Same(t, cfg, again, "config is loaded once")
}

func TestConfigMissingFileUsesDefaults(t *testing.T) {
	opts := &RootOptions{ConfigPath: filepath.Join(t.TempDir(), "absent.yaml")}
	cfg, err := opts.Config()
	require.NoError(t, err)
	assert.Equal(t, config.Default().Listen, cfg.Listen)
}
