//go:build !integration

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"scan", "match", "cache", "runs", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "gazette-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestCacheCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range cacheCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"stats", "list", "invalidate", "prune", "clear"} {
		assert.True(t, names[name], "expected cache subcommand %q not found", name)
	}
}

func TestRunsCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range runsCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"list", "show", "stats"} {
		assert.True(t, names[name], "expected runs subcommand %q not found", name)
	}
}

func TestScanCommand_Flags(t *testing.T) {
	for _, name := range []string{"oab", "targets", "min-score", "workers", "chunk-size", "top", "no-cache", "no-progress", "json", "verbose"} {
		require.NotNil(t, scanCmd.Flags().Lookup(name), "scan command should have --%s flag", name)
	}
	assert.Equal(t, "50", scanCmd.Flags().Lookup("top").DefValue)
	assert.Equal(t, "v", scanCmd.Flags().Lookup("verbose").Shorthand)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestCacheClear_RequiresConfirmation(t *testing.T) {
	err := cacheClearCmd.RunE(cacheClearCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")
}
