package auth

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeStubCLI(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stub not portable to windows")
	}
	path := filepath.Join(t.TempDir(), "az")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestAzureCLISource_Token(t *testing.T) {
	source := &AzureCLISource{Path: writeStubCLI(t, `echo '{"accessToken":"cli-token"}'`)}

	token, err := source.Token(context.Background(), "https://api.example.com/")
	require.NoError(t, err)
	assert.Equal(t, "cli-token", token)
}

func TestAzureCLISource_Errors(t *testing.T) {
	t.Run("not installed", func(t *testing.T) {
		source := &AzureCLISource{Path: filepath.Join(t.TempDir(), "missing")}
		_, err := source.Token(context.Background(), "https://r")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not installed")
	})

	t.Run("command fails", func(t *testing.T) {
		source := &AzureCLISource{Path: writeStubCLI(t, "exit 1")}
		_, err := source.Token(context.Background(), "https://r")
		require.Error(t, err)
	})

	t.Run("empty token", func(t *testing.T) {
		source := &AzureCLISource{Path: writeStubCLI(t, `echo '{}'`)}
		_, err := source.Token(context.Background(), "https://r")
		require.Error(t, err)
	})
}
