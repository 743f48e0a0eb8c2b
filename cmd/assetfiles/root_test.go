package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "assetfiles dev")
}

func TestInitCommand_WritesConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	_, err := execute(t, "--config", path, "init")
	require.NoError(t, err)
	assert.FileExists(t, path)

	_, err = execute(t, "--config", path, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--config", path, "init", "--force")
	require.NoError(t, err)
}

func TestTokensCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "auth.json")
	require.NoError(t, os.WriteFile(good, []byte(`[{"name":"alice","token":"a"}]`), 0o600))
	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`[{`), 0o600))

	_, err := execute(t, "tokens", "check", "--file", good)
	require.NoError(t, err)

	_, err = execute(t, "tokens", "check", "--file", bad)
	require.Error(t, err)

	_, err = execute(t, "tokens", "list", "--file", good)
	require.NoError(t, err)
}

func TestAuditPrune_RequiresRetention(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("audit:\n  type: memory\n"), 0o644))

	_, err := execute(t, "--config", path, "audit", "prune")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--older-than")

	_, err = execute(t, "--config", path, "audit", "prune", "--older-than", "1h")
	require.NoError(t, err)
}
