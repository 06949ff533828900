package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDataRootDefaultsWhenEnvUnset(t *testing.T) {
	t.Setenv("SMARTLY_DATA_ROOT", "")
	assert.Equal(t, DefaultDataRoot, ResolveDataRoot())
}

func TestResolveDataRootHonorsEnvOverride(t *testing.T) {
	t.Setenv("SMARTLY_DATA_ROOT", "/tmp/custom-root")
	assert.Equal(t, "/tmp/custom-root", ResolveDataRoot())
}

func TestResolveConfigPathPrefersExplicitOverride(t *testing.T) {
	got := ResolveConfigPath("/etc/bridge/creds.yaml")
	assert.Equal(t, "/etc/bridge/creds.yaml", got)
}

func TestResolveConfigPathFallsBackToDataRoot(t *testing.T) {
	t.Setenv("SMARTLY_DATA_ROOT", "/tmp/custom-root")
	got := ResolveConfigPath("")
	assert.Equal(t, filepath.Join("/tmp/custom-root", "config", "bridge.yaml"), got)
}

func TestEnsureDirsCreatesConfigAndLogsSubdirs(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("SMARTLY_DATA_ROOT", dir)

	require.NoError(t, EnsureDirs())

	configInfo, err := os.Stat(filepath.Join(dir, "config"))
	require.NoError(t, err)
	assert.True(t, configInfo.IsDir())

	logsInfo, err := os.Stat(filepath.Join(dir, "logs"))
	require.NoError(t, err)
	assert.True(t, logsInfo.IsDir())
}

func TestSafeJoinAllowsNestedPath(t *testing.T) {
	dir := t.TempDir()
	got, err := SafeJoin(dir, "config", "bridge.yaml")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config", "bridge.yaml"), got)
}

func TestSafeJoinRejectsAbsoluteElement(t *testing.T) {
	dir := t.TempDir()
	_, err := SafeJoin(dir, "/etc/passwd")
	assert.Error(t, err)
}

func TestSafeJoinRejectsParentTraversal(t *testing.T) {
	dir := t.TempDir()
	_, err := SafeJoin(dir, "..", "..", "etc", "passwd")
	assert.Error(t, err)
}
