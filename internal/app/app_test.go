package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onboardline/internal/config"
	"onboardline/internal/db"
	"onboardline/internal/migrate"
)

func TestOpenBootstrapsWorkspace(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OBL_ENV", "staging")
	var logs bytes.Buffer
	a, err := Open(context.Background(), Options{Workspace: dir, LogOutput: &logs})
	require.NoError(t, err)
	defer a.Close(context.Background())

	assert.Equal(t, "staging", a.Config.Environment)
	assert.FileExists(t, db.Path(dir))
	v, err := migrate.Version(context.Background(), a.DB)
	require.NoError(t, err)
	latest, err := migrate.Latest()
	require.NoError(t, err)
	assert.Equal(t, latest, v)
	assert.Equal(t, "staging", a.Engine.Ledger.Environment)

	store, err := a.Archive(context.Background())
	require.NoError(t, err)
	require.NoError(t, store.Write(context.Background(), "marker.txt", []byte("ok")))
	assert.FileExists(t, filepath.Join(dir, defaultArchiveDir, "marker.txt"))
}

func TestOpenLoadsRulesFileFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(
		"environment: development\nrules_file: missing-rules.yml\n"), 0o644))
	_, err := Open(context.Background(), Options{Workspace: dir, LogOutput: &bytes.Buffer{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load rules")
}
