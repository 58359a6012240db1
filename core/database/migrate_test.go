package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectApplied(t *testing.T) {
	files := []string{"000001_init.up.sql", "000002_progress.up.sql", "000003_lists.up.sql"}
	assert.Equal(t, []string{"000002_progress.up.sql", "000003_lists.up.sql"}, selectApplied(files, 1, 3))
	assert.Empty(t, selectApplied(files, 3, 3))
}

func TestListMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"000002_b.up.sql", "000001_a.up.sql", "000001_a.down.sql"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644))
	}
	assert.Equal(t, []string{"000001_a.up.sql", "000002_b.up.sql"}, listMigrationFiles(dir))
}

func TestConfigURL(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "bot", Password: "p@ss", Name: "vkinder"}
	assert.Equal(t, "postgres://bot:p%40ss@db:5432/vkinder?sslmode=disable", cfg.URL())
	assert.Contains(t, cfg.DSN(), "sslmode=disable")
}
