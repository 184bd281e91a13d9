package database

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLatestVersion(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"000001_create_contact.up.sql",
		"000001_create_contact.down.sql",
		"000003_add_index.up.sql",
		"000002_other.up.sql",
		"README.md",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o600))
	}

	latest, err := latestVersion(dir)
	require.NoError(t, err)
	assert.Equal(t, 3, latest)
}

func TestLatestVersion_Empty(t *testing.T) {
	_, err := latestVersion(t.TempDir())
	assert.Error(t, err)
}

func TestLatestVersion_RepositoryMigrations(t *testing.T) {
	latest, err := latestVersion(filepath.Join("..", "..", "db", "pg"))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, latest, 1)
}
