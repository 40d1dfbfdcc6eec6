package shared

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationRunner(t *testing.T) {
	t.Run("RunMigrations And Rollback", func(t *testing.T) {
		db, err := NewDatabase(filepath.Join(t.TempDir(), "podx.db"))
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, RunMigrations(db))

		version, dirty, err := MigrationVersion(db)
		require.NoError(t, err)
		assert.Equal(t, uint(2), version)
		assert.False(t, dirty)

		for _, table := range []string{"podcasts", "episodes", "search_results"} {
			_, err = db.Exec("SELECT 1 FROM " + table + " LIMIT 1")
			assert.NoError(t, err, "%s table should exist after migrations", table)
		}

		require.NoError(t, RollbackMigration(db))

		_, err = db.Exec("SELECT 1 FROM search_results LIMIT 1")
		assert.Error(t, err, "search_results should be dropped after rollback")

		_, err = db.Exec("SELECT 1 FROM podcasts LIMIT 1")
		assert.NoError(t, err, "podcasts should survive a single rollback")
	})

	t.Run("RunMigrations is idempotent", func(t *testing.T) {
		db, err := NewDatabase(filepath.Join(t.TempDir(), "podx.db"))
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, RunMigrations(db))
		require.NoError(t, RunMigrations(db))
	})

	t.Run("Rollback without migrations", func(t *testing.T) {
		db, err := NewDatabase(filepath.Join(t.TempDir(), "podx.db"))
		require.NoError(t, err)
		defer db.Close()

		assert.Error(t, RollbackMigration(db))
	})

	t.Run("foreign keys are enforced", func(t *testing.T) {
		db, err := NewDatabase(MemoryDatabase)
		require.NoError(t, err)
		defer db.Close()

		require.NoError(t, RunMigrations(db))

		var enabled int
		require.NoError(t, db.Get(&enabled, "PRAGMA foreign_keys"))
		assert.Equal(t, 1, enabled)

		_, err = db.Exec("INSERT INTO episodes (guid, podcast_id) VALUES ('g1', 42)")
		assert.Error(t, err, "episode with unknown podcast should be rejected")
	})
}
