package db

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAppliesMigrations(t *testing.T) {
	t.Parallel()

	database, err := Open(filepath.Join(t.TempDir(), "taskflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	for _, table := range []string{"tasks", "task_edges", "reminders", "time_entries", "comments"} {
		var name string
		err := database.QueryRow(`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	version, err := Version(database)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)
}

func TestEdgesMayReferenceMissingTasks(t *testing.T) {
	t.Parallel()

	database, err := Open(filepath.Join(t.TempDir(), "taskflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	var fk int
	require.NoError(t, database.QueryRow(`PRAGMA foreign_keys`).Scan(&fk))
	assert.Zero(t, fk)

	_, err = database.Exec(`INSERT INTO task_edges(task_id, depends_on_id) VALUES('later', 'never-created')`)
	require.NoError(t, err)
}

func TestFormatTimeOrdersLexically(t *testing.T) {
	t.Parallel()

	base := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	later := base.Add(500 * time.Millisecond)
	assert.Less(t, FormatTime(base), FormatTime(later))

	parsed, err := ParseTime(FormatTime(later))
	require.NoError(t, err)
	assert.True(t, later.Equal(parsed))
}

func TestScanTimeNull(t *testing.T) {
	t.Parallel()

	got, err := ScanTime(sqlNullString("", false))
	require.NoError(t, err)
	assert.Nil(t, got)

	_, err = ScanTime(sqlNullString("yesterday", true))
	assert.Error(t, err)
}

func sqlNullString(s string, valid bool) sql.NullString {
	return sql.NullString{String: s, Valid: valid}
}
