package migrate

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, file := range files {
		body, readErr := migrationsFS.ReadFile(file)
		require.NoError(t, readErr)
		assert.NotEmpty(t, strings.TrimSpace(string(body)), file)
	}

	first, err := migrationsFS.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(first), "synthesis_job_history")
}
