package migrations

import (
	"io/fs"
	"path"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion(t *testing.T) {
	assert.Equal(t, "001", Version("001_catalog.sql"))
	assert.Equal(t, "002", Version("sql/002_enrollments.sql"))
	assert.Equal(t, "init", Version("init"))
}

func TestEmbeddedMigrationsAreOrdered(t *testing.T) {
	m := NewMigrator(nil)

	files, err := m.Files()
	require.NoError(t, err)
	assert.Equal(t, []string{"001_catalog.sql", "002_enrollments.sql", "003_failed_jobs.sql"}, files)

	seen := map[string]bool{}
	for _, f := range files {
		v := Version(f)
		assert.False(t, seen[v], "duplicate migration version %s", v)
		seen[v] = true
	}
}

func TestEnrollmentSchemaGuardsSeats(t *testing.T) {
	content, err := fs.ReadFile(embedded, path.Join("sql", "002_enrollments.sql"))
	require.NoError(t, err)

	sql := string(content)
	assert.True(t, strings.Contains(sql, "enrolled_count <= capacity"))
	assert.True(t, strings.Contains(sql, "enrollments_open_student_section_key"))
}
