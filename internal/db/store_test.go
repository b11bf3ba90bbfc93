package db

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildStagingFilter(t *testing.T) {
	where, args := buildStagingFilter(ListParams{})
	assert.Equal(t, "WHERE 1=1", where)
	assert.Empty(t, args)

	where, args = buildStagingFilter(ListParams{Query: "  water main "})
	assert.Equal(t, []any{"water main"}, args)
	assert.Contains(t, where, "plainto_tsquery('english', $1)")
	assert.Contains(t, where, "project_title ILIKE '%' || $1 || '%'")
	assert.NotContains(t, where, "$2")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, defaultListLimit, clampLimit(0))
	assert.Equal(t, defaultListLimit, clampLimit(-3))
	assert.Equal(t, 10, clampLimit(10))
	assert.Equal(t, maxListLimit, clampLimit(5000))
}

func TestPrefixedCols(t *testing.T) {
	cols := prefixedCols("t")
	assert.True(t, strings.HasPrefix(cols, "t.id, t.project_title"))
	assert.True(t, strings.HasSuffix(cols, "t.created_at"))
	assert.Equal(t, strings.Count(selectCols, ","), strings.Count(cols, ","))
}

func TestNullableJSON(t *testing.T) {
	assert.Nil(t, nullableJSON(nil))
	assert.Equal(t, `{"a":1}`, nullableJSON([]byte(`{"a":1}`)))
}

func TestMigrationsEmbedded(t *testing.T) {
	content, err := migrationsFS.ReadFile("migrations/001_staging.sql")
	assert.NoError(t, err)
	for _, table := range []string{"temp_opportunities", "import_runs", "vector,"} {
		assert.Contains(t, string(content), table)
	}
}
