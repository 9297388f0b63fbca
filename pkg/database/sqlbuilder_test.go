package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInsertBuilder_OnConflictBuildsUpsert(t *testing.T) {
	ib := NewInsertBuilder()
	ib.InsertInto("users")
	ib.Cols("id", "email", "first_name")
	ib.Values("u1", "robert@example.com", "Robert")

	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("email", Excluded("email")),
		ub.Assign("first_name", Excluded("first_name")),
	)

	sql, args := ib.Build()
	assert.True(t, strings.HasPrefix(sql, "INSERT INTO users"))
	assert.Contains(t, sql, "ON CONFLICT (id) DO UPDATE")
	assert.Contains(t, sql, "EXCLUDED.email")
	assert.Contains(t, sql, "EXCLUDED.first_name")
	assert.Contains(t, args, "u1")
}
