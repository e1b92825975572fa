package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleet-history-backend/internal/machine"
)

func TestNormalizeTypeName(t *testing.T) {
	assert.Equal(t, "oil change", NormalizeTypeName("  Oil   CHANGE "))
	assert.Equal(t, "", NormalizeTypeName("   "))
}

func TestCatalog_ResolveOrCreateType(t *testing.T) {
	gdb := newSQLiteDB(t)
	c := NewCatalog(gdb, "en")

	first, err := c.ResolveOrCreateType(t.Context(), "Oil  change", "", false)
	require.NoError(t, err)
	assert.Equal(t, "Oil change", first.Name)
	assert.Equal(t, "en", first.Language)

	again, err := c.ResolveOrCreateType(t.Context(), "OIL CHANGE", "EN", false)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "Oil change", again.Name, "the first spelling is kept")

	spanish, err := c.ResolveOrCreateType(t.Context(), "Oil change", "es", false)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, spanish.ID)

	_, err = c.ResolveOrCreateType(t.Context(), "  ", "en", false)
	assert.True(t, machine.IsValidation(err))
}

func TestCatalog_UsageAndListing(t *testing.T) {
	gdb := newSQLiteDB(t)
	c := NewCatalog(gdb, "en")

	oil, err := c.ResolveOrCreateType(t.Context(), "Oil change", "en", false)
	require.NoError(t, err)
	tyre, err := c.ResolveOrCreateType(t.Context(), "Tyre puncture", "en", false)
	require.NoError(t, err)
	_, err = c.ResolveOrCreateType(t.Context(), "Other", "es", false)
	require.NoError(t, err)

	require.NoError(t, c.IncrementUsage(t.Context(), tyre.ID))
	require.NoError(t, c.IncrementUsage(t.Context(), tyre.ID))
	require.NoError(t, c.IncrementUsage(t.Context(), oil.ID))
	assert.True(t, machine.IsNotFound(c.IncrementUsage(t.Context(), "missing")))

	types, err := c.ListTypes(t.Context(), "en", "", 0)
	require.NoError(t, err)
	require.Len(t, types, 2)
	assert.Equal(t, tyre.ID, types[0].ID)
	assert.Equal(t, int64(2), types[0].UsageCount)

	prefixed, err := c.ListTypes(t.Context(), "en", "oil", 10)
	require.NoError(t, err)
	require.Len(t, prefixed, 1)
	assert.Equal(t, oil.ID, prefixed[0].ID)

	got, err := c.GetType(t.Context(), oil.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.UsageCount)

	_, err = c.GetType(t.Context(), "missing")
	assert.True(t, machine.IsNotFound(err))
}
