package vkb

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rjmurr/movebook/pkg/logger"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "types.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoad(t *testing.T) {
	path := writeCSV(t, `designator,wtc,description
C172,L,Cessna 172 Skyhawk
a320, m ,Airbus A320
B744,H,Boeing 747-400
,L,missing designator
NOWT,,missing wtc
`)

	db, err := Load(path, logger.NewNop())
	require.NoError(t, err)
	assert.Equal(t, 3, db.Count(), "incomplete rows are skipped")

	wtc, ok := db.WTCFor("c172")
	require.True(t, ok)
	assert.Equal(t, "L", wtc, "lookups are case-insensitive")

	rec, ok := db.Get("A320")
	require.True(t, ok)
	assert.Equal(t, "M", rec.WTC, "values are normalized on load")
	assert.Equal(t, "A320", rec.Designator)

	_, ok = db.WTCFor("ZZZZ")
	assert.False(t, ok)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.csv"), logger.NewNop())
	assert.Error(t, err)
}
