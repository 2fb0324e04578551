package main

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permitwatch/internal/config"
)

func TestTypeColumnResolvesHeaderVariants(t *testing.T) {
	for _, header := range [][]string{
		{"PERMIT_NO", "Permit Type", "STATUS"},
		{"PERMIT_NO", "PERMIT_TYPE", "STATUS"},
		{"no", "permit-type", "status"},
		{"no", "Category", "status"},
	} {
		idx, err := typeColumn(header)
		require.NoError(t, err, "header %v", header)
		assert.Equal(t, 1, idx, "header %v", header)
	}

	_, err := typeColumn([]string{"PERMIT_NO", "STATUS"})
	assert.Error(t, err)
}

func TestScoreCSVSortsAndAppendsColumns(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "permits.csv")
	outPath := filepath.Join(dir, "permits_scored.csv")

	in := [][]string{
		{"PERMIT_NO", "PERMIT_TYPE", "STATUS"},
		{"P-200", "FEASIBILITY STUDY", "ISSUED"},
		{"P-100", "DEMOLITION", "ISSUED"},
		{"P-300", "REROOF RESIDENTIAL", "ISSUED"},
	}
	f, err := os.Create(inPath)
	require.NoError(t, err)
	require.NoError(t, csv.NewWriter(f).WriteAll(in))
	require.NoError(t, f.Close())

	require.NoError(t, scoreCSV(inPath, outPath))

	out, err := os.Open(outPath)
	require.NoError(t, err)
	defer out.Close()
	rows, err := csv.NewReader(out).ReadAll()
	require.NoError(t, err)

	require.Len(t, rows, 4)
	assert.Equal(t, []string{"PERMIT_NO", "PERMIT_TYPE", "STATUS", "dumpster_score", "dumpster_tier", "dumpster_reason"}, rows[0])
	// Sorted by score descending: demolition 98, reroof 60, feasibility 10.
	assert.Equal(t, "P-100", rows[1][0])
	assert.Equal(t, "98", rows[1][3])
	assert.Equal(t, "A", rows[1][4])
	assert.Equal(t, "P-300", rows[2][0])
	assert.Equal(t, "C", rows[2][4])
	assert.Equal(t, "P-200", rows[3][0])
	assert.Equal(t, "D", rows[3][4])
}

func TestDefaultTargetDateUsesPortalFormat(t *testing.T) {
	portal := config.DefaultConfig().Portal
	date, err := defaultTargetDate(portal)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{2}/\d{2}/\d{4}$`, date)

	portal.Timezone = "Not/AZone"
	_, err = defaultTargetDate(portal)
	assert.Error(t, err)
}
