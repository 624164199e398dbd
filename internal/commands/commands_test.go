package commands

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/salesboard/internal/core"
	"github.com/JonMunkholm/salesboard/internal/store/storetest"
)

// runCtl runs salesctl in-process against a SQLite file.
func runCtl(t *testing.T, dbPath string, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer

	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--driver", "sqlite", "--sqlite-path", dbPath, "--env-file", filepath.Join(t.TempDir(), "none.env")}, args...))

	err := cmd.Execute()
	return out.String(), err
}

func writeCSV(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sales.csv")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestImportAndChart(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sales.db")
	csv := writeCSV(t, storetest.Header+
		"DH1,KH1,An,S1,,2024-01-01 10:00:00,C1,,SP1,Tea,2,100\n"+
		"DH2,KH1,An,S1,,not a time,C1,,SP2,,1,50\n")

	out, err := runCtl(t, db, "import", csv)
	require.NoError(t, err)
	assert.Contains(t, out, "2 rows read, 1 skipped, 1 lines written, 0 lines skipped")
	assert.Contains(t, out, "line 3 (DH2)")

	out, err = runCtl(t, db, "chart", "--json")
	require.NoError(t, err)
	var chart []core.ChartRecord
	require.NoError(t, json.Unmarshal([]byte(out), &chart))
	require.Len(t, chart, 1)
	assert.Equal(t, int64(200), chart[0].Revenue)

	out, err = runCtl(t, db, "chart")
	require.NoError(t, err)
	assert.Contains(t, out, "REVENUE")
	assert.Contains(t, out, "DH1")

	out, err = runCtl(t, db, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "sales.csv")
	assert.Contains(t, out, core.ImportSucceeded)
}

func TestImport_InputError(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sales.db")
	path := filepath.Join(t.TempDir(), "sales.txt")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := runCtl(t, db, "import", path)
	require.ErrorIs(t, err, core.ErrNotCSV)
	assert.Contains(t, err.Error(), "FILE001")
}

func TestEntryAndStats(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sales.db")

	out, err := runCtl(t, db, "entry", "--bill", "DH9", "--product", "SP1",
		"--time", "2024-03-01 09:30:00", "--quantity", "3", "--price", "1000")
	require.NoError(t, err)
	assert.Contains(t, out, "bill DH9 recorded")

	_, err = runCtl(t, db, "entry", "--bill", "DH9", "--product", "SP2")
	assert.ErrorIs(t, err, core.ErrDuplicateCode)

	_, err = runCtl(t, db, "entry", "--bill", "DH10", "--product", "SP2", "--quantity", "lots")
	assert.ErrorIs(t, err, core.ErrInvalidEntry)

	out, err = runCtl(t, db, "stats")
	require.NoError(t, err)
	assert.Regexp(t, `bills\s+1`, out)
	assert.Regexp(t, `bill lines\s+1`, out)
}

func TestMigrate(t *testing.T) {
	db := filepath.Join(t.TempDir(), "nested", "sales.db")

	out, err := runCtl(t, db, "migrate")
	require.NoError(t, err)
	assert.Contains(t, out, "schema up to date (sqlite)")

	_, err = os.Stat(db)
	assert.NoError(t, err)
}
