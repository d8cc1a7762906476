package sink

import (
	"io/fs"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func readRows(t *testing.T, path, sheet string) [][]string {
	t.Helper()
	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(sheet)
	require.NoError(t, err)
	return rows
}

func TestWorkbookLifecycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Finance", "Claims", "Process.xlsx")
	w := New()

	_, err := w.Sheets(path)
	require.ErrorIs(t, err, fs.ErrNotExist)

	header := []string{"Number", "Amount"}
	require.NoError(t, w.Create(path, "2024", header, []interface{}{"EC-1", int64(10)}))
	require.NoError(t, w.AppendRow(path, "2024", []interface{}{"EC-2", 12.5}))
	require.NoError(t, w.AddSheet(path, "2024 TOC", header, []interface{}{"EC-1", "x"}))

	sheets, err := w.Sheets(path)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"2024", "2024 TOC"}, sheets)

	assert.Equal(t, [][]string{
		{"Number", "Amount"},
		{"EC-1", "10"},
		{"EC-2", "12.5"},
	}, readRows(t, path, "2024"))
	assert.Len(t, readRows(t, path, "2024 TOC"), 2)
}

func TestAppendRowKeepsBlankRows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Process.xlsx")
	w := New()
	blank := func() []interface{} { return []interface{}{"", nil} }

	require.NoError(t, w.Create(path, "2024", []string{"A", "B"}, blank()))
	require.NoError(t, w.AppendRow(path, "2024", blank()))
	require.NoError(t, w.AppendRow(path, "2024", []interface{}{"x", "y"}))
	require.NoError(t, w.AppendRow(path, "2024", blank()))
	require.NoError(t, w.AppendRow(path, "2024", []interface{}{"z", ""}))

	rows := readRows(t, path, "2024")
	require.Len(t, rows, 6)
	assert.Equal(t, []string{"A", "B"}, rows[0])
	assert.Equal(t, []string{"x", "y"}, rows[3])
	assert.Equal(t, []string{"z"}, rows[5])

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	n, err := lastRow(f, "2024")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
