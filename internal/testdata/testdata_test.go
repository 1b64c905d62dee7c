package testdata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeWorkbook(t *testing.T, sheet string, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		_, err := f.NewSheet(sheet)
		require.NoError(t, err)
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}

	path := filepath.Join(t.TempDir(), "data.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadExcel(t *testing.T) {
	path := writeWorkbook(t, "Login", [][]interface{}{
		{"username", " password ", "expected"},
		{"alice", "s3cret", "Welcome alice"},
		{},
		{"bob", "hunter2"},
	})

	records, err := LoadExcel(path, "Login")
	require.NoError(t, err)
	assert.Equal(t, []map[string]string{
		{"username": "alice", "password": "s3cret", "expected": "Welcome alice"},
		{"username": "bob", "password": "hunter2", "expected": ""},
	}, records)
}

func TestLoadExcel_DefaultSheet(t *testing.T) {
	path := writeWorkbook(t, "Sheet1", [][]interface{}{
		{"category"},
		{"Phones"},
		{"Laptops"},
	})

	records, err := LoadExcel(path, "")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Laptops", records[1]["category"])
}

func TestLoadExcel_Errors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		_, err := LoadExcel(filepath.Join(t.TempDir(), "nope.xlsx"), "")
		assert.Error(t, err)
	})

	t.Run("unknown sheet", func(t *testing.T) {
		path := writeWorkbook(t, "Sheet1", [][]interface{}{{"a"}})
		_, err := LoadExcel(path, "Checkout")
		require.Error(t, err)
		assert.Contains(t, err.Error(), `"Checkout"`)
	})

	t.Run("empty sheet", func(t *testing.T) {
		path := writeWorkbook(t, "Sheet1", nil)
		_, err := LoadExcel(path, "Sheet1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no header row")
	})

	t.Run("gap in header", func(t *testing.T) {
		path := writeWorkbook(t, "Sheet1", [][]interface{}{{"a", "", "c"}})
		_, err := LoadExcel(path, "Sheet1")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "header column 2 is empty")
	})
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "user.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"username":"alice","password":"s3cret","products":[1,7]}`), 0o644))

	var user struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Products []int  `json:"products"`
	}
	require.NoError(t, LoadJSON(path, &user))
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, []int{1, 7}, user.Products)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"username":`), 0o644))
	assert.Error(t, LoadJSON(bad, &user))
	assert.Error(t, LoadJSON(filepath.Join(dir, "missing.json"), &user))
}
