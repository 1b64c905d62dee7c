package demoblaze

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/chromedp/cdproto/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func writeCatalogWorkbook(t *testing.T, rows [][]interface{}) string {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &row))
	}
	path := filepath.Join(t.TempDir(), "catalog.xlsx")
	require.NoError(t, f.SaveAs(path))
	return path
}

func TestLoadProductCases(t *testing.T) {
	t.Run("workbook", func(t *testing.T) {
		path := writeCatalogWorkbook(t, [][]interface{}{
			{"id", "name", "price"},
			{"1", "Samsung galaxy s6", "$360"},
			{"9", " Sony vaio i5 ", ""},
		})

		cases, err := LoadProductCases(path)
		require.NoError(t, err)
		assert.Equal(t, []ProductCase{
			{ID: "1", Name: "Samsung galaxy s6", Price: "$360"},
			{ID: "9", Name: "Sony vaio i5"},
		}, cases)
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "catalog.json")
		require.NoError(t, os.WriteFile(path, []byte(`[{"id":"3","name":"Nexus 6","price":"$650"}]`), 0o644))

		cases, err := LoadProductCases(path)
		require.NoError(t, err)
		assert.Equal(t, []ProductCase{{ID: "3", Name: "Nexus 6", Price: "$650"}}, cases)
	})

	t.Run("rows need an id and a name", func(t *testing.T) {
		path := writeCatalogWorkbook(t, [][]interface{}{
			{"id", "name"},
			{"1", ""},
		})
		_, err := LoadProductCases(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "case 1 needs both id and name")
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := LoadProductCases("catalog.csv")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported")
	})
}

func TestProductCatalog(t *testing.T) {
	pc := ProductCase{ID: "1", Name: "Samsung galaxy s6", Price: "$360"}

	t.Run("scenario is registered per case", func(t *testing.T) {
		f := newSuiteFixture(t, nil, nil)
		f.suite.WithProductCases([]ProductCase{pc})
		scenarios := f.suite.Scenarios()
		assert.Equal(t, "catalog_1", scenarios[len(scenarios)-1].Name)
	})

	t.Run("matching page", func(t *testing.T) {
		f := newSuiteFixture(t, nil, nil)
		title := &cdp.Node{NodeID: 10}
		price := &cdp.Node{NodeID: 9}
		f.driver.On("Navigate", mock.Anything, baseURL+"/prod.html?idp_=1").Return(nil).Once()
		f.driver.On("WaitVisible", mock.Anything, q(t, "xpath://h2[@class='name']")).Return(title, nil).Once()
		f.driver.On("Text", mock.Anything, title).Return("Samsung galaxy s6", nil).Once()
		f.driver.On("WaitVisible", mock.Anything, q(t, "class:price-container")).Return(price, nil).Once()
		f.driver.On("Text", mock.Anything, price).Return("$360 *includes tax", nil).Once()

		assert.NoError(t, f.suite.ProductCatalog(pc)(context.Background(), f.unit))
	})

	t.Run("wrong product", func(t *testing.T) {
		f := newSuiteFixture(t, nil, nil)
		title := &cdp.Node{NodeID: 10}
		f.driver.On("Navigate", mock.Anything, baseURL+"/prod.html?idp_=1").Return(nil).Once()
		f.driver.On("WaitVisible", mock.Anything, q(t, "xpath://h2[@class='name']")).Return(title, nil).Once()
		f.driver.On("Text", mock.Anything, title).Return("Nokia lumia 1520", nil).Once()

		err := f.suite.ProductCatalog(pc)(context.Background(), f.unit)
		require.Error(t, err)
		assert.Contains(t, err.Error(), `want name "Samsung galaxy s6"`)
	})
}
