package demoblaze

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bulwark/internal/runner"
	"github.com/xkilldash9x/bulwark/internal/testdata"
)

// ProductCase is one row of the data-driven catalogue check.
type ProductCase struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Price string `json:"price"`
}

// LoadProductCases reads catalogue rows from an .xlsx workbook (first sheet,
// columns id, name, price) or a JSON array.
func LoadProductCases(path string) ([]ProductCase, error) {
	var cases []ProductCase
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		rows, err := testdata.LoadExcel(path, "")
		if err != nil {
			return nil, err
		}
		for _, row := range rows {
			cases = append(cases, ProductCase{
				ID:    strings.TrimSpace(row["id"]),
				Name:  strings.TrimSpace(row["name"]),
				Price: strings.TrimSpace(row["price"]),
			})
		}
	case ".json":
		if err := testdata.LoadJSON(path, &cases); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported catalogue data file %s (want .xlsx or .json)", path)
	}

	for i, pc := range cases {
		if pc.ID == "" || pc.Name == "" {
			return nil, fmt.Errorf("%s: case %d needs both id and name", path, i+1)
		}
	}
	return cases, nil
}

// WithProductCases adds one catalogue scenario per case.
func (s *Suite) WithProductCases(cases []ProductCase) *Suite {
	s.cases = append(s.cases, cases...)
	return s
}

// ProductCatalog opens the product page of pc directly and checks its title
// and, when the case has one, its price.
func (s *Suite) ProductCatalog(pc ProductCase) func(ctx context.Context, u *runner.Unit) error {
	return func(ctx context.Context, u *runner.Unit) error {
		home := s.home(u.Actions, u.Logger)
		if err := home.OpenPath(ctx, "prod.html?idp_="+pc.ID); err != nil {
			return err
		}

		pdp := NewProductPage(u.Actions, s.repo, u.Logger)
		if name := pdp.Name(ctx); name != pc.Name {
			return fmt.Errorf("product %s: want name %q, page shows %q", pc.ID, pc.Name, name)
		}
		if pc.Price != "" {
			if price := pdp.Price(ctx); !strings.Contains(price, pc.Price) {
				return fmt.Errorf("product %s: want price %s, page shows %q", pc.ID, pc.Price, price)
			}
		}
		u.Logger.Debug("Catalogue entry verified.", zap.String("product_id", pc.ID))
		return nil
	}
}
