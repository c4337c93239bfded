package funders

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/greenscore/internal/model"
)

// readXLSX reads the first sheet. The first row is the header.
func readXLSX(path string) ([]model.Funder, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "funders: open %s", path)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("funders: %s has no sheets", path)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	index := make(map[string]int)
	for i, cell := range sheet.Rows[0].Cells {
		name := normalizeHeader(cell.String())
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}

	var rows []model.Funder
	for _, row := range sheet.Rows[1:] {
		get := func(col string) string {
			i, ok := index[col]
			if !ok || row == nil || i >= len(row.Cells) {
				return ""
			}
			return row.Cells[i].String()
		}
		rows = append(rows, model.Funder{
			Name:            get("name"),
			Website:         get("website"),
			Description:     get("description"),
			Sector:          get("sector"),
			InvestmentRange: get("investment_range"),
			Location:        get("location"),
		})
	}
	return rows, nil
}
