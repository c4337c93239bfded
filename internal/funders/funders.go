// Package funders loads the directory of green investment funders that the
// recommend stage chooses from.
package funders

import (
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/model"
)

// columns is the render order of the directory table.
var columns = []string{"name", "website", "description", "sector", "investment_range", "location"}

// Directory is a read-only list of funders, safe for concurrent use.
type Directory struct {
	funders []model.Funder
}

// NewDirectory builds a Directory from rows, dropping rows without a name.
func NewDirectory(rows []model.Funder) *Directory {
	out := make([]model.Funder, 0, len(rows))
	for i, f := range rows {
		f = trimFunder(f)
		if f.Name == "" {
			zap.L().Debug("funders: skipping row without name", zap.Int("row", i+1))
			continue
		}
		out = append(out, f)
	}
	return &Directory{funders: out}
}

// Load reads a funder directory from a .csv or .xlsx file.
func Load(path string) (*Directory, error) {
	var (
		rows []model.Funder
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		rows, err = readCSV(path)
	case ".xlsx":
		rows, err = readXLSX(path)
	default:
		return nil, eris.Errorf("funders: unsupported file type %q (want .csv or .xlsx)", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	dir := NewDirectory(rows)
	zap.L().Info("funders: directory loaded",
		zap.String("path", path),
		zap.Int("funders", dir.Len()),
	)
	return dir, nil
}

// Len returns the number of funders.
func (d *Directory) Len() int {
	return len(d.funders)
}

// All returns a copy of the funders in file order.
func (d *Directory) All() []model.Funder {
	out := make([]model.Funder, len(d.funders))
	copy(out, d.funders)
	return out
}

// Format renders the directory as a pipe-delimited table for the
// recommend prompt. An empty directory renders the header only.
func (d *Directory) Format() string {
	var b strings.Builder
	b.WriteString(strings.Join(columns, " | "))
	b.WriteByte('\n')
	for _, f := range d.funders {
		cells := []string{f.Name, f.Website, f.Description, f.Sector, f.InvestmentRange, f.Location}
		for i, c := range cells {
			cells[i] = strings.ReplaceAll(strings.ReplaceAll(c, "\n", " "), "|", "/")
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteByte('\n')
	}
	return b.String()
}

// normalizeHeader maps "Investment Range" and similar spellings onto the
// canonical snake_case column names.
func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	switch h {
	case "funder", "funder_name", "company", "company_name":
		return "name"
	case "url", "company_website":
		return "website"
	}
	return h
}

func trimFunder(f model.Funder) model.Funder {
	f.Name = strings.TrimSpace(f.Name)
	f.Website = strings.TrimSpace(f.Website)
	f.Description = strings.TrimSpace(f.Description)
	f.Sector = strings.TrimSpace(f.Sector)
	f.InvestmentRange = strings.TrimSpace(f.InvestmentRange)
	f.Location = strings.TrimSpace(f.Location)
	return f
}
