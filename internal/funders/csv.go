package funders

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"

	"github.com/sells-group/greenscore/internal/model"
)

func readCSV(path string) ([]model.Funder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "funders: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	return decodeCSV(f)
}

// decodeCSV maps columns by header name. Unknown columns are ignored and
// missing optional columns stay empty.
func decodeCSV(r io.Reader) ([]model.Funder, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "funders: read csv header")
	}
	for i, h := range header {
		header[i] = normalizeHeader(h)
	}

	dec, err := csvutil.NewDecoder(reader, header...)
	if err != nil {
		return nil, eris.Wrap(err, "funders: csv decoder")
	}

	var rows []model.Funder
	for {
		var row model.Funder
		if err := dec.Decode(&row); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "funders: decode csv row")
		}
		rows = append(rows, row)
	}
	return rows, nil
}
