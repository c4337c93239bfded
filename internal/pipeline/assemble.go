package pipeline

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/greenscore/internal/model"
)

// seed turns the extract stage's objects into the initial record list.
func seed(objs []map[string]any) []model.Record {
	records := make([]model.Record, 0, len(objs))
	for _, obj := range objs {
		r := make(model.Record, len(obj))
		r.Merge(obj)
		records = append(records, r)
	}
	return records
}

// merge folds one stage's objects into records. A single object applies to
// every record. Otherwise object i goes to record i and surplus objects
// become new records.
func merge(records []model.Record, objs []map[string]any) []model.Record {
	switch len(objs) {
	case 0:
		return records
	case 1:
		if len(records) == 0 {
			return seed(objs)
		}
		for _, r := range records {
			r.Merge(objs[0])
		}
		return records
	}

	for i, obj := range objs {
		if i < len(records) {
			records[i].Merge(obj)
			continue
		}
		r := make(model.Record, len(obj))
		r.Merge(obj)
		records = append(records, r)
	}
	return records
}

// compact drops records with no keys. The result is never nil.
func compact(records []model.Record) []model.Record {
	out := make([]model.Record, 0, len(records))
	for _, r := range records {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return out
}

// stageInput renders the records accumulated so far for the next stage.
// With nothing recovered the raw replies of every earlier stage are passed
// on, joined by newlines in stage order.
func stageInput(records []model.Record, raws []string) (string, error) {
	records = compact(records)
	switch len(records) {
	case 0:
		return strings.Join(raws, "\n"), nil
	case 1:
		b, err := json.Marshal(records[0])
		if err != nil {
			return "", eris.Wrap(err, "pipeline: encode record")
		}
		return string(b), nil
	default:
		b, err := json.Marshal(records)
		if err != nil {
			return "", eris.Wrap(err, "pipeline: encode records")
		}
		return string(b), nil
	}
}
