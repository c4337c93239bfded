package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Record is a flattened key-value accumulation of stage outputs. Later
// stages add their fields to the same record.
type Record map[string]any

// Merge copies every key of other into r. On collision the value from
// other wins.
func (r Record) Merge(other map[string]any) {
	for k, v := range other {
		r[k] = v
	}
}

// Clone returns a shallow copy of r.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// GreenScore reads green_score as an integer. JSON numbers and numeric
// strings are accepted and floored; values beyond the int range saturate.
// Anything else, NaN included, reports false.
func (r Record) GreenScore() (int, bool) {
	v, ok := r["green_score"]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return floorInt(n)
	case int:
		return n, true
	case int64:
		return int(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false
		}
		return floorInt(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return floorInt(f)
	default:
		return 0, false
	}
}

func floorInt(f float64) (int, bool) {
	switch {
	case math.IsNaN(f):
		return 0, false
	case f >= math.MaxInt:
		return math.MaxInt, true
	case f <= math.MinInt:
		return math.MinInt, true
	}
	return int(math.Floor(f)), true
}

// TokenUsage tracks model token consumption.
type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
}

// Add accumulates other into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
}
