package model

// Stage names, in execution order.
const (
	StageExtract   = "extract"
	StageScore     = "score"
	StageSuggest   = "suggest"
	StageRecommend = "recommend"
)

// StageResult records what one pipeline stage produced.
type StageResult struct {
	Name       string     `json:"name"`
	Raw        string     `json:"-"`
	Objects    int        `json:"objects"`
	DurationMs int64      `json:"duration_ms"`
	Usage      TokenUsage `json:"usage"`
	CostUSD    float64    `json:"cost_usd"`
}

// Analysis is the outcome of one green analysis request.
type Analysis struct {
	RequestID string        `json:"request_id"`
	Records   []Record      `json:"records"`
	Rejected  bool          `json:"rejected"`
	Error     string        `json:"error,omitempty"`
	Stages    []StageResult `json:"stages"`
	Usage     TokenUsage    `json:"usage"`
	CostUSD   float64       `json:"cost_usd"`
}

// Payload returns what the API sends back: the record list, or an error
// object when the score gate rejected the request.
func (a *Analysis) Payload() any {
	if a.Rejected {
		return map[string]string{"error": a.Error}
	}
	if a.Records == nil {
		return []Record{}
	}
	return a.Records
}

// Funder is one row of the funder directory.
type Funder struct {
	Name            string `csv:"name" json:"name"`
	Website         string `csv:"website,omitempty" json:"website"`
	Description     string `csv:"description,omitempty" json:"description"`
	Sector          string `csv:"sector,omitempty" json:"sector"`
	InvestmentRange string `csv:"investment_range,omitempty" json:"investment_range"`
	Location        string `csv:"location,omitempty" json:"location"`
}
