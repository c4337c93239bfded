package main

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/greenscore/internal/model"
	"github.com/sells-group/greenscore/internal/pipeline"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

func sampleAnalysis() *model.Analysis {
	return &model.Analysis{
		RequestID: "req-123",
		Records: []model.Record{{
			"project_title":       "Sunfield Solar Farm",
			"project_type":        "Renewable Energy",
			"green_score":         82.0,
			"suggestions":         []any{"Add storage", "Recycle frames", "Publish emissions"},
			"recommended_funders": []any{"A", "B", "C"},
		}},
		Stages: []model.StageResult{
			{Name: model.StageExtract, Objects: 1, DurationMs: 1200, Usage: model.TokenUsage{InputTokens: 900, OutputTokens: 80}, CostUSD: 0.0001},
			{Name: model.StageScore, Objects: 1, DurationMs: 400},
		},
		Usage:   model.TokenUsage{InputTokens: 900, OutputTokens: 80},
		CostUSD: 0.0001,
	}
}

func TestWriteAnalysis_JSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnalysis(&buf, sampleAnalysis(), "json"))

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, "Sunfield Solar Farm", out[0]["project_title"])
}

func TestWriteAnalysis_YAML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnalysis(&buf, sampleAnalysis(), "yaml"))

	var out []map[string]any
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 1)
	assert.Equal(t, 82, out[0]["green_score"])
	assert.Contains(t, buf.String(), "project_type: Renewable Energy")
}

func TestWriteAnalysis_Rejected(t *testing.T) {
	a := sampleAnalysis()
	a.Rejected = true
	a.Error = pipeline.NotGreenEnoughMessage

	var buf bytes.Buffer
	require.NoError(t, writeAnalysis(&buf, a, "json"))
	assert.JSONEq(t, `{"error": "`+pipeline.NotGreenEnoughMessage+`"}`, buf.String())

	buf.Reset()
	require.NoError(t, writeAnalysis(&buf, a, "summary"))
	assert.Contains(t, buf.String(), pipeline.NotGreenEnoughMessage)
	assert.NotContains(t, buf.String(), "Green score:")
}

func TestWriteAnalysis_Summary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnalysis(&buf, sampleAnalysis(), "summary"))

	out := buf.String()
	assert.Contains(t, out, "Request req-123")
	assert.Contains(t, out, "extract")
	assert.Contains(t, out, "1200ms")
	assert.Contains(t, out, "Total: 900 in / 80 out tokens")
	assert.Contains(t, out, "Green score: 82")
	assert.Contains(t, out, "project_title: Sunfield Solar Farm")
	assert.Contains(t, out, `suggestions: ["Add storage","Recycle frames","Publish emissions"]`)
	assert.NotContains(t, out, "Record 1")
}

func TestWriteAnalysis_SummaryEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeAnalysis(&buf, &model.Analysis{RequestID: "r"}, "summary"))
	assert.Contains(t, buf.String(), "No structured result recovered.")
}

func TestWriteAnalysis_UnknownFormat(t *testing.T) {
	err := writeAnalysis(&bytes.Buffer{}, sampleAnalysis(), "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown format "xml"`)
}

func TestValidFormat(t *testing.T) {
	for _, f := range []string{"json", "yaml", "summary"} {
		assert.True(t, validFormat(f), f)
	}
	assert.False(t, validFormat("csv"))
}

func TestFormatFunders(t *testing.T) {
	var buf bytes.Buffer
	formatFunders(&buf, []model.Funder{
		{Name: "Lowercarbon Capital", Sector: "Climate", InvestmentRange: "1M-10M", Location: "USA", Website: "https://lowercarboncapital.com"},
		{Name: strings.Repeat("x", 50)},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "NAME"))
	assert.Contains(t, lines[2], "Lowercarbon Capital")
	assert.Contains(t, lines[2], "https://lowercarboncapital.com")
	assert.Contains(t, lines[3], strings.Repeat("x", 37)+"...")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
