package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/greenscore/internal/model"
)

func TestValidateObject(t *testing.T) {
	t.Parallel()

	v := model.NewValidator()

	tests := []struct {
		name    string
		stage   stage
		obj     map[string]any
		problem string
	}{
		{
			name:  "valid details",
			stage: extractStage,
			obj:   map[string]any{"project_title": "Sunfield", "project_type": "Renewable Energy"},
		},
		{
			name:    "unknown project type",
			stage:   extractStage,
			obj:     map[string]any{"project_type": "Crypto Mining"},
			problem: "project_type",
		},
		{
			name:    "score above range",
			stage:   scoreStage,
			obj:     map[string]any{"green_score": 150.0},
			problem: "max",
		},
		{
			name:    "score as text does not decode",
			stage:   scoreStage,
			obj:     map[string]any{"green_score": "eighty"},
			problem: "green_score",
		},
		{
			name:    "suggestions without matching impacts",
			stage:   suggestStage,
			obj:     map[string]any{"suggestions": []any{"a", "b", "c"}, "score_impact": []any{1.0}},
			problem: "eqlen_suggestions",
		},
		{
			name:  "aligned funders",
			stage: recommendStage,
			obj: map[string]any{
				"recommended_funders":  []any{"A"},
				"company_website":      []any{"https://a.example"},
				"company_description":  []any{"fund"},
				"estimated_investment": []any{"1M"},
			},
		},
		{
			name:    "misaligned funders",
			stage:   recommendStage,
			obj:     map[string]any{"recommended_funders": []any{"A", "B"}, "company_website": []any{"https://a.example"}},
			problem: "eqlen_funders",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			problems := validateObject(v, tt.stage.shape(), tt.obj)
			if tt.problem == "" {
				assert.Empty(t, problems)
				return
			}
			require.NotEmpty(t, problems)
			assert.Contains(t, problems[0], tt.problem)
		})
	}
}

func TestPrompts(t *testing.T) {
	t.Parallel()

	for _, pt := range model.ProjectTypes() {
		assert.Contains(t, extractSystemPrompt, "- "+string(pt))
	}
	for _, key := range []string{"project_title", "project_description", "project_location", "project_type", "potential_funding"} {
		assert.Contains(t, extractSystemPrompt, `"`+key+`"`)
	}
	assert.Contains(t, scoreSystemPrompt, `"green_score"`)
	assert.Contains(t, scoreSystemPrompt, "must score 0")
	assert.Contains(t, suggestSystemPrompt, "exactly 3 suggestions")
	assert.Contains(t, recommendSystemPrompt, "only from the directory")
	for _, p := range []string{extractSystemPrompt, scoreSystemPrompt, suggestSystemPrompt, recommendSystemPrompt} {
		assert.Contains(t, p, onlyJSON)
	}
}

func TestDocumentMessage(t *testing.T) {
	t.Parallel()

	msg := documentMessage(nil)
	assert.Equal(t, emptyDocumentInput, msg.Content)
	assert.Empty(t, msg.Parts)

	msg = documentMessage([]model.ContentBlock{{Type: "text", Text: "Page 1:\nA"}})
	assert.Equal(t, []string{"Page 1:\nA"}, msg.Parts)
}
