package pipeline

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/greenscore/internal/funders"
	"github.com/sells-group/greenscore/internal/llm"
	"github.com/sells-group/greenscore/internal/llm/mocks"
	"github.com/sells-group/greenscore/internal/model"
	"github.com/sells-group/greenscore/internal/ocr"
)

type stubExtractor struct {
	blocks []model.ContentBlock
	err    error
	paths  []string
}

func (s *stubExtractor) ExtractPages(_ context.Context, path string) ([]model.ContentBlock, error) {
	s.paths = append(s.paths, path)
	return s.blocks, s.err
}

func solarPages() []model.ContentBlock {
	return []model.ContentBlock{
		{Type: model.ContentBlockTypeText, Text: "Page 1:\nSunfield Solar Farm\nA 40 MW photovoltaic plant in Almeria, Spain."},
		{Type: model.ContentBlockTypeText, Text: "Page 2:\nBudget\nWe are raising 5M - 20M EUR for construction."},
	}
}

const (
	extractReply = "```json\n" + `{
  "project_title": "Sunfield Solar Farm",
  "project_description": "A 40 MW photovoltaic plant replacing diesel generation.",
  "project_location": "Almeria, Spain",
  "project_type": "Renewable Energy",
  "potential_funding": "5000000 - 20000000"
}` + "\n```"

	suggestReply = "Here are the suggestions:\n```json\n" + `{
  "suggestions": ["Add battery storage", "Use recycled panel frames", "Publish lifecycle emissions"],
  "score_impact": [6, 3, 2]
}` + "\n```"

	recommendReply = `{
  "recommended_funders": ["Breakthrough Energy Ventures", "Energy Impact Partners", "Lowercarbon Capital"],
  "company_website": ["https://breakthroughenergy.org", "https://www.energyimpactpartners.com", "https://lowercarboncapital.com"],
  "company_description": ["Climate tech fund", "Utility-backed energy fund", "Climate fund"],
  "estimated_investment": ["10M", "8M", "5M"]
}`
)

// scriptedModel answers each stage from replies, keyed by stage name, and
// records the requests it received.
type scriptedModel struct {
	mu       sync.Mutex
	replies  map[string]string
	requests map[string]llm.Request
}

func newScriptedModel(replies map[string]string) *scriptedModel {
	return &scriptedModel{replies: replies, requests: map[string]llm.Request{}}
}

func stageOf(req llm.Request) string {
	switch req.System() {
	case extractSystemPrompt:
		return model.StageExtract
	case scoreSystemPrompt:
		return model.StageScore
	case suggestSystemPrompt:
		return model.StageSuggest
	case recommendSystemPrompt:
		return model.StageRecommend
	}
	return ""
}

func (s *scriptedModel) complete(_ context.Context, req llm.Request) (*llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name := stageOf(req)
	s.requests[name] = req
	return &llm.Response{
		Text:  s.replies[name],
		Usage: model.TokenUsage{InputTokens: 1000, OutputTokens: 100},
	}, nil
}

func (s *scriptedModel) userMessage(stage string) llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.requests[stage].Messages
	return msgs[len(msgs)-1]
}

func newMockModel(t *testing.T, script *scriptedModel, calls int) *mocks.MockCapability {
	m := mocks.NewMockCapability(t)
	m.On("Complete", mock.Anything, mock.Anything).Return(script.complete).Times(calls)
	return m
}

func testDirectory() *funders.Directory {
	return funders.NewDirectory([]model.Funder{
		{Name: "Breakthrough Energy Ventures", Website: "https://breakthroughenergy.org", Sector: "Climate"},
		{Name: "Lowercarbon Capital", Website: "https://lowercarboncapital.com", Sector: "Climate"},
	})
}

func testOptions() Options {
	return Options{Model: "meta-llama/llama-4-scout-17b-16e-instruct", MaxTokens: 1024}
}

func TestAnalyze_SolarFarm(t *testing.T) {
	t.Parallel()

	script := newScriptedModel(map[string]string{
		model.StageExtract:   extractReply,
		model.StageScore:     `{"green_score": 82}`,
		model.StageSuggest:   suggestReply,
		model.StageRecommend: recommendReply,
	})
	extractor := &stubExtractor{blocks: solarPages()}
	a := New(extractor, newMockModel(t, script, 4), testDirectory(), testOptions())

	ctx := WithRequestID(context.Background(), "req-solar")
	analysis, err := a.Analyze(ctx, "/tmp/proposal.pdf")
	require.NoError(t, err)

	assert.Equal(t, "req-solar", analysis.RequestID)
	assert.False(t, analysis.Rejected)
	assert.Empty(t, analysis.Error)
	assert.Equal(t, []string{"/tmp/proposal.pdf"}, extractor.paths)

	require.Len(t, analysis.Records, 1)
	rec := analysis.Records[0]
	assert.Equal(t, "Renewable Energy", rec["project_type"])
	score, ok := rec.GreenScore()
	require.True(t, ok)
	assert.GreaterOrEqual(t, score, 20)
	assert.Len(t, rec["suggestions"], 3)
	assert.Len(t, rec["score_impact"], 3)
	assert.Len(t, rec["recommended_funders"], 3)
	assert.Len(t, rec["company_website"], 3)
	assert.Len(t, rec["company_description"], 3)
	assert.Len(t, rec["estimated_investment"], 3)

	// Stage inputs.
	extractMsg := script.userMessage(model.StageExtract)
	assert.Equal(t, llm.RoleUser, extractMsg.Role)
	require.Len(t, extractMsg.Parts, 2)
	assert.True(t, strings.HasPrefix(extractMsg.Parts[0], "Page 1:\n"))
	assert.True(t, strings.HasPrefix(extractMsg.Parts[1], "Page 2:\n"))

	assert.Contains(t, script.userMessage(model.StageScore).Content, `"project_title":"Sunfield Solar Farm"`)
	assert.Contains(t, script.userMessage(model.StageSuggest).Content, `"green_score":82`)
	recommendMsg := script.userMessage(model.StageRecommend).Content
	assert.Contains(t, recommendMsg, `"suggestions":`)
	assert.Contains(t, recommendMsg, "Breakthrough Energy Ventures | https://breakthroughenergy.org")

	// Bookkeeping.
	require.Len(t, analysis.Stages, 4)
	for i, name := range []string{model.StageExtract, model.StageScore, model.StageSuggest, model.StageRecommend} {
		assert.Equal(t, name, analysis.Stages[i].Name)
		assert.Equal(t, 1, analysis.Stages[i].Objects)
	}
	assert.Equal(t, int64(4000), analysis.Usage.InputTokens)
	assert.Equal(t, int64(400), analysis.Usage.OutputTokens)
	// 4 * (1000 * 0.11 + 100 * 0.34) / 1e6
	assert.InDelta(t, 0.000576, analysis.CostUSD, 1e-9)

	payload, ok := analysis.Payload().([]model.Record)
	require.True(t, ok)
	assert.Len(t, payload, 1)
}

func TestAnalyze_ScoreGateRejects(t *testing.T) {
	t.Parallel()

	script := newScriptedModel(map[string]string{
		model.StageExtract:   extractReply,
		model.StageScore:     "```json\n{\"green_score\": 19}\n```",
		model.StageSuggest:   suggestReply,
		model.StageRecommend: recommendReply,
	})
	a := New(&stubExtractor{blocks: solarPages()}, newMockModel(t, script, 4), testDirectory(), testOptions())

	analysis, err := a.Analyze(context.Background(), "proposal.pdf")
	require.NoError(t, err)
	assert.NotEmpty(t, analysis.RequestID)
	assert.True(t, analysis.Rejected)
	assert.Equal(t, NotGreenEnoughMessage, analysis.Error)
	assert.Equal(t, map[string]string{"error": NotGreenEnoughMessage}, analysis.Payload())
}

func TestAnalyze_ScoreAtThresholdPasses(t *testing.T) {
	t.Parallel()

	script := newScriptedModel(map[string]string{
		model.StageExtract:   extractReply,
		model.StageScore:     `{"green_score": 20}`,
		model.StageSuggest:   suggestReply,
		model.StageRecommend: recommendReply,
	})
	a := New(&stubExtractor{blocks: solarPages()}, newMockModel(t, script, 4), testDirectory(), testOptions())

	analysis, err := a.Analyze(context.Background(), "proposal.pdf")
	require.NoError(t, err)
	assert.False(t, analysis.Rejected)
	require.Len(t, analysis.Records, 1)
}

func TestAnalyze_EmptyDocument(t *testing.T) {
	t.Parallel()

	script := newScriptedModel(map[string]string{
		model.StageExtract:   "I could not find any project details in the document.",
		model.StageScore:     "There is nothing to score.",
		model.StageSuggest:   "No suggestions.",
		model.StageRecommend: "No funders.",
	})
	a := New(&stubExtractor{}, newMockModel(t, script, 4), testDirectory(), testOptions())

	analysis, err := a.Analyze(context.Background(), "empty.pdf")
	require.NoError(t, err)

	assert.Equal(t, emptyDocumentInput, script.userMessage(model.StageExtract).Content)
	assert.Empty(t, script.userMessage(model.StageExtract).Parts)
	// Nothing recovered, so every earlier raw reply is passed on.
	assert.Equal(t, "I could not find any project details in the document.", script.userMessage(model.StageScore).Content)
	assert.Equal(t, "I could not find any project details in the document.\nThere is nothing to score.",
		script.userMessage(model.StageSuggest).Content)
	assert.True(t, strings.HasPrefix(script.userMessage(model.StageRecommend).Content,
		"I could not find any project details in the document.\nThere is nothing to score.\nNo suggestions.\n\nGreen funder directory:\n"))

	assert.False(t, analysis.Rejected)
	assert.Empty(t, analysis.Records)
	assert.Equal(t, []model.Record{}, analysis.Payload())
}

func TestAnalyze_ProseRepliesAccumulate(t *testing.T) {
	t.Parallel()

	script := newScriptedModel(map[string]string{
		model.StageExtract:   "EXTRACT-PROSE a wind farm near Oslo",
		model.StageScore:     "SCORE-PROSE eighty two",
		model.StageSuggest:   "SUGGEST-PROSE add storage",
		model.StageRecommend: "RECOMMEND-PROSE try a climate fund",
	})
	a := New(&stubExtractor{blocks: solarPages()}, newMockModel(t, script, 4), testDirectory(), testOptions())

	analysis, err := a.Analyze(context.Background(), "wind.pdf")
	require.NoError(t, err)

	assert.Equal(t, "EXTRACT-PROSE a wind farm near Oslo", script.userMessage(model.StageScore).Content)

	suggest := script.userMessage(model.StageSuggest).Content
	assert.Equal(t, "EXTRACT-PROSE a wind farm near Oslo\nSCORE-PROSE eighty two", suggest)

	recommend := script.userMessage(model.StageRecommend).Content
	assert.Contains(t, recommend, "EXTRACT-PROSE")
	assert.Contains(t, recommend, "SCORE-PROSE")
	assert.Contains(t, recommend, "SUGGEST-PROSE add storage")
	assert.NotContains(t, recommend, "RECOMMEND-PROSE")
	assert.Contains(t, recommend, "Breakthrough Energy Ventures")

	assert.Empty(t, analysis.Records)
	assert.False(t, analysis.Rejected)
}

func TestAnalyze_DocumentUnreadable(t *testing.T) {
	t.Parallel()

	extractor := &stubExtractor{err: eris.Wrap(ocr.ErrDocumentUnreadable, "ocr: broken.pdf")}
	m := mocks.NewMockCapability(t)
	a := New(extractor, m, testDirectory(), testOptions())

	_, err := a.Analyze(context.Background(), "broken.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrDocumentUnreadable)
	m.AssertNotCalled(t, "Complete", mock.Anything, mock.Anything)
}

func TestAnalyze_ModelFailureIsFatal(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockCapability(t)
	m.On("Complete", mock.Anything, mock.Anything).Return(nil, errors.New("401 invalid api key")).Once()

	a := New(&stubExtractor{blocks: solarPages()}, llm.NewResilient(m), testDirectory(), testOptions())

	analysis, err := a.Analyze(context.Background(), "proposal.pdf")
	require.Error(t, err)
	assert.Nil(t, analysis)
	assert.ErrorIs(t, err, llm.ErrModelCallFailed)
	assert.Contains(t, err.Error(), "extract stage")
}

func TestAnalyze_ModelFailureMidway(t *testing.T) {
	t.Parallel()

	script := newScriptedModel(map[string]string{model.StageExtract: extractReply})
	m := mocks.NewMockCapability(t)
	m.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return stageOf(req) == model.StageExtract
	})).Return(script.complete).Once()
	m.On("Complete", mock.Anything, mock.MatchedBy(func(req llm.Request) bool {
		return stageOf(req) == model.StageScore
	})).Return(nil, errors.New("upstream exploded")).Once()

	a := New(&stubExtractor{blocks: solarPages()}, llm.NewResilient(m), testDirectory(), testOptions())

	analysis, err := a.Analyze(context.Background(), "proposal.pdf")
	require.Error(t, err)
	assert.Nil(t, analysis)
	assert.ErrorIs(t, err, llm.ErrModelCallFailed)
	assert.Contains(t, err.Error(), "score stage")
}

func TestAnalyze_ModelTimeout(t *testing.T) {
	t.Parallel()

	m := mocks.NewMockCapability(t)
	m.On("Complete", mock.Anything, mock.Anything).
		Return(func(ctx context.Context, _ llm.Request) (*llm.Response, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).Once()

	capability := llm.NewResilient(m, llm.WithTimeout(10*time.Millisecond))
	a := New(&stubExtractor{blocks: solarPages()}, capability, testDirectory(), testOptions())

	_, err := a.Analyze(context.Background(), "proposal.pdf")
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrModelTimeout)
}

func TestAnalyzeUpload_RemovesScratchFile(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	script := newScriptedModel(map[string]string{
		model.StageExtract:   extractReply,
		model.StageScore:     `{"green_score": 82}`,
		model.StageSuggest:   suggestReply,
		model.StageRecommend: recommendReply,
	})
	extractor := &stubExtractor{blocks: solarPages()}
	opts := testOptions()
	opts.ScratchDir = scratch
	a := New(extractor, newMockModel(t, script, 4), testDirectory(), opts)

	_, err := a.AnalyzeUpload(context.Background(), strings.NewReader("%PDF-1.4 fake"))
	require.NoError(t, err)

	require.Len(t, extractor.paths, 1)
	assert.True(t, strings.HasPrefix(extractor.paths[0], scratch))
	assert.True(t, strings.HasSuffix(extractor.paths[0], ".pdf"))

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAnalyzeUpload_RemovesScratchFileOnError(t *testing.T) {
	t.Parallel()

	scratch := t.TempDir()
	extractor := &stubExtractor{err: eris.Wrap(ocr.ErrDocumentUnreadable, "ocr: bad")}
	opts := testOptions()
	opts.ScratchDir = scratch
	a := New(extractor, mocks.NewMockCapability(t), testDirectory(), opts)

	_, err := a.AnalyzeUpload(context.Background(), strings.NewReader("not a pdf"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ocr.ErrDocumentUnreadable)

	entries, err := os.ReadDir(scratch)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	assert.Empty(t, RequestID(context.Background()))
	assert.Equal(t, "abc", RequestID(WithRequestID(context.Background(), "abc")))
}

func TestNew_Defaults(t *testing.T) {
	t.Parallel()

	a := New(&stubExtractor{}, mocks.NewMockCapability(t), nil, Options{})
	assert.Equal(t, DefaultMinGreenScore, a.opts.MinGreenScore)
	assert.NotNil(t, a.costs)
	assert.Equal(t, 0, a.funders.Len())
}
