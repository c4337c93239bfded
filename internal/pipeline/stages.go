package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/llm"
	"github.com/sells-group/greenscore/internal/model"
)

// stage is one model call of the analysis.
type stage struct {
	name   string
	system string
	// shape is a pointer to the typed output each recovered object is
	// checked against.
	shape func() any
}

var (
	extractStage = stage{
		name:   model.StageExtract,
		system: extractSystemPrompt,
		shape:  func() any { return &model.ProjectDetails{} },
	}
	scoreStage = stage{
		name:   model.StageScore,
		system: scoreSystemPrompt,
		shape:  func() any { return &model.GreenScore{} },
	}
	suggestStage = stage{
		name:   model.StageSuggest,
		system: suggestSystemPrompt,
		shape:  func() any { return &model.SuggestionSet{} },
	}
	recommendStage = stage{
		name:   model.StageRecommend,
		system: recommendSystemPrompt,
		shape:  func() any { return &model.FunderRecommendation{} },
	}
)

// stageOutput is what one stage produced.
type stageOutput struct {
	raw     string
	objects []map[string]any
	result  model.StageResult
}

// run issues the stage's model call with msg as the user message and
// recovers JSON objects from the reply. Model failures are returned as is.
func (a *Analyzer) run(ctx context.Context, log *zap.Logger, s stage, msg llm.Message) (*stageOutput, error) {
	msg.Role = llm.RoleUser
	req := llm.Request{
		Model:       a.opts.Model,
		MaxTokens:   a.opts.MaxTokens,
		Temperature: a.opts.Temperature,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.system},
			msg,
		},
	}

	start := time.Now()
	resp, err := a.model.Complete(ctx, req)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: %s stage", s.name)
	}
	duration := time.Since(start).Milliseconds()

	objs := a.recoverer.Recover(resp.Text)
	out := &stageOutput{
		raw:     resp.Text,
		objects: objs,
		result: model.StageResult{
			Name:       s.name,
			Raw:        resp.Text,
			Objects:    len(objs),
			DurationMs: duration,
			Usage:      resp.Usage,
			CostUSD:    a.costs.Estimate(a.opts.Model, resp.Usage),
		},
	}

	log.Info("pipeline: stage complete",
		zap.String("stage", s.name),
		zap.Int("objects", len(objs)),
		zap.Int64("duration_ms", duration),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", out.result.CostUSD),
	)
	if len(objs) == 0 {
		log.Warn("pipeline: no JSON recovered from stage reply",
			zap.String("stage", s.name),
			zap.Int("reply_chars", len(resp.Text)),
		)
	}

	a.check(log, s, objs)
	return out, nil
}

// check decodes each object into the stage's typed output and logs
// violations. It never fails the request.
func (a *Analyzer) check(log *zap.Logger, s stage, objs []map[string]any) {
	for i, obj := range objs {
		for _, problem := range validateObject(a.validate, s.shape(), obj) {
			log.Warn("pipeline: stage output failed validation",
				zap.String("stage", s.name),
				zap.Int("object", i),
				zap.String("problem", problem),
			)
		}
	}
}

// validateObject returns the problems found decoding obj into target and
// validating it.
func validateObject(v *validator.Validate, target any, obj map[string]any) []string {
	b, err := json.Marshal(obj)
	if err != nil {
		return []string{err.Error()}
	}
	if err := json.Unmarshal(b, target); err != nil {
		return []string{err.Error()}
	}
	err = v.Struct(target)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}
	problems := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		problems = append(problems, fe.Namespace()+" failed "+fe.Tag())
	}
	return problems
}
