// Package pipeline runs the green analysis of a project proposal: extract
// project details, score them, suggest improvements, recommend funders and
// apply the score gate.
package pipeline

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/config"
	"github.com/sells-group/greenscore/internal/cost"
	"github.com/sells-group/greenscore/internal/funders"
	"github.com/sells-group/greenscore/internal/llm"
	"github.com/sells-group/greenscore/internal/model"
	"github.com/sells-group/greenscore/internal/ocr"
	"github.com/sells-group/greenscore/internal/recovery"
)

// Options tunes an Analyzer.
type Options struct {
	Model               string
	MaxTokens           int64
	Temperature         *float64
	MinGreenScore       int
	StringAwareRecovery bool
	// ScratchDir holds uploaded documents while they are analyzed. Empty
	// means the OS temp directory.
	ScratchDir string
	// Costs prices model usage. Nil uses the default rates.
	Costs *cost.Calculator
}

// OptionsFromConfig maps the loaded configuration onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	overrides := make(cost.Rates, len(cfg.Pricing.Models))
	for name, p := range cfg.Pricing.Models {
		overrides[name] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	return Options{
		Model:               cfg.Model.Name,
		MaxTokens:           cfg.Model.MaxTokens,
		Temperature:         cfg.Model.Temperature,
		MinGreenScore:       cfg.Pipeline.MinGreenScore,
		StringAwareRecovery: cfg.Pipeline.StringAwareRecovery,
		ScratchDir:          cfg.Server.ScratchDir,
		Costs:               cost.NewCalculator(overrides),
	}
}

// Analyzer runs the analysis. It holds only read-only state and is safe
// for concurrent use.
type Analyzer struct {
	extractor ocr.Extractor
	model     llm.Capability
	funders   *funders.Directory
	recoverer *recovery.Recoverer
	validate  *validator.Validate
	costs     *cost.Calculator
	opts      Options
}

// New creates an Analyzer.
func New(extractor ocr.Extractor, capability llm.Capability, dir *funders.Directory, opts Options) *Analyzer {
	if opts.MinGreenScore <= 0 {
		opts.MinGreenScore = DefaultMinGreenScore
	}
	costs := opts.Costs
	if costs == nil {
		costs = cost.NewCalculator(nil)
	}
	if dir == nil {
		dir = funders.NewDirectory(nil)
	}
	return &Analyzer{
		extractor: extractor,
		model:     capability,
		funders:   dir,
		recoverer: recovery.New(recovery.Options{StringAware: opts.StringAwareRecovery}),
		validate:  model.NewValidator(),
		costs:     costs,
		opts:      opts,
	}
}

type requestIDKey struct{}

// WithRequestID attaches a request ID used in logs and on the Analysis.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID attached to ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// AnalyzeUpload copies an uploaded document to a scratch file, analyzes
// it and removes the file again.
func (a *Analyzer) AnalyzeUpload(ctx context.Context, doc io.Reader) (*model.Analysis, error) {
	f, err := os.CreateTemp(a.opts.ScratchDir, "greenscore-*.pdf")
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create scratch file")
	}
	path := f.Name()
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil && !os.IsNotExist(rmErr) {
			zap.L().Warn("pipeline: remove scratch file", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	_, copyErr := io.Copy(f, doc)
	closeErr := f.Close()
	if copyErr != nil {
		return nil, eris.Wrap(copyErr, "pipeline: write scratch file")
	}
	if closeErr != nil {
		return nil, eris.Wrap(closeErr, "pipeline: close scratch file")
	}

	return a.Analyze(ctx, path)
}

// Analyze runs every stage on the PDF at path. A score gate rejection is
// reported on the Analysis, not as an error.
func (a *Analyzer) Analyze(ctx context.Context, path string) (*model.Analysis, error) {
	requestID := RequestID(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	log := zap.L().With(zap.String("request_id", requestID))
	start := time.Now()

	blocks, err := a.extractor.ExtractPages(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: extract pages")
	}
	log.Info("pipeline: document extracted", zap.Int("pages", len(blocks)))

	analysis := &model.Analysis{RequestID: requestID}

	out, err := a.run(ctx, log, extractStage, documentMessage(blocks))
	if err != nil {
		return nil, err
	}
	analysis.Stages = append(analysis.Stages, out.result)
	records := seed(out.objects)
	raws := []string{out.raw}

	for _, s := range []stage{scoreStage, suggestStage, recommendStage} {
		input, err := stageInput(records, raws)
		if err != nil {
			return nil, err
		}
		if s.name == model.StageRecommend {
			input = recommendInput(input, a.funders.Format())
		}

		out, err = a.run(ctx, log, s, llm.Message{Content: input})
		if err != nil {
			return nil, err
		}
		analysis.Stages = append(analysis.Stages, out.result)
		raws = append(raws, out.raw)
		records = merge(records, out.objects)
	}

	for _, st := range analysis.Stages {
		analysis.Usage.Add(st.Usage)
		analysis.CostUSD += st.CostUSD
	}
	analysis.Records = compact(records)

	if idx, rejected := Gate(analysis.Records, a.opts.MinGreenScore); rejected {
		score, _ := analysis.Records[idx].GreenScore()
		analysis.Rejected = true
		analysis.Error = NotGreenEnoughMessage
		log.Info("pipeline: rejected by score gate",
			zap.Int("record", idx),
			zap.Int("green_score", score),
			zap.Int("min_green_score", a.opts.MinGreenScore),
		)
	}

	log.Info("pipeline: analysis complete",
		zap.Int("records", len(analysis.Records)),
		zap.Bool("rejected", analysis.Rejected),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		zap.Int64("input_tokens", analysis.Usage.InputTokens),
		zap.Int64("output_tokens", analysis.Usage.OutputTokens),
		zap.Float64("estimated_cost_usd", analysis.CostUSD),
	)
	return analysis, nil
}

// documentMessage sends each page as its own text part.
func documentMessage(blocks []model.ContentBlock) llm.Message {
	if len(blocks) == 0 {
		return llm.Message{Content: emptyDocumentInput}
	}
	parts := make([]string, len(blocks))
	for i, b := range blocks {
		parts[i] = b.Text
	}
	return llm.Message{Parts: parts}
}
