package main

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/config"
	"github.com/sells-group/greenscore/internal/funders"
	"github.com/sells-group/greenscore/internal/llm"
	"github.com/sells-group/greenscore/internal/ocr"
	"github.com/sells-group/greenscore/internal/pipeline"
)

// initAnalyzer validates the config and builds the extractor, funder
// directory and model capability the analyze and serve commands share.
func initAnalyzer(ctx context.Context, c *config.Config) (*pipeline.Analyzer, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	extractor, err := ocr.NewExtractor(c.OCR, c.OCR.MistralKey)
	if err != nil {
		return nil, eris.Wrap(err, "init extractor")
	}

	dir, err := funders.Open(ctx, c.Funders.Path)
	if err != nil {
		return nil, eris.Wrap(err, "load funder directory")
	}

	capability, err := llm.New(c)
	if err != nil {
		return nil, eris.Wrap(err, "init model")
	}

	zap.L().Info("analyzer ready",
		zap.String("provider", c.Model.Provider),
		zap.String("model", c.Model.Name),
		zap.String("ocr", c.OCR.Provider),
		zap.Int("funders", dir.Len()),
	)

	return pipeline.New(extractor, capability, dir, pipeline.OptionsFromConfig(c)), nil
}
