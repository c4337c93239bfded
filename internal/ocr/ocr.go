// Package ocr turns PDF documents into labeled per-page text blocks.
package ocr

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/greenscore/internal/config"
	"github.com/sells-group/greenscore/internal/model"
)

// ErrDocumentUnreadable is returned when a document cannot be opened or parsed.
var ErrDocumentUnreadable = eris.New("document unreadable")

// Extractor extracts per-page text from PDF files.
type Extractor interface {
	ExtractPages(ctx context.Context, pdfPath string) ([]model.ContentBlock, error)
}

// NewExtractor creates an Extractor based on config.
func NewExtractor(cfg config.OCRConfig, mistralKey string) (Extractor, error) {
	switch cfg.Provider {
	case "native", "":
		return NewNative(), nil
	case "local":
		return NewPdfToText(cfg.PdfToTextPath), nil
	case "mistral":
		if mistralKey == "" {
			return nil, eris.New("ocr: mistral provider requires mistral_api_key")
		}
		return NewMistralOCR(mistralKey, cfg.MistralModel), nil
	default:
		return nil, eris.Errorf("ocr: unknown provider %q", cfg.Provider)
	}
}

// pageBlocks labels page texts in document order, 1-based.
func pageBlocks(pages []string) []model.ContentBlock {
	blocks := make([]model.ContentBlock, 0, len(pages))
	for i, text := range pages {
		blocks = append(blocks, model.ContentBlock{
			Type: model.ContentBlockTypeText,
			Text: fmt.Sprintf("Page %d:\n%s", i+1, norm.NFC.String(text)),
		})
	}
	return blocks
}

func unreadable(pdfPath string, cause error) error {
	return eris.Wrapf(ErrDocumentUnreadable, "ocr: %s: %v", pdfPath, cause)
}
