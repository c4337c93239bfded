package ocr

import (
	"context"
	"fmt"
	"os"

	"github.com/ledongthuc/pdf"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/model"
)

// Native extracts text with a pure-Go PDF parser. No external tools needed.
type Native struct{}

// NewNative creates a Native extractor.
func NewNative() *Native {
	return &Native{}
}

// ExtractPages reads every page of the PDF in order. A page whose content
// stream cannot be decoded yields an empty block so labels stay aligned.
func (n *Native) ExtractPages(ctx context.Context, pdfPath string) (blocks []model.ContentBlock, err error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return nil, unreadable(pdfPath, err)
	}
	defer f.Close() //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return nil, unreadable(pdfPath, err)
	}

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			blocks = nil
			err = unreadable(pdfPath, fmt.Errorf("parser panic: %v", r))
		}
	}()

	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, unreadable(pdfPath, err)
	}

	numPages := reader.NumPage()
	pages := make([]string, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "ocr: native extract")
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, "")
			continue
		}

		text, err := page.GetPlainText(nil)
		if err != nil {
			zap.L().Warn("ocr: page text extraction failed",
				zap.String("path", pdfPath),
				zap.Int("page", i),
				zap.Error(err),
			)
			text = ""
		}
		pages = append(pages, text)
	}

	return pageBlocks(pages), nil
}
