package ocr

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/greenscore/internal/model"
)

// PdfToText extracts text from PDFs using the pdftotext CLI tool.
type PdfToText struct {
	binPath string
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty, "pdftotext" is used.
func NewPdfToText(binPath string) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	return &PdfToText{binPath: binPath}
}

// ExtractPages runs pdftotext -layout on the given PDF and splits stdout on
// form feeds, one page per segment.
func (p *PdfToText) ExtractPages(ctx context.Context, pdfPath string) ([]model.ContentBlock, error) {
	cmd := exec.CommandContext(ctx, p.binPath, "-layout", pdfPath, "-")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			return nil, unreadable(pdfPath, eris.Errorf("pdftotext: %s", strings.TrimSpace(stderr.String())))
		}
		return nil, eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, stderr.String())
	}

	return pageBlocks(splitPages(stdout.String())), nil
}

// splitPages splits pdftotext output on form feeds. pdftotext terminates
// every page with one, so a trailing blank segment is not a page.
func splitPages(out string) []string {
	pages := strings.Split(out, "\f")
	if strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}
	return pages
}
