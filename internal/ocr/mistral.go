package ocr

import (
	"bytes"
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/model"
	"github.com/sells-group/greenscore/internal/resilience"
)

const (
	mistralOCREndpoint  = "https://api.mistral.ai/v1/ocr"
	defaultMistralModel = "mistral-ocr-latest"
)

// MistralOCR sends the PDF to the Mistral OCR API. It handles scanned
// proposals that have no text layer.
type MistralOCR struct {
	apiKey   string
	model    string
	endpoint string
	client   *http.Client
	policy   resilience.RetryPolicy
}

// NewMistralOCR creates a MistralOCR extractor. An empty model selects
// mistral-ocr-latest.
func NewMistralOCR(apiKey, model string) *MistralOCR {
	if model == "" {
		model = defaultMistralModel
	}
	policy := resilience.NewRetryPolicy(2, 1000, 8000)
	policy.OnRetry = resilience.LogRetry("mistral", model)
	return &MistralOCR{
		apiKey:   apiKey,
		model:    model,
		endpoint: mistralOCREndpoint,
		client:   &http.Client{Timeout: 2 * time.Minute},
		policy:   policy,
	}
}

type mistralOCRRequest struct {
	Model    string             `json:"model"`
	Document mistralOCRDocument `json:"document"`
}

type mistralOCRDocument struct {
	Type        string `json:"type"`
	DocumentURL string `json:"document_url"`
}

type mistralOCRResponse struct {
	Pages []mistralOCRPage `json:"pages"`
}

type mistralOCRPage struct {
	Index    int    `json:"index"`
	Markdown string `json:"markdown"`
}

// ExtractPages returns one block per page the API reports, ordered by page
// index. A 422 from the API means the document itself was rejected.
func (m *MistralOCR) ExtractPages(ctx context.Context, pdfPath string) ([]model.ContentBlock, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, unreadable(pdfPath, eris.Wrap(err, "read PDF"))
	}

	payload, err := json.Marshal(mistralOCRRequest{
		Model: m.model,
		Document: mistralOCRDocument{
			Type:        "document_url",
			DocumentURL: "data:application/pdf;base64," + base64.StdEncoding.EncodeToString(data),
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "ocr: marshal mistral request")
	}

	result, err := resilience.Retry(ctx, m.policy, func(ctx context.Context) (*mistralOCRResponse, error) {
		return m.call(ctx, payload)
	})
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusUnprocessableEntity {
			return nil, unreadable(pdfPath, err)
		}
		return nil, eris.Wrap(err, "ocr: mistral")
	}

	slices.SortStableFunc(result.Pages, func(a, b mistralOCRPage) int {
		return cmp.Compare(a.Index, b.Index)
	})
	pages := make([]string, len(result.Pages))
	for i, p := range result.Pages {
		pages[i] = p.Markdown
	}

	zap.L().Debug("ocr: mistral pages extracted",
		zap.String("path", pdfPath),
		zap.Int("pages", len(pages)),
	)
	return pageBlocks(pages), nil
}

// statusError carries a non-200 API status.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("mistral API returned %d: %s", e.code, e.body)
}

func (m *MistralOCR) call(ctx context.Context, payload []byte) (*mistralOCRResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, eris.Wrap(err, "create mistral request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "read mistral response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, resilience.MarkStatus(&statusError{code: resp.StatusCode, body: string(body)}, resp.StatusCode)
	}

	var out mistralOCRResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, eris.Wrap(err, "unmarshal mistral response")
	}
	return &out, nil
}
