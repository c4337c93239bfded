package funders

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/greenscore/internal/resilience"
)

const userAgent = "greenscore/1.0"

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Open loads the directory from a local path or an http(s) URL. Remote
// files are downloaded to a temporary file that is removed after loading;
// the URL path must end in .csv or .xlsx.
func Open(ctx context.Context, source string) (*Directory, error) {
	if !isRemote(source) {
		return Load(source)
	}

	local, err := download(ctx, source)
	if err != nil {
		return nil, err
	}
	defer os.Remove(local) //nolint:errcheck

	return Load(local)
}

func isRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// download fetches rawURL into a temp file named after the URL's
// extension, retrying 429 and 5xx responses.
func download(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", eris.Wrap(err, "funders: parse url")
	}
	ext := strings.ToLower(path.Ext(u.Path))

	policy := resilience.NewRetryPolicy(2, 500, 5000)
	policy.OnRetry = func(retry int, err error) {
		zap.L().Warn("funders: download failed, retrying",
			zap.String("url", rawURL),
			zap.Int("retry", retry),
			zap.Error(err),
		)
	}

	body, err := resilience.Retry(ctx, policy, func(ctx context.Context) (io.ReadCloser, error) {
		return get(ctx, rawURL)
	})
	if err != nil {
		return "", eris.Wrapf(err, "funders: download %s", rawURL)
	}
	defer body.Close() //nolint:errcheck

	f, err := os.CreateTemp("", "greenscore-funders-*"+ext)
	if err != nil {
		return "", eris.Wrap(err, "funders: create temp file")
	}
	n, err := io.Copy(f, body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", eris.Wrap(err, "funders: write temp file")
	}

	zap.L().Debug("funders: directory downloaded",
		zap.String("url", rawURL),
		zap.Int64("bytes", n),
	)
	return f.Name(), nil
}

func get(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "create request")
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, resilience.MarkStatus(eris.Errorf("unexpected status %d", resp.StatusCode), resp.StatusCode)
	}
	return resp.Body, nil
}
