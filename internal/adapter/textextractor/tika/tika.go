// Package tika provides Apache Tika integration for text extraction.
//
// It extracts text content from resume documents including PDF, DOCX and
// plain text files and returns clean single-line text for prompt building.
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/prepwise/interview-engine/pkg/textx"
)

// Client is a minimal Apache Tika HTTP client implementing domain.TextExtractor.
// It performs PUT /tika with Accept: text/plain to retrieve extracted text.
// See: https://tika.apache.org/server/ for API details.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New constructs a Tika client with a default timeout.
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   15 * time.Second,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

// ExtractPath uploads the file at path to the Tika server and returns plain text.
func (c *Client) ExtractPath(ctx context.Context, fileName, path string) (string, error) {
	// Uploaded files are written to the system temp dir; constrain reads to
	// the temp dir or the working directory to mitigate path traversal.
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	abs = filepath.Clean(abs)
	tmp := filepath.Clean(os.TempDir())
	wd, _ := os.Getwd()
	wd = filepath.Clean(wd)
	if !strings.HasPrefix(abs, tmp+string(os.PathSeparator)) && abs != tmp &&
		!strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
		return "", fmt.Errorf("disallowed path: %s", abs)
	}
	data, err := os.ReadFile(abs) //nolint:gosec // Path constrained above.
	if err != nil {
		return "", err
	}

	u := c.baseURL
	if u == "" {
		u = "http://localhost:9998"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u+"/tika", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/plain")
	// Content-Type best-effort from extension
	if ct := contentTypeFromExt(filepath.Ext(fileName)); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("tika status %d", resp.StatusCode)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	// Sanitize control characters and collapse all whitespace to single spaces
	sanitized := textx.SanitizeText(string(b))
	return strings.Join(strings.Fields(sanitized), " "), nil
}

func contentTypeFromExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".pdf":
		return "application/pdf"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	default:
		if ext != "" {
			return mime.TypeByExtension(ext)
		}
	}
	return ""
}
